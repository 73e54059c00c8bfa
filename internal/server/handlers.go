package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"edgecache/internal/core"
	"edgecache/internal/events"
	"edgecache/internal/lifecycle"
	"edgecache/internal/rules"
	"edgecache/internal/strategy"
	"edgecache/internal/upstream"
)

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	matcher   *rules.Matcher
	executor  *strategy.Executor
	fetcher   *upstream.Fetcher
	lifecycle *lifecycle.Manager
	hub       *events.Hub
}

// NewHandler creates a handler with the given dependencies.
func NewHandler(matcher *rules.Matcher, executor *strategy.Executor, fetcher *upstream.Fetcher, lc *lifecycle.Manager, hub *events.Hub) *Handler {
	return &Handler{
		matcher:   matcher,
		executor:  executor,
		fetcher:   fetcher,
		lifecycle: lc,
		hub:       hub,
	}
}

// Proxy serves the catch-all route: resolve the upstream URL, classify it
// against the rule list, execute the selected strategy and replay the
// snapshot to the client.
func (h *Handler) Proxy(c echo.Context) error {
	req := c.Request()

	target, err := h.fetcher.Resolve(req)
	if err != nil {
		return handleError(c, err)
	}

	rule := h.matcher.Match(req, target)
	resp := h.executor.Execute(req.Context(), req, target, rule)

	return writeSnapshot(c, resp)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Events handles GET /events: a server-sent event stream carrying
// SW_UPDATED and SYNC_COMPLETE messages to subscribers.
func (h *Handler) Events(c echo.Context) error {
	ch, cancel := h.hub.Subscribe()
	defer cancel()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}

// writeSnapshot replays a response snapshot to the client.
func writeSnapshot(c echo.Context, resp *core.Response) error {
	header := c.Response().Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	header.Set("X-Cache-Source", string(resp.Source))

	c.Response().WriteHeader(resp.StatusCode)
	if c.Request().Method == http.MethodHead {
		return nil
	}
	_, err := c.Response().Write(resp.Body)
	return err
}

// handleError converts gateway errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
	}
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
