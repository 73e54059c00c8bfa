package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"edgecache/internal/core"
)

// maxControlBody bounds control message payloads (64KB).
const maxControlBody = 64 * 1024

// Control message types recognized on /control/message.
const (
	msgSkipWaiting     = "SKIP_WAITING"
	msgClearCache      = "CLEAR_CACHE"
	msgPerformanceMark = "PERFORMANCE_MARK"
)

// ControlMessage handles POST /control/message. The payload is parsed
// leniently: only the "type" field is required, extra fields are allowed.
func (h *Handler) ControlMessage(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxControlBody))
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("failed to read message body", err))
	}
	if !gjson.ValidBytes(body) {
		return handleError(c, core.NewInvalidRequestError("message body must be JSON", nil))
	}

	msgType := gjson.GetBytes(body, "type").String()
	ctx := c.Request().Context()

	switch msgType {
	case msgSkipWaiting:
		if err := h.lifecycle.SkipWaiting(ctx); err != nil {
			slog.Warn("skip-waiting sweep finished with errors", "error", err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "activated"})

	case msgClearCache:
		if err := h.lifecycle.ClearAll(ctx); err != nil {
			slog.Warn("cache clear finished with errors", "error", err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})

	case msgPerformanceMark:
		// Logged only, no side effect.
		slog.Info("performance mark",
			"name", gjson.GetBytes(body, "name").String(),
			"duration_ms", gjson.GetBytes(body, "duration").Float(),
		)
		return c.JSON(http.StatusOK, map[string]string{"status": "logged"})

	case "":
		return handleError(c, core.NewInvalidRequestError("message type is required", nil))

	default:
		// Unknown types are tolerated so clients can ship new message
		// types ahead of the gateway.
		slog.Debug("ignoring unknown control message", "type", msgType)
		return c.JSON(http.StatusAccepted, map[string]string{"status": "ignored"})
	}
}

// ControlSync handles POST /control/sync: flush the background sync queue
// as one batch and broadcast SYNC_COMPLETE.
func (h *Handler) ControlSync(c echo.Context) error {
	count, err := h.lifecycle.FlushSync(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "synced", "count": count})
}
