// Package rules classifies request URLs against an ordered list of routing
// rules. Matching is first-match-wins; rule order is the tie-break
// mechanism, not specificity. Absence of a match is a valid outcome and
// falls through to a default per request shape.
package rules

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"edgecache/config"
	"edgecache/internal/core"
)

// Rule is one compiled routing rule.
type Rule struct {
	Pattern   *regexp.Regexp
	Strategy  core.Strategy
	Namespace string
	// Default marks the fall-through rules so callers can tell a real
	// match from the default classification.
	Default bool
}

// Matcher holds the compiled, ordered rule list. It is built once at
// startup and read-only during request handling.
type Matcher struct {
	rules       []Rule
	defaultNav  Rule
	defaultRest Rule
}

// Defaults returns the built-in rule set mirroring the deployed routing
// policy: CSS is network-first so styling never goes stale, font and
// Firebase CDNs are pinned caches, cloud functions bypass the cache
// entirely.
func Defaults() []config.RuleConfig {
	return []config.RuleConfig{
		{Pattern: `\.css(\?.*)?$|/styles/`, Strategy: "network-first", Namespace: "runtime"},
		{Pattern: `fonts\.(googleapis|gstatic)\.com`, Strategy: "cache-first", Namespace: "google-fonts"},
		{Pattern: `www\.gstatic\.com/firebasejs`, Strategy: "stale-while-revalidate", Namespace: "firebase-cdn"},
		{Pattern: `(firestore|identitytoolkit)\.googleapis\.com|\.firebaseio\.com`, Strategy: "network-first", Namespace: "runtime"},
		{Pattern: `\.cloudfunctions\.net|/api/`, Strategy: "network-only", Namespace: ""},
		{Pattern: `\.(png|jpe?g|gif|webp|svg|ico)(\?.*)?$`, Strategy: "cache-first", Namespace: "runtime"},
		{Pattern: `\.(js|woff2?|ttf|json|webmanifest)(\?.*)?$`, Strategy: "stale-while-revalidate", Namespace: "runtime"},
	}
}

// New compiles the configured rules. When cfgRules is empty the built-in
// defaults are used. Logical namespaces are resolved through ns.
func New(cfgRules []config.RuleConfig, ns core.Namespaces) (*Matcher, error) {
	if len(cfgRules) == 0 {
		cfgRules = Defaults()
	}

	compiled := make([]Rule, 0, len(cfgRules))
	for i, rc := range cfgRules {
		re, err := regexp.Compile(rc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule #%d: invalid pattern %q: %w", i, rc.Pattern, err)
		}
		strategy := core.Strategy(rc.Strategy)
		if !strategy.Valid() {
			return nil, fmt.Errorf("rule #%d (%s): unknown strategy %q", i, rc.Pattern, rc.Strategy)
		}
		namespace := ""
		if strategy != core.StrategyNetworkOnly {
			namespace = ns.Resolve(rc.Namespace)
		}
		compiled = append(compiled, Rule{
			Pattern:   re,
			Strategy:  strategy,
			Namespace: namespace,
		})
	}

	return &Matcher{
		rules: compiled,
		defaultNav: Rule{
			Strategy:  core.StrategyNetworkFirst,
			Namespace: ns.Main(),
			Default:   true,
		},
		defaultRest: Rule{
			Strategy:  core.StrategyStaleWhileRevalidate,
			Namespace: ns.Runtime(),
			Default:   true,
		},
	}, nil
}

// Match returns the first rule whose pattern matches url. With no match,
// navigation requests (GET with an Accept header naming text/html) default
// to network-first against the main namespace and everything else to
// stale-while-revalidate against the runtime namespace.
func (m *Matcher) Match(req *http.Request, url string) Rule {
	for _, rule := range m.rules {
		if rule.Pattern.MatchString(url) {
			return rule
		}
	}
	if isNavigation(req) {
		return m.defaultNav
	}
	return m.defaultRest
}

// isNavigation reports whether the request looks like a document load.
func isNavigation(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
