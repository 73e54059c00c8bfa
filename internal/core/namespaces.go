package core

import "fmt"

// Namespaces derives the version-tagged cache namespace names for a
// deployment. The version comes from the build, never from a hand-edited
// literal, so rotating a deployment rotates its caches.
type Namespaces struct {
	Prefix  string
	Version string
}

// Main is the namespace for the site shell and core assets.
func (n Namespaces) Main() string {
	return fmt.Sprintf("%s-main-v%s", n.Prefix, n.Version)
}

// Offline is the namespace holding the offline page and placeholder image.
func (n Namespaces) Offline() string {
	return fmt.Sprintf("%s-offline-v%s", n.Prefix, n.Version)
}

// Runtime is the namespace for everything cached on demand.
func (n Namespaces) Runtime() string {
	return fmt.Sprintf("%s-runtime-v%s", n.Prefix, n.Version)
}

// Current returns the full set of namespaces for this version.
func (n Namespaces) Current() []string {
	return []string{n.Main(), n.Offline(), n.Runtime()}
}

// Resolve maps a logical namespace name from configuration to its concrete
// store name. The three well-known names become version-tagged; anything
// else (pinned CDN namespaces like "google-fonts") is prefixed but left
// unversioned so it survives deployments.
func (n Namespaces) Resolve(logical string) string {
	switch logical {
	case "", "runtime":
		return n.Runtime()
	case "main":
		return n.Main()
	case "offline":
		return n.Offline()
	default:
		return n.Prefix + "-" + logical
	}
}
