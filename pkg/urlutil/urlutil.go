package urlutil

import (
	"net/url"
	"strings"
)

// CanonicalizeTemplate applies a deterministic normalization to a tile URL
// template, producing a canonical form. It maps equivalent template
// spellings to a single canonical representation so that two templates can
// be compared for equality or containment.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Query parameters are removed (API keys and cache busters live there)
//   - Fragments are removed
//   - Placeholder spellings are unified to lowercase {z}/{x}/{y}
//   - A trailing slash is removed
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: CanonicalizeTemplate(CanonicalizeTemplate(t)) == CanonicalizeTemplate(t)
func CanonicalizeTemplate(template string) string {
	canonical := template

	// Unify placeholder case before any parsing; {Z} and {z} are the same
	// coordinate to every tile server in the wild.
	for _, p := range []string{"Z", "X", "Y"} {
		canonical = strings.ReplaceAll(canonical, "{"+p+"}", "{"+strings.ToLower(p)+"}")
	}

	if q := strings.IndexByte(canonical, '?'); q >= 0 {
		canonical = canonical[:q]
	}
	if f := strings.IndexByte(canonical, '#'); f >= 0 {
		canonical = canonical[:f]
	}

	canonical = lowerSchemeAndHost(canonical)

	if len(canonical) > 1 {
		canonical = strings.TrimSuffix(canonical, "/")
	}

	return canonical
}

// Host extracts the network host (without port) from a raw URL string.
// Returns an empty string when the input does not parse as a URL.
// Placeholders in the path do not disturb host extraction.
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// lowerSchemeAndHost lowercases the scheme://host prefix of a URL-shaped
// string without touching the path, which may carry case-sensitive segments.
func lowerSchemeAndHost(s string) string {
	schemeEnd := strings.Index(s, "://")
	if schemeEnd < 0 {
		return s
	}

	hostStart := schemeEnd + len("://")
	hostEnd := strings.IndexByte(s[hostStart:], '/')
	if hostEnd < 0 {
		return strings.ToLower(s)
	}
	hostEnd += hostStart

	return strings.ToLower(s[:hostEnd]) + s[hostEnd:]
}
