package classifier

import (
	"regexp"
	"strings"
)

/*
Source naming rule table.

A source name is derived from the URL's host and the first "interesting"
path segment. A segment is interesting unless one of these rules rejects
it:

 1. empty segment
 2. purely numeric segment (a coordinate, a size, a date)
 3. version-like segment: "v" followed by digits
 4. segment listed in genericSegments
 5. segment containing a {placeholder}

The heuristic is not correctness-critical; it only has to be stable and
human-readable. Adjust the table, not the callers.
*/

// genericSegments are path tokens that carry no identity: every tile
// server has them, so they never distinguish one source from another.
var genericSegments = map[string]struct{}{
	"tiles":    {},
	"tile":     {},
	"api":      {},
	"maps":     {},
	"map":      {},
	"data":     {},
	"services": {},
	"styles":   {},
	"wmts":     {},
	"tms":      {},
}

var (
	numericSegment = regexp.MustCompile(`^\d+$`)
	versionSegment = regexp.MustCompile(`^[vV]\d+$`)
)

// deriveSourceName produces a stable, human-readable source name from a
// host and the path segments preceding the coordinate part of a tile URL.
func deriveSourceName(host string, segments []string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	for _, segment := range segments {
		if interestingSegment(segment) {
			return host + " " + strings.ToLower(segment)
		}
	}
	return host
}

func interestingSegment(segment string) bool {
	if segment == "" {
		return false
	}
	if numericSegment.MatchString(segment) {
		return false
	}
	if versionSegment.MatchString(segment) {
		return false
	}
	if strings.ContainsAny(segment, "{}") {
		return false
	}
	if _, generic := genericSegments[strings.ToLower(segment)]; generic {
		return false
	}
	return true
}
