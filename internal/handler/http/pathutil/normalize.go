// Package pathutil maps request paths onto a bounded set of metric labels.
package pathutil

import (
	"strings"
)

// OtherPath is the label used for every path the service does not route.
const OtherPath = "/other"

var knownPaths = map[string]struct{}{
	"/ws":            {},
	"/auth/token":    {},
	"/user_info":     {},
	"/get_user_info": {},
	"/logout":        {},
	"/health":        {},
	"/ready":         {},
	"/live":          {},
	"/metrics":       {},
}

// NormalizePath strips the query and trailing slash and collapses unknown
// paths into OtherPath so scanners cannot inflate label cardinality.
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return OtherPath
}

// ExpectedCardinality returns the number of distinct labels NormalizePath can produce.
func ExpectedCardinality() int {
	return len(knownPaths) + 1
}
