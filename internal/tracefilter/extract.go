package tracefilter

import (
	"regexp"
	"strings"
)

// numberToken matches a standalone run of digits, such as the parts of a
// timestamp, a pid or an IP octet in a log-line prefix.
var numberToken = regexp.MustCompile(`\b\d+\b`)

// numberPlaceholder stands in for a numberToken while prefixes are compared.
// It cannot appear in a line read from text.
const numberPlaceholder = "\x00"

// ExtractStacktrace removes the structured log prefix shared by every line of
// logData, leaving only the trace:
//
//	Jun 10 16:28:46 host uvicorn[930113]: Traceback (most recent call last):
//	Jun 10 16:28:47 host uvicorn[930113]:   File "app.py", line 8, in <module>
//
// becomes
//
//	Traceback (most recent call last):
//	  File "app.py", line 8, in <module>
//
// Numbers are treated as wildcards when the common prefix is computed, so
// timestamps and pids may differ between lines. A single line, or lines with
// no common prefix, are returned unchanged.
func ExtractStacktrace(logData string) string {
	lines := SplitLines(strings.TrimSpace(logData))
	if len(lines) < 2 {
		return strings.Join(lines, "\n")
	}

	masked := make([]string, len(lines))
	for i, line := range lines {
		masked[i] = numberToken.ReplaceAllLiteralString(line, numberPlaceholder)
	}

	prefix := masked[0]
	for _, line := range masked[1:] {
		prefix = commonPrefix(prefix, line)
		if prefix == "" {
			return strings.Join(lines, "\n")
		}
	}

	pattern := strings.ReplaceAll(regexp.QuoteMeta(prefix), numberPlaceholder, `\b\d+\b`)
	prefixRe, err := regexp.Compile("^" + pattern)
	if err != nil {
		return strings.Join(lines, "\n")
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = prefixRe.ReplaceAllLiteralString(line, "")
	}
	return strings.Join(out, "\n")
}
