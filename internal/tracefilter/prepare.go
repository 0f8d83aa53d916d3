package tracefilter

import "strings"

// SplitLines splits text on "\n", "\r\n" and "\r".
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// Prepare removes lines that are blank after trimming and strips the leading
// whitespace prefix shared by all remaining lines.
//
// Only spaces and tabs count as indentation, and the common prefix must match
// exactly: a tab and four spaces are different margins.
func Prepare(trace string) []string {
	lines := make([]string, 0, strings.Count(trace, "\n")+1)
	for _, line := range SplitLines(trace) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return lines
	}

	margin := leadingWhitespace(lines[0])
	for _, line := range lines[1:] {
		if margin == "" {
			break
		}
		margin = commonPrefix(margin, leadingWhitespace(line))
	}
	if margin == "" {
		return lines
	}

	for i, line := range lines {
		lines[i] = line[len(margin):]
	}
	return lines
}

func leadingWhitespace(line string) string {
	end := 0
	for end < len(line) && (line[end] == ' ' || line[end] == '\t') {
		end++
	}
	return line[:end]
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
