package tracefilter

import (
	"regexp"
	"strings"
)

// Variant selects the normalization rule applied to trace lines before they
// are compared.
type Variant int

const (
	// VariantGeneric compares lines verbatim.
	VariantGeneric Variant = iota
	// VariantJava hides the ":<line>)" suffix of "at pkg.Class.method(File.java:42)" frames.
	VariantJava
	// VariantPython hides the ", line <n>, " token of `File "x.py", line 42, in f` frames.
	VariantPython
)

var (
	javaLineNumber   = regexp.MustCompile(`:\d+\)$`)
	pythonLineNumber = regexp.MustCompile(`, line \d+, `)
)

// String returns the lower-case language name of the variant.
func (v Variant) String() string {
	switch v {
	case VariantJava:
		return "java"
	case VariantPython:
		return "python"
	default:
		return "generic"
	}
}

// ParseVariant maps a language name to a Variant.
// Matching is case-insensitive; unknown languages map to VariantGeneric.
func ParseVariant(language string) Variant {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "java":
		return VariantJava
	case "python":
		return VariantPython
	default:
		return VariantGeneric
	}
}

// Normalize returns the comparison form of line.
// Lines that do not contain the variant's volatile marker are returned unchanged.
func (v Variant) Normalize(line string) string {
	switch v {
	case VariantJava:
		return javaLineNumber.ReplaceAllLiteralString(line, ")")
	case VariantPython:
		return pythonLineNumber.ReplaceAllLiteralString(line, ", ")
	default:
		return line
	}
}
