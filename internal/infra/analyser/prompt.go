package analyser

import (
	"fmt"

	"traceback-analyser/internal/tracefilter"
)

// Prompt is the instruction and user message sent for one trace.
type Prompt struct {
	System string
	User   string
}

const instructionFormat = "You are a helpful %s expert. Here follows a %s where similar lines " +
	"has been removed for brevity. Please provide a helpful summarization in one paragraph " +
	"and a solution.\nThe solution should be presented to the point and as compact as possible."

const userFormat = "This is the %s:\n>>>\n%s\n>>>\n"

// BuildPrompt renders the prompt for a compacted trace of variant v.
func BuildPrompt(v tracefilter.Variant, trace string) Prompt {
	var expert, subject string
	switch v {
	case tracefilter.VariantJava:
		expert, subject = "java", "java error traceback"
	case tracefilter.VariantPython:
		expert, subject = "python", "python error traceback"
	default:
		expert, subject = "programming", "error traceback"
	}

	label := "traceback"
	if v != tracefilter.VariantGeneric {
		label = v.String() + " traceback"
	}

	return Prompt{
		System: fmt.Sprintf(instructionFormat, expert, subject),
		User:   fmt.Sprintf(userFormat, label, trace),
	}
}
