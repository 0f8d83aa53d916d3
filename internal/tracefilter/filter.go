package tracefilter

import (
	"fmt"
	"strings"
)

const (
	// DefaultSimilarityThreshold is the similarity above which two lines belong to the same run.
	DefaultSimilarityThreshold = 0.6
	// DefaultMaxSimilarLines is the number of lines kept from each run.
	DefaultMaxSimilarLines = 3
	// DefaultPasses is the number of compaction passes.
	DefaultPasses = 2
)

// Policy holds the compaction parameters of a single Filter call.
type Policy struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	MaxSimilarLines     int     `yaml:"max_similar_lines" json:"max_similar_lines"`
	Passes              int     `yaml:"passes" json:"passes"`
}

// DefaultPolicy returns the policy used when the caller has no preference.
func DefaultPolicy() Policy {
	return Policy{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxSimilarLines:     DefaultMaxSimilarLines,
		Passes:              DefaultPasses,
	}
}

// PolicyError reports an invalid Policy field.
type PolicyError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the policy error.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("invalid policy field '%s': %s", e.Field, e.Message)
}

// Validate reports the first field of p that is out of range.
func (p Policy) Validate() error {
	if p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		return &PolicyError{Field: "similarity_threshold", Message: "must be between 0 and 1"}
	}
	if p.MaxSimilarLines < 1 {
		return &PolicyError{Field: "max_similar_lines", Message: "must be at least 1"}
	}
	if p.Passes < 1 {
		return &PolicyError{Field: "passes", Message: "must be at least 1"}
	}
	return nil
}

// Clamp returns p with every field forced into its valid range.
func (p Policy) Clamp() Policy {
	p.SimilarityThreshold = min(max(p.SimilarityThreshold, 0), 1)
	p.MaxSimilarLines = max(p.MaxSimilarLines, 1)
	p.Passes = max(p.Passes, 1)
	return p
}

// Stats describes the effect of a Filter call.
type Stats struct {
	// InputLines is the number of non-blank lines after preparation.
	InputLines int
	// PassLines holds the line count after each pass.
	PassLines []int
	// OutputLines is the line count of the result.
	OutputLines int
}

// Filter compacts trace and returns the retained lines joined by "\n".
//
// Blank lines and common indentation are removed once, then the compactor runs
// exactly p.Passes times, each pass reading the previous pass's output. Later
// passes can collapse groups that became adjacent when an intervening line was
// dropped. The loop does not stop early when a pass changes nothing, and it
// does not continue to a fixpoint.
//
// Out-of-range policy fields are clamped, see Policy.Clamp.
func Filter(trace string, v Variant, p Policy) string {
	out, _ := FilterWithStats(trace, v, p)
	return out
}

// FilterLines is Filter without the final join.
func FilterLines(trace string, v Variant, p Policy) []string {
	lines, _ := filterLines(trace, v, p)
	return lines
}

// FilterWithStats is Filter that also reports line counts.
func FilterWithStats(trace string, v Variant, p Policy) (string, Stats) {
	lines, stats := filterLines(trace, v, p)
	return strings.Join(lines, "\n"), stats
}

func filterLines(trace string, v Variant, p Policy) ([]string, Stats) {
	p = p.Clamp()
	lines := Prepare(trace)
	stats := Stats{
		InputLines: len(lines),
		PassLines:  make([]int, 0, p.Passes),
	}

	c := NewCompactor(v)
	for range p.Passes {
		lines = c.Compact(lines, p.SimilarityThreshold, p.MaxSimilarLines)
		stats.PassLines = append(stats.PassLines, len(lines))
	}
	stats.OutputLines = len(lines)
	return lines, stats
}
