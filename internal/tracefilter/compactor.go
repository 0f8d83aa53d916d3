package tracefilter

// Compactor performs a single run-length pass over a sequence of lines.
type Compactor struct {
	// Variant selects the normalization applied before comparison.
	Variant Variant
	// Scorer compares normalized lines. Nil means Similarity.
	Scorer Scorer
}

// NewCompactor returns a Compactor for v using Similarity.
func NewCompactor(v Variant) *Compactor {
	return &Compactor{Variant: v, Scorer: Similarity}
}

// Compact keeps at most maxSimilar lines of every run of consecutive lines
// whose normalized forms score above threshold against their predecessor.
//
// The predecessor is always the previous input line, whether or not it was
// kept, so a dropped line still extends the run for the line after it.
// Retained lines are returned verbatim and in input order. A maxSimilar below
// 1 is treated as 1 so the first line is always kept.
func (c *Compactor) Compact(lines []string, threshold float64, maxSimilar int) []string {
	if len(lines) == 0 {
		return []string{}
	}
	score := c.Scorer
	if score == nil {
		score = Similarity
	}
	maxSimilar = max(maxSimilar, 1)

	out := make([]string, 0, len(lines))
	var (
		prevNorm string
		hasPrev  bool
		run      int
	)
	for _, line := range lines {
		norm := c.Variant.Normalize(line)
		if hasPrev && score(prevNorm, norm) > threshold {
			run++
		} else {
			run = 1
		}

		if run <= maxSimilar {
			out = append(out, line)
		}

		prevNorm = norm
		hasPrev = true
	}
	return out
}

// Compact runs a single pass of NewCompactor(v) over lines.
func Compact(lines []string, threshold float64, maxSimilar int, v Variant) []string {
	return NewCompactor(v).Compact(lines, threshold, maxSimilar)
}
