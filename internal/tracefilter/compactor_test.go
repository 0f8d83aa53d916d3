package tracefilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var javaRun = []string{
	"at a.b.c(Foo.java:12)",
	"at a.b.c(Foo.java:34)",
	"at a.b.c(Foo.java:56)",
	"at a.b.c(Foo.java:78)",
}

// bridged holds three lines where the middle one is similar to the first,
// the last is similar to the first, but the last two are unrelated.
var bridged = []string{
	"aaaaaaaabbbbbbbb",
	"aaaaaaaacc",
	"ddbbbbbbbb",
}

func TestCompact_JavaRunCappedAtTwo(t *testing.T) {
	got := Compact(javaRun, 0.6, 2, VariantJava)

	assert.Equal(t, javaRun[:2], got)
}

func TestCompact_JavaRunCappedAtOne(t *testing.T) {
	got := Compact(javaRun, 0.6, 1, VariantJava)

	assert.Equal(t, javaRun[:1], got)
}

func TestCompact_GenericVariantStillMatchesNearDuplicates(t *testing.T) {
	// Without normalization the frames differ by two digits and still score above 0.6.
	got := Compact(javaRun, 0.6, 2, VariantGeneric)

	assert.Equal(t, javaRun[:2], got)
}

func TestCompact_DissimilarLinesAllRetained(t *testing.T) {
	lines := []string{"aaaa", "bbbb", "cccc", "dddd"}

	for _, threshold := range []float64{0, 0.3, 0.6, 0.99} {
		for _, maxSimilar := range []int{1, 2, 5} {
			assert.Equal(t, lines, Compact(lines, threshold, maxSimilar, VariantGeneric),
				"threshold=%v max=%d", threshold, maxSimilar)
		}
	}
}

func TestCompact_EmptyAndSingle(t *testing.T) {
	assert.Empty(t, Compact(nil, 0.6, 2, VariantGeneric))
	assert.Empty(t, Compact([]string{}, 0.6, 2, VariantGeneric))
	assert.Equal(t, []string{"only"}, Compact([]string{"only"}, 0.6, 1, VariantGeneric))
}

func TestCompact_MaxSimilarBelowOneKeepsFirstLine(t *testing.T) {
	got := Compact(javaRun, 0.6, 0, VariantJava)

	assert.Equal(t, javaRun[:1], got)
}

func TestCompact_AnchorIsPreviousInputLine(t *testing.T) {
	// The second line is dropped, but it is still the anchor for the third.
	// The third line is unrelated to it, so it starts a new run and is kept
	// even though it is similar to the last retained line.
	got := Compact(bridged, 0.6, 1, VariantGeneric)

	assert.Equal(t, []string{bridged[0], bridged[2]}, got)
}

func TestCompact_ThresholdIsStrict(t *testing.T) {
	// Similarity("abcd", "abce") is exactly 0.75.
	lines := []string{"abcd", "abce"}

	assert.Equal(t, lines, Compact(lines, 0.75, 1, VariantGeneric))
	assert.Equal(t, lines[:1], Compact(lines, 0.74, 1, VariantGeneric))
}

func TestCompactor_CustomScorer(t *testing.T) {
	calls := 0
	c := &Compactor{
		Variant: VariantJava,
		Scorer: func(a, b string) float64 {
			calls++
			assert.NotContains(t, a, ":")
			assert.NotContains(t, b, ":")
			return 1
		},
	}

	got := c.Compact(javaRun, 0.6, 3)

	assert.Equal(t, javaRun[:3], got)
	assert.Equal(t, len(javaRun)-1, calls)
}

func TestCompactor_NilScorerUsesSimilarity(t *testing.T) {
	c := &Compactor{Variant: VariantJava}

	assert.Equal(t, javaRun[:2], c.Compact(javaRun, 0.6, 2))
}
