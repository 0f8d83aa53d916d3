package tracefilter

// Scorer measures how alike two normalized lines are.
// Implementations must return a value in [0,1], return 1 for identical
// inputs, be symmetric, and hold no state between calls.
type Scorer func(a, b string) float64

// Similarity returns the indel ratio of a and b:
//
//	(len(a) + len(b) - distance) / (len(a) + len(b))
//
// where distance is the Levenshtein distance with substitutions weighted as a
// deletion plus an insertion. Lengths are counted in runes. Two empty strings
// are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return float64(total-indelDistance(ra, rb)) / float64(total)
}

// indelDistance computes the insert/delete distance with two rolling rows.
func indelDistance(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = min(
				prev[j]+1,   // deletion
				curr[j-1]+1, // insertion
				prev[j-1]+2, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
