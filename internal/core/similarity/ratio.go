package similarity

import "math"

// Ratio returns the edit-distance similarity of a and b on a 0-100 scale.
// Only insertions and deletions count, so the ratio is 2*LCS/(len(a)+len(b)).
// Halves round to even.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return scale(lcs(ra, rb), len(ra), len(rb))
}

// ratioUpperBound is the best Ratio two strings of these lengths can reach.
func ratioUpperBound(la, lb int) int {
	if la == 0 || lb == 0 {
		return 0
	}
	return scale(min(la, lb), la, lb)
}

func scale(common, la, lb int) int {
	return int(math.RoundToEven(200 * float64(common) / float64(la+lb)))
}

func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty, zero or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
