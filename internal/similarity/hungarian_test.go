package similarity

import (
	"math/rand"
	"testing"
)

// bruteForceBest enumerates every matching of the smaller side against the
// larger side and returns the maximum achievable total weight, the
// reference the Hungarian solver is checked against.
func bruteForceBest(sim [][]float64, height, width int) float64 {
	if height == 0 || width == 0 {
		return 0
	}
	if height > width {
		// transpose so the loop always picks columns for the smaller side (rows)
		t := make([][]float64, width)
		for i := range t {
			t[i] = make([]float64, height)
			for j := range t[i] {
				t[i][j] = sim[j][i]
			}
		}
		return bruteForceBest(t, width, height)
	}

	cols := make([]int, width)
	for i := range cols {
		cols[i] = i
	}

	best := 0.0
	var perm func(chosen []int, remaining []int)
	perm = func(chosen []int, remaining []int) {
		if len(chosen) == height {
			total := 0.0
			for r, c := range chosen {
				total += sim[r][c]
			}
			if total > best {
				best = total
			}
			return
		}
		for i, c := range remaining {
			rest := make([]int, 0, len(remaining)-1)
			rest = append(rest, remaining[:i]...)
			rest = append(rest, remaining[i+1:]...)
			perm(append(chosen, c), rest)
		}
	}
	perm(nil, cols)
	return best
}

func randomMatrix(r *rand.Rand, height, width int) [][]float64 {
	m := make([][]float64, height)
	for i := range m {
		m[i] = make([]float64, width)
		for j := range m[i] {
			m[i][j] = r.Float64()
		}
	}
	return m
}

// TestHungarianOptimality checks invariant 7: on small random matrices the
// Hungarian solver's total matched weight equals the brute-force maximum.
func TestHungarianOptimality(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	dims := [][2]int{{1, 1}, {2, 3}, {3, 2}, {4, 4}, {3, 5}, {5, 3}, {1, 4}, {4, 1}}
	for _, d := range dims {
		height, width := d[0], d[1]
		for trial := 0; trial < 5; trial++ {
			sim := randomMatrix(r, height, width)

			matching := hungarian(sim, height, width)
			var total float64
			for _, m := range matching {
				total += sim[m.Row][m.Col]
			}

			want := bruteForceBest(sim, height, width)
			if diff := total - want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("dims %v trial %d: hungarian total %v, brute force best %v", d, trial, total, want)
			}
		}
	}
}

func TestHungarianMatchingIsInjective(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	sim := randomMatrix(r, 4, 6)
	matching := hungarian(sim, 4, 6)

	rows := map[int]bool{}
	colsSeen := map[int]bool{}
	for _, m := range matching {
		if rows[m.Row] {
			t.Fatalf("row %d matched twice", m.Row)
		}
		rows[m.Row] = true
		if colsSeen[m.Col] {
			t.Fatalf("col %d matched twice", m.Col)
		}
		colsSeen[m.Col] = true
	}
	if len(matching) != 4 {
		t.Fatalf("expected 4 matches for a 4x6 matrix, got %d", len(matching))
	}
}
