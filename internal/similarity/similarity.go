// Package similarity scores how likely two product summaries (from
// different supermarkets) describe the same real-world article, combining
// a token-level textual comparison, a numeric price comparison, and an
// exact volume comparison.
package similarity

import (
	"math"
	"strings"
)

// Valuation is the three-component similarity score between two products:
// Textual, Price, and Volume, each in [0, 1].
type Valuation struct {
	Textual float64
	Price   float64
	Volume  float64
}

var collapseWeights = [3]float64{0.6, 0.2, 0.2}

// Collapse reduces a Valuation to a single score via the fixed 0.6/0.2/0.2
// weighting of Textual/Price/Volume.
func (v Valuation) Collapse() float64 {
	return collapseWeights[0]*v.Textual + collapseWeights[1]*v.Price + collapseWeights[2]*v.Volume
}

// Comparable is the subset of a product summary the similarity engine
// needs; callers adapt their own product type to it.
type Comparable struct {
	Name          string
	Price         float64
	Volume        float64
	VolumeMeasure string
}

// Exec scores x against y.
func Exec(x, y Comparable) Valuation {
	return Valuation{
		Textual: textualCompare(strings.ToLower(x.Name), strings.ToLower(y.Name)),
		Price:   numericCompare(x.Price, y.Price),
		Volume:  volumeCompare(x, y),
	}
}

func volumeCompare(x, y Comparable) float64 {
	if x.VolumeMeasure == y.VolumeMeasure && x.Volume == y.Volume {
		return 1.0
	}
	return 0.0
}

// numericCompare is 1 - |x-y|/max(x,y), specialised to 1.0 when both
// values are zero: two absent quantities count as identical rather than
// dividing by zero.
func numericCompare(x, y float64) float64 {
	if x == 0 && y == 0 {
		return 1.0
	}
	max := x
	if y > max {
		max = y
	}
	result := 1.0 - math.Abs(x-y)/max
	if result < 0 {
		result = 0
	}
	if result > 1 {
		result = 1
	}
	return result
}

// textualCompare tokenizes both strings on spaces, builds a token-pair
// similarity matrix from Levenshtein distance, solves the maximum-weight
// assignment between the shorter token list and the longer one, and
// combines the matched similarity as 0.9*S/min + 0.1*S/max over the token
// counts.
func textualCompare(x, y string) float64 {
	xs := strings.Split(x, " ")
	ys := strings.Split(y, " ")

	if len(xs) > len(ys) {
		xs, ys = ys, xs
	}
	// ys is now the longer (or equal) token list.

	sim := make([][]float64, len(ys))
	for yi, ye := range ys {
		sim[yi] = make([]float64, len(xs))
		for xi, xe := range xs {
			distance := Levenshtein(ye, xe)
			maxLen := len(ye)
			if len(xe) > maxLen {
				maxLen = len(xe)
			}
			if maxLen == 0 {
				sim[yi][xi] = 1.0
				continue
			}
			sim[yi][xi] = float64(maxLen-distance) / float64(maxLen)
		}
	}

	matching := hungarian(sim, len(ys), len(xs))

	var total float64
	for _, m := range matching {
		total += sim[m.Row][m.Col]
	}

	simMin := float64(len(xs))
	simMax := float64(len(ys))
	if simMin == 0 {
		return 0
	}

	return 0.9*total/simMin + 0.1*total/simMax
}
