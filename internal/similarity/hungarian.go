package similarity

import "math"

// Matching is one paired (row, col) index into the original (unpadded)
// similarity matrix.
type Matching struct {
	Row, Col int
}

// hungarian solves the maximum-weight perfect matching of an
// origHeight x origWidth similarity matrix by padding it to an n x n cost
// matrix (n = max(origHeight, origWidth)) and running Kuhn-Munkres with
// slack updates. The dual labels are not kept in separate arrays: each label
// update subtracts delta from the cost rows in S and adds it to the cost
// columns in T of the matrix itself, which costs O(n^2) per update, so a
// full run is O(n^4) in the worst case rather than O(n^3).
func hungarian(sim [][]float64, origHeight, origWidth int) []Matching {
	n := origHeight
	if origWidth > n {
		n = origWidth
	}

	cost := make([][]float64, n)
	for x := 0; x < n; x++ {
		cost[x] = make([]float64, n)
		max := -math.MaxFloat64
		if x < origHeight {
			for y := 0; y < origWidth; y++ {
				if sim[x][y] > max {
					max = sim[x][y]
				}
			}
		}
		for y := 0; y < n; y++ {
			cost[x][y] = max
		}
		if x < origHeight {
			for y := 0; y < origWidth; y++ {
				cost[x][y] -= sim[x][y]
			}
		}
	}

	h := &hungarianState{n: n, cost: cost}
	h.xy = make([]int, n)
	h.yx = make([]int, n)
	for i := range h.xy {
		h.xy[i] = -1
		h.yx[i] = -1
	}
	h.augPath = make([]int, n)
	h.s = make([]bool, n)
	h.t = make([]bool, n)
	h.slack = make([]float64, n)
	h.slackx = make([]int, n)

	h.findMatching()

	var result []Matching
	for y := 0; y < origHeight; y++ {
		if h.xy[y] >= 0 && h.xy[y] < origWidth {
			result = append(result, Matching{Row: y, Col: h.xy[y]})
		}
	}
	return result
}

type hungarianState struct {
	n       int
	cost    [][]float64
	xy, yx  []int // -1 = unmatched
	augPath []int
	s, t    []bool
	slack   []float64
	slackx  []int
}

func (h *hungarianState) computeSlack(x int) {
	for y := 0; y < h.n; y++ {
		if h.cost[x][y] >= h.slack[y] {
			continue
		}
		h.slack[y] = h.cost[x][y]
		h.slackx[y] = x
	}
}

func (h *hungarianState) assign(x, y int) {
	h.xy[x] = y
	h.yx[y] = x
}

func (h *hungarianState) addToPath(x, prevx int) {
	h.augPath[x] = prevx
	h.s[x] = true
	h.computeSlack(x)
}

func (h *hungarianState) updateLabels() {
	delta := math.MaxFloat64
	for i := 0; i < h.n; i++ {
		if !h.t[i] && h.slack[i] < delta {
			delta = h.slack[i]
		}
	}
	for i := 0; i < h.n; i++ {
		if h.s[i] {
			for y := 0; y < h.n; y++ {
				h.cost[i][y] -= delta
			}
		}
		if h.t[i] {
			for x := 0; x < h.n; x++ {
				h.cost[x][i] += delta
			}
		} else {
			h.slack[i] -= delta
		}
	}
}

func (h *hungarianState) flipEdges(startX, startY int) {
	cx, cy := startX, startY
	ty := -1
	for cx >= 0 {
		ty = h.xy[cx]
		h.assign(cx, cy)
		cx = h.augPath[cx]
		cy = ty
	}
}

func (h *hungarianState) buildPathBFS(q *[]int) (int, int, bool) {
	for len(*q) > 0 {
		x := (*q)[0]
		*q = (*q)[1:]

		for y := 0; y < h.n; y++ {
			if h.t[y] || h.cost[x][y] != 0 {
				continue
			}
			if h.yx[y] < 0 {
				return x, y, true
			}
			yxy := h.yx[y]
			h.t[y] = true
			*q = append(*q, yxy)
			h.addToPath(yxy, x)
		}
	}
	return 0, 0, false
}

func (h *hungarianState) enhancePath(q *[]int) (int, int, bool) {
	for y := 0; y < h.n; y++ {
		if h.t[y] || h.slack[y] != 0 {
			continue
		}
		if h.yx[y] < 0 {
			return h.slackx[y], y, true
		}
		yxy := h.yx[y]
		h.t[y] = true
		if h.s[yxy] {
			continue
		}
		*q = append(*q, yxy)
		h.addToPath(yxy, h.slackx[y])
	}
	return 0, 0, false
}

func (h *hungarianState) findMatching() {
	for round := 0; round < h.n; round++ {
		var q []int
		for i := range h.s {
			h.s[i] = false
			h.t[i] = false
			h.slack[i] = math.MaxFloat64
			h.augPath[i] = -1
		}

		for x := 0; x < h.n; x++ {
			if h.xy[x] >= 0 {
				continue
			}
			q = append(q, x)
			h.s[x] = true
			h.computeSlack(x)
			break
		}

		var startX, startY int
		for {
			var found bool
			startX, startY, found = h.buildPathBFS(&q)
			if found {
				break
			}

			h.updateLabels()
			q = nil

			startX, startY, found = h.enhancePath(&q)
			if found {
				break
			}
		}

		h.flipEdges(startX, startY)
	}
}
