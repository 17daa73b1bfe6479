package l6tracks

import "math"

// hungarianInf marks forbidden pairs in the cost matrix. It must dwarf any
// sum of real costs while keeping their differences representable.
const hungarianInf = 1e9

// hungarianAssign solves the rectangular assignment problem for an n×m cost
// matrix with the Kuhn-Munkres algorithm (Jonker-Volgenant potentials). It
// returns assign[i] = column of row i, or -1 when row i stays unassigned.
// Costs ≥ hungarianInf are never chosen.
//
// The matrix is padded to a square with hungarianInf so excess rows or
// columns remain free.
func hungarianAssign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	if m == 0 {
		return assign
	}

	dim := max(n, m)
	at := func(i, j int) float64 {
		if i < n && j < m {
			return cost[i][j]
		}
		return hungarianInf
	}

	// 1-indexed; column 0 is virtual
	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1) // row potentials
	v := make([]float64, dim+1) // column potentials
	p := make([]int, dim+1)     // p[j] = row matched to column j
	way := make([]int, dim+1)   // previous column on the augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta, j1 := inf, -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				if cur := at(i0-1, j-1) - u[i0] - v[j]; cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta, j1 = minv[j], j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= m; j++ {
		if i := p[j] - 1; i >= 0 && i < n && cost[i][j-1] < hungarianInf {
			assign[i] = j - 1
		}
	}
	return assign
}
