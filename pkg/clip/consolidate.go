package clip

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/pkg/mesh"
)

type planeGroup struct {
	normal r3.Vec
	offset float64
	tris   []mesh.Triangle
}

// consolidate groups triangles by supporting plane and replaces every group
// whose union is a convex polygon with a fan over that polygon's corners.
// Groups that are not convex are passed through unchanged.
func consolidate(ts []mesh.Triangle, eps float64) []mesh.Triangle {
	var groups []*planeGroup
	for _, t := range ts {
		n := t.FaceNormal()
		if n == (r3.Vec{}) {
			continue
		}
		off := r3.Dot(n, t[0].Position)

		var g *planeGroup
		for _, c := range groups {
			if r3.Norm(r3.Sub(c.normal, n)) <= eps && math.Abs(c.offset-off) <= eps {
				g = c
				break
			}
		}
		if g == nil {
			g = &planeGroup{normal: n, offset: off}
			groups = append(groups, g)
		}
		g.tris = append(g.tris, t)
	}

	var out []mesh.Triangle
	for _, g := range groups {
		if len(g.tris) < 2 {
			out = append(out, g.tris...)
			continue
		}
		hull, ok := convexUnion(g, eps)
		if !ok || len(hull)-2 > len(g.tris) {
			out = append(out, g.tris...)
			continue
		}
		out = append(out, fan(hull)...)
	}
	return out
}

// convexUnion returns the corners of the group's union, wound to face along
// the group normal, if the union is convex. Corners reuse the group's own
// vertices so their attributes carry over.
func convexUnion(g *planeGroup, eps float64) ([]mesh.Vertex, bool) {
	axis := dominantAxis(g.normal)

	var verts []mesh.Vertex
	var uv [][2]float64
	var covered float64
	for _, t := range g.tris {
		var tri [3][2]float64
		for i, v := range t {
			tri[i] = project(v.Position, axis)
			if !containsVertex(verts, v, eps) {
				verts = append(verts, v)
				uv = append(uv, tri[i])
			}
		}
		covered += math.Abs(cross2(tri[0], tri[1], tri[2])) / 2
	}

	hull := hull2D(uv, eps)
	if len(hull) < 3 {
		return nil, false
	}

	var area float64
	for i := range hull {
		a, b := uv[hull[i]], uv[hull[(i+1)%len(hull)]]
		area += a[0]*b[1] - a[1]*b[0]
	}
	area /= 2
	if math.Abs(area-covered) > eps*math.Max(1, covered) {
		return nil, false
	}

	out := make([]mesh.Vertex, len(hull))
	for i, j := range hull {
		out[i] = verts[j]
	}
	if component(g.normal, axis) < 0 {
		reverse(out)
	}
	return out, true
}

func containsVertex(vs []mesh.Vertex, v mesh.Vertex, eps float64) bool {
	for _, o := range vs {
		if near(o, v, eps) {
			return true
		}
	}
	return false
}

// hull2D returns the indices of the counter-clockwise convex hull of pts
// using the monotone chain, dropping collinear points.
func hull2D(pts [][2]float64, eps float64) []int {
	if len(pts) < 3 {
		return nil
	}
	order := make([]int, len(pts))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := pts[order[i]], pts[order[j]]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})

	tol := eps * eps
	h := make([]int, 0, 2*len(order))
	for _, i := range order {
		for len(h) >= 2 && cross2(pts[h[len(h)-2]], pts[h[len(h)-1]], pts[i]) <= tol {
			h = h[:len(h)-1]
		}
		h = append(h, i)
	}
	lower := len(h) + 1
	for k := len(order) - 2; k >= 0; k-- {
		i := order[k]
		for len(h) >= lower && cross2(pts[h[len(h)-2]], pts[h[len(h)-1]], pts[i]) <= tol {
			h = h[:len(h)-1]
		}
		h = append(h, i)
	}
	return h[:len(h)-1]
}
