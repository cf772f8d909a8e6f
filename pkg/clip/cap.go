package clip

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/pkg/mesh"
)

// stitch chains boundary edges into closed loops. Each step takes the
// unused edge with an endpoint nearest to the chain end (within eps),
// reversing it when its second endpoint matched, and merges the two
// matched vertices into their average. A chain that cannot be extended
// is closed as it stands and a new loop is started from the next edge.
func stitch(edges []edge, eps float64) [][]mesh.Vertex {
	remaining := append([]edge(nil), edges...)
	var loops [][]mesh.Vertex

	for len(remaining) > 0 {
		first := remaining[0]
		remaining = remaining[1:]
		chain := []mesh.Vertex{first.a, first.b}

		for len(remaining) > 0 {
			end := chain[len(chain)-1].Position
			best, bestDist, reversed := -1, math.Inf(1), false
			for i, e := range remaining {
				if d := r3.Norm(r3.Sub(e.a.Position, end)); d <= eps && d < bestDist {
					best, bestDist, reversed = i, d, false
				}
				if d := r3.Norm(r3.Sub(e.b.Position, end)); d <= eps && d < bestDist {
					best, bestDist, reversed = i, d, true
				}
			}
			if best < 0 {
				break
			}

			e := remaining[best]
			remaining = append(remaining[:best], remaining[best+1:]...)
			matched, next := e.a, e.b
			if reversed {
				matched, next = e.b, e.a
			}
			chain[len(chain)-1] = mesh.Average(chain[len(chain)-1], matched)

			if near(next, chain[0], eps) {
				chain[0] = mesh.Average(chain[0], next)
				break
			}
			chain = append(chain, next)
		}

		if len(chain) >= 3 {
			loops = append(loops, chain)
		}
	}
	return loops
}

// capLoop triangulates one closed loop lying in the plane with the given
// unit normal. The cap faces along the normal and every cap vertex takes
// the plane normal.
func capLoop(loop []mesh.Vertex, normal r3.Vec, eps float64) []mesh.Triangle {
	pts := simplify(loop, eps)
	if len(pts) < 3 {
		return nil
	}

	n := newell(pts)
	if r3.Norm(n) <= eps*eps {
		return nil
	}
	if r3.Dot(n, normal) < 0 {
		reverse(pts)
	}
	for i := range pts {
		pts[i].Normal = normal
	}

	if isConvex(pts, normal) {
		return fan(pts)
	}
	return earClip(pts, normal)
}

// simplify removes duplicate and collinear vertices until none remain.
func simplify(loop []mesh.Vertex, eps float64) []mesh.Vertex {
	pts := append([]mesh.Vertex(nil), loop...)
	for changed := true; changed && len(pts) >= 3; {
		changed = false
		for i := 0; i < len(pts) && len(pts) >= 3; i++ {
			prev := pts[(i+len(pts)-1)%len(pts)].Position
			cur := pts[i].Position
			next := pts[(i+1)%len(pts)].Position
			if r3.Norm(r3.Sub(cur, prev)) <= eps || distToLine(cur, prev, next) <= eps {
				pts = append(pts[:i], pts[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return pts
}

func distToLine(p, a, b r3.Vec) float64 {
	ab := r3.Sub(b, a)
	l := r3.Norm(ab)
	if l == 0 {
		return r3.Norm(r3.Sub(p, a))
	}
	return r3.Norm(r3.Cross(ab, r3.Sub(p, a))) / l
}

// newell returns the area-weighted normal of a closed polygon.
func newell(pts []mesh.Vertex) r3.Vec {
	var n r3.Vec
	for i := range pts {
		a := pts[i].Position
		b := pts[(i+1)%len(pts)].Position
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	return n
}

func reverse(pts []mesh.Vertex) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

func isConvex(pts []mesh.Vertex, normal r3.Vec) bool {
	for i := range pts {
		prev := pts[(i+len(pts)-1)%len(pts)].Position
		cur := pts[i].Position
		next := pts[(i+1)%len(pts)].Position
		if r3.Dot(r3.Cross(r3.Sub(cur, prev), r3.Sub(next, cur)), normal) < 0 {
			return false
		}
	}
	return true
}

func fan(pts []mesh.Vertex) []mesh.Triangle {
	ts := make([]mesh.Triangle, 0, len(pts)-2)
	for i := 1; i+1 < len(pts); i++ {
		ts = append(ts, mesh.Triangle{pts[0], pts[i], pts[i+1]})
	}
	return ts
}

// dominantAxis returns the axis along which n has its largest component.
func dominantAxis(n r3.Vec) int {
	ax, ay, az := math.Abs(n.X), math.Abs(n.Y), math.Abs(n.Z)
	switch {
	case ax >= ay && ax >= az:
		return 0
	case ay >= az:
		return 1
	default:
		return 2
	}
}

func component(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// project drops axis and keeps the other two in cyclic order, so a
// counter-clockwise 2D polygon faces along +axis.
func project(p r3.Vec, axis int) [2]float64 {
	switch axis {
	case 0:
		return [2]float64{p.Y, p.Z}
	case 1:
		return [2]float64{p.Z, p.X}
	default:
		return [2]float64{p.X, p.Y}
	}
}

func cross2(o, a, b [2]float64) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func insideTriangle(p, a, b, c [2]float64) bool {
	return cross2(a, b, p) >= 0 && cross2(b, c, p) >= 0 && cross2(c, a, p) >= 0
}

// earClip triangulates a simple polygon facing along normal by repeatedly
// cutting off convex vertices whose triangle contains no other vertex.
// If no ear can be found (a self-touching loop) the rest is fanned.
func earClip(pts []mesh.Vertex, normal r3.Vec) []mesh.Triangle {
	axis := dominantAxis(normal)
	flip := component(normal, axis) < 0

	uv := make([][2]float64, len(pts))
	for i, p := range pts {
		uv[i] = project(p.Position, axis)
		if flip {
			uv[i][1] = -uv[i][1]
		}
	}

	idx := make([]int, len(pts))
	for i := range idx {
		idx[i] = i
	}

	var ts []mesh.Triangle
	for len(idx) > 3 {
		ear := -1
		for i := range idx {
			a := idx[(i+len(idx)-1)%len(idx)]
			b := idx[i]
			c := idx[(i+1)%len(idx)]
			if cross2(uv[a], uv[b], uv[c]) <= 0 {
				continue
			}
			blocked := false
			for _, j := range idx {
				if j == a || j == b || j == c {
					continue
				}
				if insideTriangle(uv[j], uv[a], uv[b], uv[c]) {
					blocked = true
					break
				}
			}
			if !blocked {
				ear = i
				ts = append(ts, mesh.Triangle{pts[a], pts[b], pts[c]})
				break
			}
		}
		if ear < 0 {
			rest := make([]mesh.Vertex, len(idx))
			for i, j := range idx {
				rest[i] = pts[j]
			}
			return append(ts, fan(rest)...)
		}
		idx = append(idx[:ear], idx[ear+1:]...)
	}
	return append(ts, mesh.Triangle{pts[idx[0]], pts[idx[1]], pts[idx[2]]})
}
