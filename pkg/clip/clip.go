// Package clip cuts triangle meshes against half-spaces and closes the
// resulting openings with planar caps.
//
// The input is assumed to be a closed surface. On open or non-manifold
// cross-sections the stitched cap may be wrong or incomplete; nested
// loops (an annular cross-section) are capped as separate solid polygons.
package clip

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/pkg/mesh"
)

// DefaultEpsilon is the plane tolerance used when Options.Epsilon is 0.
const DefaultEpsilon = 1e-6

// Plane is the boundary of the half-space n·x - d <= 0, which is kept.
type Plane struct {
	Normal   r3.Vec  `yaml:"normal" json:"normal"`
	Distance float64 `yaml:"distance" json:"distance"`
}

// NewPlane returns the plane through point with the given normal. Points
// on the side the normal points to are discarded.
func NewPlane(normal, point r3.Vec) Plane {
	n := r3.Unit(normal)
	return Plane{Normal: n, Distance: r3.Dot(n, point)}
}

// Normalized returns the plane with a unit normal.
func (p Plane) Normalized() Plane {
	l := r3.Norm(p.Normal)
	if l == 0 || l == 1 {
		return p
	}
	return Plane{Normal: r3.Scale(1/l, p.Normal), Distance: p.Distance / l}
}

// SignedDistance returns n·v - d; negative values lie on the kept side.
func (p Plane) SignedDistance(v r3.Vec) float64 {
	return r3.Dot(p.Normal, v) - p.Distance
}

// Options control a clip operation.
type Options struct {
	// Epsilon is the distance within which points count as on the plane
	// and endpoints are stitched together.
	Epsilon float64

	// Consolidate re-triangulates coplanar fragments produced by the cut
	// when their union is convex.
	Consolidate bool
}

// DefaultOptions returns the options used by the proxy engine.
func DefaultOptions() Options {
	return Options{Epsilon: DefaultEpsilon, Consolidate: true}
}

// Stats describes what a clip operation did.
type Stats struct {
	// EarlyOut is set when the bounding box did not cross the plane.
	EarlyOut bool

	// Kept, Dropped and Split count input triangles by outcome.
	Kept, Dropped, Split int

	// Loops is the number of boundary loops that were capped.
	Loops int

	// CapTriangles is the number of triangles the caps were cut into,
	// counted before consolidation.
	CapTriangles int
}

// edge is an open boundary edge lying on the cut plane.
type edge struct {
	a, b mesh.Vertex
}

// Clip returns m cut against p, keeping the side with n·x - d <= 0 and
// closing every opening with a cap whose normals equal the plane normal.
// m itself is not modified.
func Clip(m *mesh.Mesh, p Plane, opts Options) (*mesh.Mesh, Stats) {
	var stats Stats
	eps := opts.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	p = p.Normalized()

	if m.IsEmpty() {
		stats.EarlyOut = true
		return m.Clone(), stats
	}

	box := m.Bounds()
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range box.Vertices() {
		d := p.SignedDistance(c)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	if !(lo < -eps && hi > eps) {
		stats.EarlyOut = true
		if p.SignedDistance(box.Center()) <= 0 {
			stats.Kept = m.Len()
			return m.Clone(), stats
		}
		stats.Dropped = m.Len()
		return mesh.New(m.Schema()), stats
	}

	out := mesh.New(m.Schema())
	var kept, fragments []mesh.Triangle
	var cuts, inPlane []edge

	for _, t := range m.Triangles() {
		var d [3]float64
		for i, v := range t {
			d[i] = snap(p.SignedDistance(v.Position), eps)
		}

		switch {
		case d[0] <= 0 && d[1] <= 0 && d[2] <= 0:
			stats.Kept++
			kept = append(kept, t)
			inPlane = appendInPlaneEdges(inPlane, t, d)
		case d[0] >= 0 && d[1] >= 0 && d[2] >= 0:
			stats.Dropped++
		default:
			stats.Split++
			poly, on := splitTriangle(t, d)
			fragments = appendPolygon(fragments, poly, eps)
			if len(on) == 2 {
				cuts = append(cuts, edge{a: on[0], b: on[1]})
			}
		}
	}

	boundary := append(cuts, cancelOpposite(inPlane, eps)...)
	var caps []mesh.Triangle
	for _, loop := range stitch(boundary, eps) {
		tris := capLoop(loop, p.Normal, eps)
		if len(tris) == 0 {
			continue
		}
		stats.Loops++
		caps = append(caps, tris...)
	}

	stats.CapTriangles = len(caps)
	if opts.Consolidate {
		fragments = consolidate(append(fragments, caps...), eps)
		caps = nil
	}

	all := make([]mesh.Triangle, 0, len(kept)+len(fragments)+len(caps))
	all = append(all, kept...)
	all = append(all, fragments...)
	all = append(all, caps...)
	out.Replace(all)
	return out, stats
}

// ClipBox clips m against the six faces of box, keeping the inside.
func ClipBox(m *mesh.Mesh, box r3.Box, opts Options) (*mesh.Mesh, Stats) {
	var total Stats
	for _, p := range BoxPlanes(box) {
		var s Stats
		m, s = Clip(m, p, opts)
		total.Split += s.Split
		total.Loops += s.Loops
		total.CapTriangles += s.CapTriangles
	}
	return m, total
}

// BoxPlanes returns the six planes bounding box, normals pointing out.
func BoxPlanes(box r3.Box) []Plane {
	return []Plane{
		{Normal: r3.Vec{X: 1}, Distance: box.Max.X},
		{Normal: r3.Vec{X: -1}, Distance: -box.Min.X},
		{Normal: r3.Vec{Y: 1}, Distance: box.Max.Y},
		{Normal: r3.Vec{Y: -1}, Distance: -box.Min.Y},
		{Normal: r3.Vec{Z: 1}, Distance: box.Max.Z},
		{Normal: r3.Vec{Z: -1}, Distance: -box.Min.Z},
	}
}

func snap(d, eps float64) float64 {
	if math.Abs(d) <= eps {
		return 0
	}
	return d
}

// splitTriangle walks the edges of a triangle that crosses the plane and
// returns the kept polygon (3 or 4 vertices) plus its on-plane vertices in
// walk order.
func splitTriangle(t mesh.Triangle, d [3]float64) (poly, on []mesh.Vertex) {
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		a, b := t[i], t[j]
		da, db := d[i], d[j]

		if da <= 0 {
			poly = append(poly, a)
			if da == 0 {
				on = append(on, a)
			}
		}
		if (da < 0 && db > 0) || (da > 0 && db < 0) {
			v := mesh.Lerp(a, b, da/(da-db))
			poly = append(poly, v)
			on = append(on, v)
		}
	}
	return poly, on
}

// appendPolygon fan-triangulates a 3 or 4 vertex polygon, dropping slivers.
func appendPolygon(ts []mesh.Triangle, poly []mesh.Vertex, eps float64) []mesh.Triangle {
	for i := 1; i+1 < len(poly); i++ {
		t := mesh.Triangle{poly[0], poly[i], poly[i+1]}
		if t.Area() <= eps*eps {
			continue
		}
		ts = append(ts, t)
	}
	return ts
}

// appendInPlaneEdges records the edges of a kept triangle that lie in the
// plane. They bound the opening unless a neighbour shares them.
func appendInPlaneEdges(es []edge, t mesh.Triangle, d [3]float64) []edge {
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		if d[i] == 0 && d[j] == 0 {
			es = append(es, edge{a: t[i], b: t[j]})
		}
	}
	return es
}

// cancelOpposite removes pairs of edges that run between the same points
// in opposite directions; such edges are interior to the kept surface.
func cancelOpposite(es []edge, eps float64) []edge {
	removed := make([]bool, len(es))
	for i := range es {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(es); j++ {
			if removed[j] {
				continue
			}
			if near(es[i].a, es[j].b, eps) && near(es[i].b, es[j].a, eps) {
				removed[i], removed[j] = true, true
				break
			}
		}
	}
	var out []edge
	for i, e := range es {
		if !removed[i] {
			out = append(out, e)
		}
	}
	return out
}

func near(a, b mesh.Vertex, eps float64) bool {
	return r3.Norm(r3.Sub(a.Position, b.Position)) <= eps
}
