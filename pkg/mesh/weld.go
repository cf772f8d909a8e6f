package mesh

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// point is a welded vertex stored in the k-d tree.
type point struct {
	r3.Vec
	index int
}

// Compare implements the kdtree.Comparable interface
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	return r3.Norm2(r3.Sub(p.Vec, q.Vec))
}

// Indexed is a welded, indexed view of a mesh: shared vertices plus three
// indices per triangle.
type Indexed struct {
	Vertices []Vertex
	Indices  []uint32
}

// Weld merges vertices whose positions lie within eps of each other and
// returns the indexed mesh. Degenerate triangles that collapse onto fewer
// than three distinct vertices are dropped.
func Weld(m *Mesh, eps float64) Indexed {
	var out Indexed
	tree := &kdtree.Tree{}
	eps2 := eps * eps

	lookup := func(v Vertex) uint32 {
		q := point{Vec: v.Position}
		if nearest, dist := tree.Nearest(q); nearest != nil && dist <= eps2 {
			return uint32(nearest.(point).index)
		}
		q.index = len(out.Vertices)
		tree.Insert(q, false)
		out.Vertices = append(out.Vertices, v)
		return uint32(q.index)
	}

	for _, t := range m.Triangles() {
		a, b, c := lookup(t[0]), lookup(t[1]), lookup(t[2])
		if a == b || b == c || a == c {
			continue
		}
		out.Indices = append(out.Indices, a, b, c)
	}
	return out
}
