// Package mesh provides the triangle mesh shared by the proxy-geometry
// builders, the clipper and the exporters.
//
// A Mesh stores every vertex with the full attribute set and carries a
// Schema telling which attributes are meaningful. Converting between
// layouts is an explicit data transform (Convert), not a different type.
package mesh

import (
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Schema is a bit set of the vertex attributes a mesh carries.
type Schema uint8

const (
	Position Schema = 1 << iota
	Color
	TexCoord
	Normal
)

// Common layouts.
const (
	SimpleSchema = Position
	ColorSchema  = Position | Color
	ProxySchema  = Position | Color | TexCoord
	NormalSchema = Position | Normal
)

// Has reports whether all attributes of a are in s.
func (s Schema) Has(a Schema) bool {
	return s&a == a
}

func (s Schema) String() string {
	var parts []string
	for _, a := range []struct {
		bit  Schema
		name string
	}{{Position, "position"}, {Color, "color"}, {TexCoord, "texcoord"}, {Normal, "normal"}} {
		if s.Has(a.bit) {
			parts = append(parts, a.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Vertex holds every attribute a mesh vertex may carry.
type Vertex struct {
	Position r3.Vec
	Color    [4]float64
	TexCoord r3.Vec
	Normal   r3.Vec
}

// ProxyVertex returns a vertex for texture-space proxy geometry, where
// position, texture coordinate and color all encode the same point.
func ProxyVertex(p r3.Vec) Vertex {
	return Vertex{
		Position: p,
		TexCoord: p,
		Color:    [4]float64{p.X, p.Y, p.Z, 1},
	}
}

// Lerp interpolates all attributes of a and b at parameter t.
func Lerp(a, b Vertex, t float64) Vertex {
	v := Vertex{
		Position: lerpVec(a.Position, b.Position, t),
		TexCoord: lerpVec(a.TexCoord, b.TexCoord, t),
		Normal:   lerpVec(a.Normal, b.Normal, t),
	}
	for i := range v.Color {
		v.Color[i] = a.Color[i] + (b.Color[i]-a.Color[i])*t
	}
	if n := r3.Norm(v.Normal); n > 0 {
		v.Normal = r3.Scale(1/n, v.Normal)
	}
	return v
}

// Average returns the midpoint of a and b over all attributes.
func Average(a, b Vertex) Vertex {
	return Lerp(a, b, 0.5)
}

func lerpVec(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// Triangle is three vertices in counter-clockwise order seen from outside.
type Triangle [3]Vertex

// Geometry returns the positions of the triangle.
func (t Triangle) Geometry() r3.Triangle {
	return r3.Triangle{t[0].Position, t[1].Position, t[2].Position}
}

// FaceNormal returns the unit face normal, or the zero vector for a
// degenerate triangle.
func (t Triangle) FaceNormal() r3.Vec {
	n := t.Geometry().Normal()
	if l := r3.Norm(n); l > 0 {
		return r3.Scale(1/l, n)
	}
	return r3.Vec{}
}

// Area returns the triangle area. Degenerate triangles have area 0.
func (t Triangle) Area() float64 {
	return r3.Norm(t.Geometry().Normal()) / 2
}

// Mesh is an ordered list of triangles.
//
// A Mesh is not safe for concurrent mutation. Meshes published by the
// proxy engine are never mutated again and may be read concurrently.
type Mesh struct {
	schema    Schema
	triangles []Triangle

	// generation is bumped by every mutation; bounds remembers the
	// generation it was computed from. boundsMu guards bounds, which
	// readers fill lazily.
	generation uint64
	boundsMu   sync.Mutex
	bounds     cachedBounds
}

type cachedBounds struct {
	box        r3.Box
	generation uint64
	valid      bool
}

// New creates an empty mesh with the given vertex layout.
func New(schema Schema) *Mesh {
	return &Mesh{schema: schema | Position}
}

// Schema returns the vertex layout of the mesh.
func (m *Mesh) Schema() Schema {
	return m.schema
}

// Len returns the number of triangles.
func (m *Mesh) Len() int {
	return len(m.triangles)
}

// IsEmpty reports whether the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return len(m.triangles) == 0
}

// Triangles returns the triangles of the mesh. The slice must not be
// modified.
func (m *Mesh) Triangles() []Triangle {
	return m.triangles
}

// Generation returns a counter that changes whenever the mesh changes.
func (m *Mesh) Generation() uint64 {
	return m.generation
}

// Add appends a triangle.
func (m *Mesh) Add(t Triangle) {
	m.triangles = append(m.triangles, t)
	m.generation++
}

// AddQuad appends the quad a-b-c-d as two triangles sharing the a-c
// diagonal. The corners must be in counter-clockwise order.
func (m *Mesh) AddQuad(a, b, c, d Vertex) {
	m.triangles = append(m.triangles, Triangle{a, b, c}, Triangle{a, c, d})
	m.generation++
}

// AddFan appends a fan triangulation of a convex polygon, anchored at its
// first vertex. Polygons with fewer than 3 vertices are ignored.
func (m *Mesh) AddFan(polygon []Vertex) {
	for i := 1; i+1 < len(polygon); i++ {
		m.triangles = append(m.triangles, Triangle{polygon[0], polygon[i], polygon[i+1]})
	}
	m.generation++
}

// Append adds all triangles of o.
func (m *Mesh) Append(o *Mesh) {
	if o == nil {
		return
	}
	m.triangles = append(m.triangles, o.triangles...)
	m.generation++
}

// Clear removes all triangles.
func (m *Mesh) Clear() {
	m.triangles = m.triangles[:0]
	m.generation++
}

// Replace swaps the triangle list for ts.
func (m *Mesh) Replace(ts []Triangle) {
	m.triangles = ts
	m.generation++
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	m.boundsMu.Lock()
	c := &Mesh{schema: m.schema, generation: m.generation, bounds: m.bounds}
	m.boundsMu.Unlock()
	c.triangles = make([]Triangle, len(m.triangles))
	copy(c.triangles, m.triangles)
	return c
}

// Bounds returns the axis-aligned bounding box of all vertex positions.
// The result is cached until the mesh changes. An empty mesh returns
// the zero box. Bounds is safe to call from several readers at once.
func (m *Mesh) Bounds() r3.Box {
	m.boundsMu.Lock()
	defer m.boundsMu.Unlock()
	if m.bounds.valid && m.bounds.generation == m.generation {
		return m.bounds.box
	}
	box := computeBounds(m.triangles)
	m.bounds = cachedBounds{box: box, generation: m.generation, valid: true}
	return box
}

func computeBounds(ts []Triangle) r3.Box {
	if len(ts) == 0 {
		return r3.Box{}
	}
	inf := math.Inf(1)
	box := r3.Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
	for _, t := range ts {
		for _, v := range t {
			p := v.Position
			box.Min.X = math.Min(box.Min.X, p.X)
			box.Min.Y = math.Min(box.Min.Y, p.Y)
			box.Min.Z = math.Min(box.Min.Z, p.Z)
			box.Max.X = math.Max(box.Max.X, p.X)
			box.Max.Y = math.Max(box.Max.Y, p.Y)
			box.Max.Z = math.Max(box.Max.Z, p.Z)
		}
	}
	return box
}

// Area returns the total surface area.
func (m *Mesh) Area() float64 {
	var a float64
	for _, t := range m.triangles {
		a += t.Area()
	}
	return a
}

// Volume returns the signed volume enclosed by a closed, consistently
// wound mesh. It is positive for outward-facing triangles.
func (m *Mesh) Volume() float64 {
	var v float64
	for _, t := range m.triangles {
		v += r3.Dot(t[0].Position, r3.Cross(t[1].Position, t[2].Position))
	}
	return v / 6
}

// Convert returns a copy of the mesh in the target layout. Attributes the
// target needs but the source lacks are derived: texture coordinates and
// colors from the position, normals from the face normal. Attributes the
// target lacks are zeroed.
func (m *Mesh) Convert(target Schema) *Mesh {
	target |= Position
	out := &Mesh{schema: target, triangles: make([]Triangle, len(m.triangles))}
	for i, t := range m.triangles {
		var faceNormal r3.Vec
		if target.Has(Normal) && !m.schema.Has(Normal) {
			faceNormal = t.FaceNormal()
		}
		for j, v := range t {
			out.triangles[i][j] = convertVertex(v, m.schema, target, faceNormal)
		}
	}
	return out
}

func convertVertex(v Vertex, from, to Schema, faceNormal r3.Vec) Vertex {
	out := Vertex{Position: v.Position}
	if to.Has(TexCoord) {
		if from.Has(TexCoord) {
			out.TexCoord = v.TexCoord
		} else {
			out.TexCoord = v.Position
		}
	}
	if to.Has(Color) {
		switch {
		case from.Has(Color):
			out.Color = v.Color
		case from.Has(TexCoord):
			out.Color = [4]float64{v.TexCoord.X, v.TexCoord.Y, v.TexCoord.Z, 1}
		default:
			out.Color = [4]float64{v.Position.X, v.Position.Y, v.Position.Z, 1}
		}
	}
	if to.Has(Normal) {
		if from.Has(Normal) {
			out.Normal = v.Normal
		} else {
			out.Normal = faceNormal
		}
	}
	return out
}
