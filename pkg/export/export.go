// Package export serializes proxy meshes as welded, indexed JSON for web
// viewers and offline inspection.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/segmentio/encoding/json"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/pkg/mesh"
)

// Mesh is the JSON form of a proxy mesh. Attributes are flat arrays with
// three components per vertex; Indices holds three entries per triangle.
type Mesh struct {
	Vertices  []float32 `json:"vertices"`
	Normals   []float32 `json:"normals"`
	TexCoords []float32 `json:"texCoords,omitempty"`
	Indices   []uint32  `json:"indices"`

	// Transform is the row-major 4x4 texture-to-world matrix.
	Transform []float64 `json:"transform,omitempty"`

	// Mode names the builder that produced the mesh.
	Mode string `json:"mode,omitempty"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// FromMesh welds vertices of m closer than eps and builds the JSON form.
// Vertex normals are the area-weighted average of the adjacent face
// normals. Texture coordinates are emitted when m carries them.
func FromMesh(m *mesh.Mesh, eps float64) *Mesh {
	welded := mesh.Weld(m, eps)

	out := &Mesh{
		Vertices: make([]float32, 0, 3*len(welded.Vertices)),
		Normals:  make([]float32, 0, 3*len(welded.Vertices)),
		Indices:  welded.Indices,
	}
	if out.Indices == nil {
		out.Indices = []uint32{}
	}

	normals := make([]r3.Vec, len(welded.Vertices))
	for i := 0; i+2 < len(welded.Indices); i += 3 {
		a, b, c := welded.Indices[i], welded.Indices[i+1], welded.Indices[i+2]
		n := r3.Triangle{
			welded.Vertices[a].Position,
			welded.Vertices[b].Position,
			welded.Vertices[c].Position,
		}.Normal()
		normals[a] = r3.Add(normals[a], n)
		normals[b] = r3.Add(normals[b], n)
		normals[c] = r3.Add(normals[c], n)
	}

	withTex := m.Schema().Has(mesh.TexCoord)
	for i, v := range welded.Vertices {
		out.Vertices = append(out.Vertices, float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z))

		n := normals[i]
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		out.Normals = append(out.Normals, float32(n.X), float32(n.Y), float32(n.Z))

		if withTex {
			out.TexCoords = append(out.TexCoords, float32(v.TexCoord.X), float32(v.TexCoord.Y), float32(v.TexCoord.Z))
		}
	}
	return out
}

// SetTransform stores t row-major. A nil t clears the transform.
func (m *Mesh) SetTransform(t *mat.Dense) {
	if t == nil {
		m.Transform = nil
		return
	}
	r, c := t.Dims()
	m.Transform = make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		m.Transform = append(m.Transform, mat.Row(nil, i, t)...)
	}
}

// Encode writes m as JSON to w.
func Encode(w io.Writer, m *Mesh) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling mesh: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("error writing mesh: %w", err)
	}
	return nil
}

// Decode reads a mesh written by Encode.
func Decode(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading mesh: %w", err)
	}
	var m Mesh
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing mesh: %w", err)
	}
	return &m, nil
}

// WriteJSON writes m to path.
func WriteJSON(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating mesh file: %w", err)
	}
	if err := Encode(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
