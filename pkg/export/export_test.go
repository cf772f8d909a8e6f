package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/pkg/mesh"
)

func TestFromMeshCube(t *testing.T) {
	out := FromMesh(mesh.Cube(r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}), 1e-9)

	require.Equal(t, 8, out.VertexCount())
	require.Equal(t, 12, out.TriangleCount())
	require.Len(t, out.Normals, len(out.Vertices))
	require.Len(t, out.TexCoords, len(out.Vertices))

	// corner normals point away from the center
	for i := 0; i < out.VertexCount(); i++ {
		p := r3.Vec{X: float64(out.Vertices[3*i]), Y: float64(out.Vertices[3*i+1]), Z: float64(out.Vertices[3*i+2])}
		n := r3.Vec{X: float64(out.Normals[3*i]), Y: float64(out.Normals[3*i+1]), Z: float64(out.Normals[3*i+2])}
		assert.InDelta(t, 1, r3.Norm(n), 1e-6)
		assert.Greater(t, r3.Dot(n, r3.Sub(p, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5})), 0.0)
	}
}

func TestFromMeshWithoutTexCoords(t *testing.T) {
	m := mesh.Cube(r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}).Convert(mesh.SimpleSchema)
	out := FromMesh(m, 1e-9)
	require.Empty(t, out.TexCoords)

	empty := FromMesh(mesh.New(mesh.ProxySchema), 1e-9)
	require.NotNil(t, empty.Indices)
	require.Zero(t, empty.TriangleCount())
}

func TestSetTransform(t *testing.T) {
	var m Mesh
	tr := mat.NewDense(4, 4, []float64{
		2, 0, 0, 5,
		0, 3, 0, 6,
		0, 0, 4, 7,
		0, 0, 0, 1,
	})
	m.SetTransform(tr)
	require.Equal(t, []float64{2, 0, 0, 5, 0, 3, 0, 6, 0, 0, 4, 7, 0, 0, 0, 1}, m.Transform)

	m.SetTransform(nil)
	require.Nil(t, m.Transform)
}

func TestEncodeDecode(t *testing.T) {
	in := FromMesh(mesh.Cube(r3.Box{Max: r3.Vec{X: 1, Y: 2, Z: 3}}), 1e-9)
	in.Mode = "maximal-bricks"

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))
	require.Contains(t, buf.String(), `"mode":"maximal-bricks"`)

	out, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = Decode(bytes.NewBufferString("{"))
	require.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.json")
	in := FromMesh(mesh.Cube(r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}), 1e-9)
	require.NoError(t, WriteJSON(path, in))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	out, err := Decode(f)
	require.NoError(t, err)
	require.Equal(t, in.Indices, out.Indices)

	require.Error(t, WriteJSON(filepath.Join(t.TempDir(), "missing", "proxy.json"), in))
}
