package clip

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/pkg/mesh"
)

func unitCube() *mesh.Mesh {
	return mesh.Cube(r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}})
}

func requireBox(t *testing.T, want, got r3.Box) {
	t.Helper()
	require.InDelta(t, want.Min.X, got.Min.X, 1e-9)
	require.InDelta(t, want.Min.Y, got.Min.Y, 1e-9)
	require.InDelta(t, want.Min.Z, got.Min.Z, 1e-9)
	require.InDelta(t, want.Max.X, got.Max.X, 1e-9)
	require.InDelta(t, want.Max.Y, got.Max.Y, 1e-9)
	require.InDelta(t, want.Max.Z, got.Max.Z, 1e-9)
}

func TestPlane(t *testing.T) {
	p := NewPlane(r3.Vec{X: 2}, r3.Vec{X: 0.5, Y: 7})
	require.Equal(t, r3.Vec{X: 1}, p.Normal)
	require.InDelta(t, 0.5, p.Distance, 1e-12)
	require.InDelta(t, -0.5, p.SignedDistance(r3.Vec{}), 1e-12)

	n := Plane{Normal: r3.Vec{Z: 4}, Distance: 2}.Normalized()
	require.Equal(t, Plane{Normal: r3.Vec{Z: 1}, Distance: 0.5}, n)
}

func TestClipEarlyOut(t *testing.T) {
	cube := unitCube()

	out, s := Clip(cube, Plane{Normal: r3.Vec{X: 1}, Distance: 2}, DefaultOptions())
	require.True(t, s.EarlyOut)
	require.Equal(t, 12, out.Len())
	require.NotSame(t, cube, out)

	out, s = Clip(cube, Plane{Normal: r3.Vec{X: 1}, Distance: -1}, DefaultOptions())
	require.True(t, s.EarlyOut)
	require.True(t, out.IsEmpty())
	require.Equal(t, 12, s.Dropped)

	// a plane touching a face does not cut anything
	out, s = Clip(cube, Plane{Normal: r3.Vec{X: 1}, Distance: 1}, DefaultOptions())
	require.True(t, s.EarlyOut)
	require.Equal(t, 12, out.Len())

	empty, s := Clip(mesh.New(mesh.ProxySchema), Plane{Normal: r3.Vec{X: 1}}, DefaultOptions())
	require.True(t, s.EarlyOut)
	require.True(t, empty.IsEmpty())
}

func TestClipCubeHalf(t *testing.T) {
	cube := unitCube()
	out, s := Clip(cube, Plane{Normal: r3.Vec{X: 1}, Distance: 0.5}, DefaultOptions())

	require.False(t, s.EarlyOut)
	require.Equal(t, 1, s.Loops)
	require.Equal(t, 2, s.CapTriangles)
	require.Equal(t, 12, out.Len())
	require.Equal(t, 12, cube.Len())

	requireBox(t, r3.Box{Max: r3.Vec{X: 0.5, Y: 1, Z: 1}}, out.Bounds())
	require.InDelta(t, 0.5, out.Volume(), 1e-9)
	require.InDelta(t, 4, out.Area(), 1e-9)

	var capArea float64
	for _, tri := range out.Triangles() {
		for _, v := range tri {
			require.LessOrEqual(t, v.Position.X, 0.5+1e-9)
			// attributes are interpolated with the position
			assert.InDelta(t, v.Position.X, v.TexCoord.X, 1e-9)
		}
		if tri[0].Position.X > 0.5-1e-9 && tri[1].Position.X > 0.5-1e-9 && tri[2].Position.X > 0.5-1e-9 {
			capArea += tri.Area()
			assert.InDelta(t, 1, tri.FaceNormal().X, 1e-9)
			for _, v := range tri {
				assert.Equal(t, r3.Vec{X: 1}, v.Normal)
			}
		}
	}
	require.InDelta(t, 1, capArea, 1e-9)
}

func TestClipWithoutConsolidation(t *testing.T) {
	out, s := Clip(unitCube(), Plane{Normal: r3.Vec{X: 1}, Distance: 0.5}, Options{})

	require.Equal(t, 8, s.Split)
	require.Equal(t, 2, s.Kept)
	require.Equal(t, 2, s.Dropped)
	require.Greater(t, out.Len(), 12)
	require.InDelta(t, 0.5, out.Volume(), 1e-9)
}

func TestClipIdempotent(t *testing.T) {
	planes := []Plane{
		{Normal: r3.Vec{Y: 1}, Distance: 0.3},
		NewPlane(r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}),
		NewPlane(r3.Vec{X: -1, Y: 2, Z: 0.5}, r3.Vec{X: 0.4, Y: 0.6, Z: 0.5}),
	}
	for _, p := range planes {
		once, _ := Clip(unitCube(), p, DefaultOptions())
		twice, s := Clip(once, p, DefaultOptions())

		require.Equal(t, once.Len(), twice.Len(), "plane %v", p)
		require.Zero(t, s.CapTriangles, "plane %v", p)
		require.Zero(t, s.Split, "plane %v", p)
		require.InDelta(t, once.Volume(), twice.Volume(), 1e-9)
		require.InDelta(t, once.Area(), twice.Area(), 1e-9)
	}
}

func TestClipObliqueVolume(t *testing.T) {
	p := NewPlane(r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5})
	out, s := Clip(unitCube(), p, DefaultOptions())

	require.Equal(t, 1, s.Loops)
	require.InDelta(t, 0.5, out.Volume(), 1e-9)

	// the cut through the center is a regular hexagon
	side := math.Sqrt(2) / 2
	hexagon := 3 * math.Sqrt(3) / 2 * side * side
	var capArea float64
	for _, tri := range out.Triangles() {
		if r3.Norm(r3.Sub(tri.FaceNormal(), p.Normal)) < 1e-9 {
			capArea += tri.Area()
		}
	}
	require.InDelta(t, hexagon, capArea, 1e-9)
}

func TestClipTwoLoops(t *testing.T) {
	m := unitCube()
	m.Append(mesh.Cube(r3.Box{Min: r3.Vec{X: 2}, Max: r3.Vec{X: 3, Y: 1, Z: 1}}))

	out, s := Clip(m, Plane{Normal: r3.Vec{Y: 1}, Distance: 0.5}, DefaultOptions())
	require.Equal(t, 2, s.Loops)
	require.Equal(t, 4, s.CapTriangles)
	require.InDelta(t, 1, out.Volume(), 1e-9)
	require.InDelta(t, 0.5, out.Bounds().Max.Y, 1e-9)
}

func TestClipBox(t *testing.T) {
	box := r3.Box{
		Min: r3.Vec{X: 0.25, Y: 0.25, Z: 0.25},
		Max: r3.Vec{X: 0.75, Y: 0.75, Z: 0.75},
	}
	out, s := ClipBox(unitCube(), box, DefaultOptions())

	require.Equal(t, 6, s.Loops)
	require.Equal(t, 12, out.Len())
	require.InDelta(t, 0.125, out.Volume(), 1e-9)
	requireBox(t, box, out.Bounds())

	require.Len(t, BoxPlanes(box), 6)
	for _, p := range BoxPlanes(box) {
		require.InDelta(t, 0, p.SignedDistance(box.Center())+0.25, 1e-12)
	}
}

func TestCapLoopNonConvex(t *testing.T) {
	// an L-shaped loop, counter-clockwise seen from +z, with a collinear
	// midpoint on its first edge
	corners := []r3.Vec{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1},
		{X: 1, Y: 1}, {X: 1, Y: 2}, {X: 0, Y: 2},
	}
	loop := make([]mesh.Vertex, len(corners))
	for i, c := range corners {
		loop[i] = mesh.ProxyVertex(c)
	}

	for _, normal := range []r3.Vec{{Z: 1}, {Z: -1}} {
		tris := capLoop(loop, normal, DefaultEpsilon)
		require.Len(t, tris, 4)

		var area float64
		for _, tri := range tris {
			area += tri.Area()
			require.InDelta(t, 1, r3.Dot(tri.FaceNormal(), normal), 1e-9)
		}
		require.InDelta(t, 3, area, 1e-9)
	}
}

func TestCapLoopDegenerate(t *testing.T) {
	line := []mesh.Vertex{
		mesh.ProxyVertex(r3.Vec{}),
		mesh.ProxyVertex(r3.Vec{X: 1}),
		mesh.ProxyVertex(r3.Vec{X: 2}),
	}
	require.Empty(t, capLoop(line, r3.Vec{Z: 1}, DefaultEpsilon))
}

func TestStitch(t *testing.T) {
	v := func(x, y float64) mesh.Vertex { return mesh.ProxyVertex(r3.Vec{X: x, Y: y}) }

	// a square given out of order, with one edge reversed and one endpoint
	// slightly off
	edges := []edge{
		{a: v(0, 0), b: v(1, 0)},
		{a: v(1, 1), b: v(0, 1)},
		{a: v(1, 1), b: v(1, 0)},
		{a: v(0, 1), b: v(0, 1e-8)},
	}
	loops := stitch(edges, 1e-6)
	require.Len(t, loops, 1)
	require.Len(t, loops[0], 4)

	open := stitch([]edge{{a: v(0, 0), b: v(1, 0)}}, 1e-6)
	require.Empty(t, open)
}

func TestCancelOpposite(t *testing.T) {
	a := mesh.ProxyVertex(r3.Vec{})
	b := mesh.ProxyVertex(r3.Vec{X: 1})
	c := mesh.ProxyVertex(r3.Vec{Y: 1})

	out := cancelOpposite([]edge{{a, b}, {b, c}, {b, a}}, DefaultEpsilon)
	require.Equal(t, []edge{{b, c}}, out)
}

func TestHull2D(t *testing.T) {
	pts := [][2]float64{{0, 0}, {1, 0}, {2, 0}, {2, 2}, {1, 1}, {0, 2}}
	require.Equal(t, []int{0, 2, 3, 5}, hull2D(pts, DefaultEpsilon))
	require.Nil(t, hull2D(pts[:2], DefaultEpsilon))
}
