// Package stl writes proxy meshes as binary STL files.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/pkg/mesh"
)

// headerSize is the fixed size of the binary STL header.
const headerSize = 80

// Triangle represents a single triangle in an STL file, with a facet
// normal and three vertices in counter-clockwise order.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// FromMesh converts m into STL triangles. When transform is not nil every
// position is mapped through the 4x4 matrix first, e.g. to take texture
// coordinates to world space. Normals are recomputed after the transform;
// degenerate triangles get a zero normal.
func FromMesh(m *mesh.Mesh, transform *mat.Dense) []Triangle {
	tris := make([]Triangle, 0, m.Len())
	for _, t := range m.Triangles() {
		var p [3]r3.Vec
		for i, v := range t {
			p[i] = apply(transform, v.Position)
		}
		n := r3.Triangle(p).Normal()
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		tris = append(tris, Triangle{
			Normal:  vec32(n),
			Vertex1: vec32(p[0]),
			Vertex2: vec32(p[1]),
			Vertex3: vec32(p[2]),
		})
	}
	return tris
}

func apply(t *mat.Dense, v r3.Vec) r3.Vec {
	if t == nil {
		return v
	}
	in := mat.NewVecDense(4, []float64{v.X, v.Y, v.Z, 1})
	var out mat.VecDense
	out.MulVec(t, in)
	w := out.AtVec(3)
	if w == 0 {
		w = 1
	}
	return r3.Vec{X: out.AtVec(0) / w, Y: out.AtVec(1) / w, Z: out.AtVec(2) / w}
}

func vec32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// SaveToSTL writes triangles to path as a binary STL file.
func SaveToSTL(path string, triangles []Triangle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}

	if err := Write(f, triangles); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes triangles in binary STL format: an 80-byte header, the
// triangle count and 50 bytes per triangle.
func Write(w io.Writer, triangles []Triangle) error {
	bw := bufio.NewWriter(w)

	var header [headerSize]byte
	copy(header[:], "proxygeom proxy geometry")
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write STL header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("failed to write triangle count: %w", err)
	}

	for _, t := range triangles {
		if err := binary.Write(bw, binary.LittleEndian, t); err != nil {
			return fmt.Errorf("failed to write triangle: %w", err)
		}
		// attribute byte count
		if err := binary.Write(bw, binary.LittleEndian, uint16(0)); err != nil {
			return fmt.Errorf("failed to write triangle: %w", err)
		}
	}
	return bw.Flush()
}

// Read decodes a binary STL stream written by Write.
func Read(r io.Reader) ([]Triangle, error) {
	br := bufio.NewReader(r)

	var header [headerSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read STL header: %w", err)
	}
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("failed to read triangle count: %w", err)
	}
	if n > math.MaxInt32 {
		return nil, fmt.Errorf("triangle count %d out of range", n)
	}

	tris := make([]Triangle, n)
	for i := range tris {
		if err := binary.Read(br, binary.LittleEndian, &tris[i]); err != nil {
			return nil, fmt.Errorf("failed to read triangle %d: %w", i, err)
		}
		var attr uint16
		if err := binary.Read(br, binary.LittleEndian, &attr); err != nil {
			return nil, fmt.Errorf("failed to read triangle %d: %w", i, err)
		}
	}
	return tris, nil
}

// LoadSTL reads a binary STL file.
func LoadSTL(path string) ([]Triangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open STL file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
