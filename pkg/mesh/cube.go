package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Face identifies one of the six axis-aligned faces of a box.
type Face int

const (
	FaceNegX Face = iota
	FacePosX
	FaceNegY
	FacePosY
	FaceNegZ
	FacePosZ
)

// Axis returns the axis the face is perpendicular to.
func (f Face) Axis() int {
	return int(f) / 2
}

// Positive reports whether the face points along the positive axis.
func (f Face) Positive() bool {
	return int(f)%2 == 1
}

// Offset returns the neighbour cell offset across the face.
func (f Face) Offset() [3]int {
	var d [3]int
	if f.Positive() {
		d[f.Axis()] = 1
	} else {
		d[f.Axis()] = -1
	}
	return d
}

// Faces lists all six faces in canonical order.
var Faces = [6]Face{FaceNegX, FacePosX, FaceNegY, FacePosY, FaceNegZ, FacePosZ}

// faceCorners indexes r3.Box.Vertices so every face is counter-clockwise
// seen from outside.
var faceCorners = [6][4]int{
	FaceNegX: {0, 4, 7, 3},
	FacePosX: {1, 2, 6, 5},
	FaceNegY: {0, 1, 5, 4},
	FacePosY: {3, 7, 6, 2},
	FaceNegZ: {0, 3, 2, 1},
	FacePosZ: {4, 5, 6, 7},
}

// AddBoxFace appends one face of box as a quad of proxy vertices.
func (m *Mesh) AddBoxFace(box r3.Box, f Face) {
	c := box.Vertices()
	idx := faceCorners[f]
	m.AddQuad(
		ProxyVertex(c[idx[0]]),
		ProxyVertex(c[idx[1]]),
		ProxyVertex(c[idx[2]]),
		ProxyVertex(c[idx[3]]),
	)
}

// AddBox appends the 12 outward-facing triangles of box. Empty boxes are
// skipped.
func (m *Mesh) AddBox(box r3.Box) {
	if box.Empty() {
		return
	}
	for _, f := range Faces {
		m.AddBoxFace(box, f)
	}
}

// Cube returns a proxy mesh holding a single box.
func Cube(box r3.Box) *Mesh {
	m := New(ProxySchema)
	m.AddBox(box)
	return m
}
