package models

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Volume represents a dense 3D scalar field. Voxel values are normalized
// to [0, 1]; RealWorld maps them to the unit the transfer function works in.
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order
	// (x fastest, then y, then z)
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the depth of the volume in voxels
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}

	// Origin is the world-space position of the lower-left-front corner
	Origin r3.Vec

	// RealWorld maps normalized voxel values to real-world intensities
	RealWorld RealWorldMapping
}

// NewVolume allocates a zero-filled volume with unit voxel size and an
// identity real-world mapping.
func NewVolume(width, height, depth int) *Volume {
	if width < 0 || height < 0 || depth < 0 {
		width, height, depth = 0, 0, 0
	}
	v := &Volume{
		Data:      make([]float64, width*height*depth),
		Width:     width,
		Height:    height,
		Depth:     depth,
		RealWorld: IdentityMapping(),
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = 1, 1, 1
	return v
}

// Dimensions returns the voxel dimensions of the volume.
func (v *Volume) Dimensions() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// Index returns the linear index of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// VoxelAt returns the normalized value of voxel (x, y, z).
func (v *Volume) VoxelAt(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a normalized value at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Row returns the contiguous run of voxels along x at (y, z).
// The returned slice aliases the volume data.
func (v *Volume) Row(y, z int) []float64 {
	start := v.Index(0, y, z)
	return v.Data[start : start+v.Width]
}

// RealWorldMapping returns the normalized-to-real-world mapping.
func (v *Volume) RealWorldMapping() RealWorldMapping {
	return v.RealWorld
}

// Spacing returns the voxel size as a vector.
func (v *Volume) Spacing() r3.Vec {
	return r3.Vec{X: v.VoxelSize.X, Y: v.VoxelSize.Y, Z: v.VoxelSize.Z}
}

// Offset returns the world-space origin of the volume.
func (v *Volume) Offset() r3.Vec {
	return v.Origin
}

// RealWorldMapping converts normalized voxel values to real-world values:
// real = normalized*Scale + Offset.
type RealWorldMapping struct {
	Scale  float64
	Offset float64
	Unit   string
}

// IdentityMapping returns a mapping that leaves values unchanged.
func IdentityMapping() RealWorldMapping {
	return RealWorldMapping{Scale: 1}
}

// Apply maps a normalized value to real-world units.
func (m RealWorldMapping) Apply(v float64) float64 {
	return v*m.Scale + m.Offset
}
