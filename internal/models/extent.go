package models

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// IntensityRange is a closed interval of real-world intensities.
type IntensityRange struct {
	Min, Max float64
}

// EmptyRange returns the identity element for Union.
func EmptyRange() IntensityRange {
	return IntensityRange{Min: math.Inf(1), Max: math.Inf(-1)}
}

// IsEmpty reports whether the range holds no value.
func (r IntensityRange) IsEmpty() bool {
	return r.Min > r.Max
}

// Union returns the smallest range enclosing both r and o.
func (r IntensityRange) Union(o IntensityRange) IntensityRange {
	return IntensityRange{Min: math.Min(r.Min, o.Min), Max: math.Max(r.Max, o.Max)}
}

// Extent is an axis-aligned box of integer cells, Min inclusive and Max
// exclusive. It is used both for voxel and for brick coordinates.
type Extent struct {
	Min, Max [3]int
}

// Empty reports whether the extent contains no cell.
func (e Extent) Empty() bool {
	return e.Min[0] >= e.Max[0] || e.Min[1] >= e.Max[1] || e.Min[2] >= e.Max[2]
}

// Size returns the number of cells along each axis.
func (e Extent) Size() [3]int {
	if e.Empty() {
		return [3]int{}
	}
	return [3]int{e.Max[0] - e.Min[0], e.Max[1] - e.Min[1], e.Max[2] - e.Min[2]}
}

// Volume returns the number of cells in the extent.
func (e Extent) Volume() int {
	s := e.Size()
	return s[0] * s[1] * s[2]
}

// Contains reports whether cell (x, y, z) lies in the extent.
func (e Extent) Contains(x, y, z int) bool {
	return x >= e.Min[0] && x < e.Max[0] &&
		y >= e.Min[1] && y < e.Max[1] &&
		z >= e.Min[2] && z < e.Max[2]
}

// Union returns the smallest extent enclosing both e and o.
func (e Extent) Union(o Extent) Extent {
	if e.Empty() {
		return o
	}
	if o.Empty() {
		return e
	}
	var u Extent
	for i := 0; i < 3; i++ {
		u.Min[i] = min(e.Min[i], o.Min[i])
		u.Max[i] = max(e.Max[i], o.Max[i])
	}
	return u
}

// Intersect returns the overlap of e and o, which may be empty.
func (e Extent) Intersect(o Extent) Extent {
	var u Extent
	for i := 0; i < 3; i++ {
		u.Min[i] = max(e.Min[i], o.Min[i])
		u.Max[i] = min(e.Max[i], o.Max[i])
	}
	return u
}

// Box converts the extent to a continuous box in the same coordinates.
func (e Extent) Box() r3.Box {
	return r3.Box{
		Min: r3.Vec{X: float64(e.Min[0]), Y: float64(e.Min[1]), Z: float64(e.Min[2])},
		Max: r3.Vec{X: float64(e.Max[0]), Y: float64(e.Max[1]), Z: float64(e.Max[2])},
	}
}

// ClipBounds are the six clipping values of the region of interest in
// voxel-index space. Right/Left bound x, Front/Back bound y and
// Bottom/Top bound z; both ends are inclusive voxel indices.
// Callers keep Right <= Left, Front <= Back and Bottom <= Top.
type ClipBounds struct {
	Right  int `yaml:"right" json:"right"`
	Left   int `yaml:"left" json:"left"`
	Front  int `yaml:"front" json:"front"`
	Back   int `yaml:"back" json:"back"`
	Bottom int `yaml:"bottom" json:"bottom"`
	Top    int `yaml:"top" json:"top"`
}

// FullClipBounds returns bounds that keep the whole volume.
func FullClipBounds(dims [3]int) ClipBounds {
	return ClipBounds{
		Left: dims[0] - 1,
		Back: dims[1] - 1,
		Top:  dims[2] - 1,
	}
}

// Extent returns the voxel extent kept by the bounds.
func (c ClipBounds) Extent() Extent {
	return Extent{
		Min: [3]int{c.Right, c.Front, c.Bottom},
		Max: [3]int{c.Left + 1, c.Back + 1, c.Top + 1},
	}
}
