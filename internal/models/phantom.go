package models

import (
	"math"
)

// NewSphere creates a size^3 volume holding a solid sphere of value 1
// centred in the volume. Voxels outside the sphere are 0.
func NewSphere(size int, radius float64) *Volume {
	v := NewVolume(size, size, size)
	center := float64(size-1) / 2.0

	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx := float64(x) - center
				dy := float64(y) - center
				dz := float64(z) - center
				if math.Sqrt(dx*dx+dy*dy+dz*dz) <= radius {
					v.Set(x, y, z, 1.0)
				}
			}
		}
	}
	return v
}

// NewShell creates a size^3 volume holding a spherical shell of value 1
// between the inner and outer radius.
func NewShell(size int, inner, outer float64) *Volume {
	v := NewVolume(size, size, size)
	center := float64(size-1) / 2.0

	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx := float64(x) - center
				dy := float64(y) - center
				dz := float64(z) - center
				dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
				if dist >= inner && dist <= outer {
					v.Set(x, y, z, 1.0)
				}
			}
		}
	}
	return v
}

// NewHalfSpace creates a size^3 volume where voxels whose coordinate along
// axis is below cut hold inside, and all others hold outside.
func NewHalfSpace(size, axis, cut int, inside, outside float64) *Volume {
	v := NewVolume(size, size, size)
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				pos := [3]int{x, y, z}
				if pos[axis] < cut {
					v.Set(x, y, z, inside)
				} else {
					v.Set(x, y, z, outside)
				}
			}
		}
	}
	return v
}
