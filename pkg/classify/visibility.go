package classify

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/internal/models"
)

// Visibility is the per-brick verdict grid every builder consumes.
type Visibility struct {
	// Bricks is the number of bricks along each axis.
	Bricks [3]int

	// StepSize is the brick edge length in voxels.
	StepSize int

	// VolumeDims are the voxel dimensions of the volume.
	VolumeDims [3]int

	// Clip is the voxel extent kept by the clip bounds.
	Clip models.Extent

	verdicts []Verdict
}

// NewVisibility allocates an all-empty verdict grid.
func NewVisibility(bricks [3]int, step int, dims [3]int, clip models.Extent) *Visibility {
	return &Visibility{
		Bricks:     bricks,
		StepSize:   step,
		VolumeDims: dims,
		Clip:       clip,
		verdicts:   make([]Verdict, bricks[0]*bricks[1]*bricks[2]),
	}
}

// Len returns the number of bricks.
func (v *Visibility) Len() int {
	return len(v.verdicts)
}

// Index returns the linear index of brick (x, y, z).
func (v *Visibility) Index(x, y, z int) int {
	return x + v.Bricks[0]*(y+v.Bricks[1]*z)
}

// InGrid reports whether (x, y, z) names a brick of the grid.
func (v *Visibility) InGrid(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 &&
		x < v.Bricks[0] && y < v.Bricks[1] && z < v.Bricks[2]
}

// Verdict returns the verdict of brick (x, y, z).
func (v *Visibility) Verdict(x, y, z int) Verdict {
	return v.verdicts[v.Index(x, y, z)]
}

// Set stores the verdict of brick (x, y, z).
func (v *Visibility) Set(x, y, z int, verdict Verdict) {
	v.verdicts[v.Index(x, y, z)] = verdict
}

// Visible reports whether brick (x, y, z) exists and is not empty. Mixed
// bricks count as visible.
func (v *Visibility) Visible(x, y, z int) bool {
	return v.InGrid(x, y, z) && v.verdicts[v.Index(x, y, z)] != Empty
}

// Count returns the number of visible bricks.
func (v *Visibility) Count() int {
	n := 0
	for _, verdict := range v.verdicts {
		if verdict != Empty {
			n++
		}
	}
	return n
}

// AllVisible reports whether every brick is visible.
func (v *Visibility) AllVisible() bool {
	return len(v.verdicts) > 0 && v.Count() == len(v.verdicts)
}

// VoxelExtent returns the voxel extent of brick (x, y, z), clamped to the
// volume.
func (v *Visibility) VoxelExtent(x, y, z int) models.Extent {
	return v.BrickRangeExtent(models.Extent{
		Min: [3]int{x, y, z},
		Max: [3]int{x + 1, y + 1, z + 1},
	})
}

// BrickRangeExtent converts an extent in brick units to voxels, clamped to
// the volume.
func (v *Visibility) BrickRangeExtent(b models.Extent) models.Extent {
	var e models.Extent
	for i := 0; i < 3; i++ {
		e.Min[i] = min(b.Min[i]*v.StepSize, v.VolumeDims[i])
		e.Max[i] = min(b.Max[i]*v.StepSize, v.VolumeDims[i])
	}
	return e
}

// ClippedExtent returns the voxel extent of brick (x, y, z) intersected
// with the clip extent.
func (v *Visibility) ClippedExtent(x, y, z int) models.Extent {
	return v.VoxelExtent(x, y, z).Intersect(v.Clip)
}

// TextureBox maps a voxel extent into normalized texture space, where the
// whole volume spans [0, 1]^3.
func (v *Visibility) TextureBox(e models.Extent) r3.Box {
	return TextureBox(e, v.VolumeDims)
}

// TextureBox maps a voxel extent into normalized texture space.
func TextureBox(e models.Extent, dims [3]int) r3.Box {
	b := e.Box()
	scale := r3.Vec{X: 1 / float64(dims[0]), Y: 1 / float64(dims[1]), Z: 1 / float64(dims[2])}
	return r3.Box{
		Min: r3.Vec{X: b.Min.X * scale.X, Y: b.Min.Y * scale.Y, Z: b.Min.Z * scale.Z},
		Max: r3.Vec{X: b.Max.X * scale.X, Y: b.Max.Y * scale.Y, Z: b.Max.Z * scale.Z},
	}
}

// RangeSource yields the intensity range of each brick.
type RangeSource interface {
	Dims() [3]int
	Range(x, y, z int) models.IntensityRange
}

// FromRanges classifies every brick of src. Bricks that do not intersect
// the clip extent are empty. ctx is checked at every brick.
func FromRanges(ctx context.Context, src RangeSource, c Classifier, step int, dims [3]int, clip models.Extent) (*Visibility, error) {
	vis := NewVisibility(src.Dims(), step, dims, clip)
	for z := 0; z < vis.Bricks[2]; z++ {
		for y := 0; y < vis.Bricks[1]; y++ {
			for x := 0; x < vis.Bricks[0]; x++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if vis.ClippedExtent(x, y, z).Empty() {
					continue
				}
				vis.Set(x, y, z, c.Classify(src.Range(x, y, z)))
			}
		}
	}
	return vis, nil
}
