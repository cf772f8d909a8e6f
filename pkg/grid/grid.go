// Package grid partitions a volume into uniform bricks and records the
// real-world intensity range of each brick.
package grid

import (
	"context"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"proxygeom/internal/models"
)

// Volume is the read-only voxel access the engine needs.
type Volume interface {
	Dimensions() [3]int
	VoxelAt(x, y, z int) float64
	RealWorldMapping() models.RealWorldMapping
}

// RowVolume is implemented by volumes that store x-runs contiguously.
// ScanRange uses it to avoid per-voxel calls.
type RowVolume interface {
	Row(y, z int) []float64
}

// Brick is one cell of the region grid.
type Brick struct {
	// Bounds is the voxel extent of the brick (without padding).
	Bounds models.Extent

	// Range is the real-world intensity range over the padded extent.
	Range models.IntensityRange
}

// Grid is the uniform brick partition of a volume.
type Grid struct {
	// Bricks is the number of bricks along each axis.
	Bricks [3]int

	// StepSize is the brick edge length in voxels.
	StepSize int

	// VolumeDims are the voxel dimensions of the partitioned volume.
	VolumeDims [3]int

	cells []Brick
}

// BrickCounts returns ceil(dims/step) per axis, or zeros for a degenerate
// volume or step.
func BrickCounts(dims [3]int, step int) [3]int {
	if step <= 0 || dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return [3]int{}
	}
	var n [3]int
	for i := 0; i < 3; i++ {
		n[i] = (dims[i] + step - 1) / step
	}
	return n
}

// Dims returns the number of bricks per axis.
func (g *Grid) Dims() [3]int {
	return g.Bricks
}

// Len returns the number of bricks.
func (g *Grid) Len() int {
	return len(g.cells)
}

// Index returns the linear index of brick (x, y, z).
func (g *Grid) Index(x, y, z int) int {
	return x + g.Bricks[0]*(y+g.Bricks[1]*z)
}

// Brick returns brick (x, y, z).
func (g *Grid) Brick(x, y, z int) Brick {
	return g.cells[g.Index(x, y, z)]
}

// Range returns the intensity range of brick (x, y, z).
func (g *Grid) Range(x, y, z int) models.IntensityRange {
	return g.cells[g.Index(x, y, z)].Range
}

// Extent returns the voxel extent of brick (x, y, z).
func Extent(x, y, z, step int, dims [3]int) models.Extent {
	return models.Extent{
		Min: [3]int{x * step, y * step, z * step},
		Max: [3]int{
			min((x+1)*step, dims[0]),
			min((y+1)*step, dims[1]),
			min((z+1)*step, dims[2]),
		},
	}
}

// Build partitions vol into bricks of stepSize voxels and scans their
// padded intensity ranges. The work is split across workers goroutines by
// brick layers along z. A cancelled ctx aborts the build and returns
// ctx.Err(); no partial grid is returned.
func Build(ctx context.Context, vol Volume, stepSize, workers int) (*Grid, error) {
	dims := vol.Dimensions()
	g := &Grid{
		Bricks:     BrickCounts(dims, stepSize),
		StepSize:   stepSize,
		VolumeDims: dims,
	}
	g.cells = make([]Brick, g.Bricks[0]*g.Bricks[1]*g.Bricks[2])
	if len(g.cells) == 0 {
		return g, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if workers < 1 {
		workers = 1
	}
	layers := g.Bricks[2]
	if workers > layers {
		workers = layers
	}
	layersPerWorker := (layers + workers - 1) / workers

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func(workerID int) {
			defer wg.Done()

			// Calculate layer range for this worker
			start := workerID * layersPerWorker
			end := min((workerID+1)*layersPerWorker, layers)

			for z := start; z < end; z++ {
				for y := 0; y < g.Bricks[1]; y++ {
					for x := 0; x < g.Bricks[0]; x++ {
						if err := ctx.Err(); err != nil {
							errs[workerID] = err
							return
						}
						ext := Extent(x, y, z, stepSize, dims)
						r, err := ScanRange(ctx, vol, ext)
						if err != nil {
							errs[workerID] = err
							cancel()
							return
						}
						g.cells[g.Index(x, y, z)] = Brick{Bounds: ext, Range: r}
					}
				}
			}
		}(w)
	}

	// Wait for all workers to finish
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ScanRange returns the real-world intensity range over ext padded by one
// voxel on every side and clamped to the volume. ctx is checked once per
// z-slab of voxels.
func ScanRange(ctx context.Context, vol Volume, ext models.Extent) (models.IntensityRange, error) {
	dims := vol.Dimensions()
	var lo, hi [3]int
	for i := 0; i < 3; i++ {
		lo[i] = max(ext.Min[i]-1, 0)
		hi[i] = min(ext.Max[i], dims[i]-1)
	}

	minV, maxV := math.Inf(1), math.Inf(-1)
	rows, hasRows := vol.(RowVolume)

	for z := lo[2]; z <= hi[2]; z++ {
		if err := ctx.Err(); err != nil {
			return models.IntensityRange{}, err
		}
		for y := lo[1]; y <= hi[1]; y++ {
			if hasRows {
				run := rows.Row(y, z)[lo[0] : hi[0]+1]
				minV = math.Min(minV, floats.Min(run))
				maxV = math.Max(maxV, floats.Max(run))
				continue
			}
			for x := lo[0]; x <= hi[0]; x++ {
				v := vol.VoxelAt(x, y, z)
				minV = math.Min(minV, v)
				maxV = math.Max(maxV, v)
			}
		}
	}

	if minV > maxV {
		return models.EmptyRange(), nil
	}
	mapping := vol.RealWorldMapping()
	a, b := mapping.Apply(minV), mapping.Apply(maxV)
	if a > b {
		a, b = b, a
	}
	return models.IntensityRange{Min: a, Max: b}, nil
}
