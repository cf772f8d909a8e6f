package grid

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxygeom/internal/models"
)

// pointVolume hides the Row fast path of models.Volume.
type pointVolume struct {
	v *models.Volume
}

func (p pointVolume) Dimensions() [3]int                        { return p.v.Dimensions() }
func (p pointVolume) VoxelAt(x, y, z int) float64               { return p.v.VoxelAt(x, y, z) }
func (p pointVolume) RealWorldMapping() models.RealWorldMapping { return p.v.RealWorldMapping() }

func randomVolume(seed int64, w, h, d int) *models.Volume {
	rnd := rand.New(rand.NewSource(seed))
	v := models.NewVolume(w, h, d)
	for i := range v.Data {
		v.Data[i] = rnd.Float64()
	}
	return v
}

func TestBrickCounts(t *testing.T) {
	assert.Equal(t, [3]int{2, 2, 2}, BrickCounts([3]int{4, 4, 4}, 2))
	assert.Equal(t, [3]int{3, 1, 1}, BrickCounts([3]int{5, 2, 1}, 2))
	assert.Equal(t, [3]int{}, BrickCounts([3]int{0, 4, 4}, 2))
	assert.Equal(t, [3]int{}, BrickCounts([3]int{4, 4, 4}, 0))
}

func TestScanRangePadding(t *testing.T) {
	v := models.NewHalfSpace(4, 0, 2, 1, 0)

	// brick [0,2) along x sees the padding voxel at x == 2
	r, err := ScanRange(context.Background(), v, Extent(0, 0, 0, 2, v.Dimensions()))
	require.NoError(t, err)
	require.Equal(t, models.IntensityRange{Min: 0, Max: 1}, r)

	r, err = ScanRange(context.Background(), v, models.Extent{Min: [3]int{3, 0, 0}, Max: [3]int{4, 4, 4}})
	require.NoError(t, err)
	require.Equal(t, models.IntensityRange{Min: 0, Max: 0}, r)
}

func TestScanRangeRealWorld(t *testing.T) {
	v := models.NewHalfSpace(4, 0, 2, 1, 0)
	v.RealWorld = models.RealWorldMapping{Scale: -1000, Offset: 500}

	r, err := ScanRange(context.Background(), v, models.Extent{Max: v.Dimensions()})
	require.NoError(t, err)
	require.Equal(t, models.IntensityRange{Min: -500, Max: 500}, r)
}

func TestBuild(t *testing.T) {
	v := randomVolume(1, 13, 9, 7)

	g, err := Build(context.Background(), v, 4, 3)
	require.NoError(t, err)
	require.Equal(t, [3]int{4, 3, 2}, g.Dims())
	require.Equal(t, 24, g.Len())

	last := g.Brick(3, 2, 1)
	require.Equal(t, models.Extent{Min: [3]int{12, 8, 4}, Max: [3]int{13, 9, 7}}, last.Bounds)

	// every brick range encloses its own voxels
	for z := 0; z < g.Bricks[2]; z++ {
		for y := 0; y < g.Bricks[1]; y++ {
			for x := 0; x < g.Bricks[0]; x++ {
				b := g.Brick(x, y, z)
				for vz := b.Bounds.Min[2]; vz < b.Bounds.Max[2]; vz++ {
					for vy := b.Bounds.Min[1]; vy < b.Bounds.Max[1]; vy++ {
						for vx := b.Bounds.Min[0]; vx < b.Bounds.Max[0]; vx++ {
							val := v.VoxelAt(vx, vy, vz)
							require.GreaterOrEqual(t, val, b.Range.Min)
							require.LessOrEqual(t, val, b.Range.Max)
						}
					}
				}
			}
		}
	}
}

func TestBuildWorkersAgree(t *testing.T) {
	v := randomVolume(2, 16, 16, 16)

	one, err := Build(context.Background(), v, 4, 1)
	require.NoError(t, err)
	many, err := Build(context.Background(), pointVolume{v}, 4, 8)
	require.NoError(t, err)

	require.Equal(t, one.cells, many.cells)
}

func TestBuildEmpty(t *testing.T) {
	g, err := Build(context.Background(), models.NewVolume(0, 4, 4), 2, 2)
	require.NoError(t, err)
	require.Zero(t, g.Len())
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := Build(ctx, randomVolume(3, 8, 8, 8), 2, 4)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, g)
}
