package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxygeom/internal/models"
	"proxygeom/pkg/transfer"
)

// fixedTable returns the same opacity for every segment.
type fixedTable float64

func (f fixedTable) Classify(min, max float64) float64 { return float64(f) }

// ranges is an in-memory RangeSource.
type ranges struct {
	dims [3]int
	at   func(x, y, z int) models.IntensityRange
}

func (r ranges) Dims() [3]int                            { return r.dims }
func (r ranges) Range(x, y, z int) models.IntensityRange { return r.at(x, y, z) }

func stepClassifier(t *testing.T, threshold float64) Classifier {
	tf := transfer.Step(0.5)
	table, err := tf.PreIntegrationTable(1, 256)
	require.NoError(t, err)
	return New(table, tf, threshold)
}

func TestIsEmptyThreshold(t *testing.T) {
	identity := func(v float64) float64 { return v }
	r := models.IntensityRange{Min: 0, Max: 1}

	// the boundary is inclusive
	require.True(t, IsEmpty(r, fixedTable(1e-4), identity, 1))
	require.False(t, IsEmpty(r, fixedTable(1.1e-4), identity, 1))
	require.True(t, IsEmpty(r, fixedTable(0), identity, 0))
	require.False(t, IsEmpty(r, fixedTable(1e-9), identity, 0))

	require.True(t, IsEmpty(models.EmptyRange(), fixedTable(1), identity, 0))
}

func TestClassify(t *testing.T) {
	c := stepClassifier(t, 1)

	assert.Equal(t, Empty, c.Classify(models.IntensityRange{Min: 0, Max: 0.2}))
	assert.Equal(t, Opaque, c.Classify(models.IntensityRange{Min: 0.7, Max: 1}))
	assert.Equal(t, Opaque, c.Classify(models.IntensityRange{Min: 0, Max: 1}))
	assert.Equal(t, Empty, c.Classify(models.EmptyRange()))

	mixed := Classifier{Table: fixedTable(0.5), Normalize: func(v float64) float64 { return v }}
	assert.Equal(t, Mixed, mixed.Classify(models.IntensityRange{Max: 1}))

	assert.Equal(t, c.IsEmpty(models.IntensityRange{Max: 0.2}), c.Classify(models.IntensityRange{Max: 0.2}) == Empty)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "mixed", Mixed.String())
	assert.Equal(t, "opaque", Opaque.String())
	assert.Equal(t, "unknown", Verdict(9).String())
}

func TestVisibility(t *testing.T) {
	dims := [3]int{10, 10, 10}
	vis := NewVisibility([3]int{3, 3, 3}, 4, dims, models.Extent{Max: dims})

	require.Equal(t, 27, vis.Len())
	require.Zero(t, vis.Count())
	require.False(t, vis.AllVisible())

	vis.Set(2, 2, 2, Mixed)
	require.True(t, vis.Visible(2, 2, 2))
	require.False(t, vis.Visible(3, 2, 2))
	require.False(t, vis.Visible(-1, 0, 0))
	require.Equal(t, 1, vis.Count())

	// the last brick is clamped to the volume
	require.Equal(t, models.Extent{Min: [3]int{8, 8, 8}, Max: [3]int{10, 10, 10}}, vis.VoxelExtent(2, 2, 2))

	box := vis.TextureBox(vis.VoxelExtent(2, 2, 2))
	require.InDelta(t, 0.8, box.Min.X, 1e-12)
	require.InDelta(t, 1.0, box.Max.Z, 1e-12)
}

func TestFromRanges(t *testing.T) {
	c := stepClassifier(t, 1)
	dims := [3]int{8, 8, 8}
	src := ranges{
		dims: [3]int{2, 2, 2},
		at: func(x, y, z int) models.IntensityRange {
			if x == 0 {
				return models.IntensityRange{Min: 0.9, Max: 1}
			}
			return models.IntensityRange{Min: 0, Max: 0.1}
		},
	}

	vis, err := FromRanges(context.Background(), src, c, 4, dims, models.Extent{Max: dims})
	require.NoError(t, err)
	require.Equal(t, 4, vis.Count())
	require.Equal(t, Opaque, vis.Verdict(0, 1, 1))
	require.Equal(t, Empty, vis.Verdict(1, 0, 0))

	// bricks outside the clip extent stay empty
	clip := models.Extent{Max: [3]int{8, 8, 4}}
	vis, err = FromRanges(context.Background(), src, c, 4, dims, clip)
	require.NoError(t, err)
	require.Equal(t, 2, vis.Count())
	require.False(t, vis.Visible(0, 0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FromRanges(ctx, src, c, 4, dims, clip)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassifyAgreesWithIsEmpty(t *testing.T) {
	identity := func(v float64) float64 { return v }
	r := models.IntensityRange{Min: 0, Max: 1}

	for _, alpha := range []float64{0, 1e-9, 5e-5, 1e-4, 1.1e-4, 0.3, 1} {
		for _, threshold := range []float64{0, 0.5, 1, 2} {
			c := Classifier{Table: fixedTable(alpha), Normalize: identity, Threshold: threshold}
			assert.Equal(t, IsEmpty(r, c.Table, identity, threshold), c.Classify(r) == Empty,
				"alpha %g threshold %g", alpha, threshold)
		}
	}
}

func TestFromRangesCancelledWithinSlab(t *testing.T) {
	c := stepClassifier(t, 1)
	dims := [3]int{32, 4, 4}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	src := ranges{
		dims: [3]int{8, 1, 1},
		at: func(x, y, z int) models.IntensityRange {
			calls++
			cancel()
			return models.IntensityRange{Min: 0.9, Max: 1}
		},
	}

	_, err := FromRanges(ctx, src, c, 4, dims, models.Extent{Max: dims})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
