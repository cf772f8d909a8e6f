package merge

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxygeom/internal/models"
	"proxygeom/pkg/classify"
)

func newVisibility(bricks [3]int, step int) *classify.Visibility {
	dims := [3]int{bricks[0] * step, bricks[1] * step, bricks[2] * step}
	return classify.NewVisibility(bricks, step, dims, models.Extent{Max: dims})
}

func randomVisibility(seed int64, bricks [3]int, fill float64) *classify.Visibility {
	rnd := rand.New(rand.NewSource(seed))
	vis := newVisibility(bricks, 2)
	for z := 0; z < bricks[2]; z++ {
		for y := 0; y < bricks[1]; y++ {
			for x := 0; x < bricks[0]; x++ {
				if rnd.Float64() < fill {
					vis.Set(x, y, z, classify.Mixed)
				}
			}
		}
	}
	return vis
}

func TestBoxesExactCover(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		vis := randomVisibility(seed, [3]int{7, 5, 6}, 0.6)

		boxes, err := Boxes(context.Background(), vis)
		require.NoError(t, err)

		hits := make([]int, vis.Len())
		for _, b := range boxes {
			require.False(t, b.Empty())
			for z := b.Min[2]; z < b.Max[2]; z++ {
				for y := b.Min[1]; y < b.Max[1]; y++ {
					for x := b.Min[0]; x < b.Max[0]; x++ {
						require.True(t, vis.Visible(x, y, z), "seed %d: box %v covers invisible brick", seed, b)
						hits[vis.Index(x, y, z)]++
					}
				}
			}
		}
		for z := 0; z < vis.Bricks[2]; z++ {
			for y := 0; y < vis.Bricks[1]; y++ {
				for x := 0; x < vis.Bricks[0]; x++ {
					want := 0
					if vis.Visible(x, y, z) {
						want = 1
					}
					require.Equal(t, want, hits[vis.Index(x, y, z)], "seed %d: brick (%d,%d,%d)", seed, x, y, z)
				}
			}
		}
	}
}

func TestBoxesAllVisible(t *testing.T) {
	vis := newVisibility([3]int{3, 4, 5}, 2)
	for i := 0; i < vis.Len(); i++ {
		vis.Set(i%3, (i/3)%4, i/12, classify.Opaque)
	}

	boxes, err := Boxes(context.Background(), vis)
	require.NoError(t, err)
	require.Equal(t, []models.Extent{{Max: [3]int{3, 4, 5}}}, boxes)
}

func TestBoxesTwoSlabs(t *testing.T) {
	vis := newVisibility([3]int{4, 4, 4}, 2)
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			vis.Set(0, y, z, classify.Mixed)
			vis.Set(3, y, z, classify.Mixed)
		}
	}

	boxes, err := Boxes(context.Background(), vis)
	require.NoError(t, err)
	require.Equal(t, []models.Extent{
		{Min: [3]int{0, 0, 0}, Max: [3]int{1, 4, 4}},
		{Min: [3]int{3, 0, 0}, Max: [3]int{4, 4, 4}},
	}, boxes)

	m := Mesh(vis, boxes)
	require.Equal(t, 24, m.Len())
	require.InDelta(t, 0.5, m.Volume(), 1e-12)
}

func TestBoxesEmpty(t *testing.T) {
	boxes, err := Boxes(context.Background(), newVisibility([3]int{2, 2, 2}, 2))
	require.NoError(t, err)
	require.Empty(t, boxes)

	boxes, err = Boxes(context.Background(), newVisibility([3]int{}, 2))
	require.NoError(t, err)
	require.Empty(t, boxes)
}

func TestBoxesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Boxes(ctx, randomVisibility(1, [3]int{4, 4, 4}, 0.5))
	require.ErrorIs(t, err, context.Canceled)

	_, err = BrickBoxes(ctx, randomVisibility(1, [3]int{4, 4, 4}, 0.5))
	require.ErrorIs(t, err, context.Canceled)
}

func TestBrickBoxes(t *testing.T) {
	vis := randomVisibility(7, [3]int{5, 5, 5}, 0.3)

	boxes, err := BrickBoxes(context.Background(), vis)
	require.NoError(t, err)
	require.Len(t, boxes, vis.Count())
	for _, b := range boxes {
		assert.Equal(t, 1, b.Volume())
	}
}

func TestTightBox(t *testing.T) {
	vis := newVisibility([3]int{6, 6, 6}, 2)
	require.True(t, TightBox(vis).Empty())

	vis.Set(1, 2, 3, classify.Mixed)
	vis.Set(4, 2, 1, classify.Opaque)
	require.Equal(t, models.Extent{Min: [3]int{1, 2, 1}, Max: [3]int{5, 3, 4}}, TightBox(vis))
}

func TestMeshClipsBoxes(t *testing.T) {
	dims := [3]int{8, 8, 8}
	clip := models.Extent{Max: [3]int{8, 8, 3}}
	vis := classify.NewVisibility([3]int{2, 2, 2}, 4, dims, clip)

	m := Mesh(vis, []models.Extent{
		{Max: [3]int{2, 2, 1}},
		{Min: [3]int{0, 0, 1}, Max: [3]int{2, 2, 2}},
	})

	// the second box lies entirely outside the clip extent
	require.Equal(t, 12, m.Len())
	require.InDelta(t, 3.0/8, m.Bounds().Max.Z, 1e-12)
}
