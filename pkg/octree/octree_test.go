package octree

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxygeom/internal/models"
	"proxygeom/pkg/classify"
	"proxygeom/pkg/grid"
	"proxygeom/pkg/transfer"
)

func stepClassifier(t *testing.T) classify.Classifier {
	tf := transfer.Step(0.5)
	table, err := tf.PreIntegrationTable(1, 256)
	require.NoError(t, err)
	return classify.New(table, tf, 1)
}

func TestBuild(t *testing.T) {
	v := models.NewSphere(32, 10)
	tree, err := Build(context.Background(), v, 4)
	require.NoError(t, err)

	require.Equal(t, [3]int{8, 8, 8}, tree.Bricks)
	root := tree.Root()
	require.NotNil(t, root)
	require.False(t, root.IsLeaf())
	require.Equal(t, models.Extent{Max: [3]int{32, 32, 32}}, root.Bounds)
	require.Equal(t, models.IntensityRange{Min: 0, Max: 1}, root.Range)

	// 8 bricks per axis split down to single bricks
	require.Equal(t, 4, tree.Depth())
	require.Equal(t, 512, tree.Leaves())
	require.Len(t, tree.Children(0), 8)
}

func TestBuildUneven(t *testing.T) {
	v := models.NewVolume(12, 20, 8)
	tree, err := Build(context.Background(), v, 4)
	require.NoError(t, err)

	// every brick is covered by exactly one leaf
	covered := make(map[[3]int]int)
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if !n.IsLeaf() {
			continue
		}
		b := n.BrickBounds
		for z := b.Min[2]; z < b.Max[2]; z++ {
			for y := b.Min[1]; y < b.Max[1]; y++ {
				for x := b.Min[0]; x < b.Max[0]; x++ {
					covered[[3]int{x, y, z}]++
				}
			}
		}
	}
	require.Len(t, covered, 3*5*2)
	for brick, n := range covered {
		assert.Equal(t, 1, n, "brick %v", brick)
	}
}

func TestBuildEmptyVolume(t *testing.T) {
	tree, err := Build(context.Background(), models.NewVolume(0, 0, 0), 4)
	require.NoError(t, err)
	require.Nil(t, tree.Root())
	require.Zero(t, tree.Depth())

	vis, err := tree.Visibility(context.Background(), stepClassifier(t), models.Extent{})
	require.NoError(t, err)
	require.Zero(t, vis.Len())
}

func TestVisibilityMatchesGrid(t *testing.T) {
	ctx := context.Background()
	c := stepClassifier(t)

	for _, v := range []*models.Volume{
		models.NewSphere(32, 10),
		models.NewShell(32, 6, 12),
		models.NewHalfSpace(32, 1, 13, 1, 0),
	} {
		dims := v.Dimensions()
		clip := models.Extent{Min: [3]int{2, 0, 3}, Max: [3]int{28, 32, 32}}

		tree, err := Build(ctx, v, 4)
		require.NoError(t, err)
		fromTree, err := tree.Visibility(ctx, c, clip)
		require.NoError(t, err)

		g, err := grid.Build(ctx, v, 4, 2)
		require.NoError(t, err)
		fromGrid, err := classify.FromRanges(ctx, g, c, 4, dims, clip)
		require.NoError(t, err)

		require.Equal(t, fromGrid.Count(), fromTree.Count())
		for z := 0; z < fromGrid.Bricks[2]; z++ {
			for y := 0; y < fromGrid.Bricks[1]; y++ {
				for x := 0; x < fromGrid.Bricks[0]; x++ {
					require.Equal(t, fromGrid.Visible(x, y, z), fromTree.Visible(x, y, z), "brick (%d,%d,%d)", x, y, z)
				}
			}
		}
	}
}

func TestVisibilityPrunesEmptySubtrees(t *testing.T) {
	v := models.NewHalfSpace(16, 0, 4, 1, 0)
	tree, err := Build(context.Background(), v, 4)
	require.NoError(t, err)

	res, err := tree.Classify(context.Background(), stepClassifier(t), models.Extent{Max: v.Dimensions()})
	require.NoError(t, err)
	require.Len(t, res.Verdicts, len(tree.Nodes))

	// x bricks 0 and 1 see the opaque slab through padding
	require.Equal(t, 2*4*4, res.Visibility.Count())
	require.Equal(t, classify.Opaque, res.Verdicts[0])

	for i := range tree.Nodes {
		if tree.Nodes[i].BrickBounds.Min[0] >= 2 {
			assert.Equal(t, classify.Empty, res.Verdicts[i])
		}
	}
}

func TestClassifyLeavesTreeUntouched(t *testing.T) {
	tree, err := Build(context.Background(), models.NewSphere(32, 10), 4)
	require.NoError(t, err)
	before := append([]Node(nil), tree.Nodes...)

	c := stepClassifier(t)
	clip := models.Extent{Min: [3]int{0, 0, 8}, Max: [3]int{32, 32, 32}}
	var wg sync.WaitGroup
	counts := make([]int, 4)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vis, err := tree.Visibility(context.Background(), c, clip)
			assert.NoError(t, err)
			if vis != nil {
				counts[i] = vis.Count()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, before, tree.Nodes)
	for _, n := range counts[1:] {
		require.Equal(t, counts[0], n)
	}
	require.NotZero(t, counts[0])
}

func TestVisibilityCancelled(t *testing.T) {
	tree, err := Build(context.Background(), models.NewSphere(16, 5), 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tree.Visibility(ctx, stepClassifier(t), models.Extent{Max: [3]int{16, 16, 16}})
	require.ErrorIs(t, err, context.Canceled)

	_, err = Build(ctx, models.NewSphere(16, 5), 2)
	require.ErrorIs(t, err, context.Canceled)
}
