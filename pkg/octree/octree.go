// Package octree builds a brick-level octree over a volume. Nodes live in
// a flat arena and refer to their children by index, so rebuilding the
// whole tree is an arena reset.
package octree

import (
	"context"

	"proxygeom/internal/models"
	"proxygeom/pkg/classify"
	"proxygeom/pkg/grid"
)

// NoChild marks a leaf node.
const NoChild = -1

// Node is one octree node. Internal nodes own 8 consecutive arena slots
// starting at FirstChild, in octant order x bit, then y bit, then z bit.
type Node struct {
	// Bounds is the voxel extent of the node.
	Bounds models.Extent

	// BrickBounds is the extent of the node in brick units.
	BrickBounds models.Extent

	// Range is the real-world intensity range of the node, the union of
	// its children's ranges for internal nodes.
	Range models.IntensityRange

	// FirstChild is the arena index of the first child, or NoChild.
	FirstChild int32
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.FirstChild == NoChild
}

// Octree is a recursive octant decomposition of the brick grid.
type Octree struct {
	// Nodes is the arena; the root is Nodes[0].
	Nodes []Node

	// Bricks is the number of bricks along each axis.
	Bricks [3]int

	// StepSize is the brick edge length in voxels.
	StepSize int

	// VolumeDims are the voxel dimensions of the volume.
	VolumeDims [3]int
}

// Provider is implemented by volumes that carry a pre-built octree.
type Provider interface {
	PrebuiltOctree(stepSize int) (*Octree, bool)
}

// Build decomposes vol top-down. A node becomes a leaf as soon as any axis
// spans a single brick; leaves scan their padded voxel extent like a
// region-grid brick. ctx is checked at every node.
func Build(ctx context.Context, vol grid.Volume, stepSize int) (*Octree, error) {
	dims := vol.Dimensions()
	o := &Octree{
		Bricks:     grid.BrickCounts(dims, stepSize),
		StepSize:   stepSize,
		VolumeDims: dims,
	}
	if o.Bricks[0] == 0 {
		return o, nil
	}

	b := &builder{ctx: ctx, vol: vol, tree: o}
	o.Nodes = append(o.Nodes, Node{})
	root := models.Extent{Max: o.Bricks}
	if err := b.build(0, root); err != nil {
		return nil, err
	}
	return o, nil
}

type builder struct {
	ctx  context.Context
	vol  grid.Volume
	tree *Octree
}

// build fills arena slot idx with the node covering brick extent ext.
func (b *builder) build(idx int32, ext models.Extent) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	t := b.tree
	size := ext.Size()
	voxels := t.voxelExtent(ext)

	if size[0] <= 1 || size[1] <= 1 || size[2] <= 1 {
		r, err := grid.ScanRange(b.ctx, b.vol, voxels)
		if err != nil {
			return err
		}
		t.Nodes[idx] = Node{Bounds: voxels, BrickBounds: ext, Range: r, FirstChild: NoChild}
		return nil
	}

	first := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, make([]Node, 8)...)

	var mid [3]int
	for a := 0; a < 3; a++ {
		mid[a] = ext.Min[a] + size[a]/2
	}

	r := models.EmptyRange()
	var bounds models.Extent
	for octant := 0; octant < 8; octant++ {
		child := octantExtent(ext, mid, octant)
		if err := b.build(first+int32(octant), child); err != nil {
			return err
		}
		// the arena may have grown; index again instead of holding pointers
		c := t.Nodes[first+int32(octant)]
		r = r.Union(c.Range)
		bounds = bounds.Union(c.Bounds)
	}

	t.Nodes[idx] = Node{Bounds: bounds, BrickBounds: ext, Range: r, FirstChild: first}
	return nil
}

// octantExtent returns the child extent for octant, whose bits select the
// upper half along x (bit 0), y (bit 1) and z (bit 2).
func octantExtent(ext models.Extent, mid [3]int, octant int) models.Extent {
	var c models.Extent
	for a := 0; a < 3; a++ {
		if octant&(1<<a) == 0 {
			c.Min[a], c.Max[a] = ext.Min[a], mid[a]
		} else {
			c.Min[a], c.Max[a] = mid[a], ext.Max[a]
		}
	}
	return c
}

func (o *Octree) voxelExtent(bricks models.Extent) models.Extent {
	var e models.Extent
	for a := 0; a < 3; a++ {
		e.Min[a] = min(bricks.Min[a]*o.StepSize, o.VolumeDims[a])
		e.Max[a] = min(bricks.Max[a]*o.StepSize, o.VolumeDims[a])
	}
	return e
}

// Root returns the root node, or nil for an empty tree.
func (o *Octree) Root() *Node {
	if len(o.Nodes) == 0 {
		return nil
	}
	return &o.Nodes[0]
}

// Children returns the arena indices of the children of node idx.
func (o *Octree) Children(idx int32) []int32 {
	n := &o.Nodes[idx]
	if n.IsLeaf() {
		return nil
	}
	c := make([]int32, 8)
	for i := range c {
		c[i] = n.FirstChild + int32(i)
	}
	return c
}

// Leaves returns the number of leaf nodes.
func (o *Octree) Leaves() int {
	n := 0
	for i := range o.Nodes {
		if o.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Depth returns the number of levels of the tree.
func (o *Octree) Depth() int {
	if len(o.Nodes) == 0 {
		return 0
	}
	return o.depth(0)
}

func (o *Octree) depth(idx int32) int {
	n := &o.Nodes[idx]
	if n.IsLeaf() {
		return 1
	}
	d := 0
	for i := int32(0); i < 8; i++ {
		d = max(d, o.depth(n.FirstChild+i))
	}
	return d + 1
}

// Classification holds the verdicts of one classification pass, indexed
// like the arena. The tree itself is never written, so one tree may be
// classified by several passes at once.
type Classification struct {
	// Verdicts has one entry per arena node.
	Verdicts []classify.Verdict

	// Visibility is the brick-level rasterization of the leaf verdicts.
	Visibility *classify.Visibility
}

// Visibility classifies the tree top-down and rasterizes leaf verdicts
// into a brick-level grid.
func (o *Octree) Visibility(ctx context.Context, c classify.Classifier, clip models.Extent) (*classify.Visibility, error) {
	res, err := o.Classify(ctx, c, clip)
	if err != nil {
		return nil, err
	}
	return res.Visibility, nil
}

// Classify stores a verdict for every node. Subtrees whose node is empty,
// or that lie outside clip, are marked empty without being visited.
func (o *Octree) Classify(ctx context.Context, c classify.Classifier, clip models.Extent) (*Classification, error) {
	res := &Classification{
		Verdicts:   make([]classify.Verdict, len(o.Nodes)),
		Visibility: classify.NewVisibility(o.Bricks, o.StepSize, o.VolumeDims, clip),
	}
	if len(o.Nodes) == 0 {
		return res, nil
	}
	if err := o.visit(ctx, 0, c, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (o *Octree) visit(ctx context.Context, idx int32, c classify.Classifier, res *Classification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := &o.Nodes[idx]
	vis := res.Visibility
	if n.Bounds.Intersect(vis.Clip).Empty() {
		// verdicts start out empty, so the subtree needs no marking
		return nil
	}
	v := c.Classify(n.Range)
	res.Verdicts[idx] = v
	if v == classify.Empty {
		return nil
	}

	if n.IsLeaf() {
		b := n.BrickBounds
		for z := b.Min[2]; z < b.Max[2]; z++ {
			for y := b.Min[1]; y < b.Max[1]; y++ {
				for x := b.Min[0]; x < b.Max[0]; x++ {
					if vis.ClippedExtent(x, y, z).Empty() {
						continue
					}
					vis.Set(x, y, z, v)
				}
			}
		}
		return nil
	}

	first := n.FirstChild
	for i := int32(0); i < 8; i++ {
		if err := o.visit(ctx, first+i, c, res); err != nil {
			return err
		}
	}
	return nil
}
