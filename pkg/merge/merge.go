// Package merge packs visible bricks into few axis-aligned boxes.
//
// The packing is greedy and order dependent: seeds are taken in z-major
// order with x fastest, and each box grows one brick at a time along +x,
// +y and +z in turn. The result is an exact, non-overlapping cover of the
// visible bricks in which every box is locally maximal; it is not a
// minimum cover.
package merge

import (
	"context"

	"proxygeom/internal/models"
	"proxygeom/pkg/classify"
	"proxygeom/pkg/mesh"
)

// Boxes returns the maximal boxes, in brick units, covering every visible
// brick of vis exactly once. When every brick is visible the single grid
// bounding box is returned. ctx is checked once per seed brick.
func Boxes(ctx context.Context, vis *classify.Visibility) ([]models.Extent, error) {
	if vis.Len() == 0 {
		return nil, nil
	}
	if vis.AllVisible() {
		return []models.Extent{{Max: vis.Bricks}}, nil
	}

	claimed := make([]bool, vis.Len())
	var boxes []models.Extent

	for z := 0; z < vis.Bricks[2]; z++ {
		for y := 0; y < vis.Bricks[1]; y++ {
			for x := 0; x < vis.Bricks[0]; x++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if claimed[vis.Index(x, y, z)] || !vis.Visible(x, y, z) {
					continue
				}

				box := grow(vis, claimed, x, y, z)
				claim(vis, claimed, box)
				boxes = append(boxes, box)
			}
		}
	}
	return boxes, nil
}

// grow expands a single-brick box at the seed one slab at a time, cycling
// through +x, +y, +z until no axis can grow any more.
func grow(vis *classify.Visibility, claimed []bool, x, y, z int) models.Extent {
	box := models.Extent{
		Min: [3]int{x, y, z},
		Max: [3]int{x + 1, y + 1, z + 1},
	}
	open := [3]bool{true, true, true}
	for open[0] || open[1] || open[2] {
		for axis := 0; axis < 3; axis++ {
			if !open[axis] {
				continue
			}
			if canGrow(vis, claimed, box, axis) {
				box.Max[axis]++
			} else {
				open[axis] = false
			}
		}
	}
	return box
}

// canGrow reports whether the whole slab just past box along axis exists,
// is visible and is unclaimed.
func canGrow(vis *classify.Visibility, claimed []bool, box models.Extent, axis int) bool {
	next := box.Max[axis]
	if next >= vis.Bricks[axis] {
		return false
	}
	slab := box
	slab.Min[axis], slab.Max[axis] = next, next+1
	for z := slab.Min[2]; z < slab.Max[2]; z++ {
		for y := slab.Min[1]; y < slab.Max[1]; y++ {
			for x := slab.Min[0]; x < slab.Max[0]; x++ {
				if claimed[vis.Index(x, y, z)] || !vis.Visible(x, y, z) {
					return false
				}
			}
		}
	}
	return true
}

func claim(vis *classify.Visibility, claimed []bool, box models.Extent) {
	for z := box.Min[2]; z < box.Max[2]; z++ {
		for y := box.Min[1]; y < box.Max[1]; y++ {
			for x := box.Min[0]; x < box.Max[0]; x++ {
				claimed[vis.Index(x, y, z)] = true
			}
		}
	}
}

// Mesh converts brick boxes into cube meshes in normalized texture
// coordinates. Each box is intersected with the clip extent first; boxes
// left empty are skipped.
func Mesh(vis *classify.Visibility, boxes []models.Extent) *mesh.Mesh {
	m := mesh.New(mesh.ProxySchema)
	for _, b := range boxes {
		ext := vis.BrickRangeExtent(b).Intersect(vis.Clip)
		if ext.Empty() {
			continue
		}
		m.AddBox(vis.TextureBox(ext))
	}
	return m
}

// BrickBoxes returns one single-brick box per visible brick.
func BrickBoxes(ctx context.Context, vis *classify.Visibility) ([]models.Extent, error) {
	var boxes []models.Extent
	for z := 0; z < vis.Bricks[2]; z++ {
		for y := 0; y < vis.Bricks[1]; y++ {
			for x := 0; x < vis.Bricks[0]; x++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if vis.Visible(x, y, z) {
					boxes = append(boxes, models.Extent{
						Min: [3]int{x, y, z},
						Max: [3]int{x + 1, y + 1, z + 1},
					})
				}
			}
		}
	}
	return boxes, nil
}

// TightBox returns the bounding box, in brick units, of all visible
// bricks. The result is empty when nothing is visible.
func TightBox(vis *classify.Visibility) models.Extent {
	var box models.Extent
	for z := 0; z < vis.Bricks[2]; z++ {
		for y := 0; y < vis.Bricks[1]; y++ {
			for x := 0; x < vis.Bricks[0]; x++ {
				if vis.Visible(x, y, z) {
					box = box.Union(models.Extent{
						Min: [3]int{x, y, z},
						Max: [3]int{x + 1, y + 1, z + 1},
					})
				}
			}
		}
	}
	return box
}
