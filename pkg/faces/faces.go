// Package faces extracts the outer shell of the visible bricks: only the
// quads that face a transparent, clipped-away or missing neighbour.
package faces

import (
	"context"

	"proxygeom/pkg/classify"
	"proxygeom/pkg/mesh"
)

// Extract emits, for every visible brick and each of its six faces, a quad
// unless the adjacent brick exists and is visible itself. Mixed bricks
// count as opaque. Brick bounds are intersected with the clip extent
// first, so a clip plane through a brick moves the face onto the plane
// instead of dropping the brick. ctx is checked once per brick.
func Extract(ctx context.Context, vis *classify.Visibility) (*mesh.Mesh, error) {
	m := mesh.New(mesh.ProxySchema)

	for z := 0; z < vis.Bricks[2]; z++ {
		for y := 0; y < vis.Bricks[1]; y++ {
			for x := 0; x < vis.Bricks[0]; x++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if !vis.Visible(x, y, z) {
					continue
				}
				ext := vis.ClippedExtent(x, y, z)
				if ext.Empty() {
					continue
				}
				box := vis.TextureBox(ext)

				for _, f := range mesh.Faces {
					d := f.Offset()
					if vis.Visible(x+d[0], y+d[1], z+d[2]) {
						continue
					}
					m.AddBoxFace(box, f)
				}
			}
		}
	}
	return m, nil
}

// Count returns the number of quads Extract would emit without building
// the mesh.
func Count(vis *classify.Visibility) int {
	n := 0
	for z := 0; z < vis.Bricks[2]; z++ {
		for y := 0; y < vis.Bricks[1]; y++ {
			for x := 0; x < vis.Bricks[0]; x++ {
				if !vis.Visible(x, y, z) || vis.ClippedExtent(x, y, z).Empty() {
					continue
				}
				for _, f := range mesh.Faces {
					d := f.Offset()
					if !vis.Visible(x+d[0], y+d[1], z+d[2]) {
						n++
					}
				}
			}
		}
	}
	return n
}
