// Package visualization renders brick classifications as image slabs so the
// visible region of a proxy pass can be inspected layer by layer.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"proxygeom/pkg/classify"
)

// Gray levels of the three verdicts.
var verdictColors = map[classify.Verdict]color.Gray{
	classify.Empty:  {Y: 0},
	classify.Mixed:  {Y: 128},
	classify.Opaque: {Y: 255},
}

// Viewer draws layers of a brick visibility grid.
type Viewer struct {
	// vis holds the per-brick verdicts
	vis *classify.Visibility

	// cellSize is the edge length of one brick in pixels
	cellSize int
}

// NewViewer creates a viewer for vis drawing every brick as a cellSize
// square. Sizes below 1 are treated as 1.
func NewViewer(vis *classify.Visibility, cellSize int) *Viewer {
	if cellSize < 1 {
		cellSize = 1
	}
	return &Viewer{vis: vis, cellSize: cellSize}
}

// axisIndex maps an axis name to 0, 1 or 2.
func axisIndex(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// ExtractSlice renders the brick layer at position along axis. Empty
// bricks are black, mixed bricks gray and opaque bricks white. For the
// x axis the image spans (z, y), for y it spans (x, z) and for z (x, y).
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	n := v.vis.Bricks
	if position >= n[a] {
		return nil, fmt.Errorf("position %d exceeds %s brick count %d", position, axis, n[a])
	}

	// image axes (u, v) and the brick coordinate each pixel maps to
	var cols, rows int
	var brick func(u, w int) (int, int, int)
	switch a {
	case 0:
		cols, rows = n[2], n[1]
		brick = func(u, w int) (int, int, int) { return position, w, u }
	case 1:
		cols, rows = n[0], n[2]
		brick = func(u, w int) (int, int, int) { return u, position, w }
	default:
		cols, rows = n[0], n[1]
		brick = func(u, w int) (int, int, int) { return u, w, position }
	}

	s := v.cellSize
	img := image.NewGray(image.Rect(0, 0, cols*s, rows*s))
	for w := 0; w < rows; w++ {
		for u := 0; u < cols; u++ {
			c := verdictColors[v.vis.Verdict(brick(u, w))]
			for py := w * s; py < (w+1)*s; py++ {
				for px := u * s; px < (u+1)*s; px++ {
					img.SetGray(px, py, c)
				}
			}
		}
	}
	return img, nil
}

// ExtractRegion returns the verdicts of the brick block starting at start
// with the given size, x fastest.
func (v *Viewer) ExtractRegion(start, size [3]int) ([]classify.Verdict, error) {
	for i := 0; i < 3; i++ {
		if start[i] < 0 {
			return nil, fmt.Errorf("start coordinates must be non-negative")
		}
		if size[i] <= 0 {
			return nil, fmt.Errorf("size dimensions must be positive")
		}
		if start[i]+size[i] > v.vis.Bricks[i] {
			return nil, fmt.Errorf("region extends beyond grid boundaries")
		}
	}

	region := make([]classify.Verdict, 0, size[0]*size[1]*size[2])
	for z := start[2]; z < start[2]+size[2]; z++ {
		for y := start[1]; y < start[1]+size[1]; y++ {
			for x := start[0]; x < start[0]+size[0]; x++ {
				region = append(region, v.vis.Verdict(x, y, z))
			}
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every brick layer along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := axisIndex(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.vis.Bricks[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slab_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
