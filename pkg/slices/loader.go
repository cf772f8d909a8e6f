// Package slices loads a stack of 2D image slices from a directory into a
// volume the proxy engine can classify.
package slices

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"proxygeom/internal/models"
)

// ErrNoSlices is returned when a directory holds no slice images.
var ErrNoSlices = errors.New("no slice images found")

// ErrSizeMismatch is returned when slices do not share one size.
var ErrSizeMismatch = errors.New("slice dimensions differ")

// Files returns the JPEG and PNG files of dir, ordered by the number in
// their names so slice 10 follows slice 9.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoSlices)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})
	for i := range files {
		files[i] = filepath.Join(dir, files[i])
	}
	return files, nil
}

// LoadVolume reads every slice of dir into a volume, one z layer per image.
// Voxel values are the red channel scaled to [0, 1]. sliceGap is the voxel
// size along z; in-plane voxels are 1 wide.
func LoadVolume(dir string, sliceGap float64) (*models.Volume, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}

	var vol *models.Volume
	for z, path := range files {
		img, err := loadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", filepath.Base(path), err)
		}

		// Store dimensions from first image
		b := img.Bounds()
		if vol == nil {
			vol = models.NewVolume(b.Dx(), b.Dy(), len(files))
			if sliceGap > 0 {
				vol.VoxelSize.Z = sliceGap
			}
		} else if b.Dx() != vol.Width || b.Dy() != vol.Height {
			return nil, fmt.Errorf("%s is %dx%d, expected %dx%d: %w",
				filepath.Base(path), b.Dx(), b.Dy(), vol.Width, vol.Height, ErrSizeMismatch)
		}

		for y := 0; y < vol.Height; y++ {
			row := vol.Row(y, z)
			for x := range row {
				r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				row[x] = float64(r) / 65535.0
			}
		}
	}
	return vol, nil
}

// extractNumber returns the digits of the file name as a number, or 0.
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}
