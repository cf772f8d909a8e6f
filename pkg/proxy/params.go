package proxy

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"proxygeom/pkg/clip"
)

// ErrUnknownMode is returned by ParseMode for names it does not know.
var ErrUnknownMode = errors.New("unknown proxy mode")

// Mode selects the proxy-geometry builder.
type Mode int

const (
	// BoundingBox is a single cube over the clip-adjusted volume. It needs
	// no transfer function and is the fallback for every failure.
	BoundingBox Mode = iota

	// TightBoundingBox is a single cube around all visible bricks.
	TightBoundingBox

	// VisibleBricks emits one cube per visible brick.
	VisibleBricks

	// MaximalBricks packs visible bricks greedily into few boxes.
	MaximalBricks

	// OuterFaces emits only the brick faces between visible and
	// invisible space.
	OuterFaces
)

var modeNames = map[Mode]string{
	BoundingBox:      "bounding-box",
	TightBoundingBox: "tight-bounding-box",
	VisibleBricks:    "visible-bricks",
	MaximalBricks:    "maximal-bricks",
	OuterFaces:       "outer-faces",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// NeedsBricks reports whether the mode classifies bricks.
func (m Mode) NeedsBricks() bool {
	return m != BoundingBox
}

// ParseMode returns the mode with the given name. Matching ignores case,
// and underscores may stand in for dashes.
func ParseMode(s string) (Mode, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return BoundingBox, fmt.Errorf("%q: %w", s, ErrUnknownMode)
}

// Modes returns every mode in declaration order.
func Modes() []Mode {
	return []Mode{BoundingBox, TightBoundingBox, VisibleBricks, MaximalBricks, OuterFaces}
}

// Params holds the engine inputs that are not data: the builder, the brick
// size, the visibility threshold and the worker configuration.
type Params struct {
	// Mode selects the proxy-geometry builder.
	Mode Mode

	// StepSize is the brick edge length in voxels. Smaller bricks bound the
	// visible region more tightly but cost more triangles.
	StepSize int

	// Threshold scales the opacity below which a brick counts as empty:
	// bricks with alpha <= Threshold*1e-4 are invisible.
	Threshold float64

	// UseOctree classifies through the octree instead of the flat region
	// grid. Large empty regions are then skipped a whole subtree at a time.
	UseOctree bool

	// Workers is the number of goroutines scanning the region grid.
	Workers int

	// SamplingDistance is the ray-casting step used for opacity correction
	// of the pre-integration table.
	SamplingDistance float64

	// TableResolution is the number of intensity bins per axis of the
	// pre-integration table.
	TableResolution int

	// Clip configures clipping against user planes.
	Clip clip.Options
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Mode:             MaximalBricks,
		StepSize:         8,
		Threshold:        1,
		Workers:          runtime.NumCPU(),
		SamplingDistance: 1,
		TableResolution:  256,
		Clip:             clip.DefaultOptions(),
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.StepSize <= 0 {
		p.StepSize = d.StepSize
	}
	if p.Workers <= 0 {
		p.Workers = d.Workers
	}
	if p.SamplingDistance <= 0 {
		p.SamplingDistance = d.SamplingDistance
	}
	if p.TableResolution < 2 {
		p.TableResolution = d.TableResolution
	}
	if p.Clip.Epsilon <= 0 {
		p.Clip.Epsilon = clip.DefaultEpsilon
	}
	return p
}
