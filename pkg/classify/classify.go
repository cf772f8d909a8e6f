// Package classify decides which bricks of a volume can contribute visible
// color. Every proxy-geometry builder goes through IsEmpty so that merge
// boundaries and face boundaries agree on which bricks are visible.
package classify

import (
	"proxygeom/internal/models"
	"proxygeom/pkg/transfer"
)

// thresholdScale converts the user threshold into an opacity.
const thresholdScale = 1e-4

// opaqueAlpha is the segment opacity from which a brick counts as opaque.
const opaqueAlpha = 1 - 1e-4

// Verdict is the classification of a brick or octree node.
type Verdict uint8

const (
	Empty Verdict = iota
	Mixed
	Opaque
)

func (v Verdict) String() string {
	switch v {
	case Empty:
		return "empty"
	case Mixed:
		return "mixed"
	case Opaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Normalizer maps real-world intensities into the transfer-function domain.
type Normalizer func(float64) float64

// Classifier bundles the inputs of one classification pass.
type Classifier struct {
	Table     transfer.Table
	Normalize Normalizer
	Threshold float64
}

// New creates a classifier for a transfer function's table.
func New(table transfer.Table, tf transfer.Func, threshold float64) Classifier {
	return Classifier{Table: table, Normalize: tf.RealWorldToNormalized, Threshold: threshold}
}

// Alpha returns the table opacity for an intensity range.
func (c Classifier) Alpha(r models.IntensityRange) float64 {
	return c.Table.Classify(c.Normalize(r.Min), c.Normalize(r.Max))
}

// IsEmpty reports whether a brick with range r contributes nothing visible.
func (c Classifier) IsEmpty(r models.IntensityRange) bool {
	return IsEmpty(r, c.Table, c.Normalize, c.Threshold)
}

// Classify returns the verdict for range r.
func (c Classifier) Classify(r models.IntensityRange) Verdict {
	if c.IsEmpty(r) {
		return Empty
	}
	if c.Alpha(r) >= opaqueAlpha {
		return Opaque
	}
	return Mixed
}

// IsEmpty looks up table.Classify(normalize(min), normalize(max)) and
// reports whether it does not exceed threshold*1e-4. A range holding no
// value is empty.
func IsEmpty(r models.IntensityRange, table transfer.Table, normalize Normalizer, threshold float64) bool {
	if r.IsEmpty() {
		return true
	}
	alpha := table.Classify(normalize(r.Min), normalize(r.Max))
	return alpha <= threshold*thresholdScale
}
