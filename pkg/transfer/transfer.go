// Package transfer provides the transfer-function contract consumed by the
// proxy-geometry engine and a piecewise-linear reference implementation
// with a pre-integration table.
package transfer

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoPreIntegration is returned when a transfer function cannot supply a
// pre-integration table.
var ErrNoPreIntegration = errors.New("transfer function has no pre-integration table")

// Func is a transfer function as seen by the engine.
type Func interface {
	// Clone returns an independent copy that later edits to the receiver
	// do not affect.
	Clone() Func

	// RealWorldToNormalized maps a real-world intensity into the
	// normalized [0, 1] domain of the function.
	RealWorldToNormalized(v float64) float64
}

// PreIntegrator is implemented by transfer functions that can build a
// pre-integration table.
type PreIntegrator interface {
	PreIntegrationTable(samplingDistance float64, resolution int) (*PreIntegrationTable, error)
}

// Table classifies an intensity segment. Implementations return a value
// proportional to the largest opacity a ray segment spanning the normalized
// range [min, max] can accumulate.
type Table interface {
	Classify(min, max float64) float64
}

// TableFor returns the pre-integration table of f, or ErrNoPreIntegration
// when f does not support one.
func TableFor(f Func, samplingDistance float64, resolution int) (*PreIntegrationTable, error) {
	p, ok := f.(PreIntegrator)
	if !ok {
		return nil, fmt.Errorf("%T: %w", f, ErrNoPreIntegration)
	}
	return p.PreIntegrationTable(samplingDistance, resolution)
}

// Key is a control point of a Lookup: the opacity at a normalized intensity.
type Key struct {
	Intensity float64 `yaml:"intensity" json:"intensity"`
	Alpha     float64 `yaml:"alpha" json:"alpha"`
}

// Domain is the real-world intensity interval mapped onto [0, 1].
type Domain struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Lookup is a 1D opacity ramp defined by keys and interpolated linearly.
// Two keys at the same intensity produce a step.
type Lookup struct {
	Domain Domain
	Keys   []Key
}

// NewLookup creates a lookup over domain with the given keys, sorted by
// intensity. Keys at equal intensity keep their relative order.
func NewLookup(domain Domain, keys ...Key) *Lookup {
	sorted := make([]Key, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Intensity < sorted[j].Intensity
	})
	return &Lookup{Domain: domain, Keys: sorted}
}

// Step returns a lookup over [0, 1] that is fully transparent below at and
// fully opaque from at upwards.
func Step(at float64) *Lookup {
	return NewLookup(Domain{Min: 0, Max: 1},
		Key{Intensity: 0, Alpha: 0},
		Key{Intensity: at, Alpha: 0},
		Key{Intensity: at, Alpha: 1},
		Key{Intensity: 1, Alpha: 1},
	)
}

// Ramp returns a lookup over [0, 1] rising linearly from 0 at lo to 1 at hi.
func Ramp(lo, hi float64) *Lookup {
	return NewLookup(Domain{Min: 0, Max: 1},
		Key{Intensity: lo, Alpha: 0},
		Key{Intensity: hi, Alpha: 1},
	)
}

// Clone implements Func.
func (l *Lookup) Clone() Func {
	keys := make([]Key, len(l.Keys))
	copy(keys, l.Keys)
	return &Lookup{Domain: l.Domain, Keys: keys}
}

// RealWorldToNormalized implements Func.
func (l *Lookup) RealWorldToNormalized(v float64) float64 {
	width := l.Domain.Max - l.Domain.Min
	if width == 0 {
		return 0
	}
	return (v - l.Domain.Min) / width
}

// Alpha returns the opacity at normalized intensity x.
func (l *Lookup) Alpha(x float64) float64 {
	if len(l.Keys) == 0 {
		return 0
	}
	if x < l.Keys[0].Intensity {
		return l.Keys[0].Alpha
	}
	// first key strictly above x; the key before it is the left end
	i := sort.Search(len(l.Keys), func(i int) bool { return l.Keys[i].Intensity > x })
	if i == len(l.Keys) {
		return l.Keys[len(l.Keys)-1].Alpha
	}
	left, right := l.Keys[i-1], l.Keys[i]
	t := (x - left.Intensity) / (right.Intensity - left.Intensity)
	return left.Alpha + (right.Alpha-left.Alpha)*t
}

// PreIntegrationTable implements PreIntegrator.
func (l *Lookup) PreIntegrationTable(samplingDistance float64, resolution int) (*PreIntegrationTable, error) {
	if resolution < 2 {
		return nil, fmt.Errorf("pre-integration resolution must be at least 2, got %d", resolution)
	}
	if samplingDistance <= 0 {
		samplingDistance = 1
	}

	samples := make([]float64, resolution)
	for k := range samples {
		a := l.Alpha(float64(k) / float64(resolution-1))
		a = math.Max(0, math.Min(1, a))
		// opacity correction for the sampling distance
		samples[k] = 1 - math.Pow(1-a, samplingDistance)
	}
	return newPreIntegrationTable(samples), nil
}

// PreIntegrationTable stores, for every pair of sample indices (i, j) with
// i <= j, the largest corrected opacity among the samples in [i, j].
type PreIntegrationTable struct {
	resolution int
	alpha      []float64
}

func newPreIntegrationTable(samples []float64) *PreIntegrationTable {
	n := len(samples)
	t := &PreIntegrationTable{resolution: n, alpha: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		running := samples[i]
		for j := i; j < n; j++ {
			running = math.Max(running, samples[j])
			t.alpha[i*n+j] = running
			t.alpha[j*n+i] = running
		}
	}
	return t
}

// Resolution returns the number of samples per axis.
func (t *PreIntegrationTable) Resolution() int {
	return t.resolution
}

// Classify implements Table. Bounds are clamped to [0, 1] and rounded
// outward to sample indices so a range never misses a sample it touches.
func (t *PreIntegrationTable) Classify(min, max float64) float64 {
	if min > max {
		min, max = max, min
	}
	last := float64(t.resolution - 1)
	i := int(math.Floor(clamp01(min) * last))
	j := int(math.Ceil(clamp01(max) * last))
	return t.alpha[i*t.resolution+j]
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
