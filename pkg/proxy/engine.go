// Package proxy computes proxy geometry for volume ray casting: a triangle
// mesh in normalized texture space that encloses every region of a volume
// the current transfer function can make visible.
//
// The Engine runs the whole pipeline on one background worker. Callers
// change inputs through setters, call Process, and read Mesh at any time.
// While a pass is in flight Mesh returns a placeholder box, so there is
// always something valid to render.
package proxy

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"proxygeom/internal/models"
	"proxygeom/pkg/classify"
	"proxygeom/pkg/clip"
	"proxygeom/pkg/grid"
	"proxygeom/pkg/mesh"
	"proxygeom/pkg/octree"
	"proxygeom/pkg/task"
	"proxygeom/pkg/transfer"
)

// Spatial is implemented by volumes placed in world space. Volumes that
// do not implement it get unit voxels at the origin.
type Spatial interface {
	Spacing() r3.Vec
	Offset() r3.Vec
}

// Engine owns the cached acceleration structures, the live mesh and the
// background worker for one volume.
//
// Every setter interrupts and joins a running pass before it changes any
// input, so the worker never observes a half-applied change. Inputs are
// tracked with two generation counters: the structure generation covers
// what the region grid and octree depend on (volume, step size), the
// geometry generation covers everything the mesh depends on. A pass
// commits only if the geometry generation did not move while it ran.
type Engine struct {
	logger *slog.Logger
	handle task.Handle

	mu sync.Mutex

	params     Params
	volume     grid.Volume
	tf         transfer.Func
	clipBounds *models.ClipBounds
	planes     []clip.Plane

	structureGen uint64
	geometryGen  uint64

	// cached structures, valid for structureGen
	grid *grid.Grid
	tree *octree.Octree

	live         *mesh.Mesh
	vis          *classify.Visibility
	liveGen      uint64
	hasLive      bool
	computing    bool
	stats        Stats
	tfWarned     bool
	volumeWarned bool
}

// NewEngine creates an engine with the given parameters. A nil logger
// uses slog.Default().
func NewEngine(params Params, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:       logger.With("component", "proxy"),
		params:       params.withDefaults(),
		structureGen: 1,
		geometryGen:  1,
	}
}

// Params returns the current parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetVolume replaces the volume. Cached structures are discarded.
func (e *Engine) SetVolume(vol grid.Volume) {
	e.Interrupt()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = vol
	e.volumeWarned = false
	e.invalidateStructureLocked()
}

// SetTransferFunction stores a snapshot of tf. Later edits to tf are not
// seen until it is set again. A nil tf, typed or not, clears the transfer
// function.
func (e *Engine) SetTransferFunction(tf transfer.Func) {
	e.Interrupt()
	e.mu.Lock()
	defer e.mu.Unlock()

	if isNilFunc(tf) {
		tf = nil
	} else {
		tf = tf.Clone()
	}
	e.tf = tf
	e.tfWarned = false
	e.geometryGen++
}

// isNilFunc reports whether tf is nil or wraps a nil pointer.
func isNilFunc(tf transfer.Func) bool {
	if tf == nil {
		return true
	}
	v := reflect.ValueOf(tf)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// SetThreshold changes the visibility threshold.
func (e *Engine) SetThreshold(threshold float64) {
	e.update(func(p *Params) bool {
		if p.Threshold == threshold {
			return false
		}
		p.Threshold = threshold
		return true
	})
}

// SetMode changes the proxy-geometry builder.
func (e *Engine) SetMode(mode Mode) {
	e.update(func(p *Params) bool {
		if p.Mode == mode {
			return false
		}
		p.Mode = mode
		return true
	})
}

// SetUseOctree switches between octree and region-grid classification.
func (e *Engine) SetUseOctree(use bool) {
	e.update(func(p *Params) bool {
		if p.UseOctree == use {
			return false
		}
		p.UseOctree = use
		return true
	})
}

// SetStepSize changes the brick size. Cached structures are discarded.
func (e *Engine) SetStepSize(step int) {
	if step <= 0 {
		return
	}
	e.Interrupt()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.params.StepSize == step {
		return
	}
	e.params.StepSize = step
	e.invalidateStructureLocked()
}

// SetClipBounds restricts the proxy geometry to a voxel region of
// interest. nil keeps the whole volume.
func (e *Engine) SetClipBounds(b *models.ClipBounds) {
	e.Interrupt()
	e.mu.Lock()
	defer e.mu.Unlock()

	if b != nil {
		c := *b
		b = &c
	}
	e.clipBounds = b
	e.geometryGen++
}

// SetClipPlanes sets the planes, in texture space, the mesh is clipped
// against after it is built.
func (e *Engine) SetClipPlanes(planes ...clip.Plane) {
	e.Interrupt()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.planes = append([]clip.Plane(nil), planes...)
	e.geometryGen++
}

// ForceRebuild discards cached structures so the next pass rescans the
// volume.
func (e *Engine) ForceRebuild() {
	e.Interrupt()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateStructureLocked()
}

func (e *Engine) update(apply func(p *Params) bool) {
	e.Interrupt()
	e.mu.Lock()
	defer e.mu.Unlock()
	if apply(&e.params) {
		e.geometryGen++
	}
}

func (e *Engine) invalidateStructureLocked() {
	e.grid = nil
	e.tree = nil
	e.structureGen++
	e.geometryGen++
}

// Process starts a background pass if the mesh is out of date and no pass
// is running. It returns immediately.
func (e *Engine) Process(ctx context.Context) error {
	e.mu.Lock()
	if e.computing || !e.geometryInvalidLocked() {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	// release a finished handle before starting the next pass
	e.handle.Join()

	e.mu.Lock()
	j := e.snapshotLocked()
	e.computing = true
	e.mu.Unlock()

	err := e.handle.Start(ctx, func(ctx context.Context) error {
		return e.run(ctx, j)
	})
	if err != nil {
		e.mu.Lock()
		e.computing = false
		e.mu.Unlock()
		return err
	}
	return nil
}

// Wait blocks until the running pass, if any, returns and reports its
// error.
func (e *Engine) Wait() error {
	e.handle.Join()
	return e.handle.Err()
}

// Interrupt cancels the running pass and waits for it to stop. The live
// mesh is left as it was.
func (e *Engine) Interrupt() {
	e.handle.Cancel()
	e.handle.Join()

	e.mu.Lock()
	e.computing = false
	e.mu.Unlock()
}

// IsComputing reports whether a pass is in flight.
func (e *Engine) IsComputing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computing
}

// IsFinished reports whether the last started pass has returned.
func (e *Engine) IsFinished() bool {
	return !e.handle.Running()
}

// StructureInvalid reports whether the structure the current parameters
// need has to be rebuilt.
func (e *Engine) StructureInvalid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.params.Mode.NeedsBricks() {
		return false
	}
	if e.params.UseOctree {
		return e.tree == nil
	}
	return e.grid == nil
}

// GeometryInvalid reports whether the live mesh is out of date.
func (e *Engine) GeometryInvalid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.geometryInvalidLocked()
}

func (e *Engine) geometryInvalidLocked() bool {
	return !e.hasLive || e.liveGen != e.geometryGen
}

// Stats returns the statistics of the last committed pass.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Mesh returns the mesh to render. While a pass is in flight, or before
// the first pass committed, this is the placeholder box over the
// clip-adjusted volume. The result must not be modified.
func (e *Engine) Mesh() *mesh.Mesh {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.computing || !e.hasLive {
		return e.placeholderLocked()
	}
	return e.live
}

// Live returns the last committed mesh, or nil if none was committed.
func (e *Engine) Live() *mesh.Mesh {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// Visibility returns the brick classification of the last committed pass,
// or nil when that pass did not classify bricks.
func (e *Engine) Visibility() *classify.Visibility {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vis
}

func (e *Engine) placeholderLocked() *mesh.Mesh {
	if e.volume == nil {
		return mesh.New(mesh.ProxySchema)
	}
	dims := e.volume.Dimensions()
	ext := clipExtent(dims, e.clipBounds)
	if ext.Empty() {
		return mesh.New(mesh.ProxySchema)
	}
	return mesh.Cube(classify.TextureBox(ext, dims))
}

// Transform returns the 4x4 matrix taking normalized texture coordinates
// to world space: translate(offset) * scale(dimensions * spacing).
func (e *Engine) Transform() *mat.Dense {
	e.mu.Lock()
	vol := e.volume
	e.mu.Unlock()

	t := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		t.Set(i, i, 1)
	}
	if vol == nil {
		return t
	}

	dims := vol.Dimensions()
	spacing, offset := r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{}
	if s, ok := vol.(Spatial); ok {
		spacing, offset = s.Spacing(), s.Offset()
	}
	t.Set(0, 0, float64(dims[0])*spacing.X)
	t.Set(1, 1, float64(dims[1])*spacing.Y)
	t.Set(2, 2, float64(dims[2])*spacing.Z)
	t.Set(0, 3, offset.X)
	t.Set(1, 3, offset.Y)
	t.Set(2, 3, offset.Z)
	return t
}

// clipExtent returns the voxel extent kept by b, clamped to the volume.
func clipExtent(dims [3]int, b *models.ClipBounds) models.Extent {
	full := models.Extent{Max: dims}
	if b == nil {
		return full
	}
	return b.Extent().Intersect(full)
}
