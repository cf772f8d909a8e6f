package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"proxygeom/internal/models"
	"proxygeom/pkg/classify"
	"proxygeom/pkg/clip"
	"proxygeom/pkg/faces"
	"proxygeom/pkg/grid"
	"proxygeom/pkg/merge"
	"proxygeom/pkg/mesh"
	"proxygeom/pkg/metrics"
	"proxygeom/pkg/octree"
	"proxygeom/pkg/transfer"
)

// Stats describes the last committed pass.
type Stats struct {
	// TaskID identifies the pass in logs.
	TaskID uuid.UUID

	// Mode is the builder that actually ran, after any fallback.
	Mode Mode

	// Fallback is set when the requested mode could not run.
	Fallback bool

	// Bricks and VisibleBricks count the classified grid.
	Bricks, VisibleBricks int

	// Boxes is the number of boxes emitted by the box builders.
	Boxes int

	// CoveredVoxels is the number of voxels inside the emitted boxes.
	CoveredVoxels int

	// BoxVoxelsMean and BoxVoxelsStdDev describe the box sizes in voxels.
	BoxVoxelsMean, BoxVoxelsStdDev float64

	// Triangles is the size of the committed mesh.
	Triangles int

	// CapTriangles were added by clipping against user planes.
	CapTriangles int

	// Duration is the wall time of the pass.
	Duration time.Duration
}

// job is the immutable input snapshot of one pass.
type job struct {
	id           uuid.UUID
	params       Params
	volume       grid.Volume
	tf           transfer.Func
	clipBounds   *models.ClipBounds
	planes       []clip.Plane
	structureGen uint64
	geometryGen  uint64
	grid         *grid.Grid
	tree         *octree.Octree
	warnTF       bool
	warnVolume   bool
}

// result is what a finished pass hands to commit.
type result struct {
	mesh  *mesh.Mesh
	vis   *classify.Visibility
	grid  *grid.Grid
	tree  *octree.Octree
	stats Stats
}

func (e *Engine) snapshotLocked() job {
	return job{
		id:           uuid.New(),
		params:       e.params,
		volume:       e.volume,
		tf:           e.tf,
		clipBounds:   e.clipBounds,
		planes:       e.planes,
		structureGen: e.structureGen,
		geometryGen:  e.geometryGen,
		grid:         e.grid,
		tree:         e.tree,
		warnTF:       !e.tfWarned,
		warnVolume:   !e.volumeWarned,
	}
}

// run is the body of the background worker. It never touches engine state
// except through warned and commit.
func (e *Engine) run(ctx context.Context, j job) error {
	start := time.Now()
	logger := e.logger.With(
		"task", j.id,
		"mode", j.params.Mode.String(),
		"generation", j.geometryGen,
	)
	logger.Debug("proxy pass started")

	res, err := e.compute(ctx, j, logger)
	if err != nil {
		e.mu.Lock()
		e.computing = false
		e.mu.Unlock()

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			metrics.InstrumentComputation(j.params.Mode.String(), metrics.OutcomeInterrupted, time.Since(start))
			logger.Debug("proxy pass interrupted")
			return err
		}
		metrics.InstrumentComputation(j.params.Mode.String(), metrics.OutcomeFailed, time.Since(start))
		logger.Error("proxy pass failed", "error", err)
		return err
	}

	res.stats.TaskID = j.id
	res.stats.Duration = time.Since(start)
	res.stats.Triangles = res.mesh.Len()

	if !e.commit(j, res) {
		metrics.InstrumentComputation(res.stats.Mode.String(), metrics.OutcomeStale, res.stats.Duration)
		logger.Debug("proxy pass is stale, dropped")
		return nil
	}

	metrics.InstrumentComputation(res.stats.Mode.String(), metrics.OutcomeCommitted, res.stats.Duration)
	metrics.InstrumentProxyMesh(res.stats.Mode.String(), res.stats.Triangles, res.stats.VisibleBricks)
	logger.Info("proxy pass committed",
		"triangles", res.stats.Triangles,
		"visible_bricks", res.stats.VisibleBricks,
		"boxes", res.stats.Boxes,
		"duration", res.stats.Duration,
	)
	return nil
}

// commit publishes res if no input changed since j was taken.
func (e *Engine) commit(j job, res result) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.computing = false
	if j.geometryGen != e.geometryGen {
		return false
	}

	if j.structureGen == e.structureGen {
		if res.grid != nil {
			e.grid = res.grid
		}
		if res.tree != nil {
			e.tree = res.tree
		}
	}
	e.live = res.mesh
	e.vis = res.vis
	e.liveGen = j.geometryGen
	e.hasLive = true
	e.stats = res.stats
	return true
}

// compute runs the pipeline for one snapshot: structure, classification,
// the mode's builder and finally the user clip planes.
func (e *Engine) compute(ctx context.Context, j job, logger *slog.Logger) (result, error) {
	var res result
	res.stats.Mode = j.params.Mode

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if j.volume == nil || isDegenerate(j.volume.Dimensions()) {
		if j.warnVolume {
			logger.Warn("volume is empty, proxy geometry is empty")
			e.warned(func() { e.volumeWarned = true })
		}
		res.mesh = mesh.New(mesh.ProxySchema)
		return res, nil
	}

	dims := j.volume.Dimensions()
	clipExt := clipExtent(dims, j.clipBounds)

	mode := j.params.Mode
	var table transfer.Table
	if mode.NeedsBricks() {
		t, err := e.table(j)
		if err != nil {
			if j.warnTF {
				logger.Warn("transfer function unusable, falling back to bounding box", "error", err)
				e.warned(func() { e.tfWarned = true })
			}
			mode = BoundingBox
			res.stats.Fallback = true
		} else {
			table = t
		}
	}
	res.stats.Mode = mode

	var m *mesh.Mesh
	if mode == BoundingBox {
		m = mesh.New(mesh.ProxySchema)
		if !clipExt.Empty() {
			m.AddBox(classify.TextureBox(clipExt, dims))
		}
	} else {
		c := classify.New(table, j.tf, j.params.Threshold)
		vis, err := e.visibility(ctx, j, &res, c, clipExt)
		if err != nil {
			return res, err
		}
		res.vis = vis
		res.stats.Bricks = vis.Len()
		res.stats.VisibleBricks = vis.Count()

		m, err = build(ctx, mode, vis, &res.stats)
		if err != nil {
			return res, err
		}
	}

	for _, p := range j.planes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var s clip.Stats
		m, s = clip.Clip(m, p, j.params.Clip)
		res.stats.CapTriangles += s.CapTriangles
		metrics.InstrumentClip(s.CapTriangles)
	}

	res.mesh = m
	return res, nil
}

func (e *Engine) warned(set func()) {
	e.mu.Lock()
	set()
	e.mu.Unlock()
}

func (e *Engine) table(j job) (transfer.Table, error) {
	if j.tf == nil {
		return nil, fmt.Errorf("no transfer function: %w", transfer.ErrNoPreIntegration)
	}
	t, err := transfer.TableFor(j.tf, j.params.SamplingDistance, j.params.TableResolution)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// visibility classifies the bricks through the octree or the region grid,
// reusing the structure cached in j when there is one.
func (e *Engine) visibility(ctx context.Context, j job, res *result, c classify.Classifier, clipExt models.Extent) (*classify.Visibility, error) {
	dims := j.volume.Dimensions()
	step := j.params.StepSize

	if j.params.UseOctree {
		tree := j.tree
		if tree == nil {
			if p, ok := j.volume.(octree.Provider); ok {
				if t, ok := p.PrebuiltOctree(step); ok {
					tree = t
				}
			}
		}
		if tree == nil {
			t, err := octree.Build(ctx, j.volume, step)
			if err != nil {
				return nil, fmt.Errorf("building octree: %w", err)
			}
			tree = t
		}
		res.tree = tree
		return tree.Visibility(ctx, c, clipExt)
	}

	g := j.grid
	if g == nil {
		built, err := grid.Build(ctx, j.volume, step, j.params.Workers)
		if err != nil {
			return nil, fmt.Errorf("building region grid: %w", err)
		}
		g = built
	}
	res.grid = g
	return classify.FromRanges(ctx, g, c, step, dims, clipExt)
}

// build runs the brick-based builder for mode.
func build(ctx context.Context, mode Mode, vis *classify.Visibility, stats *Stats) (*mesh.Mesh, error) {
	var boxes []models.Extent
	var err error

	switch mode {
	case OuterFaces:
		return faces.Extract(ctx, vis)
	case TightBoundingBox:
		if box := merge.TightBox(vis); !box.Empty() {
			boxes = []models.Extent{box}
		}
	case VisibleBricks:
		boxes, err = merge.BrickBoxes(ctx, vis)
	case MaximalBricks:
		boxes, err = merge.Boxes(ctx, vis)
	default:
		return nil, fmt.Errorf("mode %s: %w", mode, ErrUnknownMode)
	}
	if err != nil {
		return nil, err
	}

	stats.Boxes = len(boxes)
	sizes := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		n := vis.BrickRangeExtent(b).Intersect(vis.Clip).Volume()
		stats.CoveredVoxels += n
		sizes = append(sizes, float64(n))
	}
	if len(sizes) > 0 {
		stats.BoxVoxelsMean, stats.BoxVoxelsStdDev = stat.MeanStdDev(sizes, nil)
	}
	if len(sizes) < 2 {
		stats.BoxVoxelsStdDev = 0
	}
	return merge.Mesh(vis, boxes), nil
}

func isDegenerate(dims [3]int) bool {
	return dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0
}
