package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proxygeom/internal/models"
	"proxygeom/pkg/config"
	"proxygeom/pkg/export"
	"proxygeom/pkg/proxy"
	"proxygeom/pkg/slices"
	"proxygeom/pkg/stl"
	"proxygeom/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "proxygeom.yaml", "YAML configuration file")
	inputDir := flag.String("input", "", "Directory of numbered slice images, overrides the phantom")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	mode := flag.String("mode", "", "Proxy mode, overrides the configuration")
	stepSize := flag.Int("step", 0, "Brick size in voxels, overrides the configuration")
	stlFile := flag.String("output", "", "Output STL filename, overrides the configuration")
	jsonFile := flag.String("json", "", "Output JSON filename, overrides the configuration")
	slabDir := flag.String("slab-dir", "", "Directory to save brick classification slabs")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *inputDir != "" {
		cfg.Input.Dir = *inputDir
	}
	if *mode != "" {
		cfg.Engine.Mode = *mode
	}
	if *stepSize > 0 {
		cfg.Engine.StepSize = *stepSize
	}
	if *stlFile != "" {
		cfg.Output.STLFile = *stlFile
	}
	if *jsonFile != "" {
		cfg.Output.JSONFile = *jsonFile
	}
	if *slabDir != "" {
		cfg.Output.SlabDir = *slabDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, _ := config.ParseLogLevel(cfg.Output.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("Proxy geometry failed: %v", err)
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	params, err := cfg.EngineParams()
	if err != nil {
		return err
	}

	vol, err := loadVolume(cfg)
	if err != nil {
		return err
	}

	fmt.Println("================================")
	fmt.Println("PROXY GEOMETRY FOR VOLUME RAY CASTING")
	fmt.Println("================================")
	if cfg.Output.Verbose {
		dims := vol.Dimensions()
		fmt.Printf("Volume: %dx%dx%d voxels\n", dims[0], dims[1], dims[2])
		fmt.Printf("Mode: %s, step size %d, threshold %g, octree %v\n",
			params.Mode, params.StepSize, params.Threshold, params.UseOctree)
	}

	engine := proxy.NewEngine(params, logger)
	engine.SetVolume(vol)
	engine.SetTransferFunction(cfg.TransferFunction())
	engine.SetClipBounds(cfg.Clip.Bounds)
	engine.SetClipPlanes(cfg.ClipPlanes()...)

	fmt.Println("Computing proxy geometry...")
	if err := engine.Process(ctx); err != nil {
		return err
	}
	if err := engine.Wait(); err != nil {
		return err
	}

	m := engine.Mesh()
	stats := engine.Stats()
	fmt.Printf("\nProxy geometry completed in %.3f seconds!\n", stats.Duration.Seconds())
	if stats.Fallback {
		fmt.Printf("- Fell back to %s\n", stats.Mode)
	}
	fmt.Printf("- Bricks: %d visible of %d\n", stats.VisibleBricks, stats.Bricks)
	fmt.Printf("- Boxes: %d (mean %.1f voxels, stddev %.1f)\n", stats.Boxes, stats.BoxVoxelsMean, stats.BoxVoxelsStdDev)
	fmt.Printf("- Triangles: %d (%d from clip caps)\n", stats.Triangles, stats.CapTriangles)

	transform := engine.Transform()

	if cfg.Output.STLFile != "" {
		if err := writeSTL(cfg.Output.STLFile, stl.FromMesh(m, transform)); err != nil {
			return err
		}
		fmt.Printf("Proxy mesh saved to: %s\n", cfg.Output.STLFile)
	}

	if cfg.Output.JSONFile != "" {
		out := export.FromMesh(m, params.Clip.Epsilon)
		out.SetTransform(transform)
		out.Mode = stats.Mode.String()
		if err := export.WriteJSON(cfg.Output.JSONFile, out); err != nil {
			return err
		}
		fmt.Printf("Welded mesh (%d vertices, %d triangles) saved to: %s\n",
			out.VertexCount(), out.TriangleCount(), cfg.Output.JSONFile)
	}

	if cfg.Output.SlabDir != "" {
		vis := engine.Visibility()
		if vis == nil {
			fmt.Println("No brick classification to save in this mode")
			return nil
		}
		viewer := visualization.NewViewer(vis, 8)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.SlabDir, axis)
			fmt.Printf("Saving %s-axis slabs to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Printf("Warning: Failed to save %s-axis slabs: %v", axis, err)
			}
		}
	}
	return nil
}

// writeSTL saves triangles and reads the file back to check that every
// triangle arrived.
func writeSTL(path string, triangles []stl.Triangle) error {
	if err := stl.SaveToSTL(path, triangles); err != nil {
		return err
	}
	loaded, err := stl.LoadSTL(path)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", path, err)
	}
	if len(loaded) != len(triangles) {
		return fmt.Errorf("%s holds %d triangles, wrote %d", path, len(loaded), len(triangles))
	}
	return nil
}

// loadVolume reads the slice directory, or builds the synthetic volume
// described by the configuration when no directory is set.
func loadVolume(cfg *config.Config) (*models.Volume, error) {
	if cfg.Input.Dir != "" {
		fmt.Printf("Loading slices from %s\n", cfg.Input.Dir)
		return slices.LoadVolume(cfg.Input.Dir, cfg.Input.SliceGap)
	}

	p := cfg.Phantom
	switch p.Shape {
	case "sphere":
		return models.NewSphere(p.Size, p.Radius), nil
	case "shell":
		return models.NewShell(p.Size, p.Inner, p.Radius), nil
	case "halfspace":
		return models.NewHalfSpace(p.Size, 0, p.Size/2, 1, 0), nil
	default:
		return nil, fmt.Errorf("unknown phantom shape %q", p.Shape)
	}
}
