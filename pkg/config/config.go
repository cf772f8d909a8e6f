// Package config provides configuration loading and management for proxygeom.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"proxygeom/internal/models"
	"proxygeom/pkg/clip"
	"proxygeom/pkg/proxy"
	"proxygeom/pkg/transfer"
)

// ErrInvalidMode is returned by Validate for an unknown engine mode.
var ErrInvalidMode = errors.New("invalid engine mode")

// ErrInvalid is returned by Validate for out-of-range values.
var ErrInvalid = errors.New("invalid configuration")

// PlaneConfig is a clipping plane in normalized texture space. Points with
// normal·x > distance are cut away.
type PlaneConfig struct {
	Normal   [3]float64 `yaml:"normal"`
	Distance float64    `yaml:"distance"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Engine parameters
	Engine struct {
		// Mode is the proxy-geometry builder, e.g. "maximal-bricks"
		Mode string `yaml:"mode"`

		// StepSize is the brick edge length in voxels
		StepSize int `yaml:"stepSize"`

		// Threshold scales the opacity under which bricks are empty
		Threshold float64 `yaml:"threshold"`

		// UseOctree classifies through the octree instead of the region grid
		UseOctree bool `yaml:"useOctree"`

		// NumWorkers specifies how many goroutines scan the region grid
		NumWorkers int `yaml:"numWorkers"`

		// SamplingDistance is the ray step used for opacity correction
		SamplingDistance float64 `yaml:"samplingDistance"`

		// TableResolution is the pre-integration table size per axis
		TableResolution int `yaml:"tableResolution"`
	} `yaml:"engine"`

	// Transfer function parameters
	Transfer struct {
		// Step is the normalized intensity from which the function is opaque.
		// It is ignored when Keys is set.
		Step float64 `yaml:"step"`

		// Keys are explicit opacity control points
		Keys []struct {
			Intensity float64 `yaml:"intensity"`
			Alpha     float64 `yaml:"alpha"`
		} `yaml:"keys"`
	} `yaml:"transfer"`

	// Clipping parameters
	Clip struct {
		// Epsilon is the plane tolerance of the clipper
		Epsilon float64 `yaml:"epsilon"`

		// Consolidate re-triangulates coplanar fragments of a cut
		Consolidate bool `yaml:"consolidate"`

		// Planes are applied in order after the proxy mesh is built
		Planes []PlaneConfig `yaml:"planes"`

		// Bounds is the voxel region of interest; nil keeps the whole volume
		Bounds *models.ClipBounds `yaml:"bounds,omitempty"`
	} `yaml:"clip"`

	// Output parameters
	Output struct {
		// LogLevel is one of debug, info, warn or error
		LogLevel string `yaml:"logLevel"`

		// STLFile is where the proxy mesh is written as binary STL
		STLFile string `yaml:"stlFile"`

		// JSONFile is where the welded proxy mesh is written as JSON
		JSONFile string `yaml:"jsonFile"`

		// SlabDir receives one image per brick layer when set
		SlabDir string `yaml:"slabDir"`

		// Verbose controls the level of progress output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Input parameters
	Input struct {
		// Dir holds numbered JPEG or PNG slices; when empty the phantom is used
		Dir string `yaml:"dir"`

		// SliceGap is the distance between slices in voxel widths
		SliceGap float64 `yaml:"sliceGap"`
	} `yaml:"input"`

	// Phantom describes the synthetic volume the CLI builds
	Phantom struct {
		// Shape is one of sphere, shell or halfspace
		Shape string `yaml:"shape"`

		// Size is the edge length of the cubic volume in voxels
		Size int `yaml:"size"`

		// Radius is the sphere radius, or the outer shell radius, in voxels
		Radius float64 `yaml:"radius"`

		// Inner is the inner shell radius in voxels
		Inner float64 `yaml:"inner"`
	} `yaml:"phantom"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default engine parameters
	cfg.Engine.Mode = proxy.MaximalBricks.String()
	cfg.Engine.StepSize = 8
	cfg.Engine.Threshold = 1
	cfg.Engine.UseOctree = false
	cfg.Engine.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Engine.SamplingDistance = 1
	cfg.Engine.TableResolution = 256

	cfg.Transfer.Step = 0.5

	// Set default clip parameters
	cfg.Clip.Epsilon = clip.DefaultEpsilon
	cfg.Clip.Consolidate = true

	// Set default output parameters
	cfg.Output.LogLevel = "info"
	cfg.Output.STLFile = "proxy.stl"
	cfg.Output.Verbose = true

	cfg.Input.SliceGap = 1

	// Set default phantom parameters
	cfg.Phantom.Shape = "sphere"
	cfg.Phantom.Size = 64
	cfg.Phantom.Radius = 24
	cfg.Phantom.Inner = 12

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks the values the engine cannot repair on its own.
func (c *Config) Validate() error {
	if _, err := proxy.ParseMode(c.Engine.Mode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	if c.Engine.StepSize <= 0 {
		return fmt.Errorf("%w: stepSize must be positive, got %d", ErrInvalid, c.Engine.StepSize)
	}
	if c.Engine.Threshold < 0 {
		return fmt.Errorf("%w: threshold must not be negative, got %g", ErrInvalid, c.Engine.Threshold)
	}
	for i, p := range c.Clip.Planes {
		if p.Normal == [3]float64{} {
			return fmt.Errorf("%w: clip plane %d has a zero normal", ErrInvalid, i)
		}
	}
	if _, err := ParseLogLevel(c.Output.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// EngineParams converts the engine and clip sections into engine parameters.
func (c *Config) EngineParams() (proxy.Params, error) {
	mode, err := proxy.ParseMode(c.Engine.Mode)
	if err != nil {
		return proxy.Params{}, fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	return proxy.Params{
		Mode:             mode,
		StepSize:         c.Engine.StepSize,
		Threshold:        c.Engine.Threshold,
		UseOctree:        c.Engine.UseOctree,
		Workers:          c.Engine.NumWorkers,
		SamplingDistance: c.Engine.SamplingDistance,
		TableResolution:  c.Engine.TableResolution,
		Clip: clip.Options{
			Epsilon:     c.Clip.Epsilon,
			Consolidate: c.Clip.Consolidate,
		},
	}, nil
}

// ClipPlanes returns the configured planes.
func (c *Config) ClipPlanes() []clip.Plane {
	planes := make([]clip.Plane, 0, len(c.Clip.Planes))
	for _, p := range c.Clip.Planes {
		planes = append(planes, clip.Plane{
			Normal:   r3.Vec{X: p.Normal[0], Y: p.Normal[1], Z: p.Normal[2]},
			Distance: p.Distance,
		}.Normalized())
	}
	return planes
}

// TransferFunction builds the configured transfer function over [0, 1].
func (c *Config) TransferFunction() *transfer.Lookup {
	if len(c.Transfer.Keys) == 0 {
		return transfer.Step(c.Transfer.Step)
	}
	keys := make([]transfer.Key, len(c.Transfer.Keys))
	for i, k := range c.Transfer.Keys {
		keys[i] = transfer.Key{Intensity: k.Intensity, Alpha: k.Alpha}
	}
	return transfer.NewLookup(transfer.Domain{Min: 0, Max: 1}, keys...)
}

// ParseLogLevel maps debug, info, warn and error to slog levels. An empty
// string means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
