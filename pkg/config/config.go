// Package config provides configuration loading and management for partitionk.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Threshold method names accepted by the segmenter.
const (
	MethodOtsu       = "Otsu"
	MethodMean       = "Mean"
	MethodMoments    = "Moments"
	MethodTriangle   = "Triangle"
	MethodIsoData    = "IsoData"
	MethodMaxEntropy = "MaxEntropy"
	MethodPercentile = "Percentile"
	MethodManual     = "Manual"
)

// Projection modes across the Z (depth) axis.
const (
	ProjectionNone   = "None"
	ProjectionMax    = "Max"
	ProjectionMean   = "Mean"
	ProjectionMedian = "Median"
)

// Unification policies collapsing a fragmented mask into one dense region.
const (
	UnifyNone        = "None"
	UnifyDilateMerge = "Dilate-merge"
	UnifyLargest     = "Largest-particle"
	UnifyConvexHull  = "Convex-hull"
	UnifyBoundingBox = "Bounding-box"
)

// Dilute-region policies.
const (
	DiluteOtherMask = "Other IDP mask"
	DiluteOwnRing   = "Outside own ring"
	DiluteBothRing  = "Outside both ring"
	DiluteGlobalOut = "Global outside"
)

// SpeciesConfig holds the per-species segmentation and measurement settings.
// Two species are processed per image; each has its own channel and policy.
type SpeciesConfig struct {
	// Channel is the 1-based channel index of this species in the stack
	Channel int `yaml:"channel"`

	// Method selects the threshold method (Otsu, Mean, Moments, Triangle,
	// IsoData, MaxEntropy, Percentile, Manual)
	Method string `yaml:"method"`

	// BrightObjects selects polarity: true means foreground pixels are at
	// or above the threshold, false means at or below it
	BrightObjects bool `yaml:"brightObjects"`

	// OffsetPercent shifts the mask after thresholding: every full 10%
	// is one morphological step, positive shrinking the foreground and
	// negative growing it. Ignored by the Manual method. Range -50..50.
	OffsetPercent float64 `yaml:"offsetPercent"`

	// ManualThreshold is the fixed threshold used by the Manual method
	ManualThreshold float64 `yaml:"manualThreshold"`

	// DiluteMode selects how the dilute reference region is built
	// (Other IDP mask, Outside own ring, Outside both ring, Global outside)
	DiluteMode string `yaml:"diluteMode"`
}

// Config represents the batch configuration loaded from YAML. It is resolved
// once before the batch starts and is read-only for the whole run; every
// output row records it for reproducibility.
type Config struct {
	// Input parameters
	Input struct {
		// ImageDir is the directory containing the input images
		ImageDir string `yaml:"imageDir"`

		// Channels is the number of channels interleaved in each stack
		Channels int `yaml:"channels"`

		// Frames is the number of time frames in each stack; only the
		// first frame is ever measured
		Frames int `yaml:"frames"`

		// Projection reduces the Z axis to a single plane
		// (None, Max, Mean, Median)
		Projection string `yaml:"projection"`
	} `yaml:"input"`

	// Species holds the two per-species settings, index 0 and 1
	Species [2]SpeciesConfig `yaml:"species"`

	// Segmentation parameters shared by both species
	Segmentation struct {
		// FillHoles fills enclosed background regions after thresholding
		FillHoles bool `yaml:"fillHoles"`

		// OpenIterations is the number of open (erode-then-dilate) passes
		OpenIterations int `yaml:"openIterations"`

		// CloseIterations is the number of close (dilate-then-erode) passes
		CloseIterations int `yaml:"closeIterations"`
	} `yaml:"segmentation"`

	// Unify parameters controlling dense-region unification
	Unify struct {
		// Policy is one of None, Dilate-merge, Largest-particle,
		// Convex-hull, Bounding-box
		Policy string `yaml:"policy"`

		// DilateIterations sizes the Dilate-merge policy; gaps up to
		// roughly twice this many pixels are bridged
		DilateIterations int `yaml:"dilateIterations"`

		// MinParticlePx drops connected components smaller than this
		// many pixels before unification
		MinParticlePx int `yaml:"minParticlePx"`

		// ExcludeEdges drops components touching the image border
		ExcludeEdges bool `yaml:"excludeEdges"`
	} `yaml:"unify"`

	// Measurement parameters
	Measurement struct {
		// RingPx is the ring width in pixels for the ring-based dilute modes
		RingPx int `yaml:"ringPx"`

		// SubtractBackground estimates a per-channel background from the
		// region outside both masks and subtracts it before measuring
		SubtractBackground bool `yaml:"subtractBackground"`
	} `yaml:"measurement"`

	// Output parameters
	Output struct {
		// CSVPath is the output table destination; empty selects a
		// timestamped default inside MaskDir
		CSVPath string `yaml:"csvPath"`

		// MaskDir is where per-species mask PNGs are written
		MaskDir string `yaml:"maskDir"`

		// SaveMasks enables the per-species mask PNG dumps
		SaveMasks bool `yaml:"saveMasks"`

		// OverwriteMasks rewrites mask PNGs that already exist
		OverwriteMasks bool `yaml:"overwriteMasks"`

		// SaveOverlay writes a dense-outline preview over channel 1
		SaveOverlay bool `yaml:"saveOverlay"`

		// GroupMeans appends per-replicate-group mean K rows to the table
		GroupMeans bool `yaml:"groupMeans"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default input parameters
	cfg.Input.ImageDir = "other"
	cfg.Input.Channels = 2
	cfg.Input.Frames = 1
	cfg.Input.Projection = ProjectionNone

	// Set default per-species parameters
	for i := range cfg.Species {
		cfg.Species[i].Channel = i + 1
		cfg.Species[i].Method = MethodOtsu
		cfg.Species[i].BrightObjects = true
		cfg.Species[i].OffsetPercent = 0
		cfg.Species[i].ManualThreshold = 0
		cfg.Species[i].DiluteMode = DiluteOtherMask
	}

	// Set default segmentation parameters
	cfg.Segmentation.FillHoles = false
	cfg.Segmentation.OpenIterations = 0
	cfg.Segmentation.CloseIterations = 0

	// Set default unification parameters
	cfg.Unify.Policy = UnifyNone
	cfg.Unify.DilateIterations = 0
	cfg.Unify.MinParticlePx = 50
	cfg.Unify.ExcludeEdges = false

	// Set default measurement parameters
	cfg.Measurement.RingPx = 10
	cfg.Measurement.SubtractBackground = false

	// Set default output parameters
	cfg.Output.CSVPath = ""
	cfg.Output.MaskDir = "masks"
	cfg.Output.SaveMasks = true
	cfg.Output.OverwriteMasks = false
	cfg.Output.SaveOverlay = false
	cfg.Output.GroupMeans = true

	return cfg
}

// Validate checks the enumerated fields and numeric ranges once, before the
// batch starts; the pipeline never re-validates mid-run.
func (cfg *Config) Validate() error {
	switch cfg.Input.Projection {
	case ProjectionNone, ProjectionMax, ProjectionMean, ProjectionMedian:
	default:
		return fmt.Errorf("unknown projection mode %q", cfg.Input.Projection)
	}
	if cfg.Input.Channels < 1 {
		return fmt.Errorf("channel count must be at least 1, got %d", cfg.Input.Channels)
	}
	if cfg.Input.Frames < 1 {
		return fmt.Errorf("frame count must be at least 1, got %d", cfg.Input.Frames)
	}
	for i, sp := range cfg.Species {
		switch sp.Method {
		case MethodOtsu, MethodMean, MethodMoments, MethodTriangle,
			MethodIsoData, MethodMaxEntropy, MethodPercentile, MethodManual:
		default:
			return fmt.Errorf("species %d: unknown threshold method %q", i+1, sp.Method)
		}
		switch sp.DiluteMode {
		case DiluteOtherMask, DiluteOwnRing, DiluteBothRing, DiluteGlobalOut:
		default:
			return fmt.Errorf("species %d: unknown dilute mode %q", i+1, sp.DiluteMode)
		}
		if sp.OffsetPercent < -50 || sp.OffsetPercent > 50 {
			return fmt.Errorf("species %d: offset %.1f%% outside -50..50", i+1, sp.OffsetPercent)
		}
		if sp.Channel < 1 {
			return fmt.Errorf("species %d: channel index must be 1-based, got %d", i+1, sp.Channel)
		}
	}
	switch cfg.Unify.Policy {
	case UnifyNone, UnifyDilateMerge, UnifyLargest, UnifyConvexHull, UnifyBoundingBox:
	default:
		return fmt.Errorf("unknown unify policy %q", cfg.Unify.Policy)
	}
	if cfg.Measurement.RingPx < 0 {
		return fmt.Errorf("ring width must be non-negative, got %d", cfg.Measurement.RingPx)
	}
	return nil
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

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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
