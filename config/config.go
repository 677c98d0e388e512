// Package config holds run configuration for the training and evaluation
// commands. Values come from defaults, then an optional JSON file, then
// SALMAP_* environment variables, then command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/salmap/go-salmap/async"
	"github.com/salmap/go-salmap/training"
)

// Config describes one training or evaluation run
type Config struct {
	Data training.DataModuleConfig `json:"data"`

	Epochs       int     `json:"epochs"`
	LearningRate float32 `json:"learning_rate"`
	Optimizer    string  `json:"optimizer"`
	Loss         string  `json:"loss"`
	Hidden       int     `json:"hidden"`
	Colormap     string  `json:"colormap"`

	LogDir        string `json:"log_dir"`
	SnapshotDir   string `json:"snapshot_dir,omitempty"`
	CheckpointDir string `json:"checkpoint_dir,omitempty"`
	Checkpoint    string `json:"checkpoint,omitempty"` // model to resume or evaluate
	PlottingURL   string `json:"plotting_url,omitempty"`

	ONNXModel    string `json:"onnx_model,omitempty"`
	ONNXMetadata string `json:"onnx_metadata,omitempty"`
	ONNXLibrary  string `json:"onnx_library,omitempty"`

	HideProgress bool `json:"hide_progress"`
}

// Default returns the baseline configuration: Imp1k resized to 256, batches
// of 8, Adam at 1e-4 against an MSE loss
func Default() Config {
	return Config{
		Data: training.DataModuleConfig{
			Dataset:    "imp1k",
			Root:       "data",
			ImageSize:  256,
			Fractions:  append([]float64(nil), training.DefaultSplitFractions...),
			BatchSize:  8,
			NumWorkers: 4,
			Seed:       42,
			Prefetch:   async.DefaultPrefetchDepth,
		},
		Epochs:       10,
		LearningRate: 1e-4,
		Optimizer:    "adam",
		Loss:         "mse",
		Hidden:       8,
		Colormap:     "inferno",
		LogDir:       "runs",
	}
}

// Load reads a JSON config file over the defaults
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SALMAP_* variables. lookup is os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	str("SALMAP_DATASET", &c.Data.Dataset)
	str("SALMAP_DATA_ROOT", &c.Data.Root)
	str("SALMAP_OPTIMIZER", &c.Optimizer)
	str("SALMAP_LOSS", &c.Loss)
	str("SALMAP_LOG_DIR", &c.LogDir)
	str("SALMAP_SNAPSHOT_DIR", &c.SnapshotDir)
	str("SALMAP_CHECKPOINT_DIR", &c.CheckpointDir)
	str("SALMAP_CHECKPOINT", &c.Checkpoint)
	str("SALMAP_PLOTTING_URL", &c.PlottingURL)
	str("SALMAP_ONNX_MODEL", &c.ONNXModel)
	str("SALMAP_ONNX_METADATA", &c.ONNXMetadata)
	str("SALMAP_ONNX_LIBRARY", &c.ONNXLibrary)

	if v, ok := lookup("SALMAP_CATEGORIES"); ok {
		c.Data.Categories = splitList(v)
	}
	for key, dst := range map[string]*int{
		"SALMAP_IMAGE_SIZE":  &c.Data.ImageSize,
		"SALMAP_BATCH_SIZE":  &c.Data.BatchSize,
		"SALMAP_NUM_WORKERS": &c.Data.NumWorkers,
		"SALMAP_EPOCHS":      &c.Epochs,
		"SALMAP_PREFETCH":    &c.Data.Prefetch,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("SALMAP_SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SALMAP_SEED: %w", err)
		}
		c.Data.Seed = seed
	}
	if v, ok := lookup("SALMAP_LEARNING_RATE"); ok {
		lr, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("SALMAP_LEARNING_RATE: %w", err)
		}
		c.LearningRate = float32(lr)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ColormapValue resolves the configured colormap name
func (c Config) ColormapValue() (training.Colormap, error) {
	switch strings.ToLower(c.Colormap) {
	case "", "inferno":
		return training.Inferno, nil
	case "gray", "grayscale":
		return training.Grayscale, nil
	default:
		return nil, fmt.Errorf("unknown colormap %q", c.Colormap)
	}
}

// Validate checks the fields every run needs
func (c Config) Validate() error {
	switch strings.ToLower(c.Data.Dataset) {
	case "imp1k", "salicon":
	default:
		return fmt.Errorf("unknown dataset %q", c.Data.Dataset)
	}
	if c.Data.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Data.BatchSize)
	}
	if c.Data.NumWorkers < 0 {
		return fmt.Errorf("num workers must not be negative, got %d", c.Data.NumWorkers)
	}
	if c.Data.Prefetch < 0 {
		return fmt.Errorf("prefetch must not be negative, got %d", c.Data.Prefetch)
	}
	if c.Data.ImageSize < 0 {
		return fmt.Errorf("image size must not be negative, got %d", c.Data.ImageSize)
	}
	if len(c.Data.Fractions) != 0 {
		if len(c.Data.Fractions) != 3 {
			return fmt.Errorf("expected train, validation and test fractions, got %v", c.Data.Fractions)
		}
		sum := 0.0
		for _, f := range c.Data.Fractions {
			if f < 0 {
				return fmt.Errorf("split fractions must not be negative, got %v", c.Data.Fractions)
			}
			sum += f
		}
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("split fractions must sum to 1, got %v", c.Data.Fractions)
		}
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	switch c.Optimizer {
	case "adam", "sgd":
	default:
		return fmt.Errorf("unknown optimizer %q", c.Optimizer)
	}
	if _, err := training.NewLoss(c.Loss); err != nil {
		return err
	}
	if _, err := c.ColormapValue(); err != nil {
		return err
	}
	if (c.ONNXModel == "") != (c.ONNXMetadata == "") {
		return fmt.Errorf("onnx model and metadata must be set together")
	}
	return nil
}
