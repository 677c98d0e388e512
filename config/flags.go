package config

import (
	"flag"
	"io"
	"strconv"
	"strings"
)

type listValue struct{ dst *[]string }

func (l listValue) String() string {
	if l.dst == nil {
		return ""
	}
	return strings.Join(*l.dst, ",")
}

func (l listValue) Set(s string) error {
	*l.dst = splitList(s)
	return nil
}

func (c *Config) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Data.Dataset, "dataset", c.Data.Dataset, "dataset name (imp1k or salicon)")
	fs.StringVar(&c.Data.Root, "root", c.Data.Root, "dataset download and extraction directory")
	fs.Var(listValue{&c.Data.Categories}, "categories", "comma-separated dataset categories")
	fs.IntVar(&c.Data.ImageSize, "image-size", c.Data.ImageSize, "resize images and maps to this square size, 0 keeps the original")
	fs.IntVar(&c.Data.BatchSize, "batch-size", c.Data.BatchSize, "batch size")
	fs.IntVar(&c.Data.NumWorkers, "workers", c.Data.NumWorkers, "parallel sample loaders per batch")
	fs.IntVar(&c.Data.Prefetch, "prefetch", c.Data.Prefetch, "batches read ahead of training, 0 disables")
	fs.Int64Var(&c.Data.Seed, "seed", c.Data.Seed, "split, shuffle and initialization seed")

	fs.IntVar(&c.Epochs, "epochs", c.Epochs, "number of training epochs")
	fs.Func("lr", "learning rate", func(s string) error {
		lr, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return err
		}
		c.LearningRate = float32(lr)
		return nil
	})
	fs.StringVar(&c.Optimizer, "optimizer", c.Optimizer, "optimizer (adam or sgd)")
	fs.StringVar(&c.Loss, "loss", c.Loss, "training loss (mse or bce)")
	fs.IntVar(&c.Hidden, "hidden", c.Hidden, "hidden channels of the baseline model")
	fs.StringVar(&c.Colormap, "colormap", c.Colormap, "snapshot colormap (inferno or gray)")

	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "TensorBoard event directory, empty disables")
	fs.StringVar(&c.SnapshotDir, "snapshot-dir", c.SnapshotDir, "directory for PNG snapshots, empty disables")
	fs.StringVar(&c.CheckpointDir, "checkpoint-dir", c.CheckpointDir, "directory for model checkpoints, empty disables")
	fs.StringVar(&c.Checkpoint, "checkpoint", c.Checkpoint, "checkpoint to resume from or evaluate")
	fs.StringVar(&c.PlottingURL, "plotting-url", c.PlottingURL, "plotting service URL, empty disables")

	fs.StringVar(&c.ONNXModel, "onnx-model", c.ONNXModel, "ONNX model to evaluate")
	fs.StringVar(&c.ONNXMetadata, "onnx-metadata", c.ONNXMetadata, "ONNX model metadata JSON")
	fs.StringVar(&c.ONNXLibrary, "onnx-library", c.ONNXLibrary, "onnxruntime shared library path")

	fs.BoolVar(&c.HideProgress, "quiet", c.HideProgress, "hide progress bars")
}

func newFlagSet(name string, c *Config, configPath *string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(configPath, "config", *configPath, "JSON config file")
	c.bind(fs)
	return fs
}

// Parse builds a Config from defaults, an optional -config file, SALMAP_*
// variables and finally the command-line flags in args
func Parse(name string, args []string, lookup func(string) (string, bool), errOut io.Writer) (Config, error) {
	var configPath string
	probe := Default()
	fs := newFlagSet(name, &probe, &configPath)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if configPath != "" {
		loaded, err := Load(configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return Config{}, err
	}

	fs = newFlagSet(name, &cfg, &configPath)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}
