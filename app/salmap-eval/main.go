// Command salmap-eval scores a trained model on the test split. The model is
// either an exported ONNX graph or a JSON checkpoint written by salmap-train.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/salmap/go-salmap/checkpoints"
	"github.com/salmap/go-salmap/config"
	"github.com/salmap/go-salmap/engine"
	"github.com/salmap/go-salmap/training"
)

func main() {
	cfg, err := config.Parse("salmap-eval", os.Args[1:], os.LookupEnv, os.Stderr)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.ONNXModel == "" && cfg.Checkpoint == "" {
		log.Fatal("One of -onnx-model or -checkpoint is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	var (
		model training.Predictor
		name  string
	)
	if cfg.ONNXModel != "" {
		predictor, err := engine.NewONNXPredictor(cfg.ONNXModel, cfg.ONNXMetadata, cfg.ONNXLibrary)
		if err != nil {
			return err
		}
		defer predictor.Close()

		meta := predictor.Metadata
		if meta.InputShape[2] != meta.InputShape[3] {
			return fmt.Errorf("model input %v is not square", meta.InputShape)
		}
		cfg.Data.ImageSize = int(meta.InputShape[2])
		if cfg.Data.BatchSize > meta.MaxBatch() {
			log.Printf("Batch size %d exceeds model batch %d, using %d", cfg.Data.BatchSize, meta.MaxBatch(), meta.MaxBatch())
			cfg.Data.BatchSize = meta.MaxBatch()
		}
		log.Printf("Loaded ONNX model %s (input %v)", cfg.ONNXModel, meta.InputShape)
		model, name = predictor, "ONNX"
	} else {
		checkpoint, err := checkpoints.Load(cfg.Checkpoint)
		if err != nil {
			return err
		}
		restored, err := checkpoint.Restore()
		if err != nil {
			return err
		}
		training.NewModelArchitecturePrinter(os.Stdout, "DummyNet").PrintArchitecture(restored.Spec())
		model, name = restored, "DummyNet"
	}

	criterion, err := training.NewLoss(cfg.Loss)
	if err != nil {
		return err
	}
	cm, err := cfg.ColormapValue()
	if err != nil {
		return err
	}
	outputs, err := cfg.Outputs(name)
	if err != nil {
		return err
	}
	defer func() {
		if err := outputs.Close(); err != nil {
			log.Printf("Warning: failed to close sinks: %v", err)
		}
	}()

	session := training.NewSession(model, criterion, nil, outputs.Sinks, training.SessionOptions{
		Colormap:     cm,
		HideProgress: cfg.HideProgress,
	})

	data := training.NewDataModule(ctx, cfg.Data)
	defer data.Close()
	_, values, err := training.Test(session, data)
	if err != nil {
		return err
	}
	for _, tag := range training.ScalarTags(training.SplitTest) {
		fmt.Printf("%s: %.4f\n", tag, values[tag])
	}

	if err := outputs.Publish(session.Metrics[training.SplitTest].AUROC.Curve()); err != nil {
		log.Printf("Warning: failed to publish plots: %v", err)
	}
	return nil
}
