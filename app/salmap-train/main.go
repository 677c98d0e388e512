// Command salmap-train fits the baseline saliency model on a dataset split,
// validates after every epoch and evaluates the test split at the end.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/salmap/go-salmap/checkpoints"
	"github.com/salmap/go-salmap/config"
	"github.com/salmap/go-salmap/layers"
	"github.com/salmap/go-salmap/memory"
	"github.com/salmap/go-salmap/optimizer"
	"github.com/salmap/go-salmap/training"
)

const modelName = "DummyNet"

func main() {
	cfg, err := config.Parse("salmap-train", os.Args[1:], os.LookupEnv, os.Stderr)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	model, resumed, err := loadModel(cfg)
	if err != nil {
		return err
	}
	training.NewModelArchitecturePrinter(os.Stdout, modelName).PrintArchitecture(model.Spec())

	opt, err := optimizer.New(cfg.Optimizer, model.Parameters(), cfg.LearningRate)
	if err != nil {
		return err
	}
	criterion, err := training.NewLoss(cfg.Loss)
	if err != nil {
		return err
	}
	cm, err := cfg.ColormapValue()
	if err != nil {
		return err
	}

	outputs, err := cfg.Outputs(modelName)
	if err != nil {
		return err
	}
	defer func() {
		if err := outputs.Close(); err != nil {
			log.Printf("Warning: failed to close sinks: %v", err)
		}
	}()

	pool := memory.NewBufferPool()
	session := training.NewSession(model, criterion, opt, outputs.Sinks, training.SessionOptions{
		Pool:         pool,
		Colormap:     cm,
		HideProgress: cfg.HideProgress,
	})
	if resumed != nil {
		session.StartEpoch = resumed.Epoch + 1
	}

	if cfg.CheckpointDir != "" {
		keeper := checkpoints.NewKeeper(cfg.CheckpointDir, model)
		if resumed != nil {
			keeper.Seed(resumed.BestValLoss)
		}
		session.OnEpochEnd = func(s training.EpochSummary) error {
			improved, err := keeper.Observe(checkpoints.TrainingState{
				Epoch:        s.Epoch,
				Step:         opt.GetStepCount(),
				LearningRate: cfg.LearningRate,
				Optimizer:    cfg.Optimizer,
				TrainLoss:    s.Train.MeanLoss,
				ValLoss:      s.Val.MeanLoss,
			})
			if improved {
				fmt.Printf("Validation loss improved to %.4f, saved %s\n", s.Val.MeanLoss, checkpoints.BestName)
			}
			return err
		}
	}

	data := training.NewDataModule(ctx, cfg.Data)
	defer data.Close()
	if _, err := training.Fit(session, data, cfg.Epochs); err != nil {
		return err
	}

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
	if pool.InUse() != 0 {
		log.Printf("Warning: %d pooled buffers still in use", pool.InUse())
	}
	return nil
}

// loadModel resumes from cfg.Checkpoint or builds a fresh baseline. The
// training state is nil for a fresh model.
func loadModel(cfg config.Config) (*layers.Model, *checkpoints.TrainingState, error) {
	if cfg.Checkpoint == "" {
		model, err := layers.NewDummyNet(cfg.Hidden, cfg.Data.ImageSize, cfg.Data.Seed)
		return model, nil, err
	}
	checkpoint, err := checkpoints.Load(cfg.Checkpoint)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Resuming from %s (epoch %d, val loss %.4f)", cfg.Checkpoint,
		checkpoint.TrainingState.Epoch, checkpoint.TrainingState.ValLoss)
	model, err := checkpoint.Restore()
	if err != nil {
		return nil, nil, err
	}
	return model, &checkpoint.TrainingState, nil
}
