package config

import (
	"fmt"

	"github.com/salmap/go-salmap/tensorboard"
	"github.com/salmap/go-salmap/training"
)

// Outputs are the artifact sinks of one run
type Outputs struct {
	Sinks     []training.Sink
	Collector *training.VisualizationCollector
	Plotting  *training.PlottingService // nil without a plotting URL; starts disabled
}

// Outputs opens a TensorBoard writer under LogDir, a PNG directory when
// SnapshotDir is set and a plot collector for modelName
func (c Config) Outputs(modelName string) (*Outputs, error) {
	out := &Outputs{}

	if c.LogDir != "" {
		w, err := tensorboard.NewWriter(c.LogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		out.Sinks = append(out.Sinks, w)
	}
	if c.SnapshotDir != "" {
		png, err := training.NewPNGDirSink(c.SnapshotDir)
		if err != nil {
			training.CloseAll(out.Sinks)
			return nil, err
		}
		out.Sinks = append(out.Sinks, png)
	}

	if c.PlottingURL != "" {
		cfg := training.DefaultPlottingServiceConfig()
		cfg.BaseURL = c.PlottingURL
		out.Plotting = training.NewPlottingService(cfg)
	}
	out.Collector = training.NewVisualizationCollector(modelName, out.Plotting)
	out.Sinks = append(out.Sinks, out.Collector)
	return out, nil
}

// Publish records the test ROC curve and sends all plots when the plotting
// service answers its health check
func (o *Outputs) Publish(roc []training.ROCPoint) error {
	o.Collector.RecordROC(roc)
	if o.Plotting == nil {
		return nil
	}
	o.Plotting.Enable()
	defer o.Plotting.Disable()
	if err := o.Plotting.CheckHealth(); err != nil {
		return fmt.Errorf("plotting service unavailable: %w", err)
	}
	return o.Collector.Flush()
}

// Close closes every sink
func (o *Outputs) Close() error {
	return training.CloseAll(o.Sinks)
}
