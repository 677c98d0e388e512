package training

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/salmap/go-salmap/memory"
	"github.com/salmap/go-salmap/vision/dataloader"
)

// DataProvider supplies the batch iterators of a run. Prepare must be
// idempotent; Fit and Test both call it.
type DataProvider interface {
	Prepare() error
	Train() BatchIterator
	Val() BatchIterator
	Test() BatchIterator
}

// SessionOptions tunes a Session. The zero value is usable.
type SessionOptions struct {
	Pool         *memory.BufferPool
	Colormap     Colormap
	Out          io.Writer // Console output, stdout when nil
	HideProgress bool
}

// Session owns the state of one run: the model, its optimizer, the sinks
// and one MetricSet per split
type Session struct {
	Model     Predictor
	Criterion Loss
	Optimizer Optimizer
	Sinks     []Sink
	Metrics   map[Split]*MetricSet

	// StartEpoch numbers the first epoch of Fit, so a resumed run continues
	// the tags and steps of the run it resumes
	StartEpoch int

	// OnEpochEnd runs after every epoch summary is logged. Errors are
	// reported as warnings.
	OnEpochEnd func(EpochSummary) error

	emitter *SnapshotEmitter
	runner  *Runner
	out     io.Writer
}

// NewSession wires a model, loss, optimizer and sinks. opt may be nil for
// evaluation-only sessions.
func NewSession(model Predictor, criterion Loss, opt Optimizer, sinks []Sink, opts SessionOptions) *Session {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	metrics := make(map[Split]*MetricSet, len(Splits))
	for _, split := range Splits {
		metrics[split] = NewMetricSet()
	}

	emitter := NewSnapshotEmitter(sinks, opts.Pool, opts.Colormap)
	runner := NewRunner(metrics, emitter, opts.Pool)
	runner.SetOutput(out)
	runner.SetProgress(!opts.HideProgress)

	return &Session{
		Model:     model,
		Criterion: criterion,
		Optimizer: opt,
		Sinks:     sinks,
		Metrics:   metrics,
		emitter:   emitter,
		runner:    runner,
		out:       out,
	}
}

// EpochSummary is what Fit reports per epoch
type EpochSummary struct {
	Epoch   int
	Train   EpochResult
	Val     EpochResult
	Scalars map[string]float64
}

// ScalarTags returns the scalar tags logged for split, in logging order
func ScalarTags(split Split) []string {
	names := []string{MetricLoss, MetricKLDiv, MetricSim, MetricSCC, MetricAUROC}
	tags := make([]string, len(names))
	for i, name := range names {
		tags[i] = split.Prefix() + "_" + name
	}
	return tags
}

func (s *Session) scalars(result EpochResult, into map[string]float64) {
	prefix := result.Split.Prefix() + "_"
	into[prefix+MetricLoss] = result.MeanLoss
	for name, v := range s.Metrics[result.Split].Compute() {
		into[prefix+name] = v
	}
}

func (s *Session) logScalars(splits []Split, values map[string]float64, step int) {
	var tags []string
	for _, split := range splits {
		tags = append(tags, ScalarTags(split)...)
	}
	if err := DispatchScalars(s.Sinks, tags, values, step); err != nil {
		fmt.Fprintf(s.out, "Warning: failed to log scalars for step %d: %v\n", step, err)
	}
}

func (s *Session) flush() {
	if err := FlushAll(s.Sinks); err != nil {
		fmt.Fprintf(s.out, "Warning: failed to flush sinks: %v\n", err)
	}
}

// firstBatcher is implemented by iterators that can serve their first batch
// without starting a read-ahead pass
type firstBatcher interface {
	First() (*dataloader.Batch, error)
}

func firstBatch(batches BatchIterator) (*dataloader.Batch, error) {
	if f, ok := batches.(firstBatcher); ok {
		return f.First()
	}
	batches.Reset()
	return batches.Next()
}

// visualize renders the first validation batch under the visualization tag
func (s *Session) visualize(epoch int, batches BatchIterator) error {
	batch, err := firstBatch(batches)
	if err != nil {
		return err
	}
	if batch == nil {
		return ErrZeroBatches
	}
	if m, ok := s.Model.(interface{ Eval() }); ok {
		m.Eval()
	}
	pred, err := s.Model.Forward(batch.Inputs)
	if err != nil {
		return err
	}
	return s.emitter.Emit(VisualizationTag(epoch), epoch, batch.Inputs, batch.Targets, pred)
}

// Fit trains for epochs epochs starting at s.StartEpoch, validating after
// each. Train and validation metrics are reset at the start of every epoch.
func Fit(s *Session, provider DataProvider, epochs int) ([]EpochSummary, error) {
	if epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", epochs)
	}
	if err := provider.Prepare(); err != nil {
		return nil, fmt.Errorf("failed to prepare data: %w", err)
	}

	if s.StartEpoch < 0 {
		return nil, fmt.Errorf("start epoch must not be negative, got %d", s.StartEpoch)
	}

	last := s.StartEpoch + epochs
	summaries := make([]EpochSummary, 0, epochs)
	for epoch := s.StartEpoch; epoch < last; epoch++ {
		fmt.Fprintf(s.out, "Epoch %d/%d\n", epoch+1, last)
		fmt.Fprintln(s.out, strings.Repeat("-", 100))

		s.Metrics[SplitTrain].Reset()
		s.Metrics[SplitValidation].Reset()

		train, err := s.runner.Run(SplitTrain, epoch, s.Model, s.Criterion, provider.Train(), s.Optimizer)
		if err != nil {
			return summaries, err
		}
		val, err := s.runner.Run(SplitValidation, epoch, s.Model, s.Criterion, provider.Val(), nil)
		if err != nil {
			return summaries, err
		}
		if err := s.visualize(epoch, provider.Val()); err != nil {
			fmt.Fprintf(s.out, "Warning: visualization for epoch %d failed: %v\n", epoch, err)
		}

		summary := EpochSummary{Epoch: epoch, Train: train, Val: val, Scalars: make(map[string]float64, 10)}
		s.scalars(train, summary.Scalars)
		s.scalars(val, summary.Scalars)
		s.logScalars([]Split{SplitTrain, SplitValidation}, summary.Scalars, epoch)

		fmt.Fprintf(s.out, "Training Loss: %.4f\n", train.MeanLoss)
		fmt.Fprintf(s.out, "Validation Loss: %.4f\n", val.MeanLoss)
		summaries = append(summaries, summary)

		if s.OnEpochEnd != nil {
			if err := s.OnEpochEnd(summary); err != nil {
				fmt.Fprintf(s.out, "Warning: epoch %d callback failed: %v\n", epoch, err)
			}
		}
	}

	s.flush()
	return summaries, nil
}

// Test evaluates the test split once with freshly reset test metrics
func Test(s *Session, provider DataProvider) (EpochResult, map[string]float64, error) {
	if err := provider.Prepare(); err != nil {
		return EpochResult{}, nil, fmt.Errorf("failed to prepare data: %w", err)
	}

	s.Metrics[SplitTest].Reset()
	result, err := s.runner.Run(SplitTest, 0, s.Model, s.Criterion, provider.Test(), nil)
	if err != nil {
		return result, nil, err
	}

	values := make(map[string]float64, 5)
	s.scalars(result, values)
	s.logScalars([]Split{SplitTest}, values, 0)
	fmt.Fprintf(s.out, "Test Loss: %.4f\n", result.MeanLoss)

	s.flush()
	return result, values, nil
}
