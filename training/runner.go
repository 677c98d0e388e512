package training

import (
	"fmt"
	"io"
	"os"

	"github.com/salmap/go-salmap/memory"
	"github.com/salmap/go-salmap/tensor"
	"github.com/salmap/go-salmap/vision/dataloader"
)

// EpochResult summarizes one pass over a split
type EpochResult struct {
	Split    Split
	Epoch    int
	MeanLoss float64
	Batches  int
}

// Runner executes one epoch of one split. It feeds the split's MetricSet but
// never resets it; resetting is the caller's decision.
type Runner struct {
	metrics  map[Split]*MetricSet
	emitter  *SnapshotEmitter
	pool     *memory.BufferPool
	out      io.Writer
	progress bool
}

// NewRunner creates a runner over per-split metric sets. emitter may be nil
// to disable snapshots; a nil pool uses the global pool.
func NewRunner(metrics map[Split]*MetricSet, emitter *SnapshotEmitter, pool *memory.BufferPool) *Runner {
	if pool == nil {
		pool = memory.GlobalBufferPool()
	}
	return &Runner{
		metrics:  metrics,
		emitter:  emitter,
		pool:     pool,
		out:      os.Stdout,
		progress: true,
	}
}

// SetOutput redirects progress bars and warnings
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// SetProgress toggles the per-batch progress bar
func (r *Runner) SetProgress(enabled bool) {
	r.progress = enabled
}

// Run performs one pass over batches. The train split requires model to be a
// Module and opt to be non-nil; other splits only ever see the model as a
// Predictor.
func (r *Runner) Run(split Split, epoch int, model Predictor, criterion Loss, batches BatchIterator, opt Optimizer) (EpochResult, error) {
	ms, ok := r.metrics[split]
	if !ok || ms == nil {
		return EpochResult{}, fmt.Errorf("no metric set registered for split %s", split)
	}

	var step func(idx int, isLast bool, batch *dataloader.Batch) (float64, error)
	if split == SplitTrain {
		module, ok := model.(Module)
		if !ok || opt == nil {
			return EpochResult{}, ErrNotTrainable
		}
		module.Train()
		step = func(idx int, isLast bool, batch *dataloader.Batch) (float64, error) {
			return r.trainBatch(module, criterion, opt, ms, epoch, idx, isLast, batch)
		}
	} else {
		if m, ok := model.(interface{ Eval() }); ok {
			m.Eval()
		}
		step = func(idx int, isLast bool, batch *dataloader.Batch) (float64, error) {
			return r.evalBatch(split, model, criterion, ms, epoch, idx, isLast, batch)
		}
	}

	return r.loop(split, epoch, batches, step)
}

// loop drives the iterator one batch ahead so the last batch is known
// without trusting Len
func (r *Runner) loop(split Split, epoch int, batches BatchIterator, step func(int, bool, *dataloader.Batch) (float64, error)) (EpochResult, error) {
	result := EpochResult{Split: split, Epoch: epoch}

	batches.Reset()
	var bar *ProgressBar
	if r.progress {
		bar = NewProgressBar(r.out, fmt.Sprintf("%s epoch %d", split.Stage(), epoch), batches.Len())
	}

	next, err := batches.Next()
	if err != nil {
		return result, fmt.Errorf("%s epoch %d batch 0: %w", split, epoch, err)
	}

	var total float64
	for idx := 0; next != nil; idx++ {
		batch := next
		next, err = batches.Next()
		if err != nil {
			return result, fmt.Errorf("%s epoch %d batch %d: %w", split, epoch, idx+1, err)
		}

		loss, err := step(idx, next == nil, batch)
		if err != nil {
			return result, fmt.Errorf("%s epoch %d batch %d: %w", split, epoch, idx, err)
		}
		total += loss
		result.Batches++

		if bar != nil {
			bar.Update(result.Batches, map[string]float64{MetricLoss: total / float64(result.Batches)})
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if result.Batches == 0 {
		return result, fmt.Errorf("%s epoch %d: %w", split, epoch, ErrZeroBatches)
	}
	result.MeanLoss = total / float64(result.Batches)
	return result, nil
}

// measure detaches the prediction and target into scope and measures their
// metric contribution without committing it
func measure(scope *tensor.Scope, ms *MetricSet, pred, target *tensor.Tensor) (Measurement, error) {
	p, err := scope.Detach(pred)
	if err != nil {
		return Measurement{}, fmt.Errorf("detach prediction: %w", err)
	}
	gt, err := scope.Detach(target)
	if err != nil {
		return Measurement{}, fmt.Errorf("detach target: %w", err)
	}
	converted, err := Convert(scope, p, gt)
	if err != nil {
		return Measurement{}, fmt.Errorf("convert: %w", err)
	}
	return ms.Measure(converted)
}

func lossValue(criterion Loss, pred, target *tensor.Tensor) (float64, error) {
	lt, err := criterion.Forward(pred, target)
	if err != nil {
		return 0, fmt.Errorf("loss: %w", err)
	}
	v, err := lt.Item()
	if err != nil {
		return 0, fmt.Errorf("loss: %w", err)
	}
	return float64(v), nil
}

func (r *Runner) trainBatch(module Module, criterion Loss, opt Optimizer, ms *MetricSet, epoch, idx int, isLast bool, batch *dataloader.Batch) (float64, error) {
	scope := tensor.NewScope(r.pool)
	defer scope.Close()

	opt.ZeroGrad()
	pred, err := module.Forward(batch.Inputs)
	if err != nil {
		return 0, fmt.Errorf("forward: %w", err)
	}
	loss, err := lossValue(criterion, pred, batch.Targets)
	if err != nil {
		return 0, err
	}

	m, err := measure(scope, ms, pred, batch.Targets)
	if err != nil {
		return 0, err
	}

	grad, err := criterion.Backward(pred, batch.Targets)
	if err != nil {
		return 0, fmt.Errorf("loss backward: %w", err)
	}
	if err := module.Backward(grad); err != nil {
		return 0, fmt.Errorf("backward: %w", err)
	}
	if err := opt.Step(); err != nil {
		return 0, fmt.Errorf("optimizer step: %w", err)
	}
	ms.Commit(m)

	if r.emitter != nil && ShouldEmit(SplitTrain, idx, isLast) {
		// Snapshot reflects the weights after this batch's update
		post, err := module.Forward(batch.Inputs)
		if err != nil {
			r.warn(SplitTrain, epoch, err)
		} else if err := r.emitter.Emit(SnapshotTag(SplitTrain, epoch), epoch, batch.Inputs, batch.Targets, post); err != nil {
			r.warn(SplitTrain, epoch, err)
		}
	}
	return loss, nil
}

// evalBatch has no access to backward or optimizer state
func (r *Runner) evalBatch(split Split, model Predictor, criterion Loss, ms *MetricSet, epoch, idx int, isLast bool, batch *dataloader.Batch) (float64, error) {
	scope := tensor.NewScope(r.pool)
	defer scope.Close()

	pred, err := model.Forward(batch.Inputs)
	if err != nil {
		return 0, fmt.Errorf("forward: %w", err)
	}
	loss, err := lossValue(criterion, pred, batch.Targets)
	if err != nil {
		return 0, err
	}
	m, err := measure(scope, ms, pred, batch.Targets)
	if err != nil {
		return 0, err
	}
	ms.Commit(m)

	if r.emitter != nil {
		if _, err := r.emitter.MaybeEmit(split, epoch, idx, isLast, batch.Inputs, batch.Targets, pred); err != nil {
			r.warn(split, epoch, err)
		}
	}
	return loss, nil
}

func (r *Runner) warn(split Split, epoch int, err error) {
	fmt.Fprintf(r.out, "Warning: %s snapshot for epoch %d failed: %v\n", split.Stage(), epoch, err)
}
