package training

import (
	"github.com/salmap/go-salmap/tensor"
	"github.com/salmap/go-salmap/vision/dataloader"
)

// Predictor maps an NCHW image batch to an N1HW saliency batch
type Predictor interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
}

// Module is a trainable Predictor
type Module interface {
	Predictor
	Backward(grad *tensor.Tensor) error // Propagates dLoss/dPrediction of the last Forward
	Parameters() []*tensor.Tensor       // Returns trainable parameters (tensors with requiresGrad=true)
	Train()                             // Sets module to training mode
	Eval()                              // Sets module to evaluation mode
	IsTraining() bool                   // Returns true if in training mode
}

// Optimizer updates Module parameters from their gradients
type Optimizer interface {
	ZeroGrad()
	Step() error
}

// BatchIterator yields batches in a stable order. Next returns nil, nil when
// the pass is exhausted.
type BatchIterator interface {
	Len() int
	Reset()
	Next() (*dataloader.Batch, error)
}
