package optimizer

import (
	"fmt"

	"github.com/salmap/go-salmap/tensor"
)

// Optimizer defines the common interface for all optimizers
type Optimizer interface {
	// ZeroGrad clears the gradients of every parameter
	ZeroGrad()

	// Step applies one update from the accumulated gradients
	Step() error

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	// UpdateLearningRate updates the learning rate
	UpdateLearningRate(lr float32)
}

// New creates an optimizer by name ("adam" or "sgd") with its default
// configuration and the given learning rate
func New(name string, params []*tensor.Tensor, lr float32) (Optimizer, error) {
	switch name {
	case "adam":
		config := DefaultAdamConfig()
		config.LearningRate = lr
		return NewAdamOptimizer(config, params)
	case "sgd":
		config := DefaultSGDConfig()
		config.LearningRate = lr
		return NewSGDOptimizer(config, params)
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

func validateParams(params []*tensor.Tensor) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameters provided")
	}
	for i, p := range params {
		if p == nil {
			return fmt.Errorf("parameter %d is nil", i)
		}
		if !p.RequiresGrad() {
			return fmt.Errorf("parameter %d %v does not require gradients", i, p.Shape)
		}
	}
	return nil
}

// gradOf returns the gradient data of p, or nil when nothing has been accumulated
func gradOf(p *tensor.Tensor) []float32 {
	if g := p.Grad(); g != nil {
		return g.Data
	}
	return nil
}
