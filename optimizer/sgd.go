package optimizer

import (
	"github.com/salmap/go-salmap/tensor"
)

// SGDOptimizerState holds SGD hyperparameters and momentum buffers
type SGDOptimizerState struct {
	// Hyperparameters
	LearningRate float32
	Momentum     float32 // Momentum coefficient (0 for vanilla SGD)
	WeightDecay  float32 // L2 regularization coefficient
	Nesterov     bool    // Whether to use Nesterov momentum

	params          []*tensor.Tensor
	momentumBuffers [][]float32

	// Step tracking
	StepCount uint64
}

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float32
	Momentum     float32
	WeightDecay  float32
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// NewSGDOptimizer creates a new SGD optimizer over params
func NewSGDOptimizer(config SGDConfig, params []*tensor.Tensor) (*SGDOptimizerState, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	sgd := &SGDOptimizerState{
		LearningRate: config.LearningRate,
		Momentum:     config.Momentum,
		WeightDecay:  config.WeightDecay,
		Nesterov:     config.Nesterov,
		params:       params,
	}

	if config.Momentum > 0 {
		sgd.momentumBuffers = make([][]float32, len(params))
		for i, p := range params {
			sgd.momentumBuffers[i] = make([]float32, p.NumElems)
		}
	}

	return sgd, nil
}

// ZeroGrad clears parameter gradients
func (sgd *SGDOptimizerState) ZeroGrad() {
	tensor.ZeroGrad(sgd.params)
}

// Step performs a single SGD update
func (sgd *SGDOptimizerState) Step() error {
	sgd.StepCount++

	for i, p := range sgd.params {
		grad := gradOf(p)
		if grad == nil {
			continue
		}

		for j := range p.Data {
			g := grad[j] + sgd.WeightDecay*p.Data[j]

			if sgd.momentumBuffers != nil {
				v := sgd.Momentum*sgd.momentumBuffers[i][j] + g
				sgd.momentumBuffers[i][j] = v
				if sgd.Nesterov {
					g += sgd.Momentum * v
				} else {
					g = v
				}
			}

			p.Data[j] -= sgd.LearningRate * g
		}
	}

	return nil
}

// GetStepCount returns the current step count
func (sgd *SGDOptimizerState) GetStepCount() uint64 {
	return sgd.StepCount
}

// UpdateLearningRate updates the learning rate
func (sgd *SGDOptimizerState) UpdateLearningRate(lr float32) {
	sgd.LearningRate = lr
}
