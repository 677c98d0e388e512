package optimizer

import (
	"fmt"
	"math"

	"github.com/salmap/go-salmap/tensor"
)

// AdamOptimizerState holds Adam hyperparameters and moment buffers
type AdamOptimizerState struct {
	// Hyperparameters
	LearningRate float32
	Beta1        float32 // Momentum decay (typically 0.9)
	Beta2        float32 // Variance decay (typically 0.999)
	Epsilon      float32 // Small constant to prevent division by zero (typically 1e-8)
	WeightDecay  float32 // L2 regularization coefficient

	params          []*tensor.Tensor
	momentumBuffers [][]float32 // First moment for each parameter
	varianceBuffers [][]float32 // Second moment for each parameter

	// Step tracking for bias correction
	StepCount uint64
}

// AdamConfig holds configuration for Adam optimizer
type AdamConfig struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
	WeightDecay  float32
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// NewAdamOptimizer creates a new Adam optimizer over params
func NewAdamOptimizer(config AdamConfig, params []*tensor.Tensor) (*AdamOptimizerState, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.Beta1 < 0 || config.Beta1 >= 1 || config.Beta2 < 0 || config.Beta2 >= 1 {
		return nil, fmt.Errorf("betas must be in [0, 1), got %v and %v", config.Beta1, config.Beta2)
	}

	adam := &AdamOptimizerState{
		LearningRate:    config.LearningRate,
		Beta1:           config.Beta1,
		Beta2:           config.Beta2,
		Epsilon:         config.Epsilon,
		WeightDecay:     config.WeightDecay,
		params:          params,
		momentumBuffers: make([][]float32, len(params)),
		varianceBuffers: make([][]float32, len(params)),
	}

	// Momentum and variance start at 0
	for i, p := range params {
		adam.momentumBuffers[i] = make([]float32, p.NumElems)
		adam.varianceBuffers[i] = make([]float32, p.NumElems)
	}

	return adam, nil
}

// ZeroGrad clears parameter gradients
func (adam *AdamOptimizerState) ZeroGrad() {
	tensor.ZeroGrad(adam.params)
}

// Step performs a single Adam update with bias correction
func (adam *AdamOptimizerState) Step() error {
	adam.StepCount++

	step := float64(adam.StepCount)
	biasCorrection1 := float32(1 - math.Pow(float64(adam.Beta1), step))
	biasCorrection2 := float32(1 - math.Pow(float64(adam.Beta2), step))

	for i, p := range adam.params {
		grad := gradOf(p)
		if grad == nil {
			continue
		}

		m := adam.momentumBuffers[i]
		v := adam.varianceBuffers[i]

		for j := range p.Data {
			g := grad[j] + adam.WeightDecay*p.Data[j]

			m[j] = adam.Beta1*m[j] + (1-adam.Beta1)*g
			v[j] = adam.Beta2*v[j] + (1-adam.Beta2)*g*g

			mHat := m[j] / biasCorrection1
			vHat := v[j] / biasCorrection2

			p.Data[j] -= adam.LearningRate * mHat / (float32(math.Sqrt(float64(vHat))) + adam.Epsilon)
		}
	}

	return nil
}

// GetStepCount returns the current step count
func (adam *AdamOptimizerState) GetStepCount() uint64 {
	return adam.StepCount
}

// UpdateLearningRate updates the learning rate
func (adam *AdamOptimizerState) UpdateLearningRate(lr float32) {
	adam.LearningRate = lr
}

// AdamStats provides statistics about the Adam optimizer
type AdamStats struct {
	StepCount     uint64
	LearningRate  float32
	Beta1         float32
	Beta2         float32
	Epsilon       float32
	WeightDecay   float32
	NumParameters int
}

// GetStats returns optimizer statistics
func (adam *AdamOptimizerState) GetStats() AdamStats {
	return AdamStats{
		StepCount:     adam.StepCount,
		LearningRate:  adam.LearningRate,
		Beta1:         adam.Beta1,
		Beta2:         adam.Beta2,
		Epsilon:       adam.Epsilon,
		WeightDecay:   adam.WeightDecay,
		NumParameters: len(adam.params),
	}
}
