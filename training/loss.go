package training

import (
	"fmt"
	"math"

	"github.com/salmap/go-salmap/tensor"
)

// Loss interface defines methods that all loss functions must implement
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
	Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// NewLoss returns a loss by name ("mse" or "bce") with mean reduction
func NewLoss(name string) (Loss, error) {
	switch name {
	case "", "mse":
		return NewMSELoss("mean"), nil
	case "bce":
		return NewBCELoss("mean"), nil
	default:
		return nil, fmt.Errorf("unknown loss %q", name)
	}
}

func checkLossShapes(predicted, target *tensor.Tensor) error {
	if !tensor.SameShape(predicted.Shape, target.Shape) {
		return fmt.Errorf("predicted %v and target %v must have the same shape: %w", predicted.Shape, target.Shape, ErrShapeMismatch)
	}
	return nil
}

func reductionScale(reduction string, n int) float64 {
	if reduction == "mean" {
		return 1.0 / float64(n)
	}
	return 1.0
}

// MSELoss implements Mean Squared Error loss function
type MSELoss struct {
	reduction string // "mean" or "sum"
}

// NewMSELoss creates a new Mean Squared Error loss function
func NewMSELoss(reduction string) *MSELoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &MSELoss{reduction: reduction}
}

// Forward computes the MSE loss: L = (1/N) * sum((y_pred - y_true)^2)
func (mse *MSELoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(predicted, target); err != nil {
		return nil, err
	}

	var sum float64
	for i, p := range predicted.Data {
		d := float64(p - target.Data[i])
		sum += d * d
	}
	sum *= reductionScale(mse.reduction, predicted.NumElems)

	return tensor.NewTensor([]int{1}, []float32{float32(sum)})
}

// Backward computes the gradient of MSE loss: 2 * (predicted - target) / N
func (mse *MSELoss) Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(predicted, target); err != nil {
		return nil, err
	}

	scale := float32(2 * reductionScale(mse.reduction, predicted.NumElems))
	grad := predicted.Clone()
	for i := range grad.Data {
		grad.Data[i] = (predicted.Data[i] - target.Data[i]) * scale
	}
	return grad, nil
}

// BCELoss implements binary cross entropy on probabilities in [0, 1]
type BCELoss struct {
	reduction string
	eps       float64
}

// NewBCELoss creates a new binary cross entropy loss function
func NewBCELoss(reduction string) *BCELoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &BCELoss{reduction: reduction, eps: 1e-7}
}

func (bce *BCELoss) clamp(p float32) float64 {
	return math.Min(math.Max(float64(p), bce.eps), 1-bce.eps)
}

// Forward computes -[y*log(p) + (1-y)*log(1-p)]
func (bce *BCELoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(predicted, target); err != nil {
		return nil, err
	}

	var sum float64
	for i, p := range predicted.Data {
		pc := bce.clamp(p)
		y := float64(target.Data[i])
		sum -= y*math.Log(pc) + (1-y)*math.Log(1-pc)
	}
	sum *= reductionScale(bce.reduction, predicted.NumElems)

	return tensor.NewTensor([]int{1}, []float32{float32(sum)})
}

// Backward computes (p - y) / (p * (1 - p))
func (bce *BCELoss) Backward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(predicted, target); err != nil {
		return nil, err
	}

	scale := reductionScale(bce.reduction, predicted.NumElems)
	grad := predicted.Clone()
	for i, p := range predicted.Data {
		pc := bce.clamp(p)
		y := float64(target.Data[i])
		grad.Data[i] = float32((pc - y) / (pc * (1 - pc)) * scale)
	}
	return grad, nil
}
