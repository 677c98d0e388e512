package training

import (
	"fmt"

	"github.com/salmap/go-salmap/tensor"
)

// ScoreBins is the number of score levels the classification pair is
// quantized to. AUROC accumulators keep one histogram bucket per level.
const ScoreBins = 200

// SalientThreshold splits ground-truth saliency into salient (>= threshold)
// and non-salient pixels
const SalientThreshold = 0.5

const divergenceEps = 1e-8

// Pair is one (prediction, reference) metric input
type Pair struct {
	Pred *tensor.Tensor
	Ref  *tensor.Tensor
}

// Converted holds the four metric-family views of one batch.
//
//	Divergence     [N, H*W]  non-negative, each row sums to one
//	Similarity     [N, H*W]  flattened copy
//	Correlation    [N, H, W] spatial maps
//	Classification [N*H*W]   Pred holds score bins, Ref holds 0/1 labels
type Converted struct {
	Divergence     Pair
	Similarity     Pair
	Correlation    Pair
	Classification Pair
}

// mapDims accepts [N, 1, H, W] or [N, H, W]
func mapDims(shape []int) (n, h, w int, err error) {
	switch {
	case len(shape) == 4 && shape[1] == 1:
		return shape[0], shape[2], shape[3], nil
	case len(shape) == 3:
		return shape[0], shape[1], shape[2], nil
	default:
		return 0, 0, 0, fmt.Errorf("expected saliency maps shaped [N 1 H W] or [N H W], got %v: %w", shape, ErrShapeMismatch)
	}
}

// Convert derives the four metric inputs from a prediction and ground-truth
// batch. The inputs are never modified; every output is allocated from alloc.
// Convert is deterministic: equal inputs give bit-identical outputs.
func Convert(alloc tensor.Allocator, pred, gt *tensor.Tensor) (Converted, error) {
	if !tensor.SameShape(pred.Shape, gt.Shape) {
		return Converted{}, fmt.Errorf("prediction %v and ground truth %v differ: %w", pred.Shape, gt.Shape, ErrShapeMismatch)
	}
	n, h, w, err := mapDims(pred.Shape)
	if err != nil {
		return Converted{}, err
	}

	var out Converted
	if out.Divergence, err = convertPair(alloc, pred, gt, []int{n, h * w}, toDistribution); err != nil {
		return Converted{}, fmt.Errorf("divergence conversion failed: %w", err)
	}
	if out.Similarity, err = convertPair(alloc, pred, gt, []int{n, h * w}, nil); err != nil {
		return Converted{}, fmt.Errorf("similarity conversion failed: %w", err)
	}
	if out.Correlation, err = convertPair(alloc, pred, gt, []int{n, h, w}, nil); err != nil {
		return Converted{}, fmt.Errorf("correlation conversion failed: %w", err)
	}

	classPred, err := alloc.Zeros([]int{n * h * w})
	if err != nil {
		return Converted{}, fmt.Errorf("classification conversion failed: %w", err)
	}
	classRef, err := alloc.Zeros([]int{n * h * w})
	if err != nil {
		return Converted{}, fmt.Errorf("classification conversion failed: %w", err)
	}
	for i, p := range pred.Data {
		classPred.Data[i] = float32(scoreBin(p))
		if gt.Data[i] >= SalientThreshold {
			classRef.Data[i] = 1
		}
	}
	out.Classification = Pair{Pred: classPred, Ref: classRef}

	return out, nil
}

func convertPair(alloc tensor.Allocator, pred, gt *tensor.Tensor, shape []int, rowFn func(row []float32)) (Pair, error) {
	p, err := alloc.Zeros(shape)
	if err != nil {
		return Pair{}, err
	}
	r, err := alloc.Zeros(shape)
	if err != nil {
		return Pair{}, err
	}
	copy(p.Data, pred.Data)
	copy(r.Data, gt.Data)

	if rowFn != nil {
		rows, cols := shape[0], p.NumElems/shape[0]
		for i := 0; i < rows; i++ {
			rowFn(p.Data[i*cols : (i+1)*cols])
			rowFn(r.Data[i*cols : (i+1)*cols])
		}
	}
	return Pair{Pred: p, Ref: r}, nil
}

// toDistribution clamps negatives to zero and scales the row to unit mass
func toDistribution(row []float32) {
	var sum float64
	for i, v := range row {
		if v < 0 {
			row[i] = 0
			continue
		}
		sum += float64(v)
	}
	scale := 1 / (sum + divergenceEps)
	for i, v := range row {
		row[i] = float32(float64(v) * scale)
	}
}

// scoreBin maps a probability to one of ScoreBins levels
func scoreBin(p float32) int {
	if p != p || p <= 0 {
		return 0
	}
	if p >= 1 {
		return ScoreBins - 1
	}
	return min(int(p*ScoreBins), ScoreBins-1)
}
