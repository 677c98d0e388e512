package training

import (
	"errors"
	"math"
	"testing"
)

func TestMSELoss(t *testing.T) {
	pred := mustTensor(t, []int{1, 1, 1, 4}, []float32{0, 0.5, 1, 1})
	target := mustTensor(t, []int{1, 1, 1, 4}, []float32{0, 1, 0, 1})

	mse := NewMSELoss("mean")
	lt, err := mse.Forward(pred, target)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	loss, _ := lt.Item()
	// (0 + 0.25 + 1 + 0) / 4
	if math.Abs(float64(loss)-0.3125) > 1e-6 {
		t.Errorf("Expected loss 0.3125, got %v", loss)
	}

	grad, err := mse.Backward(pred, target)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	expected := []float32{0, -0.25, 0.5, 0}
	for i, v := range expected {
		if math.Abs(float64(grad.Data[i]-v)) > 1e-6 {
			t.Errorf("Grad %d: expected %v, got %v", i, v, grad.Data[i])
		}
	}
}

func TestBCELoss(t *testing.T) {
	pred := mustTensor(t, []int{2}, []float32{0.5, 0.5})
	target := mustTensor(t, []int{2}, []float32{1, 0})

	lt, err := NewBCELoss("").Forward(pred, target)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	loss, _ := lt.Item()
	if math.Abs(float64(loss)-math.Log(2)) > 1e-6 {
		t.Errorf("Expected loss ln 2, got %v", loss)
	}

	saturated := mustTensor(t, []int{2}, []float32{0, 1})
	lt, err = NewBCELoss("mean").Forward(saturated, target)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	loss, _ = lt.Item()
	if math.IsInf(float64(loss), 0) || math.IsNaN(float64(loss)) {
		t.Errorf("Expected a finite clamped loss, got %v", loss)
	}
}

func TestLossShapeMismatch(t *testing.T) {
	pred := mustTensor(t, []int{2}, []float32{0, 1})
	target := mustTensor(t, []int{3}, []float32{0, 1, 0})

	for _, name := range []string{"mse", "bce"} {
		t.Run(name, func(t *testing.T) {
			loss, err := NewLoss(name)
			if err != nil {
				t.Fatalf("NewLoss failed: %v", err)
			}
			if _, err := loss.Forward(pred, target); !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("Expected ErrShapeMismatch from Forward, got %v", err)
			}
			if _, err := loss.Backward(pred, target); !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("Expected ErrShapeMismatch from Backward, got %v", err)
			}
		})
	}
}

func TestNewLoss(t *testing.T) {
	if l, err := NewLoss(""); err != nil {
		t.Errorf("Expected default loss, got error %v", err)
	} else if _, ok := l.(*MSELoss); !ok {
		t.Errorf("Expected default loss to be MSE, got %T", l)
	}
	if _, err := NewLoss("hinge"); err == nil {
		t.Error("Expected error for unknown loss")
	}
}
