package training

import "errors"

var (
	// ErrZeroBatches is returned when an epoch yields no batches, so no mean loss exists
	ErrZeroBatches = errors.New("epoch produced zero batches")
	// ErrNotTrainable is returned when the train split is run without a Module and an Optimizer
	ErrNotTrainable = errors.New("training requires a trainable module and an optimizer")
	// ErrShapeMismatch is returned when prediction and reference shapes are incompatible
	ErrShapeMismatch = errors.New("shape mismatch")
)
