package training

import (
	"fmt"
	"strings"
)

// Split identifies one phase of a run. Each split owns its own accumulators
// and has its own update semantics.
type Split int

const (
	SplitTrain Split = iota
	SplitValidation
	SplitTest
)

// Splits lists every split in run order
var Splits = []Split{SplitTrain, SplitValidation, SplitTest}

func (s Split) String() string {
	switch s {
	case SplitTrain:
		return "train"
	case SplitValidation:
		return "validation"
	case SplitTest:
		return "test"
	default:
		return "unknown"
	}
}

// Prefix returns the scalar tag prefix ("train", "val", "test")
func (s Split) Prefix() string {
	if s == SplitValidation {
		return "val"
	}
	return s.String()
}

// Stage returns the name used in snapshot tags ("training", "validation", "test")
func (s Split) Stage() string {
	if s == SplitTrain {
		return "training"
	}
	return s.String()
}

// ParseSplit accepts a split name or prefix
func ParseSplit(name string) (Split, error) {
	switch strings.ToLower(name) {
	case "train", "training":
		return SplitTrain, nil
	case "val", "validation":
		return SplitValidation, nil
	case "test":
		return SplitTest, nil
	default:
		return 0, fmt.Errorf("unknown split %q", name)
	}
}
