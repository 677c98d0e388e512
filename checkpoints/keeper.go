package checkpoints

import (
	"math"
	"path/filepath"

	"github.com/salmap/go-salmap/layers"
)

const (
	LastName = "last.json"
	BestName = "best.json"
)

// Keeper writes the latest model after every epoch and the model with the
// lowest validation loss seen so far
type Keeper struct {
	Dir   string
	Model *layers.Model

	best float64
}

// NewKeeper creates a keeper writing into dir. An existing best.json in dir
// sets the loss later epochs must beat.
func NewKeeper(dir string, model *layers.Model) *Keeper {
	k := &Keeper{Dir: dir, Model: model, best: math.Inf(1)}
	if previous, err := Load(filepath.Join(dir, BestName)); err == nil {
		k.Seed(previous.TrainingState.ValLoss)
	}
	return k
}

// Seed lowers the best loss to loss, typically the BestValLoss of a resumed
// checkpoint. Non-positive and NaN losses are ignored.
func (k *Keeper) Seed(loss float64) {
	if loss > 0 && loss < k.best {
		k.best = loss
	}
}

// Best returns the lowest validation loss observed
func (k *Keeper) Best() float64 {
	return k.best
}

// Observe saves last.json and, when state.ValLoss improves, best.json.
// It reports whether the epoch was a new best.
func (k *Keeper) Observe(state TrainingState) (bool, error) {
	improved := state.ValLoss < k.best
	if improved {
		k.best = state.ValLoss
	}
	state.BestValLoss = k.best

	checkpoint, err := New(k.Model, state)
	if err != nil {
		return false, err
	}
	if err := Save(checkpoint, filepath.Join(k.Dir, LastName)); err != nil {
		return false, err
	}
	if improved {
		checkpoint.Metadata.Tags = []string{"best"}
		if err := Save(checkpoint, filepath.Join(k.Dir, BestName)); err != nil {
			return true, err
		}
	}
	return improved, nil
}
