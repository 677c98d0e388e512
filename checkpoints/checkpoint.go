// Package checkpoints saves and restores trained saliency models as JSON.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/salmap/go-salmap/layers"
	"github.com/salmap/go-salmap/tensor"
)

// FormatVersion is written into every checkpoint
const FormatVersion = "1.0.0"

// Checkpoint represents a complete model state including weights and training progress
type Checkpoint struct {
	ModelSpec     *layers.ModelSpec  `json:"model_spec"`
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight" or "bias"
}

// TrainingState captures the current training progress
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         uint64  `json:"step"`
	LearningRate float32 `json:"learning_rate"`
	Optimizer    string  `json:"optimizer"`
	TrainLoss    float64 `json:"train_loss"`
	ValLoss      float64 `json:"val_loss"`
	BestValLoss  float64 `json:"best_val_loss"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// New snapshots the current weights of model
func New(model *layers.Model, state TrainingState) (*Checkpoint, error) {
	weights, err := ExtractWeights(model)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		ModelSpec:     model.Spec(),
		Weights:       weights,
		TrainingState: state,
	}, nil
}

// Save writes the checkpoint as indented JSON. The file is written beside
// path and renamed into place.
func Save(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-salmap"
		checkpoint.Metadata.Version = FormatVersion
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a checkpoint written by Save
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.ModelSpec == nil {
		return nil, fmt.Errorf("checkpoint %s has no model spec", path)
	}
	return &checkpoint, nil
}

// Restore builds a model from the checkpoint spec and loads its weights
func (c *Checkpoint) Restore() (*layers.Model, error) {
	model, err := layers.Build(c.ModelSpec, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild model: %w", err)
	}
	if err := LoadWeights(c.Weights, model.Parameters()); err != nil {
		return nil, err
	}
	return model, nil
}

// ExtractWeights copies the parameters of model, naming each after its layer
func ExtractWeights(model *layers.Model) ([]WeightTensor, error) {
	params := model.Parameters()
	var weights []WeightTensor

	paramIndex := 0
	next := func(layer, kind string) error {
		if paramIndex >= len(params) {
			return fmt.Errorf("insufficient tensors for %s of layer %s", kind, layer)
		}
		p := params[paramIndex]
		weights = append(weights, WeightTensor{
			Name:  fmt.Sprintf("%s.%s", layer, kind),
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float32(nil), p.Data...),
			Layer: layer,
			Type:  kind,
		})
		paramIndex++
		return nil
	}

	for _, layerSpec := range model.Spec().Layers {
		if layerSpec.Type != layers.Conv2D {
			continue
		}
		if err := next(layerSpec.Name, "weight"); err != nil {
			return nil, err
		}
		if useBias, ok := layerSpec.Parameters["use_bias"].(bool); !ok || useBias {
			if err := next(layerSpec.Name, "bias"); err != nil {
				return nil, err
			}
		}
	}

	if paramIndex != len(params) {
		return nil, fmt.Errorf("model has %d parameters, spec accounts for %d", len(params), paramIndex)
	}
	return weights, nil
}

// LoadWeights copies weight data into tensors in order
func LoadWeights(weights []WeightTensor, tensors []*tensor.Tensor) error {
	if len(weights) != len(tensors) {
		return fmt.Errorf("weight count mismatch: %d weights, %d tensors", len(weights), len(tensors))
	}

	for i, t := range tensors {
		weight := weights[i]
		if !tensor.SameShape(t.Shape, weight.Shape) {
			return fmt.Errorf("shape mismatch for weight %s: tensor %v vs weight %v",
				weight.Name, t.Shape, weight.Shape)
		}
		if len(weight.Data) != len(t.Data) {
			return fmt.Errorf("data length mismatch for weight %s: %d vs %d", weight.Name, len(weight.Data), len(t.Data))
		}
		copy(t.Data, weight.Data)
	}
	return nil
}
