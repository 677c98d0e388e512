package layers

import (
	"fmt"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Conv2D LayerType = iota
	ReLU
	LeakyReLU
	Sigmoid
	Tanh
)

func (lt LayerType) String() string {
	switch lt {
	case Conv2D:
		return "Conv2D"
	case ReLU:
		return "ReLU"
	case LeakyReLU:
		return "LeakyReLU"
	case Sigmoid:
		return "Sigmoid"
	case Tanh:
		return "Tanh"
	default:
		return "Unknown"
	}
}

// LayerSpec defines layer configuration. It carries no execution logic;
// Build turns a compiled ModelSpec into runnable layers.
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Shape information (computed during model compilation)
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Parameter metadata (computed during model compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ModelSpec defines a complete model as layer configuration
type ModelSpec struct {
	Layers []LayerSpec `json:"layers"`

	// Compiled model information
	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder provides a fluent interface for building models.
// Shapes are per sample, CHW.
type ModelBuilder struct {
	inputShape []int
	layers     []LayerSpec
	compiled   bool
}

// NewModelBuilder creates a new model builder for CHW inputs
func NewModelBuilder(inputShape []int) *ModelBuilder {
	return &ModelBuilder{
		inputShape: inputShape,
		layers:     make([]LayerSpec, 0),
	}
}

// AddLayer adds a layer to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	mb.layers = append(mb.layers, layer)
	return mb
}

// AddPointwiseConv adds a 1x1 convolution with bias
func (mb *ModelBuilder) AddPointwiseConv(outputChannels int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_size":     1,
			"use_bias":        true,
		},
	})
}

// AddReLU adds a ReLU activation
func (mb *ModelBuilder) AddReLU(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: ReLU, Name: name, Parameters: map[string]interface{}{}})
}

// AddLeakyReLU adds a Leaky ReLU activation
// negativeSlope: slope for negative input values (default: 0.01)
func (mb *ModelBuilder) AddLeakyReLU(negativeSlope float32, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: LeakyReLU,
		Name: name,
		Parameters: map[string]interface{}{
			"negative_slope": negativeSlope,
		},
	})
}

// AddSigmoid adds a Sigmoid activation
func (mb *ModelBuilder) AddSigmoid(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Sigmoid, Name: name, Parameters: map[string]interface{}{}})
}

// AddTanh adds a Tanh activation
func (mb *ModelBuilder) AddTanh(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Tanh, Name: name, Parameters: map[string]interface{}{}})
}

// Compile computes shapes and parameter counts
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}
	if len(mb.inputShape) != 3 {
		return nil, fmt.Errorf("input shape must be CHW, got %v", mb.inputShape)
	}

	model := &ModelSpec{
		Layers:     make([]LayerSpec, len(mb.layers)),
		InputShape: append([]int(nil), mb.inputShape...),
	}

	currentShape := model.InputShape
	for i, layer := range mb.layers {
		outputShape, paramShapes, paramCount, err := mb.computeLayerInfo(layer, currentShape)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %v", i, layer.Name, err)
		}

		layer.InputShape = currentShape
		layer.OutputShape = outputShape
		layer.ParameterShapes = paramShapes
		layer.ParameterCount = paramCount

		model.Layers[i] = layer
		model.ParameterShapes = append(model.ParameterShapes, paramShapes...)
		model.TotalParameters += paramCount
		currentShape = outputShape
	}

	model.OutputShape = currentShape
	model.Compiled = true
	mb.compiled = true
	return model, nil
}

func (mb *ModelBuilder) computeLayerInfo(layer LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	switch layer.Type {
	case Conv2D:
		outputChannels := getIntParam(layer.Parameters, "output_channels", 0)
		if outputChannels <= 0 {
			return nil, nil, 0, fmt.Errorf("output_channels must be positive")
		}
		if k := getIntParam(layer.Parameters, "kernel_size", 1); k != 1 {
			return nil, nil, 0, fmt.Errorf("only pointwise (1x1) convolutions are supported, got kernel %d", k)
		}
		inputChannels := inputShape[0]
		outputShape := []int{outputChannels, inputShape[1], inputShape[2]}
		paramShapes := [][]int{{outputChannels, inputChannels}}
		count := int64(outputChannels * inputChannels)
		if getBoolParam(layer.Parameters, "use_bias", true) {
			paramShapes = append(paramShapes, []int{outputChannels})
			count += int64(outputChannels)
		}
		return outputShape, paramShapes, count, nil
	case ReLU, LeakyReLU, Sigmoid, Tanh:
		return append([]int(nil), inputShape...), nil, 0, nil
	default:
		return nil, nil, 0, fmt.Errorf("unsupported layer type: %s", layer.Type)
	}
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	summary := "Model Summary:\n"
	summary += fmt.Sprintf("Input Shape: %v\n", ms.InputShape)
	summary += fmt.Sprintf("Output Shape: %v\n", ms.OutputShape)
	summary += fmt.Sprintf("Total Parameters: %d\n", ms.TotalParameters)
	summary += fmt.Sprintf("Layers: %d\n\n", len(ms.Layers))

	for i, layer := range ms.Layers {
		summary += fmt.Sprintf("Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type.String())
		summary += fmt.Sprintf("  Input:  %v\n", layer.InputShape)
		summary += fmt.Sprintf("  Output: %v\n", layer.OutputShape)
		summary += fmt.Sprintf("  Params: %d\n", layer.ParameterCount)
		summary += "\n"
	}

	return summary
}

func getIntParam(params map[string]interface{}, key string, defaultValue int) int {
	if val, exists := params[key]; exists {
		switch v := val.(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return defaultValue
}

func getBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, exists := params[key]; exists {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultValue
}

func getFloatParam(params map[string]interface{}, key string, defaultValue float32) float32 {
	if val, exists := params[key]; exists {
		switch v := val.(type) {
		case float32:
			return v
		case float64:
			return float32(v)
		}
	}
	return defaultValue
}
