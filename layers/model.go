package layers

import (
	"fmt"
	"math/rand"

	"github.com/salmap/go-salmap/tensor"
)

// Model is an executable network built from a compiled ModelSpec
type Model struct {
	spec     *ModelSpec
	ops      []op
	training bool
}

// Build instantiates the layers of a compiled spec with weights drawn from seed
func Build(spec *ModelSpec, seed int64) (*Model, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled before building")
	}

	rng := rand.New(rand.NewSource(seed))
	model := &Model{spec: spec, training: true}

	for i, layer := range spec.Layers {
		var o op
		switch layer.Type {
		case Conv2D:
			conv, err := newPointwiseConv(
				layer.InputShape[0],
				layer.OutputShape[0],
				getBoolParam(layer.Parameters, "use_bias", true),
				rng,
			)
			if err != nil {
				return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Name, err)
			}
			o = conv
		case ReLU:
			o = newReLU()
		case LeakyReLU:
			o = newLeakyReLU(getFloatParam(layer.Parameters, "negative_slope", 0.01))
		case Sigmoid:
			o = newSigmoid()
		case Tanh:
			o = newTanh()
		default:
			return nil, fmt.Errorf("layer %d (%s): unsupported type %s", i, layer.Name, layer.Type)
		}
		model.ops = append(model.ops, o)
	}

	return model, nil
}

// Forward runs the network on an NCHW batch
func (m *Model) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("expected NCHW input, got shape %v", input.Shape)
	}
	if input.Shape[1] != m.spec.InputShape[0] {
		return nil, fmt.Errorf("expected %d input channels, got %d", m.spec.InputShape[0], input.Shape[1])
	}

	x := input
	for i, o := range m.ops {
		var err error
		x, err = o.forward(x)
		if err != nil {
			return nil, fmt.Errorf("forward failed at layer %d (%s): %w", i, m.spec.Layers[i].Name, err)
		}
	}
	return x, nil
}

// Backward propagates the loss gradient with respect to the last Forward
// output, accumulating parameter gradients
func (m *Model) Backward(grad *tensor.Tensor) error {
	if !m.training {
		return fmt.Errorf("backward called on a model in eval mode")
	}

	g := grad
	for i := len(m.ops) - 1; i >= 0; i-- {
		var err error
		g, err = m.ops[i].backward(g)
		if err != nil {
			return fmt.Errorf("backward failed at layer %d (%s): %w", i, m.spec.Layers[i].Name, err)
		}
	}
	return nil
}

// Parameters returns every trainable tensor in layer order
func (m *Model) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, o := range m.ops {
		params = append(params, o.parameters()...)
	}
	return params
}

// Train switches the model to training mode
func (m *Model) Train() {
	m.training = true
}

// Eval switches the model to evaluation mode
func (m *Model) Eval() {
	m.training = false
}

// IsTraining reports whether the model is in training mode
func (m *Model) IsTraining() bool {
	return m.training
}

// Spec returns the compiled spec the model was built from
func (m *Model) Spec() *ModelSpec {
	return m.spec
}

// NewDummyNet builds the baseline saliency model: a pointwise encoder that
// widens RGB to hidden channels, a decoder back to one channel and a sigmoid
// head, so predictions lie in [0, 1]. Every layer is pointwise, so the model
// accepts any spatial size; imageSize only sets the shapes in the summary.
func NewDummyNet(hidden, imageSize int, seed int64) (*Model, error) {
	if hidden <= 0 {
		hidden = 8
	}
	if imageSize <= 0 {
		imageSize = 1
	}
	spec, err := NewModelBuilder([]int{3, imageSize, imageSize}).
		AddPointwiseConv(hidden, "encoder").
		AddLeakyReLU(0.01, "encoder_act").
		AddPointwiseConv(hidden/2+1, "decoder").
		AddTanh("decoder_act").
		AddPointwiseConv(1, "head").
		AddSigmoid("head_act").
		Compile()
	if err != nil {
		return nil, err
	}
	return Build(spec, seed)
}
