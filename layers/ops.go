package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/salmap/go-salmap/tensor"
)

// op is one executable layer. Forward caches what Backward needs; Backward
// accumulates parameter gradients and returns the input gradient.
type op interface {
	forward(x *tensor.Tensor) (*tensor.Tensor, error)
	backward(grad *tensor.Tensor) (*tensor.Tensor, error)
	parameters() []*tensor.Tensor
}

// pointwiseConv is a 1x1 convolution over NCHW input
type pointwiseConv struct {
	weight *tensor.Tensor // [out, in]
	bias   *tensor.Tensor // [out], may be nil
	input  *tensor.Tensor
}

func newPointwiseConv(in, out int, useBias bool, rng *rand.Rand) (*pointwiseConv, error) {
	// Xavier uniform
	limit := float32(math.Sqrt(6.0 / float64(in+out)))
	data := make([]float32, out*in)
	for i := range data {
		data[i] = (rng.Float32()*2 - 1) * limit
	}
	weight, err := tensor.NewTensor([]int{out, in}, data)
	if err != nil {
		return nil, err
	}
	weight.SetRequiresGrad(true)

	conv := &pointwiseConv{weight: weight}
	if useBias {
		bias, err := tensor.Zeros([]int{out})
		if err != nil {
			return nil, err
		}
		bias.SetRequiresGrad(true)
		conv.bias = bias
	}
	return conv, nil
}

func (c *pointwiseConv) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("pointwise conv expects NCHW input, got %v", x.Shape)
	}
	n, in, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	out := c.weight.Shape[0]
	if in != c.weight.Shape[1] {
		return nil, fmt.Errorf("pointwise conv expects %d channels, got %d", c.weight.Shape[1], in)
	}

	y, err := tensor.Zeros([]int{n, out, h, w})
	if err != nil {
		return nil, err
	}

	plane := h * w
	for b := 0; b < n; b++ {
		for o := 0; o < out; o++ {
			dst := y.Data[(b*out+o)*plane : (b*out+o+1)*plane]
			if c.bias != nil {
				for p := range dst {
					dst[p] = c.bias.Data[o]
				}
			}
			for ch := 0; ch < in; ch++ {
				wv := c.weight.Data[o*in+ch]
				src := x.Data[(b*in+ch)*plane : (b*in+ch+1)*plane]
				for p, v := range src {
					dst[p] += wv * v
				}
			}
		}
	}

	c.input = x
	return y, nil
}

func (c *pointwiseConv) backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if c.input == nil {
		return nil, fmt.Errorf("pointwise conv backward called before forward")
	}
	x := c.input
	n, in, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	out := c.weight.Shape[0]
	plane := h * w

	dx, err := tensor.Zeros(x.Shape)
	if err != nil {
		return nil, err
	}
	dw := make([]float32, out*in)
	db := make([]float32, out)

	for b := 0; b < n; b++ {
		for o := 0; o < out; o++ {
			g := grad.Data[(b*out+o)*plane : (b*out+o+1)*plane]
			for _, v := range g {
				db[o] += v
			}
			for ch := 0; ch < in; ch++ {
				src := x.Data[(b*in+ch)*plane : (b*in+ch+1)*plane]
				dst := dx.Data[(b*in+ch)*plane : (b*in+ch+1)*plane]
				wv := c.weight.Data[o*in+ch]
				var acc float32
				for p, gv := range g {
					acc += gv * src[p]
					dst[p] += wv * gv
				}
				dw[o*in+ch] += acc
			}
		}
	}

	if err := c.weight.AccumulateGrad(dw); err != nil {
		return nil, err
	}
	if c.bias != nil {
		if err := c.bias.AccumulateGrad(db); err != nil {
			return nil, err
		}
	}
	return dx, nil
}

func (c *pointwiseConv) parameters() []*tensor.Tensor {
	if c.bias == nil {
		return []*tensor.Tensor{c.weight}
	}
	return []*tensor.Tensor{c.weight, c.bias}
}

// activation applies an element-wise function. derivative receives the
// cached input and output of the forward pass.
type activation struct {
	fn         func(x float32) float32
	derivative func(x, y float32) float32
	input      *tensor.Tensor
	output     *tensor.Tensor
}

func (a *activation) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y := x.Clone()
	for i, v := range y.Data {
		y.Data[i] = a.fn(v)
	}
	a.input = x
	a.output = y
	return y, nil
}

func (a *activation) backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if a.input == nil {
		return nil, fmt.Errorf("activation backward called before forward")
	}
	if grad.NumElems != a.input.NumElems {
		return nil, fmt.Errorf("gradient size %d does not match activation size %d", grad.NumElems, a.input.NumElems)
	}
	dx := grad.Clone()
	for i := range dx.Data {
		dx.Data[i] *= a.derivative(a.input.Data[i], a.output.Data[i])
	}
	return dx, nil
}

func (a *activation) parameters() []*tensor.Tensor {
	return nil
}

func newReLU() *activation {
	return &activation{
		fn: func(x float32) float32 { return max(x, 0) },
		derivative: func(x, _ float32) float32 {
			if x > 0 {
				return 1
			}
			return 0
		},
	}
}

func newLeakyReLU(slope float32) *activation {
	return &activation{
		fn: func(x float32) float32 {
			if x > 0 {
				return x
			}
			return slope * x
		},
		derivative: func(x, _ float32) float32 {
			if x > 0 {
				return 1
			}
			return slope
		},
	}
}

func newSigmoid() *activation {
	return &activation{
		fn:         func(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) },
		derivative: func(_, y float32) float32 { return y * (1 - y) },
	}
}

func newTanh() *activation {
	return &activation{
		fn:         func(x float32) float32 { return float32(math.Tanh(float64(x))) },
		derivative: func(_, y float32) float32 { return 1 - y*y },
	}
}
