// Package engine runs exported saliency models for evaluation.
package engine

import (
	"fmt"
	"sync"

	"github.com/salmap/go-salmap/tensor"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXPredictor runs an ONNX saliency model on fixed-size input and output
// buffers. It is a Predictor only; exported models cannot be trained.
type ONNXPredictor struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewONNXPredictor loads a model and its metadata. libraryPath selects the
// onnxruntime shared library; empty uses the platform default.
func NewONNXPredictor(modelPath, metadataPath, libraryPath string) (*ONNXPredictor, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXPredictor{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Forward predicts a [n 1 H W] batch for n up to the model batch size.
// Smaller batches are zero-padded and the padding rows dropped.
func (p *ONNXPredictor) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	n, err := p.Metadata.checkInput(input.Shape)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	in := p.inputTensor.GetData()
	copy(in, input.Data)
	clear(in[len(input.Data):])

	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := p.outputTensor.GetData()
	h, w := int(p.Metadata.OutputShape[2]), int(p.Metadata.OutputShape[3])
	data := make([]float32, n*h*w)
	copy(data, out[:len(data)])
	return tensor.NewTensor([]int{n, 1, h, w}, data)
}

// Close releases the session and its buffers
func (p *ONNXPredictor) Close() {
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
	if p.session != nil {
		p.session.Destroy()
	}
	ort.DestroyEnvironment()
}
