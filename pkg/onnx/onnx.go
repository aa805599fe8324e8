// Package onnx runs multi-label classifiers that were exported to ONNX, using the pure Go
// onnx-go runtime with a gorgonia backend.
package onnx

import (
	"fmt"
	"os"
	"sync"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/trashcam/pkg/nn"
	onnxgo "github.com/owulveryck/onnx-go"
	"github.com/owulveryck/onnx-go/backend/x/gorgonnx"
	"gorgonia.org/tensor"
)

// Classifier is an nn.Classifier backed by an ONNX graph.
// A gorgonnx graph holds its input and output tensors, so only one Classify may run at a time.
type Classifier struct {
	lock    sync.Mutex
	backend *gorgonnx.Graph
	model   *onnxgo.Model
	config  nn.ModelConfig
}

// NewClassifier loads an .onnx file
func NewClassifier(config *nn.ModelConfig, modelFile string) (*Classifier, error) {
	b, err := os.ReadFile(modelFile)
	if err != nil {
		return nil, err
	}
	c, err := NewClassifierFromBytes(config, b)
	if err != nil {
		return nil, fmt.Errorf("Failed to load ONNX model %v: %w", modelFile, err)
	}
	return c, nil
}

// NewClassifierFromBytes creates a classifier from the serialized ONNX protobuf
func NewClassifierFromBytes(config *nn.ModelConfig, model []byte) (c *Classifier, err error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("Invalid model input size %v x %v", config.Width, config.Height)
	}
	backend := gorgonnx.NewGraph()
	m := onnxgo.NewModel(backend)
	// onnx-go panics on some unsupported operators
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("%v", r)
		}
	}()
	if err := m.UnmarshalBinary(model); err != nil {
		return nil, err
	}
	cfg := *config
	if cfg.Layout == "" {
		cfg.Layout = nn.LayoutNHWC
	}
	return &Classifier{
		backend: backend,
		model:   m,
		config:  cfg,
	}, nil
}

func (c *Classifier) Close() {
}

func (c *Classifier) Config() *nn.ModelConfig {
	return &c.config
}

func (c *Classifier) inputShape() []int {
	if c.config.Layout == nn.LayoutNCHW {
		return []int{1, 3, c.config.Height, c.config.Width}
	}
	return []int{1, c.config.Height, c.config.Width, 3}
}

func (c *Classifier) Classify(img *cimg.Image) (probs []float32, err error) {
	input, err := nn.Preprocess(img, &c.config)
	if err != nil {
		return nil, err
	}
	t := tensor.New(tensor.WithShape(c.inputShape()...), tensor.WithBacking(input))

	c.lock.Lock()
	defer c.lock.Unlock()
	defer func() {
		if r := recover(); r != nil {
			probs = nil
			err = fmt.Errorf("ONNX inference failed: %v", r)
		}
	}()

	if err := c.model.SetInput(0, t); err != nil {
		return nil, err
	}
	if err := c.backend.Run(); err != nil {
		return nil, err
	}
	outputs, err := c.model.GetOutputTensors()
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("Model produced no outputs")
	}
	data, ok := outputs[0].Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("Expected float32 output, but got %T", outputs[0].Data())
	}
	probs = make([]float32, len(data))
	copy(probs, data)
	if c.config.Activation == nn.ActivationSigmoid {
		nn.Sigmoid(probs)
	}
	if len(c.config.Classes) != 0 && len(probs) != len(c.config.Classes) {
		return nil, fmt.Errorf("Model produced %v outputs, but has %v classes", len(probs), len(c.config.Classes))
	}
	return probs, nil
}
