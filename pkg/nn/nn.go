package nn

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/bmharper/cimg/v2"
)

// Package nn is a Neural Network interface layer
// To load a model, use the nnload package.

const DefaultProbabilityThreshold = 0.5

// Tensor layouts
const (
	LayoutNHWC = "nhwc" // Keras default
	LayoutNCHW = "nchw" // PyTorch default
)

// Output activations
const (
	ActivationNone    = ""        // Model outputs probabilities
	ActivationSigmoid = "sigmoid" // Model outputs logits, and we must apply a sigmoid
)

// Classifier is given an image, and returns one probability per class.
// The classes are independent (multi-label), so the probabilities do not sum to 1.
type Classifier interface {
	// Close closes the classifier (you MUST call this when finished)
	Close()

	// Classify returns one probability per class of Config().Classes.
	// img is a 24-bit RGB image of any size. It is resized to the model's input size.
	Classify(img *cimg.Image) ([]float32, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the classifier has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "mobilenetv2"
	Width        int      `json:"width"`        // eg 224
	Height       int      `json:"height"`       // eg 224
	Classes      []string `json:"classes"`      // eg ["battery", "organic", "glass", ...]
	Layout       string   `json:"layout"`       // LayoutNHWC (default) or LayoutNCHW
	Activation   string   `json:"activation"`   // ActivationNone (default) or ActivationSigmoid
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	if config.Layout == "" {
		config.Layout = LayoutNHWC
	}
	return config, nil
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, scanner.Err()
}
