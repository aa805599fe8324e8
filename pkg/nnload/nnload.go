// Package nnload wraps up our 'nn' interface layer, and has concrete references to our
// neural network implementation (onnx), so that you can just call one function to
// load a model, its label order and its thresholds, and not need to know about the
// implementation details.
package nnload

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/nn"
	"github.com/cyclopcam/trashcam/pkg/onnx"
)

// Model extensions, in addition to the .json config
var modelExtensions = []string{".onnx"}

// Options describes where to find a model
type Options struct {
	ModelDir       string   // eg /var/lib/trashcam/models
	ModelName      string   // Base filename, without extensions, eg "mobilenetv2_224"
	ThresholdsFile string   // JSON file of label -> threshold. Optional.
	DownloadURL    string   // If not empty, missing model files are downloaded from DownloadURL/<file>
	FallbackLabels []string // Used if neither the thresholds nor the model config name the labels
}

// Model is a classifier, together with the order and thresholds of its labels
type Model struct {
	Classifier nn.Classifier
	Labels     []string
	Thresholds *nn.Thresholds
}

func (m *Model) Close() {
	m.Classifier.Close()
}

// Detect applies the thresholds to the probabilities returned by Classifier.Classify,
// and returns the labels that meet them
func (m *Model) Detect(probs []float32) []nn.Detection {
	return nn.Filter(probs, m.Labels, m.Thresholds)
}

func downloadFile(srcUrl, targetFile string) error {
	tempFile := targetFile + ".tmp"
	if err := os.MkdirAll(filepath.Dir(targetFile), 0755); err != nil {
		return err
	}
	resp, err := http.DefaultClient.Get(srcUrl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("HTTP error %v", resp.Status)
	}
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, resp.Body)
	if err != nil {
		return err
	}
	file.Close()
	return os.Rename(tempFile, targetFile)
}

// If the model files are not yet downloaded, then download them now.
// Returns immediately if the files are already downloaded.
func DownloadModel(logs logs.Log, baseUrl, modelDir, modelName string) error {
	extensions := append([]string{".json"}, modelExtensions...)
	for _, ext := range extensions {
		diskPath := filepath.Join(modelDir, modelName+ext)
		networkUrl := baseUrl + "/" + modelName + ext
		if _, err := os.Stat(diskPath); os.IsNotExist(err) {
			logs.Infof("Downloading %v to %v", networkUrl, diskPath)
			if err := downloadFile(networkUrl, diskPath); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

// LoadClassifier loads a neural network from disk.
func LoadClassifier(logs logs.Log, modelDir, modelName string) (nn.Classifier, error) {
	fullPathBase := filepath.Join(modelDir, modelName)
	config, err := nn.LoadModelConfig(fullPathBase + ".json")
	if err != nil {
		return nil, err
	}
	if len(config.Classes) == 0 {
		// Older exports write the class list into <model>.txt, one per line
		if classes, err := nn.LoadClassFile(fullPathBase + ".txt"); err == nil {
			config.Classes = classes
		}
	}
	if _, err := os.Stat(fullPathBase + ".onnx"); err == nil {
		logs.Infof("Loading ONNX model %v (%v x %v, %v classes)", fullPathBase+".onnx", config.Width, config.Height, len(config.Classes))
		return onnx.NewClassifier(config, fullPathBase+".onnx")
	}
	return nil, fmt.Errorf("Unrecognized NN model type %v", fullPathBase)
}

// LoadThresholds loads the thresholds file. If the file is missing or invalid, we log a warning
// and fall back to DefaultProbabilityThreshold for every label of the model.
func LoadThresholds(logs logs.Log, filename string, modelLabels []string) *nn.Thresholds {
	if filename != "" {
		t, err := nn.LoadThresholds(filename)
		if err == nil {
			return t
		}
		logs.Warnf("Failed to load thresholds: %v. Using %v for all labels", err, nn.DefaultProbabilityThreshold)
	}
	return nn.DefaultThresholds(modelLabels)
}

// Load loads the classifier, and resolves its label order and thresholds
func Load(logs logs.Log, opts Options) (*Model, error) {
	if opts.DownloadURL != "" {
		if err := DownloadModel(logs, opts.DownloadURL, opts.ModelDir, opts.ModelName); err != nil {
			return nil, fmt.Errorf("Download failed: %w", err)
		}
	}
	classifier, err := LoadClassifier(logs, opts.ModelDir, opts.ModelName)
	if err != nil {
		return nil, err
	}
	return NewModel(logs, classifier, opts.ThresholdsFile, opts.FallbackLabels), nil
}

// NewModel wraps an already loaded classifier
func NewModel(logs logs.Log, classifier nn.Classifier, thresholdsFile string, fallbackLabels []string) *Model {
	config := classifier.Config()
	thresholds := LoadThresholds(logs, thresholdsFile, nn.ChooseLabels(nil, config, fallbackLabels))
	labels := nn.ChooseLabels(thresholds, config, fallbackLabels)
	if len(config.Classes) != 0 && len(labels) != len(config.Classes) {
		logs.Warnf("Model has %v classes, but we have %v labels", len(config.Classes), len(labels))
	}
	return &Model{
		Classifier: classifier,
		Labels:     labels,
		Thresholds: thresholds,
	}
}
