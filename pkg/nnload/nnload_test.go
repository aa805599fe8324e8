package nnload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/nn"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	config nn.ModelConfig
}

func (f *fakeClassifier) Close()                  {}
func (f *fakeClassifier) Config() *nn.ModelConfig { return &f.config }
func (f *fakeClassifier) Classify(img *cimg.Image) ([]float32, error) {
	return make([]float32, len(f.config.Classes)), nil
}

func TestNewModelLabelOrder(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	thresholdsFile := filepath.Join(dir, "thresholds.json")
	require.NoError(t, os.WriteFile(thresholdsFile, []byte(`{"paper": 0.3, "glass": 0.8}`), 0644))

	c := &fakeClassifier{config: nn.ModelConfig{Width: 8, Height: 8, Classes: []string{"glass", "paper"}}}

	// Thresholds file key order wins
	m := NewModel(log, c, thresholdsFile, nil)
	require.Equal(t, []string{"paper", "glass"}, m.Labels)
	require.Equal(t, []nn.Detection{{Label: "paper", Probability: 0.4}}, m.Detect([]float32{0.4, 0.7}))

	// Missing thresholds file: model classes, and default thresholds
	m = NewModel(log, c, filepath.Join(dir, "missing.json"), nil)
	require.Equal(t, []string{"glass", "paper"}, m.Labels)
	require.EqualValues(t, 0.5, m.Thresholds.Get("glass"))

	// No classes in the model config
	c2 := &fakeClassifier{config: nn.ModelConfig{Width: 8, Height: 8}}
	m = NewModel(log, c2, "", []string{"a", "b", "c"})
	require.Equal(t, []string{"a", "b", "c"}, m.Labels)
	require.Equal(t, []string{"a", "b", "c"}, m.Thresholds.Labels)
}

func TestLoadMissingModel(t *testing.T) {
	log := logs.NewTestingLog(t)
	dir := t.TempDir()
	_, err := Load(log, Options{ModelDir: dir, ModelName: "nothing"})
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.json"), []byte(`{"width":8,"height":8}`), 0644))
	_, err = LoadClassifier(log, dir, "m")
	require.ErrorContains(t, err, "Unrecognized")
}
