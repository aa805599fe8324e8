package nn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Thresholds holds the per-label probability thresholds, and the label order.
// The order of the keys in the JSON file is the output order of the model, so we must preserve it.
type Thresholds struct {
	Labels []string
	Values map[string]float32
}

// DefaultThresholds returns a threshold of DefaultProbabilityThreshold for every label
func DefaultThresholds(labels []string) *Thresholds {
	t := &Thresholds{
		Labels: append([]string{}, labels...),
		Values: map[string]float32{},
	}
	for _, l := range labels {
		t.Values[l] = DefaultProbabilityThreshold
	}
	return t
}

// Get returns the threshold of the label, or DefaultProbabilityThreshold if the label has none
func (t *Thresholds) Get(label string) float32 {
	if t != nil {
		if v, ok := t.Values[label]; ok {
			return v
		}
	}
	return DefaultProbabilityThreshold
}

// ParseThresholds parses a JSON object of label -> threshold, preserving key order
func ParseThresholds(b []byte) (*Thresholds, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("Thresholds must be a JSON object")
	}
	t := &Thresholds{
		Values: map[string]float32{},
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		label := tok.(string)
		var v float32
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("Invalid threshold for '%v': %w", label, err)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("Threshold for '%v' must be between 0 and 1 (%v)", label, v)
		}
		if _, exists := t.Values[label]; exists {
			return nil, fmt.Errorf("Duplicate label '%v'", label)
		}
		t.Labels = append(t.Labels, label)
		t.Values[label] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadThresholds loads a JSON thresholds file
func LoadThresholds(filename string) (*Thresholds, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	t, err := ParseThresholds(b)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse %v: %w", filename, err)
	}
	return t, nil
}

// ChooseLabels returns the label order of the classifier output.
// The thresholds file wins, then the model config, and finally the fallback list.
func ChooseLabels(thresholds *Thresholds, config *ModelConfig, fallback []string) []string {
	if thresholds != nil && len(thresholds.Labels) != 0 {
		return thresholds.Labels
	}
	if config != nil && len(config.Classes) != 0 {
		return config.Classes
	}
	return fallback
}
