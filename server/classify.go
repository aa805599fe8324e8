package server

import (
	"errors"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/trashcam/pkg/nn"
	"github.com/google/uuid"
)

const (
	SourceUpload = "upload"
	SourceWebcam = "webcam"
)

var errNoModel = errors.New("Model not loaded. Cannot perform prediction.")

// classify runs the model on img, and records the prediction in our history
func (s *Server) classify(img *cimg.Image, source string) (*nn.Prediction, []nn.Detection, error) {
	if s.model == nil {
		return nil, nil, errNoModel
	}
	probs, err := s.model.Classifier.Classify(img)
	if err != nil {
		return nil, nil, err
	}
	detections := s.model.Detect(probs)
	pred := &nn.Prediction{
		ID:            uuid.NewString(),
		Source:        source,
		Time:          time.Now().UTC(),
		Detected:      nn.DetectionMap(detections),
		Labels:        s.model.Labels,
		Probabilities: probs,
	}
	if s.predictions != nil {
		if err := s.predictions.Add(pred); err != nil {
			s.Log.Warnf("Failed to record prediction: %v", err)
		}
	}
	return pred, detections, nil
}
