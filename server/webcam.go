package server

import (
	"sync"

	"github.com/cyclopcam/trashcam/pkg/nn"
)

// webcamState holds the most recent webcam prediction, and the annotated frame it was made from.
type webcamState struct {
	lock       sync.Mutex
	prediction *nn.Prediction
	frame      []byte // Annotated JPEG
	version    int64  // Incremented with every new frame
}

func newWebcamState() *webcamState {
	return &webcamState{}
}

func (w *webcamState) set(pred *nn.Prediction, annotatedJPEG []byte) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.prediction = pred
	w.frame = annotatedJPEG
	w.version++
}

// latest returns a copy of the latest prediction, or nil if there is none
func (w *webcamState) latest() *nn.Prediction {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.prediction == nil {
		return nil
	}
	p := *w.prediction
	return &p
}

// latestFrame returns the latest annotated frame, if it is newer than 'after'
func (w *webcamState) latestFrame(after int64) ([]byte, int64) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.version == after {
		return nil, after
	}
	return w.frame, w.version
}
