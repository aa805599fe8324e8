package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/cyclopcam/trashcam/pkg/imagex"
	"github.com/cyclopcam/trashcam/pkg/nn"
	"github.com/cyclopcam/www"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// How often the MJPEG feed checks for a new frame
const feedPollInterval = 100 * time.Millisecond

var errInvalidFrame = errors.New("Invalid frame")

// classifyWebcamFrame decodes a frame, classifies it, and makes it the latest webcam result
func (s *Server) classifyWebcamFrame(frame []byte) (*nn.Prediction, error) {
	img, err := imagex.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidFrame, err)
	}
	pred, detections, err := s.classify(img, SourceWebcam)
	if err != nil {
		return nil, err
	}
	annotated, err := annotate(img, detections)
	if err != nil {
		s.Log.Warnf("Failed to annotate webcam frame: %v", err)
	}
	s.webcam.set(pred, annotated)
	return pred, nil
}

func (s *Server) httpWebcamLatest(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	pred := s.webcam.latest()
	if pred == nil {
		type emptyJSON struct {
			Detected map[string]float32 `json:"detected_labels"`
		}
		www.SendJSON(w, &emptyJSON{Detected: map[string]float32{}})
		return
	}
	www.SendJSON(w, pred)
}

// httpWebcamFrame classifies a single frame, posted as the raw request body
func (s *Server) httpWebcamFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes))
	if err != nil {
		www.PanicBadRequestf("Failed to read frame: %v", err)
	}
	if s.model == nil {
		www.PanicServerError(errNoModel.Error())
	}
	pred, err := s.classifyWebcamFrame(frame)
	if errors.Is(err, errInvalidFrame) {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)
	www.SendJSON(w, pred)
}

// httpWebcamStream receives binary JPEG frames over a websocket, and replies to each one with a prediction
func (s *Server) httpWebcamStream(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpWebcamStream websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()
	c.SetReadLimit(s.config.MaxUploadBytes)

	type message struct {
		Error      string         `json:"error,omitempty"`
		Prediction *nn.Prediction `json:"prediction,omitempty"`
	}

	s.Log.Infof("httpWebcamStream starting")
	nFrames := 0
	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Log.Warnf("httpWebcamStream read failed: %v", err)
			}
			break
		}
		var reply message
		if msgType != websocket.BinaryMessage {
			reply.Error = "Expected a binary JPEG frame"
		} else if pred, err := s.classifyWebcamFrame(data); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Prediction = pred
			nFrames++
		}
		if err := c.WriteJSON(reply); err != nil {
			s.Log.Warnf("httpWebcamStream write failed: %v", err)
			break
		}
	}
	s.Log.Infof("httpWebcamStream finished, after %v frames", nFrames)
}

// httpWebcamFeed is an MJPEG stream of the annotated webcam frames
func (s *Server) httpWebcamFeed(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	www.CacheNever(w)
	flusher, _ := w.(http.Flusher)

	ticker := time.NewTicker(feedPollInterval)
	defer ticker.Stop()
	version := int64(0)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
		frame, v := s.webcam.latestFrame(version)
		version = v
		if frame == nil {
			continue
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   {"image/jpeg"},
			"Content-Length": {fmt.Sprint(len(frame))},
		})
		if err != nil {
			return
		}
		if _, err := part.Write(frame); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
