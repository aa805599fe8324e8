package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/trashcam/pkg/imagex"
	"github.com/cyclopcam/trashcam/pkg/nn"
	"github.com/cyclopcam/trashcam/pkg/storage"
	"github.com/cyclopcam/www"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const uploadDir = "uploads"

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time        int64            `json:"time"`
		ModelLoaded bool             `json:"modelLoaded"`
		History     map[string]int64 `json:"history"` // Number of recorded predictions per source
	}
	resp := pingJSON{
		Time:        time.Now().Unix(),
		ModelLoaded: s.model != nil,
		History:     map[string]int64{},
	}
	if s.predictions != nil {
		counts, err := s.predictions.Count()
		www.Check(err)
		resp.History = counts
	}
	www.SendJSON(w, &resp)
}

func (s *Server) httpLabels(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type labelsJSON struct {
		Labels     []string           `json:"labels"`
		Thresholds map[string]float32 `json:"thresholds"`
	}
	resp := labelsJSON{
		Labels:     []string{},
		Thresholds: map[string]float32{},
	}
	if s.model != nil {
		resp.Labels = s.model.Labels
		for _, l := range s.model.Labels {
			resp.Thresholds[l] = s.model.Thresholds.Get(l)
		}
	}
	www.SendJSON(w, &resp)
}

func (s *Server) httpPredictions(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, 500)
	source := www.QueryValue(r, "source")
	preds := []nn.Prediction{}
	if s.predictions != nil {
		var err error
		preds, err = s.predictions.Recent(limit, source)
		www.Check(err)
	}
	www.SendJSON(w, preds)
}

// safeFilename reduces an uploaded filename to a harmless base name
func safeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	clean = strings.TrimLeft(clean, ".")
	if clean == "" {
		clean = "image"
	}
	return clean
}

// readUpload reads the multipart "image" field, stores it, and decodes it.
// The caller must run the returned cleanup function when finished.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*cimg.Image, func()) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			www.Panic(http.StatusRequestEntityTooLarge, fmt.Sprintf("Image is larger than %v bytes", s.config.MaxUploadBytes))
		}
		www.PanicBadRequestf("No image file provided")
	}
	defer file.Close()
	if header.Filename == "" {
		www.PanicBadRequestf("No selected file")
	}
	if !imagex.IsSupported(header.Filename) {
		www.PanicBadRequestf("Invalid file type. Please upload a %v image.", strings.Join(imagex.SupportedExtensions, ", "))
	}
	raw, err := io.ReadAll(file)
	www.Check(err)

	name := path.Join(uploadDir, uuid.NewString()+"_"+safeFilename(header.Filename))
	www.Check(storage.WriteFile(s.storage, name, bytes.NewReader(raw)))
	cleanup := func() {
		if !s.config.KeepUploads {
			if err := s.storage.DeleteFile(name); err != nil {
				s.Log.Warnf("Failed to delete upload %v: %v", name, err)
			}
		}
	}

	img, err := imagex.Decode(raw)
	if err != nil {
		cleanup()
		www.PanicBadRequestf("Invalid image: %v", err)
	}
	return img, cleanup
}

func (s *Server) classifyOrPanic(img *cimg.Image, source string) (*nn.Prediction, []nn.Detection) {
	pred, detections, err := s.classify(img, source)
	if errors.Is(err, errNoModel) {
		www.PanicServerError(err.Error())
	}
	www.Check(err)
	return pred, detections
}

func (s *Server) httpPredict(w http.ResponseWriter, r *http.Request) {
	img, cleanup := s.readUpload(w, r)
	defer cleanup()
	pred, _ := s.classifyOrPanic(img, SourceUpload)
	www.SendJSON(w, pred)
}

func (s *Server) httpAnnotate(w http.ResponseWriter, r *http.Request) {
	img, cleanup := s.readUpload(w, r)
	defer cleanup()
	pred, detections := s.classifyOrPanic(img, SourceUpload)
	jpg, err := annotate(img, detections)
	www.Check(err)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Prediction-ID", pred.ID)
	www.CacheNever(w)
	w.Write(jpg)
}
