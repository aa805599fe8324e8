package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/nnload"
	"github.com/cyclopcam/trashcam/pkg/storage"
	"github.com/cyclopcam/trashcam/pkg/taxonomy"
	"github.com/cyclopcam/trashcam/server/predictiondb"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log    logs.Log
	config Config

	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	wsUpgrader websocket.Upgrader

	model       *nnload.Model // nil if the model failed to load
	storage     storage.Storage
	predictions *predictiondb.PredictionDB // nil if history is disabled
	webcam      *webcamState
}

// NewServer loads the model and opens storage and the prediction DB.
// If the model fails to load, the server still starts, but classification requests fail with a 500.
func NewServer(logger logs.Log, cfg Config) (*Server, error) {
	fallbackLabels := taxonomy.DefaultCategories
	if cfg.TaxonomyFile != "" {
		tx, err := taxonomy.LoadFile(cfg.TaxonomyFile)
		if err != nil {
			return nil, err
		}
		fallbackLabels = tx.Categories()
	}
	model, err := nnload.Load(logger, nnload.Options{
		ModelDir:       cfg.ModelDir,
		ModelName:      cfg.ModelName,
		ThresholdsFile: cfg.ThresholdsFile,
		DownloadURL:    cfg.ModelURL,
		FallbackLabels: fallbackLabels,
	})
	if err != nil {
		logger.Errorf("Failed to load model: %v. Predictions will not work.", err)
		model = nil
	} else {
		logger.Infof("Model loaded, with %v labels", len(model.Labels))
	}
	return NewServerWithModel(logger, cfg, model)
}

// NewServerWithModel creates a server around an already loaded model (which may be nil)
func NewServerWithModel(logger logs.Log, cfg Config, model *nnload.Model) (*Server, error) {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	store, err := storage.Open(logger, cfg.Storage)
	if err != nil {
		return nil, err
	}
	var db *predictiondb.PredictionDB
	if cfg.DBFile != "" {
		db, err = predictiondb.Open(logger, cfg.DBFile)
		if err != nil {
			return nil, err
		}
	}
	s := &Server{
		Log:         logger,
		config:      cfg,
		model:       model,
		storage:     store,
		predictions: db,
		webcam:      newWebcamState(),
	}
	if err := s.setupHttpRoutes(); err != nil {
		s.closeResources()
		return nil, err
	}
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
		s.signalIn = nil
	}
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.httpServer.Shutdown(ctx)
		cancel()
		if err != nil {
			s.Log.Warnf("HTTP server shutdown error: %v", err)
		}
	}
	s.closeResources()
	s.Log.Infof("Shutdown complete")
}

func (s *Server) closeResources() {
	if s.predictions != nil {
		s.predictions.Close()
		s.predictions = nil
	}
	if s.model != nil {
		s.model.Close()
		s.model = nil
	}
}
