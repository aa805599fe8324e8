package server

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/staticfiles"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

//go:embed www
var staticWWW embed.FS

func (s *Server) setupHttpRoutes() error {
	logEveryRequest := false
	router := httprouter.New()

	unprotected := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	// Classification is expensive, so we limit the request rate of each client.
	// We create a unique rate limiter for each endpoint, so there's no need for httprate.KeyByEndpoint.
	ratelimited := func(method, route string, handle func(w http.ResponseWriter, r *http.Request), requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))

		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(handle)).ServeHTTP(w, r)
		})
	}

	unprotected("GET", "/api/ping", s.httpPing)
	unprotected("GET", "/api/labels", s.httpLabels)
	unprotected("GET", "/api/predictions", s.httpPredictions)
	ratelimited("POST", "/api/predict", s.httpPredict, s.config.RateLimit, time.Minute)
	ratelimited("POST", "/api/annotate", s.httpAnnotate, s.config.RateLimit, time.Minute)

	unprotected("GET", "/api/webcam/latest", s.httpWebcamLatest)
	unprotected("GET", "/api/webcam/stream", s.httpWebcamStream)
	unprotected("GET", "/api/webcam/feed", s.httpWebcamFeed)
	ratelimited("POST", "/api/webcam/frame", s.httpWebcamFrame, s.config.RateLimit, time.Minute)

	isImmutable := false
	var fsys fs.FS
	fsysRoot := "www"
	fsys = staticWWW
	if s.config.HotReloadWWW {
		relRoot := "server/www"
		absRoot, err := filepath.Abs(relRoot)
		if err != nil {
			s.Log.Errorf("Failed to resolve static file directory %v: %v", relRoot, err)
			return errors.New("Failed to resolve static file directory for hot reload")
		}
		s.Log.Infof("Serving static files from %v, with hot reload", absRoot)
		fsys = os.DirFS(absRoot)
		fsysRoot = ""
	}

	static, err := staticfiles.NewCachedStaticFileServer(fsys, fsysRoot, []string{"/api/"}, s.Log, isImmutable, nil)
	if err != nil {
		s.Log.Warnf("Error in static files: %v", err)
	} else {
		router.NotFound = static
	}

	s.httpRouter = router
	return nil
}
