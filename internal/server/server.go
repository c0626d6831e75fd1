package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kiesman99/imgdice/internal/api"
	"github.com/kiesman99/imgdice/internal/dice"
	"github.com/kiesman99/imgdice/internal/raster"
	"github.com/kiesman99/imgdice/internal/tileindex"
)

// DriverFactory returns the raster driver for one job cutting image.
type DriverFactory func(image string) raster.Driver

// Server implements api.ServerInterface
type Server struct {
	startTime time.Time
	version   string
	root      string
	realRoot  string
	newDriver DriverFactory
	metrics   *metrics

	// MaxThreads caps the threads query parameter; 0 means no cap.
	MaxThreads int
	// AllowedOrigins lists the browser origins allowed to call the API.
	// Requests carrying any other Origin header are refused. "*" allows all.
	AllowedOrigins []string
	// Publisher, if set, receives every tile written by any job.
	Publisher dice.Publisher
}

// NewServer creates a new server instance. Every path in a request must
// resolve under root. newDriver is called once per job.
func NewServer(version, root string, newDriver DriverFactory) *Server {
	root = filepath.Clean(root)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Server{
		startTime: time.Now(),
		version:   version,
		root:      root,
		realRoot:  evalExisting(root),
		newDriver: newDriver,
		metrics:   newMetrics(),
	}
}

// Router returns the full HTTP handler: middleware, the API under /api/v1
// and Prometheus metrics under /metrics.
func (s *Server) Router(timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))

	r.Use(s.cors)

	r.Route("/api/v1", func(r chi.Router) {
		api.HandlerWithOptions(s, api.ChiServerOptions{
			BaseRouter: r,
			ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
				requestID := middleware.GetReqID(r.Context())
				s.writeErrorResponse(w, http.StatusBadRequest, api.INVALIDQUERYPARAM, err.Error(), &requestID, nil)
			},
		})
	})

	// Legacy health endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/v1/health", http.StatusMovedPermanently)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	return r
}

// cors refuses browser requests from origins outside AllowedOrigins. A simple
// cross-origin POST is sent without a preflight, so the refusal applies to
// every method, not only OPTIONS.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")
		allowed, wildcard := s.originAllowed(origin)
		if !allowed {
			requestID := middleware.GetReqID(r.Context())
			s.writeErrorResponse(w, http.StatusForbidden, api.ORIGINNOTALLOWED,
				fmt.Sprintf("Origin %s is not allowed", origin), &requestID, nil)
			return
		}

		if wildcard {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) (allowed, wildcard bool) {
	for _, o := range s.AllowedOrigins {
		if o == "*" {
			return true, true
		}
		if o == origin {
			return true, false
		}
	}
	return false, false
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// DiceImage runs one dice job synchronously and responds with its report.
// Tile failures do not change the status code; they are listed in the body.
func (s *Server) DiceImage(w http.ResponseWriter, r *http.Request, params api.DiceImageParams) {
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = generateRequestID()
	}

	var req api.DiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, api.INVALIDJSON,
			"Invalid JSON in request body", &requestID, nil)
		return
	}

	opts, err := s.convertToOptions(&req, params)
	var rootErr *OutsideRootError
	switch {
	case errors.As(err, &rootErr):
		s.writeErrorResponse(w, http.StatusForbidden, api.PATHOUTSIDEROOT, err.Error(), &requestID,
			map[string]interface{}{"field": rootErr.Field})
		return
	case err != nil:
		s.writeErrorResponse(w, http.StatusBadRequest, api.VALIDATIONERROR, err.Error(), &requestID, nil)
		return
	}

	d, err := dice.New(opts, s.newDriver(opts.ImagePath))
	if err != nil {
		s.metrics.observe(nil, "rejected", 0)
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, api.CONFIGURATIONERROR, err.Error(), &requestID, nil)
		return
	}
	d.Out = io.Discard
	d.Logger = log.New(os.Stderr, fmt.Sprintf("[%s] ", requestID), log.LstdFlags)
	d.Publisher = s.Publisher

	start := time.Now()
	report, err := d.Run(r.Context())
	elapsed := time.Since(start)

	if err != nil && !isTileError(err) {
		s.metrics.observe(report, "error", elapsed)
		s.handleRunError(w, err, &requestID)
		return
	}

	outcome := "success"
	if len(report.Failures()) > 0 {
		outcome = "partial"
	}
	s.metrics.observe(report, outcome, elapsed)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(toResponse(report, &requestID)); err != nil {
		log.Printf("Error encoding dice response: %v", err)
	}
}

func (s *Server) convertToOptions(req *api.DiceRequest, params api.DiceImageParams) (dice.Options, error) {
	opts := dice.Options{
		ImagePath: req.Image,
		IndexPath: req.TileIndex,
		OutDir:    req.OutDir,
		Threads:   1,
	}
	if req.Image == "" {
		return opts, fmt.Errorf("image is required")
	}
	if req.TileIndex == "" {
		return opts, fmt.Errorf("tile_index is required")
	}
	if req.OutDir == "" {
		return opts, fmt.Errorf("out_dir is required")
	}
	for _, p := range []struct {
		field string
		path  *string
	}{
		{"image", &opts.ImagePath},
		{"tile_index", &opts.IndexPath},
		{"out_dir", &opts.OutDir},
	} {
		resolved, err := s.resolvePath(p.field, *p.path)
		if err != nil {
			return opts, err
		}
		*p.path = resolved
	}

	if params.Threads != nil {
		if *params.Threads < 1 {
			return opts, fmt.Errorf("threads must be at least 1")
		}
		opts.Threads = *params.Threads
	}
	if s.MaxThreads > 0 && opts.Threads > s.MaxThreads {
		opts.Threads = s.MaxThreads
	}

	if req.Prefix != nil {
		if strings.ContainsAny(*req.Prefix, `/\`) {
			return opts, fmt.Errorf("prefix must be a file name, got %q", *req.Prefix)
		}
		opts.Prefix = *req.Prefix
	}
	if req.FailFast != nil {
		opts.FailFast = *req.FailFast
	}
	if req.SkipInvalid != nil {
		opts.SkipInvalid = *req.SkipInvalid
	}
	if req.Worldfile != nil {
		opts.WorldFile = *req.Worldfile
	}
	return opts, nil
}

func isTileError(err error) bool {
	var terr *dice.TileError
	return errors.As(err, &terr)
}

// handleRunError maps errors that aborted a job to a status code.
func (s *Server) handleRunError(w http.ResponseWriter, err error, requestID *string) {
	var cerr *dice.ConfigurationError
	var gerr *tileindex.GeometryError

	switch {
	case errors.As(err, &cerr):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, api.CONFIGURATIONERROR, err.Error(), requestID, nil)
	case errors.As(err, &gerr):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, api.INVALIDTILEINDEX, err.Error(), requestID,
			map[string]interface{}{
				"record": gerr.ID,
				"type":   gerr.Type,
			})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, api.TIMEOUT,
			"Dice job did not finish in time", requestID, nil)
	default:
		s.writeErrorResponse(w, http.StatusInternalServerError, api.INTERNALERROR,
			"Internal server error", requestID, nil)
	}
}

func toResponse(report *dice.Report, requestID *string) api.DiceResponse {
	written := report.Written()
	failures := report.Failures()

	resp := api.DiceResponse{
		Written:   len(written),
		Skipped:   report.Skipped(),
		Failed:    len(failures),
		Invalid:   report.Invalid(),
		Cancelled: report.Cancelled(),
		Tiles:     written,
		Errors:    make([]api.TileFailure, 0, len(failures)),
		RequestId: requestID,
	}
	if resp.Tiles == nil {
		resp.Tiles = []string{}
	}
	for _, f := range failures {
		resp.Errors = append(resp.Errors, api.TileFailure{
			Id:    f.Tile.ID,
			Path:  f.Path,
			Error: f.Err.Error(),
		})
	}
	return resp
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
