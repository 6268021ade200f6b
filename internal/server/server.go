package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/claudio/internal/audio"
	"github.com/audiolibrelab/claudio/internal/catalog"
	"github.com/audiolibrelab/claudio/internal/config"
	"github.com/audiolibrelab/claudio/internal/play"
	"github.com/audiolibrelab/claudio/internal/service"
	"github.com/audiolibrelab/claudio/internal/session"
)

// Server exposes the service as a small JSON control API.
type Server struct {
	service   service.Service
	port      string
	rateLimit int

	mu         sync.Mutex
	httpServer *http.Server
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// RecordResponse is returned by the recording endpoints.
type RecordResponse struct {
	Success   bool               `json:"success"`
	Recording bool               `json:"recording"`
	Entry     *catalog.Recording `json:"entry,omitempty"`
}

// PlayResponse is returned by POST /play.
type PlayResponse struct {
	Success bool              `json:"success"`
	Entry   catalog.Recording `json:"entry"`
	Routing string            `json:"routing"`
}

// RecordingsResponse represents the JSON response for the catalog listing
type RecordingsResponse struct {
	Recordings []service.RecordingInfo `json:"recordings"`
	TotalCount int                     `json:"total_count"`
	Directory  string                  `json:"directory"`
}

// New creates a new web server instance
func New(svc service.Service, cfg config.ServerConfig) *Server {
	return &Server{
		service:   svc,
		port:      cfg.Port,
		rateLimit: cfg.RateLimit,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.rateLimit > 0 {
		r.Use(rateLimit(s.rateLimit, time.Minute))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", s.handleStatus)
	r.Post("/record", s.handleToggleRecording)
	r.Post("/record/start", s.handleStartRecording)
	r.Post("/record/stop", s.handleStopRecording)
	r.Post("/play", s.handlePlay)
	r.Post("/pause", s.handleTogglePause)
	r.Post("/stop", s.handleStopPlayback)
	r.Post("/source", s.handleToggleSource)
	r.Get("/recordings", s.handleRecordings)
	r.Delete("/recordings/{id}", s.handleDeleteRecording)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "path", r.URL.Path)
	})
	return r
}

// rateLimit limits requests per client IP with a JSON 429 response.
func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, GenericResponse{
				Success: false,
				Error:   "Too many requests. Please try again later.",
			})
		}),
	)
}

// Start starts the web server and blocks until it is shut down.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	// Get local IP address
	localIP := getLocalIP()

	slog.Info("Starting claudio web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpServer != nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "ok"})
}

// handleStatus returns what the recorder, player and session are doing
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

// handleToggleRecording starts or stops recording
func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request) {
	recording, err := s.service.ToggleRecording(r.Context())
	if err != nil {
		s.sendServiceError(w, "Failed to toggle recording", err, "operation", "toggle_recording")
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Success: true, Recording: recording})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.StartRecording(r.Context())
	if err != nil {
		s.sendServiceError(w, "Failed to start recording", err, "operation", "start_recording")
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Success: true, Recording: true, Entry: &rec})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StopRecording(r.Context()); err != nil {
		s.sendServiceError(w, "Failed to stop recording", err, "operation", "stop_recording")
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Success: true, Recording: false})
}

// handlePlay plays ?id=, or the newest recording without one
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	rec, err := s.service.Play(r.Context(), id)
	if err != nil {
		s.sendServiceError(w, "Failed to play", err, "operation", "play", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, PlayResponse{
		Success: true,
		Entry:   rec,
		Routing: s.service.Status().Routing,
	})
}

func (s *Server) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	if err := s.service.TogglePause(); err != nil {
		s.sendServiceError(w, "Failed to toggle pause", err, "operation", "toggle_pause")
		return
	}
	writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StopPlayback(r.Context()); err != nil {
		s.sendServiceError(w, "Failed to stop playback", err, "operation", "stop_playback")
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Playback stopped"})
}

// handleToggleSource flips earpiece/speaker for the next playback
func (s *Server) handleToggleSource(w http.ResponseWriter, r *http.Request) {
	routing := s.service.TogglePlaybackSource()
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: routing.String()})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.ListRecordings(r.Context())
	if err != nil {
		s.sendServiceError(w, "Failed to list recordings", err, "operation", "list_recordings")
		return
	}
	if recs == nil {
		recs = []service.RecordingInfo{}
	}
	writeJSON(w, http.StatusOK, RecordingsResponse{
		Recordings: recs,
		TotalCount: len(recs),
		Directory:  s.service.GetConfig().Output.Directory,
	})
}

// handleDeleteRecording removes a catalog entry; ?purge=true removes the file too
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid recording identifier")
		return
	}
	purge := r.URL.Query().Get("purge") == "true"

	if err := s.service.DeleteRecording(r.Context(), purge, id); err != nil {
		s.sendServiceError(w, "Failed to delete recording", err, "operation", "delete_recording", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: fmt.Sprintf("Deleted %s", id)})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, service.ErrNoRecordings):
		return http.StatusNotFound
	case errors.Is(err, audio.ErrAlreadyRecording),
		errors.Is(err, catalog.ErrDuplicate),
		errors.Is(err, play.ErrNothingLoaded),
		errors.Is(err, session.ErrUnavailable):
		return http.StatusConflict
	case errors.Is(err, audio.ErrCaptureUnavailable),
		errors.Is(err, audio.ErrCaptureFailed),
		errors.Is(err, play.ErrPlayerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendServiceError(w http.ResponseWriter, msg string, err error, logContext ...any) {
	s.sendErrorResponse(w, statusFor(err), fmt.Sprintf("%s: %v", msg, err), logContext...)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...any) {
	logFields := []any{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, GenericResponse{Success: false, Error: errorMsg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
