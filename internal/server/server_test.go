package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/audiolibrelab/claudio/internal/audio"
	"github.com/audiolibrelab/claudio/internal/catalog"
	"github.com/audiolibrelab/claudio/internal/config"
	"github.com/audiolibrelab/claudio/internal/play"
	"github.com/audiolibrelab/claudio/internal/service"
	"github.com/audiolibrelab/claudio/internal/session"
)

type fakeService struct {
	recording bool
	routing   session.Routing
	recs      map[string]catalog.Recording
	startErr  error
	pauseErr  error
	deleted   []string
	purged    bool
	played    []string
}

func newFakeService() *fakeService {
	return &fakeService{recs: map[string]catalog.Recording{}}
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (f *fakeService) StartRecording(ctx context.Context) (catalog.Recording, error) {
	if f.startErr != nil {
		return catalog.Recording{}, f.startErr
	}
	f.recording = true
	rec := catalog.NewRecording("/rec", "2024-01-01T00:00:00Z", t0)
	f.recs[rec.Identifier] = rec
	return rec, nil
}

func (f *fakeService) StopRecording(ctx context.Context) error {
	f.recording = false
	return nil
}

func (f *fakeService) ToggleRecording(ctx context.Context) (bool, error) {
	if f.recording {
		return false, f.StopRecording(ctx)
	}
	_, err := f.StartRecording(ctx)
	return err == nil, err
}

func (f *fakeService) Play(ctx context.Context, id string) (catalog.Recording, error) {
	if id == "" {
		return catalog.Recording{}, service.ErrNoRecordings
	}
	rec, ok := f.recs[id]
	if !ok {
		return catalog.Recording{}, catalog.ErrNotFound
	}
	f.played = append(f.played, id)
	return rec, nil
}

func (f *fakeService) TogglePause() error                     { return f.pauseErr }
func (f *fakeService) StopPlayback(ctx context.Context) error { return nil }
func (f *fakeService) SetPlaybackSource(r session.Routing)    { f.routing = r }
func (f *fakeService) GetConfig() *config.Config              { return config.DefaultConfig() }
func (f *fakeService) GetLastError() string                   { return "" }
func (f *fakeService) Watch(ctx context.Context)              { <-ctx.Done() }
func (f *fakeService) Close() error                           { return nil }

func (f *fakeService) SetSessionMode(context.Context, session.Mode) {}

func (f *fakeService) TogglePlaybackSource() session.Routing {
	f.routing = f.routing.Toggle()
	return f.routing
}

func (f *fakeService) ListRecordings(ctx context.Context) ([]service.RecordingInfo, error) {
	var out []service.RecordingInfo
	for _, rec := range f.recs {
		out = append(out, service.RecordingInfo{Recording: rec})
	}
	return out, nil
}

func (f *fakeService) DeleteRecording(ctx context.Context, purge bool, ids ...string) error {
	f.deleted = append(f.deleted, ids...)
	f.purged = purge
	for _, id := range ids {
		delete(f.recs, id)
	}
	return nil
}

func (f *fakeService) Status() service.Status {
	return service.Status{Recording: f.recording, Routing: f.routing.String(), Mode: "playback(earpiece)"}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func newTestHandler(svc service.Service) http.Handler {
	return New(svc, config.ServerConfig{Port: "0"}).Handler()
}

func TestServer_RecordToggleAndStatus(t *testing.T) {
	svc := newFakeService()
	h := newTestHandler(svc)

	rec := do(t, h, http.MethodPost, "/record")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[RecordResponse](t, rec).Recording)

	status := decode[service.Status](t, do(t, h, http.MethodGet, "/status"))
	require.True(t, status.Recording)

	rec = do(t, h, http.MethodPost, "/record")
	require.False(t, decode[RecordResponse](t, rec).Recording)
}

func TestServer_StartReturnsEntry(t *testing.T) {
	h := newTestHandler(newFakeService())

	rec := do(t, h, http.MethodPost, "/record/start")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RecordResponse](t, rec)
	require.NotNil(t, resp.Entry)
	require.Equal(t, "2024-01-01T00:00:00Z", resp.Entry.Identifier)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/record/stop").Code)
}

func TestServer_ErrorStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{audio.ErrPermissionDenied, http.StatusForbidden},
		{audio.ErrAlreadyRecording, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", session.ErrUnavailable), http.StatusConflict},
		{fmt.Errorf("%w: no ffmpeg", audio.ErrCaptureUnavailable), http.StatusServiceUnavailable},
		{catalog.ErrDuplicate, http.StatusConflict},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := newFakeService()
			svc.startErr = tt.err
			rec := do(t, newTestHandler(svc), http.MethodPost, "/record/start")
			require.Equal(t, tt.want, rec.Code)

			resp := decode[GenericResponse](t, rec)
			require.False(t, resp.Success)
			require.Contains(t, resp.Error, tt.err.Error())
		})
	}
}

func TestServer_Play(t *testing.T) {
	svc := newFakeService()
	svc.recs["clip"] = catalog.NewRecording("/rec", "clip", t0)
	h := newTestHandler(svc)

	rec := do(t, h, http.MethodPost, "/play?id=clip")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[PlayResponse](t, rec)
	require.Equal(t, "clip", resp.Entry.Identifier)
	require.Equal(t, "earpiece", resp.Routing)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/play?id=missing").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/play").Code)
}

func TestServer_PauseNothingLoaded(t *testing.T) {
	svc := newFakeService()
	svc.pauseErr = play.ErrNothingLoaded
	rec := do(t, newTestHandler(svc), http.MethodPost, "/pause")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_ToggleSource(t *testing.T) {
	h := newTestHandler(newFakeService())

	resp := decode[GenericResponse](t, do(t, h, http.MethodPost, "/source"))
	require.Equal(t, "speaker", resp.Message)
	resp = decode[GenericResponse](t, do(t, h, http.MethodPost, "/source"))
	require.Equal(t, "earpiece", resp.Message)
}

func TestServer_RecordingsListAndDelete(t *testing.T) {
	svc := newFakeService()
	h := newTestHandler(svc)

	resp := decode[RecordingsResponse](t, do(t, h, http.MethodGet, "/recordings"))
	require.NotNil(t, resp.Recordings)
	require.Zero(t, resp.TotalCount)

	svc.recs["2024-01-01T00:00:00Z"] = catalog.NewRecording("/rec", "2024-01-01T00:00:00Z", t0)
	resp = decode[RecordingsResponse](t, do(t, h, http.MethodGet, "/recordings"))
	require.Equal(t, 1, resp.TotalCount)

	rec := do(t, h, http.MethodDelete, "/recordings/2024-01-01T00:00:00Z?purge=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"2024-01-01T00:00:00Z"}, svc.deleted)
	require.True(t, svc.purged)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	rec := do(t, newTestHandler(newFakeService()), http.MethodGet, "/record")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.False(t, decode[GenericResponse](t, rec).Success)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	h := newTestHandler(newFakeService())

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)

	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestServer_RateLimit(t *testing.T) {
	h := New(newFakeService(), config.ServerConfig{Port: "0", RateLimit: 2}).Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)

	rec := do(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New(newFakeService(), config.ServerConfig{Port: "0"})
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestServer_StartAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New(newFakeService(), config.ServerConfig{Port: "0"})
	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.Eventually(t, s.started, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	require.NoError(t, <-done)
}
