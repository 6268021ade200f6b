package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recording metrics
	recordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudio_recordings_total",
		Help: "Recording start attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	recordingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudio_recording_failures_total",
		Help: "Recording failures by reason",
	}, []string{"reason"}) // reason=permission|capture|session|catalog|encode|other

	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "claudio_recording_active",
		Help: "Whether a recording is in progress (1) or not (0)",
	})

	// Playback metrics
	playbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudio_playback_total",
		Help: "Playback start attempts by outcome",
	}, []string{"outcome"})

	playbackFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudio_playback_finished_total",
		Help: "Playbacks that reached the end, by outcome",
	}, []string{"outcome"})

	// Session metrics
	sessionModeChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudio_session_mode_changes_total",
		Help: "Session mode applications by target mode",
	}, []string{"mode"})

	sessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claudio_session_errors_total",
		Help: "Audio session hardware failures by operation",
	}, []string{"op"}) // op=set_mode|set_active

	// Catalog metrics
	catalogRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "claudio_catalog_recordings",
		Help: "Number of recordings in the catalog (last listing)",
	})
)

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func IncRecording(ok bool) { recordingsTotal.WithLabelValues(outcome(ok)).Inc() }

func IncRecordingFailure(reason string) { recordingFailures.WithLabelValues(reason).Inc() }

func SetRecordingActive(active bool) {
	if active {
		recordingActive.Set(1)
	} else {
		recordingActive.Set(0)
	}
}

func IncPlayback(ok bool)         { playbackTotal.WithLabelValues(outcome(ok)).Inc() }
func IncPlaybackFinished(ok bool) { playbackFinished.WithLabelValues(outcome(ok)).Inc() }

// ObserveSession matches the session controller's observer signature.
func ObserveSession(op string, mode string, err error) {
	if op == "set_mode" {
		sessionModeChanges.WithLabelValues(mode).Inc()
	}
	if err != nil {
		sessionErrors.WithLabelValues(op).Inc()
	}
}

func RecordCatalogSize(n int) { catalogRecordings.Set(float64(n)) }
