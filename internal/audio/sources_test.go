package audio

import (
	"context"
	"errors"
	"testing"
)

const pactlSources = `49	alsa_output.pci-0000_00_1f.3.analog-stereo.monitor	PipeWire	s32le 2ch 48000Hz	SUSPENDED
50	alsa_input.pci-0000_00_1f.3.analog-stereo	PipeWire	s32le 2ch 48000Hz	RUNNING

garbage-line
`

func TestParseSources(t *testing.T) {
	sources := parseSources(pactlSources)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}

	if sources[0].Index != "49" {
		t.Errorf("expected index 49, got %s", sources[0].Index)
	}
	if !sources[0].IsMonitor() {
		t.Errorf("expected %s to be a monitor source", sources[0].Name)
	}
	if sources[1].IsMonitor() {
		t.Errorf("expected %s not to be a monitor source", sources[1].Name)
	}
	if sources[1].State != "RUNNING" {
		t.Errorf("expected RUNNING state, got %s", sources[1].State)
	}
}

func TestFindSource(t *testing.T) {
	sources := parseSources(pactlSources)

	if err := findSource("alsa_input.pci-0000_00_1f.3.analog-stereo", sources); err != nil {
		t.Errorf("expected source to be found: %v", err)
	}
	if err := findSource("bluez_input.headset", sources); err == nil {
		t.Error("expected missing source to fail")
	}
}

func TestParseSources_Empty(t *testing.T) {
	if sources := parseSources(""); len(sources) != 0 {
		t.Errorf("expected no sources, got %d", len(sources))
	}
}

func TestPipeWireBackend_ValidateSource(t *testing.T) {
	pactl := writeScript(t, "cat <<'OUT'\n"+pactlSources+"OUT\n")

	backend := NewPipeWireBackend("alsa_input.pci-0000_00_1f.3.analog-stereo", nil)
	backend.lookPath = func(string) (string, error) { return pactl, nil }
	if err := backend.ValidateSource(context.Background()); err != nil {
		t.Errorf("expected configured source to be valid: %v", err)
	}

	backend.Source = "bluez_input.headset"
	if err := backend.ValidateSource(context.Background()); err == nil {
		t.Error("expected unknown source to fail")
	}

	backend.Source = "default"
	backend.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	if err := backend.ValidateSource(context.Background()); err != nil {
		t.Errorf("expected default source to pass without pactl: %v", err)
	}
}

func TestPipeWireBackend_ListSourcesWithoutPactl(t *testing.T) {
	backend := NewPipeWireBackend("", nil)
	backend.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	if _, err := backend.ListSources(context.Background()); err == nil {
		t.Error("expected missing pactl to fail")
	}
}
