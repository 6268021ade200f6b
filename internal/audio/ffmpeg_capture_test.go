package audio

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// writeScript creates an executable shell script standing in for an
// external tool.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

// scriptCapture builds a capture through the PipeWire backend with ffmpeg
// replaced by script. The output path is the script's last argument.
func scriptCapture(t *testing.T, body string) (*ffmpegCapture, string) {
	t.Helper()
	script := writeScript(t, body)
	out := filepath.Join(t.TempDir(), "2024-01-01T00:00:00Z")

	backend := NewPipeWireBackend("default", io.Discard)
	backend.lookPath = func(string) (string, error) { return script, nil }

	c, err := backend.NewCapture(out, DefaultFormat())
	require.NoError(t, err)
	return c.(*ffmpegCapture), out
}

const lastArg = "for out; do :; done\n"

func TestFFmpegCapture_InterruptFinalizesFile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, out := scriptCapture(t, lastArg+`
trap 'kill $! 2>/dev/null; printf audio > "$out"; exit 255' INT
sleep 30 >/dev/null 2>&1 &
wait
`)

	require.NoError(t, c.Start())
	require.True(t, c.IsRecording())

	require.NoError(t, c.Stop())
	require.False(t, c.IsRecording())
	require.NoError(t, c.Err())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "audio", string(data))

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	require.NoError(t, c.Stop(), "second stop is a no-op")
}

func TestFFmpegCapture_StartupFailureReportsStderr(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, _ := scriptCapture(t, `
echo "default: No such entity" >&2
exit 1
`)

	err := c.Start()
	require.Error(t, err)
	require.ErrorContains(t, err, "No such entity")
	require.False(t, c.IsRecording())
	require.NoError(t, c.Stop())
}

func TestFFmpegCapture_EmptyFileIsAnError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, _ := scriptCapture(t, `
trap 'kill $! 2>/dev/null; exit 255' INT
sleep 30 >/dev/null 2>&1 &
wait
`)

	require.NoError(t, c.Start())
	err := c.Stop()
	require.ErrorContains(t, err, "empty or missing")
	require.NoError(t, c.Err())
}

func TestFFmpegCapture_KillsWhenInterruptIgnored(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, _ := scriptCapture(t, `
trap '' INT
exec sleep 30
`)
	c.stopTimeout = 200 * time.Millisecond

	require.NoError(t, c.Start())

	start := time.Now()
	err := c.Stop()
	require.Less(t, time.Since(start), 5*time.Second)
	require.ErrorContains(t, err, "empty or missing")
	require.False(t, c.IsRecording())
	require.NoError(t, c.Err(), "a requested stop is not a capture failure")
}

func TestFFmpegCapture_DiesAfterStartup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, _ := scriptCapture(t, `
sleep 1
echo "device unplugged" >&2
exit 1
`)

	require.NoError(t, c.Start())

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not end")
	}
	require.False(t, c.IsRecording())
	require.ErrorContains(t, c.Err(), "device unplugged")
}

func TestFFmpegCapture_CleanExitIsUnexpected(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c, _ := scriptCapture(t, "exit 0\n")

	err := c.Start()
	require.ErrorContains(t, err, "ended unexpectedly")
}
