package audio

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPromptGate_GrantIsRemembered(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state", "permissions.yaml")
	out := &bytes.Buffer{}
	gate := &PromptGate{In: strings.NewReader("y\n"), Out: out, File: file}

	d, err := gate.Request(context.Background())
	require.NoError(t, err)
	require.Equal(t, DecisionGranted, d)
	require.Contains(t, out.String(), "microphone")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), "granted")

	// A fresh gate reads the stored answer without prompting
	fresh := &PromptGate{In: strings.NewReader(""), Out: io.Discard, File: file}
	d, err = fresh.Request(context.Background())
	require.NoError(t, err)
	require.Equal(t, DecisionGranted, d)
}

func TestPromptGate_AnythingElseDenies(t *testing.T) {
	for _, answer := range []string{"n\n", "\n", "maybe\n", ""} {
		gate := &PromptGate{In: strings.NewReader(answer), Out: io.Discard}
		d, err := gate.Request(context.Background())
		require.NoError(t, err)
		require.Equal(t, DecisionDenied, d, "answer %q", answer)
	}
}

func TestPromptGate_AsksOnlyOnce(t *testing.T) {
	gate := &PromptGate{In: strings.NewReader("yes\nno\n"), Out: io.Discard}

	for i := 0; i < 3; i++ {
		d, err := gate.Request(context.Background())
		require.NoError(t, err)
		require.Equal(t, DecisionGranted, d)
	}
}

func TestPromptGate_ContextCanceled(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	gate := &PromptGate{In: r, Out: io.Discard}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := gate.Request(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, DecisionUndetermined, d)
}

func TestPromptGate_IgnoresCorruptFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "permissions.yaml")
	require.NoError(t, os.WriteFile(file, []byte("microphone: [unclosed"), 0600))

	gate := &PromptGate{In: strings.NewReader("n\n"), Out: io.Discard, File: file}
	d, err := gate.Request(context.Background())
	require.NoError(t, err)
	require.Equal(t, DecisionDenied, d)
}

func TestStaticGate(t *testing.T) {
	d, err := StaticGate(DecisionDenied).Request(context.Background())
	require.NoError(t, err)
	require.Equal(t, DecisionDenied, d)
}
