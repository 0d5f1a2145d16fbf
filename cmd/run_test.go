package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"yap/pkg/session"
)

func TestDelayFlagPrefersExplicitFlag(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	var delay, reply float64
	flags.Float64Var(&delay, "delay", 2, "")
	flags.Float64Var(&reply, "reply-delay", 1, "")
	require.NoError(t, flags.Parse([]string{"--delay", "0.25"}))

	require.Equal(t, 250*time.Millisecond, delayFlag(flags, "delay", delay, 3*time.Second))
	require.Equal(t, 3*time.Second, delayFlag(flags, "reply-delay", reply, 3*time.Second))
}

func TestDelayFlagClampsNegative(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	var delay float64
	flags.Float64Var(&delay, "delay", 2, "")
	require.NoError(t, flags.Parse([]string{"--delay=-1"}))

	require.Zero(t, delayFlag(flags, "delay", delay, time.Second))
}

func TestEventBufferCoversReactions(t *testing.T) {
	t.Parallel()

	if got := eventBuffer(0); got != 16 {
		t.Fatalf("eventBuffer(0) = %d, want 16", got)
	}
	if got := eventBuffer(50); got != 216 {
		t.Fatalf("eventBuffer(50) = %d, want 216", got)
	}
}

func TestWriteTranscript(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "transcript.json")
	entries := []session.Entry{
		{Message: 1, User: "alice", TS: "1.1", Text: "hi"},
		{Message: 1, Reply: 1, User: "bob", TS: "1.2", ThreadTS: "1.1", Text: "hey"},
	}
	require.NoError(t, writeTranscript(path, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []session.Entry
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	require.Equal(t, "1.1", got[1].ThreadTS)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteTranscriptEmptyIsArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "transcript.json")
	require.NoError(t, writeTranscript(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(data))
}
