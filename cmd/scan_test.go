package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"yap/pkg/channel/slack"
)

func TestWriteHistory(t *testing.T) {
	t.Parallel()

	history := slack.History{
		Messages:      []slack.HistoryMessage{{Text: "hi", User: "U1", TS: "1.0"}},
		TotalMessages: 1,
		TopReactions:  []slack.ReactionCount{{Name: "eyes", Count: 2}},
	}

	var stdout bytes.Buffer
	require.NoError(t, writeHistory(&stdout, "", history))

	var decoded slack.History
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	require.Equal(t, 1, decoded.TotalMessages)
	require.Equal(t, "eyes", decoded.TopReactions[0].Name)

	path := filepath.Join(t.TempDir(), "history.json")
	stdout.Reset()
	require.NoError(t, writeHistory(&stdout, path, history))
	require.Zero(t, stdout.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"total_messages": 1`)
}
