package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"yap/pkg/config"
	"yap/pkg/conversation"
)

func TestResolveRootExpandsHomeAndCreatesDirectory(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	root, err := ResolveRoot("~/chatter")
	if err != nil {
		t.Fatalf("ResolveRoot error: %v", err)
	}

	want, err := filepath.EvalSymlinks(filepath.Join(homeDir, "chatter"))
	if err != nil {
		t.Fatalf("EvalSymlinks error: %v", err)
	}
	if root != want {
		t.Fatalf("ResolveRoot root = %q, want %q", root, want)
	}

	if info, statErr := os.Stat(root); statErr != nil || !info.IsDir() {
		t.Fatalf("directory missing: %v", statErr)
	}
}

func TestResolveRootRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err := ResolveRoot(path)
	if CategoryFromError(err) != ErrorNotDirectory {
		t.Fatalf("error category = %q, want %q", CategoryFromError(err), ErrorNotDirectory)
	}
}

func TestScaffoldWritesLoadableFiles(t *testing.T) {
	dir := t.TempDir()

	files, err := Scaffold(dir, false)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for _, f := range files {
		require.Equal(t, StatusWritten, f.Status, f.Path)
	}

	script, err := conversation.Load(filepath.Join(dir, "messages.json"))
	require.NoError(t, err)
	builtin, err := conversation.Default()
	require.NoError(t, err)
	require.Equal(t, builtin.Messages, script.Messages)

	t.Setenv("YAP_CONFIG", filepath.Join(dir, "config.json"))
	for _, key := range []string{"SLACK_ORG_URL", "SLACK_CHANNEL_ID", "SLACK_TEAM_ID", "SLACK_XOXC_TOKEN", "SLACK_XOXD_TOKEN"} {
		t.Setenv(key, "")
	}
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Users, 2)

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestScaffoldKeepsExistingFilesUnlessForced(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte(`{"mine": true}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	files, err := Scaffold(dir, false)
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, files[0].Status)
	require.Equal(t, StatusWritten, files[1].Status)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, `{"mine": true}`, string(data))

	files, err = Scaffold(dir, true)
	require.NoError(t, err)
	require.Equal(t, StatusWritten, files[0].Status)

	data, err = os.ReadFile(configPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"workspace"`)
}

func TestNormalizeIOErrorKeepsPath(t *testing.T) {
	_, statErr := os.Stat(filepath.Join(t.TempDir(), "missing"))
	err := NormalizeIOError(statErr, "stat")

	if CategoryFromError(err) != ErrorPathNotFound {
		t.Fatalf("error category = %q, want %q", CategoryFromError(err), ErrorPathNotFound)
	}
	require.Contains(t, err.Error(), "missing")
}
