package workspace

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"yap/pkg/conversation"
)

//go:embed templates/config.json templates/env.example
var templates embed.FS

// Status reports what Scaffold did with one file.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
)

// File is one scaffolded file and its outcome.
type File struct {
	Path   string
	Status Status
}

type starter struct {
	name    string
	mode    os.FileMode
	content func() ([]byte, error)
}

// Scaffold writes starter config.json, messages.json and .env.example
// into root. Existing files are left alone unless force is set.
func Scaffold(root string, force bool) ([]File, error) {
	resolved, err := ResolveRoot(root)
	if err != nil {
		return nil, err
	}

	starters := []starter{
		{name: "config.json", mode: 0o600, content: embedded("templates/config.json")},
		{name: "messages.json", mode: 0o644, content: defaultMessages},
		{name: ".env.example", mode: 0o600, content: embedded("templates/env.example")},
	}

	files := make([]File, 0, len(starters))
	for _, s := range starters {
		path := filepath.Join(resolved, s.name)
		if !force {
			if _, statErr := os.Lstat(path); statErr == nil {
				files = append(files, File{Path: path, Status: StatusSkipped})
				continue
			} else if !os.IsNotExist(statErr) {
				return files, NormalizeIOError(statErr, "stat")
			}
		}

		data, err := s.content()
		if err != nil {
			return files, err
		}
		if err := atomicWrite(path, data, s.mode); err != nil {
			return files, NormalizeIOError(err, "write")
		}
		files = append(files, File{Path: path, Status: StatusWritten})
	}

	return files, nil
}

func embedded(name string) func() ([]byte, error) {
	return func() ([]byte, error) {
		return templates.ReadFile(name)
	}
}

func defaultMessages() ([]byte, error) {
	script, err := conversation.Default()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(script.Messages, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	return append(data, '\n'), nil
}

// ResolveRoot normalizes a target directory and creates it when missing.
// An empty path means the working directory.
func ResolveRoot(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = "."
	}

	expanded, err := expandHome(trimmed)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", NewError(ErrorInvalidPath, "path could not be resolved")
	}

	cleanPath := filepath.Clean(absPath)
	if info, statErr := os.Stat(cleanPath); statErr == nil && !info.IsDir() {
		return "", NewError(ErrorNotDirectory, cleanPath)
	}
	if err := os.MkdirAll(cleanPath, 0o755); err != nil {
		return "", NormalizeIOError(err, "create directory")
	}

	resolved, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		return "", NormalizeIOError(err, "resolve directory")
	}

	return filepath.Clean(resolved), nil
}

func expandHome(path string) (string, error) {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}

	prefix := "~" + string(filepath.Separator)
	if strings.HasPrefix(path, prefix) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, prefix)), nil
	}

	return path, nil
}

// atomicWrite replaces path via a temp file in the same directory so a
// reader never sees a partial file.
func atomicWrite(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".yap-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		_ = tmp.Close()
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	cleanup = false
	return nil
}
