package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"yap/pkg/config"
)

const (
	envLogFormat    = "YAP_LOG_FORMAT"
	envLogLevel     = "YAP_LOG_LEVEL"
	envLogAddSource = "YAP_LOG_ADD_SOURCE"
)

// settings is the logging config after environment overrides.
type settings struct {
	format    string
	level     slog.Level
	addSource bool
}

func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	if s.format == "json" {
		return slog.New(newEntryHandler(writer, s)), nil
	}

	// charm levels share slog's numbering.
	pretty := charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLog.Level(s.level),
		ReportTimestamp: true,
		ReportCaller:    s.addSource,
		Formatter:       charmLog.TextFormatter,
	})
	return slog.New(redactingHandler{next: pretty}), nil
}

func resolve(cfg config.LoggingConfig) (settings, error) {
	s := settings{
		format:    strings.ToLower(envOr(envLogFormat, cfg.Format)),
		addSource: cfg.AddSource,
	}
	switch s.format {
	case "":
		s.format = "text"
	case "text", "json":
	default:
		return settings{}, fmt.Errorf("unsupported log format %q", s.format)
	}

	levelText := strings.ToLower(envOr(envLogLevel, cfg.Level))
	switch levelText {
	case "":
		levelText = "info"
	case "warning":
		levelText = "warn"
	}
	if err := s.level.UnmarshalText([]byte(levelText)); err != nil {
		return settings{}, fmt.Errorf("unsupported log level %q", levelText)
	}

	if value := envOr(envLogAddSource, ""); value != "" {
		s.addSource, _ = strconv.ParseBool(value)
	}
	return s, nil
}

// envOr prefers a non-blank environment variable over the configured value.
func envOr(key string, configured string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(configured)
}
