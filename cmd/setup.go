package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"yap/pkg/channel/slack"
	"yap/pkg/config"
	"yap/pkg/conversation"
	"yap/pkg/identity"
	"yap/pkg/logger"
)

// app bundles what every posting or reading command needs.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	selector *identity.Selector
}

func loadApp(component string) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	strategy, err := identity.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	selector, err := identity.NewSelector(cfg.Identities(), strategy)
	if err != nil {
		return nil, fmt.Errorf("configure users: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      slog.Default().With("component", component),
		selector: selector,
	}, nil
}

func (a *app) client() (*slack.Client, error) {
	transport := slack.NewHTTPTransport(a.cfg.Delivery.UserAgent, a.cfg.Delivery.RequestsPerSecond)
	return slack.NewClient(transport, slack.Options{
		BaseURL:         a.cfg.Workspace.OrgURL,
		TeamID:          a.cfg.Workspace.TeamID,
		PostTimeout:     a.cfg.Delivery.RequestTimeout(),
		ReactionTimeout: a.cfg.Delivery.ReactionTimeout(),
	}, slog.Default())
}

// loadScript resolves the messages file: flag first, then config, then
// messages.json in the working directory.
func (a *app) loadScript(flagPath string, limit int) (conversation.Script, error) {
	path := strings.TrimSpace(flagPath)
	if path == "" {
		path = strings.TrimSpace(a.cfg.MessagesPath)
	}
	if path == "" {
		path = defaultMessagesPath
	}

	script, err := conversation.Load(path)
	if err != nil {
		return conversation.Script{}, err
	}
	script.Messages = limitMessages(script.Messages, limit)
	a.log.Info("Loaded messages", "source", script.Source, "messages", len(script.Messages), "posts", script.Posts())
	return script, nil
}

const defaultMessagesPath = "messages.json"

func limitMessages(messages []conversation.Message, limit int) []conversation.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[:limit]
}
