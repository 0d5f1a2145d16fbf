package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yap/pkg/bus"
	"yap/pkg/session"
	"yap/pkg/ui/progress"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type runFlags struct {
	messages      string
	user          string
	delay         float64
	replyDelay    float64
	reactionDelay float64
	limit         int
	tui           bool
	transcript    string
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Post the conversation to the configured channel",
	Long:  "Loads configuration and messages, then posts every message, its reactions and its threaded replies in order, rotating through the configured users.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		a, err := loadApp("cmd.run")
		if err != nil {
			return err
		}

		script, err := a.loadScript(runOpts.messages, runOpts.limit)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}

		if runOpts.user != "" {
			if _, err := a.selector.Select(runOpts.user, 0); err != nil {
				return err
			}
		}

		client, err := a.client()
		if err != nil {
			return fmt.Errorf("failed to initialize client: %w", err)
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events := bus.New()
		defer events.Close()

		orchestrator, err := session.New(client, a.selector, session.Options{
			ChannelID:     a.cfg.Workspace.ChannelID,
			ForceUser:     runOpts.user,
			MessageDelay:  delayFlag(cmd.Flags(), "delay", runOpts.delay, a.cfg.Delivery.MessageDelay()),
			ReplyDelay:    delayFlag(cmd.Flags(), "reply-delay", runOpts.replyDelay, a.cfg.Delivery.ReplyDelay()),
			ReactionDelay: delayFlag(cmd.Flags(), "reaction-delay", runOpts.reactionDelay, a.cfg.Delivery.ReactionDelay()),
			Bus:           events,
		}, slog.Default())
		if err != nil {
			return err
		}

		updates, unsubscribe := events.SubscribeEvents(runCtx, eventBuffer(script.Posts()))
		run := func(ctx context.Context) (session.Summary, error) {
			return orchestrator.Run(ctx, script.Messages)
		}

		var summary session.Summary
		if runOpts.tui {
			summary, err = progress.Run(runCtx, updates, progress.Info{
				Channel:    a.cfg.Workspace.ChannelID,
				Source:     script.Source,
				Posts:      script.Posts(),
				Identities: a.selector.Len(),
				Strategy:   string(a.selector.Strategy()),
			}, run)
			unsubscribe()
		} else {
			followed := make(chan struct{})
			go func() {
				defer close(followed)
				progress.Follow(updates, cmd.OutOrStdout())
			}()
			summary, err = run(runCtx)
			unsubscribe()
			<-followed
		}

		fmt.Fprintln(cmd.OutOrStdout(), progress.RenderSummary(summary))

		if runOpts.transcript != "" {
			if writeErr := writeTranscript(runOpts.transcript, orchestrator.Transcript().List()); writeErr != nil {
				a.log.Error("Failed to write transcript", "path", runOpts.transcript, "error", writeErr)
			}
		}

		if errors.Is(err, context.Canceled) {
			a.log.Warn("Run interrupted", "success", summary.Success, "failed", summary.Failed, "total", summary.Total)
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	flags := runCmd.Flags()
	flags.StringVarP(&runOpts.messages, "messages", "m", "", "messages file (JSON or YAML); defaults to messages_path or ./messages.json")
	flags.StringVarP(&runOpts.user, "user", "u", "", "post every top-level message as this configured user")
	flags.Float64Var(&runOpts.delay, "delay", 2, "seconds between messages")
	flags.Float64Var(&runOpts.replyDelay, "reply-delay", 1, "seconds before each reply")
	flags.Float64Var(&runOpts.reactionDelay, "reaction-delay", 0.5, "seconds before each reaction")
	flags.IntVarP(&runOpts.limit, "limit", "n", 0, "post at most this many messages (0 means all)")
	flags.BoolVar(&runOpts.tui, "tui", false, "show a live progress view")
	flags.StringVar(&runOpts.transcript, "transcript", "", "write delivered posts as JSON to this file")
}

// delayFlag prefers an explicitly set flag over the configured delay.
func delayFlag(flags *pflag.FlagSet, name string, seconds float64, configured time.Duration) time.Duration {
	if !flags.Changed(name) {
		return configured
	}
	if seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// eventBuffer sizes the progress subscription so a full run never drops
// events: one per post, up to a few reactions each, plus start and end.
func eventBuffer(posts int) int {
	return posts*4 + 16
}

func writeTranscript(path string, entries []session.Entry) error {
	if entries == nil {
		entries = []session.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
