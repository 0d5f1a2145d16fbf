package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"yap/pkg/channel"
	"yap/pkg/channel/slack"

	"github.com/spf13/cobra"
)

var scanOpts struct {
	channel  string
	user     string
	limit    int
	throttle time.Duration
	output   string
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch channel history with threads and reactions as JSON",
	Long:  "Reads recent channel messages, their thread replies and reaction counts, and prints them as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		a, err := loadApp("cmd.scan")
		if err != nil {
			return err
		}

		name := strings.TrimSpace(scanOpts.user)
		if name == "" {
			name = a.selector.Names()[0]
		}
		reader, err := a.selector.Select(name, 0)
		if err != nil {
			return err
		}

		client, err := a.client()
		if err != nil {
			return fmt.Errorf("failed to initialize client: %w", err)
		}

		channelID := strings.TrimSpace(scanOpts.channel)
		if channelID == "" {
			channelID = a.cfg.Workspace.ChannelID
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		history, err := client.FetchHistory(ctx, channelID, reader, slack.HistoryOptions{
			Limit:    scanOpts.limit,
			Throttle: scanOpts.throttle,
			Progress: func(current, total int, status string) {
				a.log.Debug("Scan progress", "current", current, "total", total, "status", status)
			},
		})
		if err != nil {
			if after, ok := channel.RetryAfterOf(err); ok {
				return fmt.Errorf("rate limited while scanning; retry in %s or raise --throttle: %w", after, err)
			}
			return err
		}

		return writeHistory(cmd.OutOrStdout(), scanOpts.output, history)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	flags := scanCmd.Flags()
	flags.StringVarP(&scanOpts.channel, "channel", "c", "", "channel id to scan (defaults to workspace.channel_id)")
	flags.StringVarP(&scanOpts.user, "user", "u", "", "configured user whose session reads the channel (defaults to the first)")
	flags.IntVarP(&scanOpts.limit, "limit", "n", 200, "maximum top-level messages to fetch")
	flags.DurationVar(&scanOpts.throttle, "throttle", time.Second, "pause between history pages and reply batches")
	flags.StringVarP(&scanOpts.output, "output", "o", "", "write JSON to this file instead of stdout")
}

func writeHistory(stdout io.Writer, path string, history slack.History) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
