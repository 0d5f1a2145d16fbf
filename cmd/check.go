package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"yap/pkg/session"

	"github.com/spf13/cobra"
)

var checkOpts struct {
	messages string
	user     string
	limit    int
	json     bool
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and preview who posts what",
	Long:  "Validates configuration and the messages file, then prints the user assigned to every message and reply without posting anything.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		a, err := loadApp("cmd.check")
		if err != nil {
			return err
		}

		script, err := a.loadScript(checkOpts.messages, checkOpts.limit)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}

		if checkOpts.user != "" {
			if _, err := a.selector.Select(checkOpts.user, 0); err != nil {
				return err
			}
		}

		plan := session.Plan(a.selector, script.Messages, checkOpts.user)
		out := cmd.OutOrStdout()
		if checkOpts.json {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(plan)
		}

		fmt.Fprintf(out, "channel %s · %d users (%s) · messages from %s\n\n",
			a.cfg.Workspace.ChannelID, a.selector.Len(), a.selector.Strategy(), script.Source)
		problems := printPlan(out, plan)
		fmt.Fprintf(out, "\n%d messages, %d posts expected\n", len(script.Messages), script.Posts())
		if problems > 0 {
			return fmt.Errorf("%d posts cannot be assigned a user", problems)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	flags := checkCmd.Flags()
	flags.StringVarP(&checkOpts.messages, "messages", "m", "", "messages file (JSON or YAML)")
	flags.StringVarP(&checkOpts.user, "user", "u", "", "preview with every top-level message forced to this user")
	flags.IntVarP(&checkOpts.limit, "limit", "n", 0, "preview at most this many messages (0 means all)")
	flags.BoolVar(&checkOpts.json, "json", false, "print the preview as JSON")
}

// printPlan writes one line per post and returns how many could not be
// assigned.
func printPlan(w io.Writer, plan []session.Assignment) int {
	problems := 0
	for i, entry := range plan {
		prefix := fmt.Sprintf("[%d]", entry.Message)
		if entry.Reply > 0 {
			prefix = "  ├─"
			if i == len(plan)-1 || plan[i+1].Reply == 0 {
				prefix = "  └─"
			}
		}

		who := "@" + entry.User
		if entry.Error != "" {
			problems++
			who = "✗ " + entry.Error
		}

		line := fmt.Sprintf("%s %s: %s", prefix, who, oneLine(entry.Text))
		if len(entry.Reactions) > 0 {
			line += "  + :" + strings.Join(entry.Reactions, ": :") + ":"
		}
		fmt.Fprintln(w, line)
	}
	return problems
}

func oneLine(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if runes := []rune(text); len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return text
}
