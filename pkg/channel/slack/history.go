package slack

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"yap/pkg/channel"
	"yap/pkg/identity"
	"yap/pkg/retry"
)

const (
	methodHistory      = "conversations.history"
	methodReplies      = "conversations.replies"
	historyTimeout     = 15 * time.Second
	historyPageSize    = 100
	repliesPageSize    = 100
	defaultFetchLimit  = 200
	defaultBatchSize   = 10
	defaultThrottle    = time.Second
	topReactionsListed = 10
)

// HistoryReply is one reply inside a fetched thread.
type HistoryReply struct {
	Text string `json:"text"`
	User string `json:"user"`
	TS   string `json:"ts"`
}

// ReactionCount tallies one emoji.
type ReactionCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// HistoryMessage is one top-level channel message with its thread.
type HistoryMessage struct {
	Text       string          `json:"text"`
	User       string          `json:"user"`
	TS         string          `json:"ts"`
	ReplyCount int             `json:"reply_count"`
	Reactions  []ReactionCount `json:"reactions"`
	Replies    []HistoryReply  `json:"replies"`
}

// History is the result of a channel scan.
type History struct {
	Messages       []HistoryMessage `json:"messages"`
	TotalMessages  int              `json:"total_messages"`
	TotalReplies   int              `json:"total_replies"`
	TotalReactions int              `json:"total_reactions"`
	TopReactions   []ReactionCount  `json:"top_reactions"`
}

// HistoryOptions tunes a channel scan.
type HistoryOptions struct {
	Limit int
	// Throttle is waited between history pages and between reply batches,
	// never between requests inside a batch.
	Throttle  time.Duration
	BatchSize int
	Progress  func(current, total int, status string)
	// Wait blocks for a throttle interval; defaults to a context-aware timer.
	Wait func(ctx context.Context, d time.Duration) error
}

func (o HistoryOptions) withDefaults() HistoryOptions {
	if o.Limit <= 0 {
		o.Limit = defaultFetchLimit
	}
	if o.Throttle < 0 {
		o.Throttle = 0
	} else if o.Throttle == 0 {
		o.Throttle = defaultThrottle
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Progress == nil {
		o.Progress = func(int, int, string) {}
	}
	if o.Wait == nil {
		o.Wait = waitContext
	}
	return o
}

// FetchHistory pages through channel history, then fetches thread replies
// concurrently in fixed-size batches. A rate limit seen by any worker
// aborts the scan and is returned.
func (c *Client) FetchHistory(ctx context.Context, channelID string, reader identity.Identity, opts HistoryOptions) (History, error) {
	opts = opts.withDefaults()
	log := c.log.With("channel", channelID)

	messages, reactionCounts, order, err := c.fetchMessages(ctx, channelID, reader, opts)
	if err != nil {
		return History{}, err
	}

	threaded := make([]int, 0, len(messages))
	for i, msg := range messages {
		if msg.ReplyCount > 0 && msg.TS != "" {
			threaded = append(threaded, i)
		}
	}

	totalReplies := 0
	totalBatches := (len(threaded) + opts.BatchSize - 1) / opts.BatchSize
	for start := 0; start < len(threaded); start += opts.BatchSize {
		batch := threaded[start:min(start+opts.BatchSize, len(threaded))]
		opts.Progress(start+len(batch), len(threaded), "Fetching replies (batch "+strconv.Itoa(start/opts.BatchSize+1)+"/"+strconv.Itoa(totalBatches)+")")

		group, groupCtx := errgroup.WithContext(ctx)
		results := make([][]HistoryReply, len(batch))
		for slot, msgIdx := range batch {
			ts := messages[msgIdx].TS
			group.Go(func() error {
				replies, err := c.fetchReplies(groupCtx, channelID, ts, reader)
				if err != nil {
					if channel.KindOf(err) == channel.KindRateLimited {
						return err
					}
					log.Warn("Failed to fetch replies", "ts", ts, "error", err)
					return nil
				}
				results[slot] = replies
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return History{}, err
		}

		for slot, msgIdx := range batch {
			if results[slot] == nil {
				continue
			}
			messages[msgIdx].Replies = results[slot]
			totalReplies += len(results[slot])
		}

		if start+opts.BatchSize < len(threaded) {
			if err := opts.Wait(ctx, opts.Throttle); err != nil {
				return History{}, err
			}
		}
	}

	history := History{
		Messages:      messages,
		TotalMessages: len(messages),
		TotalReplies:  totalReplies,
		TopReactions:  topReactions(reactionCounts, order),
	}
	for _, count := range reactionCounts {
		history.TotalReactions += count
	}

	log.Info("Fetched channel history", "messages", history.TotalMessages, "replies", history.TotalReplies, "reactions", history.TotalReactions)
	return history, nil
}

func (c *Client) fetchMessages(ctx context.Context, channelID string, reader identity.Identity, opts HistoryOptions) ([]HistoryMessage, map[string]int, []string, error) {
	var (
		messages []HistoryMessage
		cursor   string
	)
	counts := make(map[string]int)
	var order []string

	for len(messages) < opts.Limit {
		form := url.Values{}
		form.Set("token", reader.Token)
		form.Set("channel", channelID)
		form.Set("limit", strconv.Itoa(min(historyPageSize, opts.Limit-len(messages))))
		if cursor != "" {
			form.Set("cursor", cursor)
		}

		body, err := c.readCall(ctx, methodHistory, form, reader)
		if err != nil {
			return nil, nil, nil, err
		}

		page := body.Get("messages").Array()
		if len(page) == 0 {
			break
		}

		for _, raw := range page {
			subtype := raw.Get("subtype").String()
			if subtype != "" && subtype != "bot_message" && subtype != "file_share" {
				continue
			}

			msg := HistoryMessage{
				Text:       raw.Get("text").String(),
				User:       raw.Get("user").String(),
				TS:         raw.Get("ts").String(),
				ReplyCount: int(raw.Get("reply_count").Int()),
				Reactions:  []ReactionCount{},
				Replies:    []HistoryReply{},
			}
			for _, reaction := range raw.Get("reactions").Array() {
				name := reaction.Get("name").String()
				count := int(reaction.Get("count").Int())
				msg.Reactions = append(msg.Reactions, ReactionCount{Name: name, Count: count})
				if _, seen := counts[name]; !seen {
					order = append(order, name)
				}
				counts[name] += count
			}

			messages = append(messages, msg)
			if len(messages) >= opts.Limit {
				break
			}
		}

		opts.Progress(len(messages), opts.Limit, "Fetched "+strconv.Itoa(len(messages))+" messages")

		cursor = body.Get("response_metadata.next_cursor").String()
		if cursor == "" || len(messages) >= opts.Limit {
			break
		}
		if err := opts.Wait(ctx, opts.Throttle); err != nil {
			return nil, nil, nil, err
		}
	}

	return messages, counts, order, nil
}

func (c *Client) fetchReplies(ctx context.Context, channelID string, ts string, reader identity.Identity) ([]HistoryReply, error) {
	form := url.Values{}
	form.Set("token", reader.Token)
	form.Set("channel", channelID)
	form.Set("ts", ts)
	form.Set("limit", strconv.Itoa(repliesPageSize))

	body, err := c.readCall(ctx, methodReplies, form, reader)
	if err != nil {
		return nil, err
	}

	thread := body.Get("messages").Array()
	replies := make([]HistoryReply, 0, len(thread))
	// The first entry is the parent message.
	for i, raw := range thread {
		if i == 0 {
			continue
		}
		replies = append(replies, HistoryReply{
			Text: raw.Get("text").String(),
			User: raw.Get("user").String(),
			TS:   raw.Get("ts").String(),
		})
	}
	return replies, nil
}

// readCall performs one read-only API call. Read errors are always raised:
// unlike posts, a scan has no useful soft-failure result.
func (c *Client) readCall(ctx context.Context, method string, form url.Values, reader identity.Identity) (gjson.Result, error) {
	return retry.Do(c.policy(method), func(int) (gjson.Result, error) {
		resp, err := c.transport.Do(ctx, Request{
			URL:     c.endpoint(method),
			Form:    form,
			Cookies: BuildCookies(reader),
			Timeout: historyTimeout,
		})
		if err != nil {
			return gjson.Result{}, err
		}
		if !gjson.ValidBytes(resp.Body) {
			return gjson.Result{}, channel.APIError(method, "invalid JSON response")
		}

		body := gjson.ParseBytes(resp.Body)
		if body.Get("ok").Bool() {
			return body, nil
		}

		switch code := errorCode(body); code {
		case codeRateLimited:
			after := parseRetryAfter(resp.RetryAfter)
			c.log.Warn("Rate limited, consider a larger throttle", "method", method, "retry_after", after)
			return gjson.Result{}, channel.RateLimitError(method, after)
		case codeChannelNotFound:
			return gjson.Result{}, channel.APIError(method, "channel "+form.Get("channel")+" not found or not accessible with current credentials")
		default:
			return gjson.Result{}, channel.APIError(method, code)
		}
	})
}

// topReactions ranks reactions by count; ties keep first-seen order.
func topReactions(counts map[string]int, order []string) []ReactionCount {
	ranked := make([]ReactionCount, 0, len(order))
	for _, name := range order {
		ranked = append(ranked, ReactionCount{Name: name, Count: counts[name]})
	}
	slices.SortStableFunc(ranked, func(a, b ReactionCount) int {
		return b.Count - a.Count
	})
	if len(ranked) > topReactionsListed {
		ranked = ranked[:topReactionsListed]
	}
	return ranked
}

func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
