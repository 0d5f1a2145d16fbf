package slack

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"yap/pkg/channel"
	"yap/pkg/identity"
	"yap/pkg/retry"
	"yap/pkg/richtext"
)

const (
	postTimeout        = 10 * time.Second
	reactionTimeout    = 5 * time.Second
	defaultRetryAfter  = 60 * time.Second
	methodPostMessage  = "chat.postMessage"
	methodReactionsAdd = "reactions.add"
)

// Server error codes with dedicated handling.
const (
	codeRateLimited     = "ratelimited"
	codeChannelNotFound = "channel_not_found"
	codeNotInChannel    = "not_in_channel"
	codeInvalidAuth     = "invalid_auth"
	codeTokenRevoked    = "token_revoked"
	codeTokenExpired    = "token_expired"
	codeInvalidName     = "invalid_name"
	codeAlreadyReacted  = "already_reacted"
	codeUnknown         = "unknown"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the workspace origin, e.g. https://acme.slack.com.
	BaseURL         string
	TeamID          string
	PostTimeout     time.Duration
	ReactionTimeout time.Duration
	Retry           retry.Policy
	// NewMessageID returns a fresh client_msg_id per post.
	NewMessageID func() string
}

// Client delivers posts and reactions to a Slack-compatible web API.
type Client struct {
	transport Transport
	opts      Options
	log       *slog.Logger
}

var _ channel.Deliverer = (*Client)(nil)

// NewClient validates options and binds a transport.
func NewClient(transport Transport, opts Options, log *slog.Logger) (*Client, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if opts.PostTimeout <= 0 {
		opts.PostTimeout = postTimeout
	}
	if opts.ReactionTimeout <= 0 {
		opts.ReactionTimeout = reactionTimeout
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.NewMessageID == nil {
		opts.NewMessageID = uuid.NewString
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		transport: transport,
		opts:      opts,
		log:       log.With("component", "channel.slack"),
	}, nil
}

// Deliver posts one composed message. Transport failures are retried;
// rate limits and fatal API codes are returned as errors; any other
// server error code is a soft failure with a nil error.
func (c *Client) Deliver(ctx context.Context, post channel.Post, author identity.Identity) (channel.Result, error) {
	if len(post.Spans) == 0 {
		return channel.Result{}, channel.FormatError(methodPostMessage, "post has no content")
	}
	blocks, err := richtext.Blocks(post.Spans)
	if err != nil {
		return channel.Result{}, channel.FormatError(methodPostMessage, err.Error())
	}

	form := url.Values{}
	form.Set("token", author.Token)
	form.Set("channel", post.Channel)
	form.Set("type", "message")
	form.Set("xArgs", "{}")
	form.Set("unfurl", "[]")
	form.Set("client_context_team_id", c.opts.TeamID)
	form.Set("blocks", string(blocks))
	form.Set("include_channel_perm_error", "true")
	form.Set("_x_reason", "webapp_message_send")
	form.Set("_x_mode", "online")
	form.Set("_x_sonic", "true")
	form.Set("_x_app_name", "client")
	form.Set("client_msg_id", c.opts.NewMessageID())
	if post.ThreadTS != "" {
		form.Set("reply_broadcast", "false")
		form.Set("thread_ts", post.ThreadTS)
	}

	c.log.Debug("Posting message", "channel", post.Channel, "thread_ts", post.ThreadTS, "author", author.Name)

	return retry.Do(c.policy(methodPostMessage), func(int) (channel.Result, error) {
		resp, err := c.transport.Do(ctx, Request{
			URL:     c.endpoint(methodPostMessage),
			Form:    form,
			Cookies: BuildCookies(author),
			Timeout: c.opts.PostTimeout,
		})
		if err != nil {
			c.log.Error("Network error posting message", "error", err)
			return channel.Result{}, err
		}
		return c.classifyPost(resp)
	})
}

func (c *Client) classifyPost(resp Response) (channel.Result, error) {
	if !gjson.ValidBytes(resp.Body) {
		c.log.Error("Failed to parse API response", "method", methodPostMessage, "status", resp.StatusCode)
		return channel.Result{Reason: "invalid_response"}, nil
	}

	body := gjson.ParseBytes(resp.Body)
	if body.Get("ok").Bool() {
		ts := body.Get("ts").String()
		if ts == "" {
			// Replies need the anchor; a post without one cannot be threaded.
			c.log.Error("Posted message has no timestamp", "method", methodPostMessage, "status", resp.StatusCode)
			return channel.Result{Reason: "invalid_response"}, nil
		}
		c.log.Debug("Posted message", "ts", ts)
		return channel.Result{OK: true, Timestamp: ts}, nil
	}

	code := errorCode(body)
	switch code {
	case codeRateLimited:
		after := parseRetryAfter(resp.RetryAfter)
		c.log.Warn("Rate limited", "method", methodPostMessage, "retry_after", after)
		return channel.Result{}, channel.RateLimitError(methodPostMessage, after)
	case codeChannelNotFound, codeNotInChannel:
		c.log.Error("Channel error", "error", code)
		return channel.Result{}, channel.APIError(methodPostMessage, "channel error: "+code)
	case codeInvalidAuth, codeTokenRevoked, codeTokenExpired:
		c.log.Error("Authentication error", "error", code)
		return channel.Result{}, channel.APIError(methodPostMessage, "authentication error: "+code)
	default:
		c.log.Error("API error", "method", methodPostMessage, "error", code)
		return channel.Result{Reason: code}, nil
	}
}

// AddReaction reacts to the message at threadTS. An existing identical
// reaction counts as success; an unknown emoji name returns false.
func (c *Client) AddReaction(ctx context.Context, channelID string, threadTS string, name string, author identity.Identity) (bool, error) {
	form := url.Values{}
	form.Set("token", author.Token)
	form.Set("channel", channelID)
	form.Set("timestamp", threadTS)
	form.Set("name", name)

	c.log.Debug("Adding reaction", "name", name, "ts", threadTS, "author", author.Name)

	return retry.Do(c.policy(methodReactionsAdd), func(int) (bool, error) {
		resp, err := c.transport.Do(ctx, Request{
			URL:     c.endpoint(methodReactionsAdd),
			Form:    form,
			Cookies: BuildCookies(author),
			Timeout: c.opts.ReactionTimeout,
		})
		if err != nil {
			c.log.Error("Network error adding reaction", "error", err)
			return false, err
		}
		return c.classifyReaction(resp, name)
	})
}

func (c *Client) classifyReaction(resp Response, name string) (bool, error) {
	if !gjson.ValidBytes(resp.Body) {
		c.log.Error("Failed to parse API response", "method", methodReactionsAdd, "status", resp.StatusCode)
		return false, nil
	}

	body := gjson.ParseBytes(resp.Body)
	if body.Get("ok").Bool() {
		return true, nil
	}

	code := errorCode(body)
	switch code {
	case codeRateLimited:
		after := parseRetryAfter(resp.RetryAfter)
		c.log.Warn("Rate limited", "method", methodReactionsAdd, "retry_after", after)
		return false, channel.RateLimitError(methodReactionsAdd, after)
	case codeAlreadyReacted:
		c.log.Debug("Already reacted", "name", name)
		return true, nil
	case codeInvalidName:
		c.log.Warn("Invalid emoji name", "name", name)
		return false, nil
	case codeChannelNotFound, codeNotInChannel:
		return false, channel.APIError(methodReactionsAdd, "channel error: "+code)
	case codeInvalidAuth, codeTokenRevoked, codeTokenExpired:
		return false, channel.APIError(methodReactionsAdd, "authentication error: "+code)
	default:
		c.log.Warn("Failed to add reaction", "error", code)
		return false, nil
	}
}

func (c *Client) endpoint(method string) string {
	return c.opts.BaseURL + "/api/" + method
}

func (c *Client) policy(method string) retry.Policy {
	policy := c.opts.Retry
	observe := policy.OnRetry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		c.log.Warn("Retrying after transport error", "method", method, "attempt", attempt, "wait", wait, "error", err)
		if observe != nil {
			observe(attempt, wait, err)
		}
	}
	return policy
}

func errorCode(body gjson.Result) string {
	if code := body.Get("error").String(); code != "" {
		return code
	}
	return codeUnknown
}

// parseRetryAfter reads a Retry-After header in seconds, defaulting to 60s.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
