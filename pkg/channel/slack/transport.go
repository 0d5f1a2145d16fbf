package slack

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"yap/pkg/channel"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"

// Request is one form-encoded API call.
type Request struct {
	URL     string
	Form    url.Values
	Cookies map[string]string
	Timeout time.Duration
}

// Response is the raw reply to a Request.
type Response struct {
	StatusCode int
	Body       []byte
	RetryAfter string
}

// Transport performs a single HTTP exchange. Timeouts and connection
// failures must be returned as channel transport errors.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// HTTPTransport sends requests with fasthttp, optionally paced by a limiter.
type HTTPTransport struct {
	client    *fasthttp.Client
	userAgent string
	limiter   *rate.Limiter
}

// NewHTTPTransport builds a transport. requestsPerSecond <= 0 disables pacing.
func NewHTTPTransport(userAgent string, requestsPerSecond float64) *HTTPTransport {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}

	t := &HTTPTransport{
		client: &fasthttp.Client{
			Name:                     "yap",
			NoDefaultUserAgentHeader: true,
		},
		userAgent: userAgent,
	}
	if requestsPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return t
}

// Do posts req.Form to req.URL and returns the raw response. The call itself
// is bounded only by req.Timeout; ctx gates pacing waits.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
	}

	httpReq := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(httpReq)
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(req.URL)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/x-www-form-urlencoded")
	httpReq.Header.SetUserAgent(t.userAgent)
	for name, value := range req.Cookies {
		httpReq.Header.SetCookie(name, value)
	}
	httpReq.SetBodyString(req.Form.Encode())

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = postTimeout
	}

	if err := t.client.DoTimeout(httpReq, httpResp, timeout); err != nil {
		return Response{}, channel.TransportError(endpointName(req.URL), err)
	}

	return Response{
		StatusCode: httpResp.StatusCode(),
		Body:       append([]byte(nil), httpResp.Body()...),
		RetryAfter: string(httpResp.Header.Peek("Retry-After")),
	}, nil
}

// endpointName extracts "chat.postMessage" from ".../api/chat.postMessage".
func endpointName(rawURL string) string {
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 {
		return rawURL[idx+1:]
	}
	return rawURL
}
