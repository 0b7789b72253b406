package openweb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lyricat/goutils/structs"
	"github.com/quailyquaily/kbrelay/kb"
)

const (
	DefaultTimeout = 180 * time.Second

	maxResponseBytes = 4 << 20
	bodyPrefixChars  = 200
)

type Options struct {
	HTTPClient *http.Client
	URL        string
	APIKey     string
	Timeout    time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint
// (Open WebUI's /api/chat/completions in the usual deployment).
type Client struct {
	http    *http.Client
	url     string
	apiKey  string
	timeout time.Duration
}

func New(opts Options) (*Client, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, fmt.Errorf("openweb api url is required")
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openweb api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    httpClient,
		url:     url,
		apiKey:  apiKey,
		timeout: timeout,
	}, nil
}

// NewHTTPClient returns the pooled client shared by every call for the
// lifetime of the process. Deadlines are applied per request.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8
	return &http.Client{Transport: transport}
}

func (c *Client) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

// Close releases pooled connections. It is called once at shutdown.
func (c *Client) Close() {
	if c == nil || c.http == nil {
		return
	}
	c.http.CloseIdleConnections()
}

// Send performs a single attempt; retries are never made.
func (c *Client) Send(ctx context.Context, req kb.Request) kb.Result {
	if c == nil || c.http == nil {
		return kb.Fail(kb.FailureUnexpected, 0, "openweb client is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return kb.Fail(kb.FailureUnexpected, 0, fmt.Sprintf("encode request: %v", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return kb.Fail(kb.FailureUnexpected, 0, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return transportFailure(callCtx, err)
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if readErr != nil {
		return transportFailure(callCtx, readErr)
	}
	if resp.StatusCode != http.StatusOK {
		return kb.Fail(kb.FailureAPIError, resp.StatusCode, fmt.Sprintf("http %d: %s", resp.StatusCode, bodyPrefix(body)))
	}
	return parseCompletion(body)
}

func transportFailure(ctx context.Context, err error) kb.Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return kb.Fail(kb.FailureTimeout, 0, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return kb.Fail(kb.FailureTimeout, 0, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return kb.Fail(kb.FailureUnexpected, 0, "request canceled")
	}
	return kb.Fail(kb.FailureNetwork, 0, err.Error())
}

func parseCompletion(body []byte) kb.Result {
	var raw structs.JSONMap
	if err := json.Unmarshal(body, &raw); err != nil {
		return kb.Fail(kb.FailureUnexpected, http.StatusOK, fmt.Sprintf("decode response: %v", err))
	}
	return kb.Success(strings.TrimSpace(answerText(raw)), raw)
}

// answerText reads choices[0].message.content. Each level that is absent or
// of the wrong shape yields "". A null content counts as absent.
func answerText(raw structs.JSONMap) string {
	choices := raw.GetArray("choices")
	if len(choices) == 0 {
		return ""
	}
	first, _ := choices[0].(map[string]any)
	choice := structs.NewFromMap(first)
	message := choice.GetMap("message")
	if content, ok := (*message)["content"]; !ok || content == nil {
		return ""
	}
	return message.GetString("content")
}

func bodyPrefix(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len([]rune(s)) <= bodyPrefixChars {
		return s
	}
	return string([]rune(s)[:bodyPrefixChars]) + "..."
}
