package ai

import (
	"bufio"
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

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/model/chat"
)

const (
	defaultConnectTimeout = 10 * time.Second
	maxErrorBody          = 64 * 1024
)

// SSEConfig describes an OpenAI-compatible chat-completions endpoint.
type SSEConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	ConnectTimeout time.Duration
	// HTTPClient overrides the client built from ConnectTimeout.
	HTTPClient *http.Client
}

// SSEClient streams replies over server-sent events, the wire format used by
// DeepSeek and other OpenAI-compatible providers.
type SSEClient struct {
	cfg    SSEConfig
	http   *http.Client
	logger *zap.Logger
}

// NewSSEClient returns a client for cfg.
func NewSSEClient(cfg SSEConfig, logger *zap.Logger) *SSEClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.ConnectTimeout)
	}
	return &SSEClient{cfg: cfg, http: httpClient, logger: logger.Named("ai.sse")}
}

// newHTTPClient bounds connection setup only; a reply may take as long as the
// server needs once headers have arrived.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &http.Client{Transport: transport}
}

type completionRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	Stream      bool           `json:"stream"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
}

func (c *SSEClient) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
}

// Stream sends messages and returns the reply stream once the server accepted the request.
func (c *SSEClient) Stream(ctx context.Context, messages []chat.Message) (Stream, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.logger.Debug("requesting completion",
		zap.String("model", c.cfg.Model),
		zap.Int("messages", len(messages)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	return newSSEStream(resp.Body, c.logger), nil
}

func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return "empty response body"
}

// sseStream reads `data:` lines off a completion response.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	logger *zap.Logger
	final  *Fragment
}

func newSSEStream(body io.ReadCloser, logger *zap.Logger) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReader(body), logger: logger}
}

func (s *sseStream) Next() Fragment {
	if s.final != nil {
		return *s.final
	}

	for {
		line, readErr := s.reader.ReadBytes('\n')
		if frag, ok := parseEventLine(line); ok {
			if frag.Kind == FragmentDone || frag.Kind == FragmentFatal {
				return s.finish(frag)
			}
			return frag
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return s.finish(doneFragment())
			}
			return s.finish(fatalFragment(&TransportError{Op: "read", Err: readErr}))
		}
	}
}

func (s *sseStream) finish(frag Fragment) Fragment {
	s.final = &frag
	s.logger.Debug("completion stream finished", zap.Stringer("kind", frag.Kind), zap.Error(frag.Err))
	return frag
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// parseEventLine maps one SSE line to a fragment. Blank lines, comments and
// non-data fields produce no fragment.
func parseEventLine(line []byte) (Fragment, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, []byte("data:")) {
		return Fragment{}, false
	}

	data := bytes.TrimSpace(line[len("data:"):])
	if len(data) == 0 {
		return Fragment{}, false
	}
	if string(data) == "[DONE]" {
		return doneFragment(), true
	}
	if !gjson.ValidBytes(data) {
		return skipFragment(fmt.Errorf("malformed fragment: %.80q", data)), true
	}

	if apiErr := gjson.GetBytes(data, "error"); apiErr.Exists() {
		msg := apiErr.Get("message").String()
		if msg == "" {
			msg = apiErr.Raw
		}
		return fatalFragment(&APIError{Message: msg}), true
	}

	return textFragment(gjson.GetBytes(data, "choices.0.delta.content").String()), true
}
