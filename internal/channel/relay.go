package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/garrellmacarilay/floodguard-agent/internal/config"
	"github.com/garrellmacarilay/floodguard-agent/internal/httpkit"
)

// DefaultRelayTimeout bounds a single relay request. A hanging relay
// call would block fallback to the direct channel, so this is always
// finite.
const DefaultRelayTimeout = 15 * time.Second

// Relay delivers prompts through the application server's ask endpoint.
// It is stateless: every send is independent and Ready is always true.
type Relay struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayTimeout overrides DefaultRelayTimeout.
func WithRelayTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		r.httpClient = httpkit.NewClient(httpkit.WithTimeout(d))
	}
}

// WithRelayLogger sets the logger.
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger.With("channel", "relay") }
}

// NewRelay creates a relay channel rooted at baseURL, for example
// "http://localhost:8000".
func NewRelay(baseURL string, opts ...RelayOption) *Relay {
	r := &Relay{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(DefaultRelayTimeout)),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name identifies the channel in logs and message metadata.
func (r *Relay) Name() string { return "relay" }

// Ready always reports true; the relay holds no session state.
func (r *Relay) Ready() bool { return true }

// Probe sends a throwaway message through the ask endpoint. A
// successful round trip means the server and its upstream model are
// both reachable.
func (r *Relay) Probe(ctx context.Context) error {
	_, err := r.Send(ctx, "Test")
	return err
}

type askRequest struct {
	Message string `json:"message"`
}

type askResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Send posts prompt to the ask endpoint and returns the reply text.
func (r *Relay) Send(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(askRequest{Message: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	r.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/ask-ai", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.logger.Debug("relay error", "status", resp.StatusCode, "body", strings.TrimSpace(string(msg)))
		return "", fmt.Errorf("relay error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out askResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("relay reported: %s", out.Error)
	}
	if out.Response == "" {
		return "", fmt.Errorf("relay returned empty response")
	}

	r.logger.Debug("response received", "chars", len(out.Response))
	r.logger.Log(ctx, config.LevelTrace, "response content", "content", out.Response)
	return out.Response, nil
}

// Stream delivers prompt via Send and returns the complete reply as a
// single-chunk stream. The relay endpoint has no streaming transport.
func (r *Relay) Stream(ctx context.Context, prompt string) (Stream, error) {
	text, err := r.Send(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &textStream{text: text}, nil
}
