package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/garrellmacarilay/floodguard-agent/internal/config"
	"github.com/garrellmacarilay/floodguard-agent/internal/httpkit"
)

// ErrMissingAPIKey is returned by Probe when no API key is configured.
var ErrMissingAPIKey = errors.New("gemini: api key missing")

// DefaultGeminiBaseURL is the production Generative Language endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// Gemini delivers prompts directly to the Generative Language API. It
// is session-based: Probe establishes the session, and conversation
// history accumulates across sends so the model keeps context.
type Gemini struct {
	apiKey            string
	model             string
	baseURL           string
	systemInstruction string
	temperature       float64
	maxOutputTokens   int

	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	session *geminiSession
}

type geminiSession struct {
	history []geminiContent
}

// GeminiOption configures a Gemini channel.
type GeminiOption func(*Gemini)

// WithGeminiBaseURL overrides the API endpoint, mainly for tests.
func WithGeminiBaseURL(u string) GeminiOption {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithGeminiLogger sets the logger.
func WithGeminiLogger(logger *slog.Logger) GeminiOption {
	return func(g *Gemini) { g.logger = logger.With("channel", "gemini") }
}

// NewGemini creates a direct channel for the given model. temperature
// and maxOutputTokens are passed through as generation config.
func NewGemini(apiKey, model, systemInstruction string, temperature float64, maxOutputTokens int, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:            apiKey,
		model:             model,
		baseURL:           DefaultGeminiBaseURL,
		systemInstruction: systemInstruction,
		temperature:       temperature,
		maxOutputTokens:   maxOutputTokens,
		// No client timeout: streaming responses stay open for the
		// duration of the reply. Callers bound sends with ctx.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name identifies the channel in logs and message metadata.
func (g *Gemini) Name() string { return "gemini" }

// Ready reports whether a session has been established by Probe.
func (g *Gemini) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil
}

// Probe verifies the API key against the model metadata endpoint and,
// on success, establishes the chat session.
func (g *Gemini) Probe(ctx context.Context) error {
	if g.apiKey == "" {
		return ErrMissingAPIKey
	}

	url := fmt.Sprintf("%s/v1beta/models/%s", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini probe failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini probe: %s", apiErrorText(resp))
	}

	g.mu.Lock()
	g.session = &geminiSession{}
	g.mu.Unlock()

	g.logger.Debug("session established", "model", g.model)
	return nil
}

// Wire types for the generateContent family of endpoints.
type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *generateConfig `json:"generationConfig,omitempty"`
}

type generateConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (g *Gemini) buildRequest(prompt string) generateRequest {
	g.mu.Lock()
	var history []geminiContent
	if g.session != nil {
		history = append(history, g.session.history...)
	}
	g.mu.Unlock()

	contents := append(history, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: prompt}},
	})

	req := generateRequest{
		Contents: contents,
		GenerationConfig: &generateConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: g.maxOutputTokens,
		},
	}
	if g.systemInstruction != "" {
		req.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: g.systemInstruction}},
		}
	}
	return req
}

// recordExchange appends a completed user/model exchange to the session
// history. No-op when the session was torn down concurrently.
func (g *Gemini) recordExchange(prompt, reply string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return
	}
	g.session.history = append(g.session.history,
		geminiContent{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		geminiContent{Role: "model", Parts: []geminiPart{{Text: reply}}},
	)
}

// Send delivers prompt with a non-streaming generateContent call.
func (g *Gemini) Send(ctx context.Context, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	body, err := json.Marshal(g.buildRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	g.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(body))

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: %s", apiErrorText(resp))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := candidateText(out)
	if text == "" {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	g.logger.Debug("response received", "model", g.model, "chars", len(text))
	g.logger.Log(ctx, config.LevelTrace, "response content", "content", text)

	g.recordExchange(prompt, text)
	return text, nil
}

// Stream delivers prompt with streamGenerateContent over SSE. The
// exchange is recorded in the session history only after the stream
// drains cleanly.
func (g *Gemini) Stream(ctx context.Context, prompt string) (Stream, error) {
	if g.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(g.buildRequest(prompt))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	g.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(body))

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini stream failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer httpkit.DrainAndClose(resp.Body, 4096)
		return nil, fmt.Errorf("gemini: %s", apiErrorText(resp))
	}

	g.logger.Debug("stream opened", "model", g.model)

	scanner := bufio.NewScanner(resp.Body)
	// Increase scanner buffer for large responses. A single data line
	// can exceed the default 64 KiB token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &sseStream{
		gemini:  g,
		prompt:  prompt,
		body:    resp.Body,
		scanner: scanner,
	}, nil
}

// sseStream parses a text/event-stream response into chunks.
type sseStream struct {
	gemini  *Gemini
	prompt  string
	body    io.ReadCloser
	scanner *bufio.Scanner
	reply   strings.Builder
	closed  bool
}

// Next returns the next text chunk, io.EOF at clean end of stream.
func (s *sseStream) Next() (string, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("gemini stream error %d: %s", chunk.Error.Code, chunk.Error.Message)
		}
		if text := candidateText(chunk); text != "" {
			s.reply.WriteString(text)
			return text, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}

	if s.reply.Len() > 0 {
		s.gemini.recordExchange(s.prompt, s.reply.String())
		s.reply.Reset()
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func candidateText(r generateResponse) string {
	var b strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func apiErrorText(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err == nil && out.Error != nil {
		return fmt.Sprintf("error %d (%s): %s", out.Error.Code, out.Error.Status, out.Error.Message)
	}
	return fmt.Sprintf("error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
