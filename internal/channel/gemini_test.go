package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newGeminiTestServer(t *testing.T, handler http.HandlerFunc) (*Gemini, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := NewGemini("test-key", "gemini-2.5-flash", "be calm", 0.4, 1024,
		WithGeminiBaseURL(srv.URL))
	return g, srv
}

func TestGeminiProbeEstablishesSession(t *testing.T) {
	g, _ := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Error("api key header missing")
		}
		fmt.Fprint(w, `{"name":"models/gemini-2.5-flash"}`)
	})

	if g.Ready() {
		t.Error("ready before probe")
	}
	if err := g.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !g.Ready() {
		t.Error("not ready after successful probe")
	}
}

func TestGeminiProbeMissingKey(t *testing.T) {
	g := NewGemini("", "gemini-2.5-flash", "", 0.4, 0)
	err := g.Probe(context.Background())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("got %v, want ErrMissingAPIKey", err)
	}
	if g.Ready() {
		t.Error("ready after failed probe")
	}
}

func TestGeminiProbeBadKey(t *testing.T) {
	g, _ := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})

	err := g.Probe(context.Background())
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("error %q should carry the API message", err)
	}
}

func TestGeminiSend(t *testing.T) {
	g, _ := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "be calm" {
			t.Error("system instruction not sent")
		}
		if req.GenerationConfig == nil || req.GenerationConfig.Temperature != 0.4 {
			t.Error("generation config not sent")
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Stay indoors."}]}}]}`)
	})

	got, err := g.Send(context.Background(), "Is it safe outside?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "Stay indoors." {
		t.Errorf("got %q", got)
	}
}

func TestGeminiSendKeepsHistory(t *testing.T) {
	var lastContents []geminiContent
	g, _ := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{}`)
			return
		}
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		lastContents = req.Contents
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"reply"}]}}]}`)
	})

	if err := g.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if _, err := g.Send(context.Background(), "first"); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if _, err := g.Send(context.Background(), "second"); err != nil {
		t.Fatalf("second Send: %v", err)
	}

	// Second request carries the first exchange plus the new message.
	if len(lastContents) != 3 {
		t.Fatalf("got %d contents, want 3", len(lastContents))
	}
	if lastContents[0].Parts[0].Text != "first" || lastContents[1].Parts[0].Text != "reply" {
		t.Errorf("history out of order: %+v", lastContents)
	}
	if lastContents[2].Parts[0].Text != "second" {
		t.Errorf("new message not last: %+v", lastContents)
	}
}

func TestGeminiStream(t *testing.T) {
	g, _ := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Error("alt=sse not requested")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Move \"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"to high \"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ground.\"}]}}]}\n\n")
	})

	stream, err := g.Stream(context.Background(), "flood is rising")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var chunks []string
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %v", len(chunks), chunks)
	}
	if joined := strings.Join(chunks, ""); joined != "Move to high ground." {
		t.Errorf("got %q", joined)
	}
}

func TestGeminiStreamRecordsHistoryOnEOF(t *testing.T) {
	calls := 0
	g, _ := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{}`)
			return
		}
		calls++
		if calls == 2 {
			var req generateRequest
			json.NewDecoder(r.Body).Decode(&req)
			if len(req.Contents) != 3 {
				t.Errorf("second stream carried %d contents, want 3", len(req.Contents))
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n")
	})

	if err := g.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	for _, prompt := range []string{"first", "second"} {
		stream, err := g.Stream(context.Background(), prompt)
		if err != nil {
			t.Fatalf("Stream(%q): %v", prompt, err)
		}
		for {
			if _, err := stream.Next(); err == io.EOF {
				break
			} else if err != nil {
				t.Fatalf("Next: %v", err)
			}
		}
		stream.Close()
	}
}

func TestGeminiStreamLargeChunk(t *testing.T) {
	// One data line well past bufio.Scanner's default 64 KiB token limit.
	big := strings.Repeat("evacuate now ", 8192)
	g, _ := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"%s\"}]}}]}\n\n", big)
	})

	stream, err := g.Stream(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var got strings.Builder
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got.WriteString(chunk)
	}
	if got.String() != big {
		t.Errorf("got %d chars, want %d", got.Len(), len(big))
	}
}

func TestGeminiStreamErrorChunk(t *testing.T) {
	g, _ := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"error\":{\"code\":429,\"message\":\"quota exceeded\",\"status\":\"RESOURCE_EXHAUSTED\"}}\n\n")
	})

	stream, err := g.Stream(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	_, err = stream.Next()
	if err == nil || err == io.EOF {
		t.Fatalf("got %v, want mid-stream error", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error %q should carry the API message", err)
	}
}
