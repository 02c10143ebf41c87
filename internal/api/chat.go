package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/garrellmacarilay/floodguard-agent/internal/assistant"
)

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Message string `json:"message"`
}

// handleChat delivers one message through the pipeline and streams the
// transcript updates back as newline-delimited JSON: the user turn, the
// streaming placeholder, each chunk as the turn's text grows, and the
// final resolved turn (model or error).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	// The update callback runs on the delivery goroutine; the mutex
	// keeps lines whole if the encoder is ever driven concurrently.
	var mu sync.Mutex
	update := func(t assistant.Turn) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(t); err != nil {
			s.logger.Debug("chat stream write failed", "turn_id", t.ID, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if _, err := s.orch.Send(r.Context(), req.Message, update); err != nil {
		// The error turn already went out on the stream; nothing more
		// to write here.
		s.logger.Debug("chat send resolved with error", "error", err)
	}
}
