package chatlog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestCreateConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx, "user-1", map[string]any{"client": "cli"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	conv, err := s.Conversation(ctx, id)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if conv.Status != StatusActive {
		t.Errorf("status = %q, want %q", conv.Status, StatusActive)
	}
	if conv.MessageCount != 0 {
		t.Errorf("message count = %d, want 0", conv.MessageCount)
	}
	if conv.Metadata["client"] != "cli" {
		t.Errorf("metadata not persisted: %v", conv.Metadata)
	}
	if conv.EndTime != nil {
		t.Errorf("end time set on active conversation")
	}
}

func TestLogMessageKeepsCountConsistent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateConversation(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	texts := []struct{ role, text string }{
		{RoleUser, "Am I in a risk zone?"},
		{RoleModel, "You are near the river. Stay alert."},
		{RoleUser, "Where should I go?"},
		{RoleModel, "Head to Sulipan Covered Court."},
	}
	for _, m := range texts {
		if _, err := s.LogMessage(ctx, id, m.role, m.text, map[string]any{"channel": "relay"}); err != nil {
			t.Fatalf("LogMessage: %v", err)
		}
	}

	conv, err := s.Conversation(ctx, id)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if conv.MessageCount != len(texts) {
		t.Errorf("message count = %d, want %d", conv.MessageCount, len(texts))
	}

	history, err := s.ConversationHistory(ctx, id, 0)
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(history) != len(texts) {
		t.Fatalf("history has %d messages, want %d", len(history), len(texts))
	}
	for i, m := range history {
		if m.Role != texts[i].role || m.Text != texts[i].text {
			t.Errorf("message %d = %s %q, want %s %q", i, m.Role, m.Text, texts[i].role, texts[i].text)
		}
		if m.Metadata["channel"] != "relay" {
			t.Errorf("message %d missing channel metadata", i)
		}
	}
}

func TestConversationHistoryLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.CreateConversation(ctx, "user-1", nil)
	for range 5 {
		if _, err := s.LogMessage(ctx, id, RoleUser, "hello", nil); err != nil {
			t.Fatalf("LogMessage: %v", err)
		}
	}

	history, err := s.ConversationHistory(ctx, id, 3)
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("got %d messages, want 3", len(history))
	}
}

func TestEndConversationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.CreateConversation(ctx, "user-1", nil)

	if err := s.EndConversation(ctx, id); err != nil {
		t.Fatalf("first EndConversation: %v", err)
	}
	first, err := s.Conversation(ctx, id)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if first.Status != StatusEnded || first.EndTime == nil {
		t.Fatalf("conversation not ended: %+v", first)
	}

	if err := s.EndConversation(ctx, id); err != nil {
		t.Fatalf("second EndConversation: %v", err)
	}
	second, _ := s.Conversation(ctx, id)
	if !second.EndTime.Equal(*first.EndTime) {
		t.Errorf("end time moved on second call: %v vs %v", second.EndTime, first.EndTime)
	}
}

func TestEndConversationUnknown(t *testing.T) {
	s := newTestStore(t)
	err := s.EndConversation(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUserConversationsOrderedByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.CreateConversation(ctx, "user-1", nil)
	second, _ := s.CreateConversation(ctx, "user-1", nil)
	if _, err := s.CreateConversation(ctx, "someone-else", nil); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	// Touch the first conversation so it becomes the most recent.
	if _, err := s.LogMessage(ctx, first, RoleUser, "still here", nil); err != nil {
		t.Fatalf("LogMessage: %v", err)
	}

	convs, err := s.UserConversations(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("UserConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ID != first || convs[1].ID != second {
		t.Errorf("order = [%s %s], want [%s %s]", convs[0].ID, convs[1].ID, first, second)
	}
}

func TestConversationNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Conversation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
