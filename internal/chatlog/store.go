// Package chatlog persists conversations and their messages to sqlite.
package chatlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Roles a message can carry in a transcript.
const (
	RoleUser  = "user"
	RoleModel = "model"
	RoleError = "error"
)

// Conversation statuses.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("chatlog: not found")

// timeFormat is RFC3339 with a fixed-width fractional second so stored
// timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Conversation is one chat session.
type Conversation struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Status       string         `json:"status"`
	MessageCount int            `json:"message_count"`
	StartTime    time.Time      `json:"start_time"`
	LastActivity time.Time      `json:"last_activity"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Message is one logged turn of a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Text           string         `json:"text"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Store handles conversation and message persistence.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// NewStore creates a store using the given database and runs schema
// migration.
func NewStore(db *sql.DB, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Open opens (or creates) the sqlite database at path and returns a
// migrated store.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := NewStore(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			start_time TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			end_time TEXT,
			metadata TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(user_id, last_activity DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			metadata TEXT,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, timestamp ASC);
	`)
	return err
}

// CreateConversation inserts an active conversation for userID and
// returns its id.
func (s *Store) CreateConversation(ctx context.Context, userID string, metadata map[string]any) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	meta, err := marshalMeta(metadata)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC().Format(timeFormat)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, status, message_count, start_time, last_activity, metadata)
		VALUES (?, ?, ?, 0, ?, ?, ?)
	`, id.String(), userID, StatusActive, now, now, meta)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}

	s.log.Debug("conversation created", "conversation_id", id.String(), "user_id", userID)
	return id.String(), nil
}

// LogMessage inserts a message, then recomputes the parent
// conversation's message count from a fresh read and stamps its last
// activity. The recomputation keeps the count consistent even if a
// previous update was missed.
func (s *Store) LogMessage(ctx context.Context, conversationID, role, text string, metadata map[string]any) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	meta, err := marshalMeta(metadata)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC().Format(timeFormat)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, text, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), conversationID, role, text, now, meta)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations
		SET message_count = (SELECT COUNT(*) FROM messages WHERE conversation_id = ?),
		    last_activity = ?
		WHERE id = ?
	`, conversationID, now, conversationID)
	if err != nil {
		return "", fmt.Errorf("update conversation: %w", err)
	}

	return id.String(), nil
}

// EndConversation marks the conversation ended and stamps its end time.
// Idempotent: a second call leaves the original end time in place.
func (s *Store) EndConversation(ctx context.Context, conversationID string) error {
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = ?,
		    end_time = CASE WHEN end_time IS NULL THEN ? ELSE end_time END
		WHERE id = ?
	`, StatusEnded, now, conversationID)
	if err != nil {
		return fmt.Errorf("end conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Conversation returns a single conversation by id.
func (s *Store) Conversation(ctx context.Context, conversationID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, message_count, start_time, last_activity, end_time, metadata
		FROM conversations WHERE id = ?
	`, conversationID)
	return scanConversation(row)
}

// ConversationHistory returns a conversation's messages ordered oldest
// first, capped at limit (0 means no cap).
func (s *Store) ConversationHistory(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, text, timestamp, metadata
		FROM messages WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Text, &ts, &meta); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339, ts)
		m.Metadata = unmarshalMeta(meta)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UserConversations returns a user's conversations ordered by most
// recent activity, capped at limit (0 means no cap).
func (s *Store) UserConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	query := `
		SELECT id, user_id, status, message_count, start_time, last_activity, end_time, metadata
		FROM conversations WHERE user_id = ?
		ORDER BY last_activity DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var start, last string
	var end, meta sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.Status, &c.MessageCount, &start, &last, &end, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.StartTime, _ = time.Parse(time.RFC3339, start)
	c.LastActivity, _ = time.Parse(time.RFC3339, last)
	if end.Valid {
		t, err := time.Parse(time.RFC3339, end.String)
		if err == nil {
			c.EndTime = &t
		}
	}
	c.Metadata = unmarshalMeta(meta)
	return &c, nil
}

func marshalMeta(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalMeta(meta sql.NullString) map[string]any {
	if !meta.Valid || meta.String == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(meta.String), &out); err != nil {
		return nil
	}
	return out
}
