package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IdentityProvider yields the stable user id that owns conversations
// created by this process.
type IdentityProvider interface {
	GetOrCreate() (string, error)
}

// StaticIdentity always returns a fixed user id. Used by tests and by
// callers that manage identity themselves.
type StaticIdentity string

// GetOrCreate returns the fixed id.
func (s StaticIdentity) GetOrCreate() (string, error) {
	return string(s), nil
}

// FileIdentity persists a generated user id to a file so the same id
// survives restarts.
type FileIdentity struct {
	// Path of the identity file, typically under the data directory.
	Path string

	mu     sync.Mutex
	cached string
}

// GetOrCreate reads the stored id, generating and persisting a new one
// on first use.
func (f *FileIdentity) GetOrCreate() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != "" {
		return f.cached, nil
	}

	raw, err := os.ReadFile(f.Path)
	if err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			f.cached = id
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read identity: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return "", fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(id.String()+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write identity: %w", err)
	}

	f.cached = id.String()
	return f.cached, nil
}
