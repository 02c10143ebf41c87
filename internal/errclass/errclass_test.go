package errclass

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"channel unavailable sentinel", ErrChannelUnavailable, KindChannelUnavailable},
		{"wrapped sentinel", fmt.Errorf("send: %w", ErrChannelUnavailable), KindChannelUnavailable},
		{"missing api key", errors.New("GEMINI_API_KEY not set: api key missing"), KindConfiguration},
		{"unauthorized", errors.New("relay returned 401 unauthorized"), KindConfiguration},
		{"quota", errors.New("generateContent: quota exceeded for project"), KindQuota},
		{"rate limit", errors.New("429 rate limit hit"), KindQuota},
		{"net.Error", timeoutErr{}, KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"refused", errors.New("dial tcp 127.0.0.1:8000: connection refused"), KindNetwork},
		{"opaque", errors.New("something odd happened"), KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestUserMessageAlwaysMentionsHotline(t *testing.T) {
	kinds := []Kind{KindUnknown, KindConfiguration, KindQuota, KindNetwork, KindChannelUnavailable}
	seen := map[string]Kind{}
	for _, k := range kinds {
		msg := UserMessage(k)
		if !strings.Contains(msg, "call 911") {
			t.Errorf("%v message missing hotline reminder: %q", k, msg)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("kinds %v and %v share message %q", prev, k, msg)
		}
		seen[msg] = k
	}
}
