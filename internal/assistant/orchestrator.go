package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/garrellmacarilay/floodguard-agent/internal/channel"
	"github.com/garrellmacarilay/floodguard-agent/internal/chatlog"
	"github.com/garrellmacarilay/floodguard-agent/internal/errclass"
	"github.com/garrellmacarilay/floodguard-agent/internal/events"
	"github.com/garrellmacarilay/floodguard-agent/internal/prompts"
)

// PromptBuilder turns raw user text into the enriched prompt that goes
// out on the wire. The default keeps the text unchanged.
type PromptBuilder func(ctx context.Context, userText string) string

// Orchestrator owns one conversation: an ordered list of delivery
// channels, the live transcript, and best-effort persistence. Channels
// are tried in list order on every send; a send never hangs past the
// channels' own timeouts.
type Orchestrator struct {
	channels []channel.Channel
	store    *chatlog.Store
	identity chatlog.IdentityProvider
	bus      *events.Bus
	logger   *slog.Logger
	build    PromptBuilder

	mu             sync.Mutex
	state          State
	conversationID string
	userID         string
	transcript     []Turn
	turnIndex      map[string]int
	ended          bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore enables persistence. A nil store disables it.
func WithStore(store *chatlog.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithIdentity sets the provider of the owning user id.
func WithIdentity(p chatlog.IdentityProvider) Option {
	return func(o *Orchestrator) { o.identity = p }
}

// WithBus publishes pipeline events to bus. Nil is allowed.
func WithBus(bus *events.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithPromptBuilder sets the prompt enrichment function.
func WithPromptBuilder(b PromptBuilder) Option {
	return func(o *Orchestrator) { o.build = b }
}

// New creates an orchestrator over the given channels, tried in order:
// the first is the primary, the rest are fallbacks.
func New(channels []channel.Channel, opts ...Option) (*Orchestrator, error) {
	if len(channels) == 0 {
		return nil, errors.New("assistant: at least one channel required")
	}
	o := &Orchestrator{
		channels:  channels,
		identity:  chatlog.StaticIdentity("anonymous"),
		logger:    slog.Default(),
		build:     func(ctx context.Context, text string) string { return text },
		turnIndex: make(map[string]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the advisory channel state from initialization.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ConversationID returns the persisted conversation id, empty when
// persistence is disabled.
func (o *Orchestrator) ConversationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationID
}

// Transcript returns a copy of the live transcript in send order.
func (o *Orchestrator) Transcript() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Turn, len(o.transcript))
	copy(out, o.transcript)
	return out
}

// QuickPrompts returns starter suggestions while the transcript is
// still short.
func (o *Orchestrator) QuickPrompts() []string {
	o.mu.Lock()
	n := len(o.transcript)
	o.mu.Unlock()
	return prompts.QuickPrompts(n)
}

// Start opens the conversation: greets, probes channels in order until
// one succeeds, and appends a readiness (or failure) notice. Returns
// the transcript so far. Probe failures do not fail Start; they only
// set the advisory state.
func (o *Orchestrator) Start(ctx context.Context) []Turn {
	o.appendTurn(Turn{
		ID:        newTurnID(),
		Role:      chatlog.RoleModel,
		Text:      prompts.Greeting,
		Timestamp: time.Now(),
	})

	if o.store != nil {
		userID, err := o.identity.GetOrCreate()
		if err != nil {
			o.logger.Warn("identity unavailable, persistence disabled", "error", err)
		} else {
			convID, err := o.store.CreateConversation(ctx, userID, map[string]any{
				"client": "floodguard",
			})
			if err != nil {
				o.logger.Warn("create conversation failed, persistence disabled", "error", err)
			} else {
				o.mu.Lock()
				o.conversationID = convID
				o.userID = userID
				o.mu.Unlock()
				o.bus.Publish(events.Event{
					Source: events.SourceOrchestrator,
					Kind:   events.KindConversationStart,
					Data:   map[string]any{"conversation_id": convID, "user_id": userID},
				})
			}
		}
	}

	state := StateUnavailable
	readyText := ""
	for i, ch := range o.channels {
		err := ch.Probe(ctx)
		o.bus.Publish(events.Event{
			Source: events.SourceChannel,
			Kind:   events.KindProbe,
			Data:   map[string]any{"channel": ch.Name(), "ok": err == nil},
		})
		if err != nil {
			o.logger.Warn("channel probe failed", "channel", ch.Name(), "error", err)
			continue
		}
		o.logger.Info("channel ready", "channel", ch.Name())
		if i == 0 {
			state = StatePrimaryReady
			readyText = prompts.ReadyRelay
		} else {
			state = StateSecondaryReady
			readyText = prompts.ReadyDirect
		}
		break
	}

	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	text := readyText
	role := chatlog.RoleModel
	if state == StateUnavailable {
		text = errclass.UserMessage(errclass.KindChannelUnavailable)
		role = chatlog.RoleError
	}
	o.appendTurn(Turn{
		ID:        newTurnID(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})

	return o.Transcript()
}

// Send delivers userText through the channel list and resolves exactly
// one model or error turn. The primary channel gets a single
// non-streaming attempt; on its failure each ready fallback is tried
// with a streaming call, chunks flowing through update as they arrive.
// The returned turn is the resolved transcript entry; err is non-nil
// when the turn resolved as an error.
func (o *Orchestrator) Send(ctx context.Context, userText string, update TurnUpdate) (Turn, error) {
	if update == nil {
		update = func(Turn) {}
	}

	userTurn := Turn{
		ID:        newTurnID(),
		Role:      chatlog.RoleUser,
		Text:      userText,
		Timestamp: time.Now(),
	}
	o.appendTurn(userTurn)
	update(userTurn)
	o.logMessage(ctx, chatlog.RoleUser, userText, nil)

	o.bus.Publish(events.Event{
		Source: events.SourceOrchestrator,
		Kind:   events.KindTurnStart,
		Data:   map[string]any{"turn_id": userTurn.ID, "conversation_id": o.ConversationID()},
	})

	placeholder := Turn{
		ID:          newTurnID(),
		Role:        chatlog.RoleModel,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
	o.appendTurn(placeholder)
	update(placeholder)

	started := time.Now()
	prompt := o.build(ctx, userText)

	final, err := o.deliver(ctx, placeholder, prompt, update)
	if err != nil {
		kind := errclass.Classify(err)
		o.logger.Error("turn failed", "turn_id", placeholder.ID, "kind", kind, "error", err)
		final = placeholder
		final.Role = chatlog.RoleError
		final.Text = errclass.UserMessage(kind)
		final.ErrorKind = kind
		final.IsStreaming = false
		o.updateTurn(final)
		update(final)
		o.logMessage(ctx, chatlog.RoleError, final.Text, map[string]any{
			"error_kind": string(kind),
			"error":      err.Error(),
		})
		o.bus.Publish(events.Event{
			Source: events.SourceOrchestrator,
			Kind:   events.KindTurnFailed,
			Data:   map[string]any{"turn_id": placeholder.ID, "kind": string(kind), "error": err.Error()},
		})
		return final, err
	}

	o.logMessage(ctx, chatlog.RoleModel, final.Text, map[string]any{
		"channel": final.Channel,
	})
	o.bus.Publish(events.Event{
		Source: events.SourceOrchestrator,
		Kind:   events.KindTurnComplete,
		Data: map[string]any{
			"turn_id":    final.ID,
			"channel":    final.Channel,
			"text_len":   len(final.Text),
			"elapsed_ms": time.Since(started).Milliseconds(),
		},
	})
	return final, nil
}

// deliver runs the channel cascade for one turn and returns the
// resolved turn. The caller handles error classification.
func (o *Orchestrator) deliver(ctx context.Context, turn Turn, prompt string, update TurnUpdate) (Turn, error) {
	primary := o.channels[0]

	text, primaryErr := primary.Send(ctx, prompt)
	if primaryErr == nil {
		turn.Text = text
		turn.Channel = primary.Name()
		turn.IsStreaming = false
		o.updateTurn(turn)
		update(turn)
		return turn, nil
	}
	o.logger.Warn("primary channel failed", "channel", primary.Name(), "error", primaryErr)

	for _, fallback := range o.channels[1:] {
		if !fallback.Ready() {
			continue
		}
		o.bus.Publish(events.Event{
			Source: events.SourceChannel,
			Kind:   events.KindFallback,
			Data: map[string]any{
				"turn_id": turn.ID,
				"from":    primary.Name(),
				"to":      fallback.Name(),
				"error":   primaryErr.Error(),
			},
		})

		resolved, err := o.stream(ctx, turn, fallback, prompt, update)
		if err != nil {
			return turn, fmt.Errorf("all channels failed: %s: %v; %s: %w",
				primary.Name(), primaryErr, fallback.Name(), err)
		}
		return resolved, nil
	}

	return turn, fmt.Errorf("%w: %s failed: %v",
		errclass.ErrChannelUnavailable, primary.Name(), primaryErr)
}

// stream drives one fallback streaming attempt, growing the turn's
// text chunk by chunk in receipt order. On a mid-stream error the
// caller replaces the partial turn with an error turn.
func (o *Orchestrator) stream(ctx context.Context, turn Turn, ch channel.Channel, prompt string, update TurnUpdate) (Turn, error) {
	s, err := ch.Stream(ctx, prompt)
	if err != nil {
		return turn, err
	}
	defer s.Close()

	for {
		chunk, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return turn, err
		}
		turn.Text += chunk
		turn.Channel = ch.Name()
		o.updateTurn(turn)
		update(turn)
		o.bus.Publish(events.Event{
			Source: events.SourceChannel,
			Kind:   events.KindTurnChunk,
			Data:   map[string]any{"turn_id": turn.ID, "channel": ch.Name(), "chunk_len": len(chunk)},
		})
	}

	turn.Channel = ch.Name()
	turn.IsStreaming = false
	o.updateTurn(turn)
	update(turn)
	return turn, nil
}

// End closes the conversation. Persistence runs fire-and-forget so
// teardown never blocks the caller.
func (o *Orchestrator) End() {
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return
	}
	o.ended = true
	convID := o.conversationID
	o.mu.Unlock()

	if o.store == nil || convID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.store.EndConversation(ctx, convID); err != nil {
			o.logger.Warn("end conversation failed", "conversation_id", convID, "error", err)
			return
		}
		o.bus.Publish(events.Event{
			Source: events.SourceOrchestrator,
			Kind:   events.KindConversationEnd,
			Data:   map[string]any{"conversation_id": convID},
		})
	}()
}

// appendTurn adds a turn to the transcript.
func (o *Orchestrator) appendTurn(t Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turnIndex[t.ID] = len(o.transcript)
	o.transcript = append(o.transcript, t)
}

// updateTurn overwrites a turn in place, keyed by id so concurrent
// sends cannot cross-write each other's text.
func (o *Orchestrator) updateTurn(t Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i, ok := o.turnIndex[t.ID]; ok {
		o.transcript[i] = t
	}
}

// logMessage persists one message best-effort: failures are logged and
// never abort the in-flight turn.
func (o *Orchestrator) logMessage(ctx context.Context, role, text string, metadata map[string]any) {
	o.mu.Lock()
	store, convID := o.store, o.conversationID
	o.mu.Unlock()
	if store == nil || convID == "" {
		return
	}

	msgID, err := store.LogMessage(ctx, convID, role, text, metadata)
	if err != nil {
		o.logger.Warn("log message failed", "conversation_id", convID, "role", role, "error", err)
		return
	}
	o.bus.Publish(events.Event{
		Source: events.SourceStore,
		Kind:   events.KindMessageLogged,
		Data:   map[string]any{"conversation_id": convID, "message_id": msgID, "role": role},
	})
}
