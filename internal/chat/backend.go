package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lifecoachhq/coachapi/internal/ai"
)

// Responder is the one generation capability the backend needs.
type Responder interface {
	GenerateAnswer(ctx context.Context, req ai.AnswerRequest) ai.GenerationResult
}

// ErrNoPendingUserMessage is returned by ProduceAIReply when the latest
// message is not a user turn.
var ErrNoPendingUserMessage = errors.New("chat: no pending user message to reply to")

// ChatMessage is one turn in the lightweight backend.
type ChatMessage struct {
	ID        int       `json:"id"`
	UserID    uint64    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserType  string    `json:"user_type"`
	Message   string    `json:"message"`
	Format    string    `json:"message_type"`
	CreatedAt time.Time `json:"timestamp"`
}

// HookFunc runs synchronously after every append. The backend
// invalidates its read caches before dispatching, so a hook always
// observes consistent state.
type HookFunc func(b *Backend, msg *ChatMessage)

// BackendConfig tunes one backend instance.
type BackendConfig struct {
	Model       string
	HistorySize int
	Formatter   func(msgs []*ChatMessage) string
}

// Backend is the simplified chat variant used by the persisted message
// API: an in-memory message list, one generation round-trip per reply,
// and a pluggable post-message hook. No classification, no retry, no
// summary recursion.
type Backend struct {
	cfg       BackendConfig
	responder Responder
	hook      HookFunc

	messages []*ChatMessage
	nextID   int

	lastMessage   *ChatMessage
	lastAIMessage *ChatMessage

	// Memoized reads, nil when stale.
	allCache    []*ChatMessage
	byUserCache map[uint64][]*ChatMessage
}

const defaultBackendHistory = 4

func NewBackend(cfg BackendConfig, responder Responder, hook HookFunc) *Backend {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultBackendHistory
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Backend{cfg: cfg, responder: responder, hook: hook, nextID: 1}
}

// SetHook replaces the post-message hook.
func (b *Backend) SetHook(fn HookFunc) { b.hook = fn }

// AddMessageParams names the fields of a new turn.
type AddMessageParams struct {
	UserID    uint64
	UserName  string
	UserType  string
	Message   string
	Format    string
	Timestamp time.Time
}

// AddMessage appends a turn, invalidates the read caches, then fires
// the hook. Cache invalidation strictly precedes hook dispatch.
func (b *Backend) AddMessage(p AddMessageParams) *ChatMessage {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	format := p.Format
	if format == "" {
		format = "text"
	}
	msg := &ChatMessage{
		ID:        b.nextID,
		UserID:    p.UserID,
		UserName:  p.UserName,
		UserType:  p.UserType,
		Message:   p.Message,
		Format:    format,
		CreatedAt: ts,
	}
	b.messages = append(b.messages, msg)
	b.nextID++

	b.lastMessage = msg
	if strings.EqualFold(p.UserType, "assistant") {
		b.lastAIMessage = msg
	}

	b.invalidateCaches()

	if b.hook != nil {
		b.hook(b, msg)
	}
	return msg
}

func (b *Backend) invalidateCaches() {
	b.allCache = nil
	b.byUserCache = nil
}

// LastN returns the last n messages, oldest first.
func (b *Backend) LastN(n int) []*ChatMessage {
	if n <= 0 {
		return nil
	}
	if n > len(b.messages) {
		n = len(b.messages)
	}
	out := make([]*ChatMessage, n)
	copy(out, b.messages[len(b.messages)-n:])
	return out
}

// HistoryString renders the last n messages for the LLM prompt.
func (b *Backend) HistoryString(n int) string {
	msgs := b.LastN(n)
	if b.cfg.Formatter != nil {
		return b.cfg.Formatter(msgs)
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s|%s: %s", strings.ToLower(m.UserType), m.UserName, m.Message))
	}
	return strings.Join(lines, "\n")
}

// Messages returns all messages in chronological order, memoized until
// the next append.
func (b *Backend) Messages() []*ChatMessage {
	if b.allCache == nil {
		b.allCache = make([]*ChatMessage, len(b.messages))
		copy(b.allCache, b.messages)
	}
	return b.allCache
}

// MessagesByUser returns one user's messages, memoized until the next
// append.
func (b *Backend) MessagesByUser(userID uint64) []*ChatMessage {
	if b.byUserCache == nil {
		b.byUserCache = make(map[uint64][]*ChatMessage)
	}
	if cached, ok := b.byUserCache[userID]; ok {
		return cached
	}
	var out []*ChatMessage
	for _, m := range b.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	b.byUserCache[userID] = out
	return out
}

// LastMessage returns the most recent turn, nil when empty.
func (b *Backend) LastMessage() *ChatMessage { return b.lastMessage }

// LastAIMessage returns the most recent assistant turn, nil when none.
func (b *Backend) LastAIMessage() *ChatMessage { return b.lastAIMessage }

// Clear deletes all messages and resets the id counter.
func (b *Backend) Clear() {
	b.messages = nil
	b.nextID = 1
	b.lastMessage = nil
	b.lastAIMessage = nil
	b.invalidateCaches()
}

// ProduceAIReply generates an assistant reply to the latest user turn
// and stores it (which fires the hook again, with an assistant-typed
// message). Errors leave the message list untouched.
func (b *Backend) ProduceAIReply(ctx context.Context) (*ChatMessage, error) {
	if b.lastMessage == nil || !strings.EqualFold(b.lastMessage.UserType, "user") {
		return nil, ErrNoPendingUserMessage
	}

	gen := b.responder.GenerateAnswer(ctx, ai.AnswerRequest{
		Message: b.lastMessage.Message,
		History: b.HistoryString(b.cfg.HistorySize),
		Model:   b.cfg.Model,
	})
	if !gen.Success {
		return nil, fmt.Errorf("chat: generate reply: %s", gen.ErrorMessage)
	}

	return b.AddMessage(AddMessageParams{
		UserID:   0,
		UserName: "AI",
		UserType: "assistant",
		Message:  gen.Content,
	}), nil
}
