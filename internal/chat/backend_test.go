package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lifecoachhq/coachapi/internal/ai"
)

type fakeResponder struct {
	reply string
	fail  bool
	calls int
	last  ai.AnswerRequest
}

func (f *fakeResponder) GenerateAnswer(ctx context.Context, req ai.AnswerRequest) ai.GenerationResult {
	f.calls++
	f.last = req
	if f.fail {
		return ai.GenerationResult{Success: false, ErrorMessage: "provider down"}
	}
	return ai.GenerationResult{Success: true, Content: f.reply}
}

func userTurn(msg string) AddMessageParams {
	return AddMessageParams{UserID: 1, UserName: "ada", UserType: "user", Message: msg}
}

func TestBackendAddMessage_AssignsIDsInOrder(t *testing.T) {
	b := NewBackend(BackendConfig{}, &fakeResponder{}, nil)

	m1 := b.AddMessage(userTurn("one"))
	m2 := b.AddMessage(userTurn("two"))

	if m1.ID != 1 || m2.ID != 2 {
		t.Fatalf("ids: %d, %d", m1.ID, m2.ID)
	}
	if b.LastMessage() != m2 {
		t.Fatalf("last message wrong")
	}
	if m1.Format != "text" {
		t.Fatalf("default format = %q", m1.Format)
	}
}

func TestBackendHook_SeesInvalidatedCaches(t *testing.T) {
	b := NewBackend(BackendConfig{}, &fakeResponder{}, nil)

	// Warm the memoized views, then make sure a hook reading them after
	// the next append sees the new message, not a stale copy.
	b.AddMessage(userTurn("first"))
	_ = b.Messages()
	_ = b.MessagesByUser(1)

	var seen int
	b.SetHook(func(bk *Backend, msg *ChatMessage) {
		seen = len(bk.Messages())
	})
	b.AddMessage(userTurn("second"))

	if seen != 2 {
		t.Fatalf("hook saw %d messages, want 2", seen)
	}
}

func TestBackendAutoReplyHook(t *testing.T) {
	resp := &fakeResponder{reply: "keep going, you are close"}
	b := NewBackend(BackendConfig{HistorySize: 2}, resp, nil)
	b.SetHook(func(bk *Backend, msg *ChatMessage) {
		if strings.EqualFold(msg.UserType, "user") {
			if _, err := bk.ProduceAIReply(context.Background()); err != nil {
				t.Fatalf("auto reply: %v", err)
			}
		}
	})

	b.AddMessage(userTurn("am I making progress"))

	msgs := b.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[1].UserType != "assistant" || msgs[1].Message != resp.reply {
		t.Fatalf("assistant turn wrong: %+v", msgs[1])
	}
	if b.LastAIMessage() != msgs[1] {
		t.Fatalf("last ai message not tracked")
	}
}

func TestBackendProduceAIReply_RequiresPendingUserTurn(t *testing.T) {
	resp := &fakeResponder{reply: "hello"}
	b := NewBackend(BackendConfig{}, resp, nil)

	if _, err := b.ProduceAIReply(context.Background()); !errors.Is(err, ErrNoPendingUserMessage) {
		t.Fatalf("empty backend: err = %v", err)
	}

	b.AddMessage(userTurn("hi"))
	if _, err := b.ProduceAIReply(context.Background()); err != nil {
		t.Fatalf("reply: %v", err)
	}
	// Latest turn is now the assistant's; a second reply has nothing to
	// answer.
	if _, err := b.ProduceAIReply(context.Background()); !errors.Is(err, ErrNoPendingUserMessage) {
		t.Fatalf("after reply: err = %v", err)
	}
}

func TestBackendProduceAIReply_FailureStoresNothing(t *testing.T) {
	resp := &fakeResponder{fail: true}
	b := NewBackend(BackendConfig{}, resp, nil)
	b.AddMessage(userTurn("hi"))

	if _, err := b.ProduceAIReply(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(b.Messages()) != 1 {
		t.Fatalf("failed reply was stored")
	}
}

func TestBackendHistoryWindow(t *testing.T) {
	resp := &fakeResponder{reply: "ok"}
	b := NewBackend(BackendConfig{HistorySize: 2}, resp, nil)
	b.AddMessage(userTurn("one"))
	b.AddMessage(userTurn("two"))
	b.AddMessage(userTurn("three"))

	if _, err := b.ProduceAIReply(context.Background()); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if strings.Contains(resp.last.History, "one") {
		t.Fatalf("history window too wide:\n%s", resp.last.History)
	}
	if !strings.Contains(resp.last.History, "two") || !strings.Contains(resp.last.History, "three") {
		t.Fatalf("history window missing turns:\n%s", resp.last.History)
	}
}

func TestBackendMessagesByUserMemoized(t *testing.T) {
	b := NewBackend(BackendConfig{}, &fakeResponder{}, nil)
	b.AddMessage(userTurn("mine"))
	b.AddMessage(AddMessageParams{UserID: 2, UserName: "bo", UserType: "user", Message: "theirs"})

	first := b.MessagesByUser(1)
	second := b.MessagesByUser(1)
	if len(first) != 1 || first[0].Message != "mine" {
		t.Fatalf("by-user view wrong: %+v", first)
	}
	if &first[0] != &second[0] {
		t.Fatalf("memoized slice not reused")
	}

	b.AddMessage(userTurn("more"))
	if got := b.MessagesByUser(1); len(got) != 2 {
		t.Fatalf("stale view after append: %d", len(got))
	}
}

func TestBackendClear(t *testing.T) {
	b := NewBackend(BackendConfig{}, &fakeResponder{}, nil)
	b.AddMessage(userTurn("one"))
	b.Clear()

	if len(b.Messages()) != 0 || b.LastMessage() != nil || b.LastAIMessage() != nil {
		t.Fatalf("clear left state behind")
	}
	if m := b.AddMessage(userTurn("fresh")); m.ID != 1 {
		t.Fatalf("id counter not reset: %d", m.ID)
	}
}
