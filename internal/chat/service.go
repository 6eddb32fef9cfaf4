package chat

import (
	"context"
	"encoding/json"

	"github.com/lifecoachhq/coachapi/internal/common"
	"gorm.io/gorm"
)

// MessageCache is a read-through cache over a thread's recent messages.
// Contract: it is invalidated on every append, before any post-message
// hook runs, so hooks always observe consistent state.
type MessageCache interface {
	Get(ctx context.Context, threadID string) ([]Message, bool)
	Set(ctx context.Context, threadID string, msgs []Message)
	Invalidate(ctx context.Context, threadID string)
}

// Service is the persisted-chat orchestrator: gorm-backed threads and
// messages, with a Backend instance rebuilt per request to drive the
// single-round-trip reply.
type Service struct {
	repo        *Repo
	responder   Responder
	cache       MessageCache
	historySize int
}

func NewService(repo *Repo, responder Responder, cache MessageCache, historySize int) *Service {
	if historySize <= 0 || historySize > 100 {
		historySize = defaultBackendHistory
	}
	return &Service{repo: repo, responder: responder, cache: cache, historySize: historySize}
}

func (s *Service) CreateThread(ctx context.Context, userID uint64, title string, settings *ThreadSettings) (*Thread, error) {
	tid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	var raw string
	if settings != nil {
		b, err := json.Marshal(settings)
		if err != nil {
			return nil, err
		}
		raw = string(b)
	}
	t := &Thread{
		ThreadID: tid,
		UserID:   userID,
		Title:    title,
		Settings: raw,
	}
	if err := s.repo.CreateThread(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListThreads(ctx context.Context, userID uint64) ([]Thread, error) {
	return s.repo.ListThreads(ctx, userID)
}

func (s *Service) DeleteThread(ctx context.Context, userID uint64, threadID string) error {
	if err := s.repo.DeleteThread(ctx, userID, threadID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, threadID)
	}
	return nil
}

// ValidateThreadOwner hides foreign threads behind ErrRecordNotFound.
func (s *Service) ValidateThreadOwner(ctx context.Context, userID uint64, threadID string) (*Thread, error) {
	t, err := s.repo.GetThreadByThreadID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (s *Service) settingsFor(t *Thread) ThreadSettings {
	var settings ThreadSettings
	if t.Settings != "" {
		_ = json.Unmarshal([]byte(t.Settings), &settings)
	}
	if settings.HistorySize <= 0 {
		settings.HistorySize = s.historySize
	}
	return settings
}

// backendFor builds an in-memory Backend seeded with the thread's most
// recent persisted turns, oldest first.
func (s *Service) backendFor(ctx context.Context, t *Thread) (*Backend, error) {
	settings := s.settingsFor(t)
	backend := NewBackend(BackendConfig{
		Model:       settings.Model,
		HistorySize: settings.HistorySize,
	}, s.responder, nil)

	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, t.UserID, t.ThreadID, settings.HistorySize)
	if err != nil {
		return nil, err
	}
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		backend.AddMessage(AddMessageParams{
			UserID:    m.UserID,
			UserName:  m.UserName,
			UserType:  m.Role,
			Message:   m.Content,
			Format:    m.Format,
			Timestamp: m.CreatedAt,
		})
	}
	return backend, nil
}

// InsertInboundMessage persists a user turn without generating a reply
// (the async job path). The cache is invalidated on append.
func (s *Service) InsertInboundMessage(ctx context.Context, userID uint64, threadID, userName, content string, idempotencyKey *string) (*Message, bool, error) {
	if _, err := s.ValidateThreadOwner(ctx, userID, threadID); err != nil {
		return nil, false, err
	}
	m, created, err := s.repo.InsertUserMessageOrGetExisting(ctx, userID, threadID, userName, content, idempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, threadID)
	}
	return m, created, nil
}

// NewMessageResult reports a processed inbound message.
type NewMessageResult struct {
	UserMessageID      uint64 `json:"message_id"`
	AssistantMessageID uint64 `json:"assistant_message_id"`
	Reply              string `json:"reply"`
}

// ProcessNewMessage persists the user's message, generates the
// assistant reply through a Backend round-trip, and persists the reply.
// The message cache is invalidated after each insert.
func (s *Service) ProcessNewMessage(ctx context.Context, userID uint64, threadID, userName, content string, idempotencyKey *string) (*NewMessageResult, error) {
	t, err := s.ValidateThreadOwner(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}

	userMsg, created, err := s.repo.InsertUserMessageOrGetExisting(ctx, userID, threadID, userName, content, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, threadID)
	}
	if !created {
		// Duplicate submission: the reply for this key was already (or
		// is being) produced; do not generate twice.
		return &NewMessageResult{UserMessageID: userMsg.ID}, nil
	}

	backend, err := s.backendFor(ctx, t)
	if err != nil {
		return nil, err
	}
	reply, err := backend.ProduceAIReply(ctx)
	if err != nil {
		return nil, err
	}

	assistantMsg := &Message{
		ThreadID: threadID,
		UserID:   userID,
		UserName: "AI",
		Role:     "assistant",
		Content:  reply.Message,
		Format:   "text",
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, threadID)
	}

	return &NewMessageResult{
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		Reply:              reply.Message,
	}, nil
}

// ListMessages serves the first page through the read-through cache;
// deeper pages always hit the database.
func (s *Service) ListMessages(ctx context.Context, userID uint64, threadID string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if _, err := s.ValidateThreadOwner(ctx, userID, threadID); err != nil {
		return nil, err
	}

	cacheable := s.cache != nil && beforeID == 0 && limit == 50
	if cacheable {
		if msgs, ok := s.cache.Get(ctx, threadID); ok {
			return msgs, nil
		}
	}
	msgs, err := s.repo.ListMessages(ctx, userID, threadID, limit, beforeID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.cache.Set(ctx, threadID, msgs)
	}
	return msgs, nil
}

// GenerateAssistantReplyAndInsert is the worker-side path: rebuild the
// backend from persisted history and produce one reply.
func (s *Service) GenerateAssistantReplyAndInsert(ctx context.Context, userID uint64, threadID string) (string, uint64, error) {
	t, err := s.ValidateThreadOwner(ctx, userID, threadID)
	if err != nil {
		return "", 0, err
	}

	backend, err := s.backendFor(ctx, t)
	if err != nil {
		return "", 0, err
	}
	reply, err := backend.ProduceAIReply(ctx)
	if err != nil {
		return "", 0, err
	}

	assistantMsg := &Message{
		ThreadID: threadID,
		UserID:   userID,
		UserName: "AI",
		Role:     "assistant",
		Content:  reply.Message,
		Format:   "text",
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return "", 0, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, threadID)
	}
	return reply.Message, assistantMsg.ID, nil
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}
