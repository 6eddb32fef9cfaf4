package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lifecoachhq/coachapi/internal/ai"
)

// ErrUserNotPermitted is returned when the submitting author is neither
// a session member nor the synthetic AI user.
var ErrUserNotPermitted = errors.New("chat: user not permitted in this session")

// SessionParams configures a new Session. Either SchemaDoc or
// SchemaDocPath must be set; a missing document file is fatal at
// construction time.
type SessionParams struct {
	Name          string
	Users         []User
	AllowedModels []string
	SchemaDoc     string
	SchemaDocPath string
	Defaults      *MessageOptions
	Engine        Generator
	Logger        *slog.Logger
}

// Session owns one conversation: its history, configuration defaults,
// and the three usage accumulators. It processes one message at a time
// and claims no thread-safety; concurrent sessions share nothing.
type Session struct {
	name          string
	createdAt     time.Time
	users         []User
	allowedModels []string
	aiUser        User
	defaults      MessageConfig
	schemaDoc     string

	history       *History
	lastMessageID int

	queryUsage    UsageStats
	nonQueryUsage UsageStats
	visualUsage   UsageStats

	engine Generator
	logger *slog.Logger
	pipe   pipeline
}

func NewSession(p SessionParams) (*Session, error) {
	if p.Engine == nil {
		return nil, errors.New("chat: engine is required")
	}

	doc := p.SchemaDoc
	if doc == "" {
		if p.SchemaDocPath == "" {
			return nil, errors.New("chat: schema document is required")
		}
		b, err := os.ReadFile(p.SchemaDocPath)
		if err != nil {
			return nil, fmt.Errorf("chat: read schema document: %w", err)
		}
		doc = string(b)
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaultModel := "gpt-4o-mini"
	if len(p.AllowedModels) > 0 {
		defaultModel = p.AllowedModels[0]
	}

	s := &Session{
		name:          p.Name,
		createdAt:     time.Now(),
		users:         append([]User(nil), p.Users...),
		allowedModels: p.AllowedModels,
		aiUser:        AIUser(p.AllowedModels),
		defaults:      defaultMessageConfig(defaultModel).apply(p.Defaults),
		schemaDoc:     doc,
		history:       NewHistory(),
		engine:        p.Engine,
		logger:        logger,
	}
	s.pipe = pipeline{s: s}
	s.logger.Info("chat session initialized", "name", s.name, "schema_doc_chars", len(doc))
	return s, nil
}

// AIUser returns the session's synthetic assistant identity.
func (s *Session) AIUser() User { return s.aiUser }

// AddUser admits a user to the session; duplicates are ignored.
func (s *Session) AddUser(u User) {
	for _, existing := range s.users {
		if existing.ID == u.ID {
			return
		}
	}
	s.users = append(s.users, u)
}

// RemoveUser drops a user from the session.
func (s *Session) RemoveUser(id int) {
	for i, u := range s.users {
		if u.ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return
		}
	}
}

func (s *Session) permitted(u User) bool {
	if u.Type == UserTypeAI && u.ID == AIUserID {
		return true
	}
	for _, m := range s.users {
		if m.ID == u.ID {
			return true
		}
	}
	return false
}

func (s *Session) nextID() int {
	s.lastMessageID++
	return s.lastMessageID
}

func (s *Session) newEntry(u User, message string, opts *MessageOptions) *MessageEntry {
	return &MessageEntry{
		ID:        s.nextID(),
		UserID:    u.ID,
		UserName:  u.Name,
		UserType:  u.Type,
		Message:   message,
		Config:    s.defaults.apply(opts),
		CreatedAt: time.Now(),
	}
}

// appendSynthetic appends an AI-authored entry directly to history,
// skipping classification and all generation. This is the explicit echo
// path: the summary becomes part of the conversation as if the AI said
// it, without a second trip through the pipeline.
func (s *Session) appendSynthetic(message string) *MessageEntry {
	e := s.newEntry(s.aiUser, message, nil)
	s.history.Append(e)
	s.logger.Debug("synthetic ai message appended", "id", e.ID)
	return e
}

// SubmitMessage runs the full processing pipeline for one inbound
// message. Exactly one entry is appended per call, plus one AI echo
// entry when a query succeeds end to end with a summary. Generation and
// execution failures come back on the result, not as an error; the
// error return is reserved for caller mistakes.
func (s *Session) SubmitMessage(ctx context.Context, u User, message string, opts *MessageOptions) (*ProcessResult, error) {
	if !s.permitted(u) {
		return nil, ErrUserNotPermitted
	}
	s.logger.Info("message received", "user", u.Name, "chars", len(message))

	// AI-authored submissions short-circuit: persist as an assistant
	// entry, no classification, no generation.
	if u.Type == UserTypeAI {
		e := s.appendSynthetic(message)
		return &ProcessResult{Success: true, MessageID: e.ID}, nil
	}

	entry := s.newEntry(u, message, opts)
	res := s.pipe.process(ctx, entry)
	s.history.Append(entry)
	return res, nil
}

// GetHistory returns up to limit entries in append order; limit <= 0
// means everything.
func (s *Session) GetHistory(limit int) []*MessageEntry {
	return s.history.All(limit)
}

// HistoryText renders the whole transcript as one text block.
func (s *Session) HistoryText() string {
	return s.history.Stringify(s.history.All(0))
}

// ClearHistory wipes the conversation and resets the id counter.
// Accumulators survive: cost history is billing state, not conversation
// state.
func (s *Session) ClearHistory() {
	s.history.Clear()
	s.lastMessageID = 0
	s.logger.Debug("chat history cleared")
}

// CostSummary projects the three accumulators into the session cost
// report. Total is rounded to 5 decimals here and nowhere else.
func (s *Session) CostSummary() CostSummary {
	return CostSummary{
		QueryCost:         s.queryUsage.TotalCost,
		NonQueryCost:      s.nonQueryUsage.TotalCost,
		VisualizationCost: s.visualUsage.TotalCost,
		TotalCost: round5(s.queryUsage.TotalCost +
			s.nonQueryUsage.TotalCost +
			s.visualUsage.TotalCost),
	}
}

// QueryUsage returns a copy of the query accumulator.
func (s *Session) QueryUsage() UsageStats { return s.queryUsage }

// NonQueryUsage returns a copy of the non-query accumulator.
func (s *Session) NonQueryUsage() UsageStats { return s.nonQueryUsage }

// VisualizationUsage returns a copy of the visualization accumulator.
func (s *Session) VisualizationUsage() UsageStats { return s.visualUsage }

// VisualizationRequest targets an existing history entry.
type VisualizationRequest struct {
	MessageID int
	Query     string
	Result    []map[string]any
	Guide     string
	Model     string
}

// VisualResult reports a visualization run.
type VisualResult struct {
	Success      bool   `json:"success"`
	MessageID    int    `json:"message_id"`
	Code         string `json:"visual_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// RunVisualization generates visualization code for a past query result
// and attaches it to the target entry in place. Independent of the main
// pipeline; only the visualization accumulator is touched. An unknown
// message id fails before any generation happens.
func (s *Session) RunVisualization(ctx context.Context, req VisualizationRequest) *VisualResult {
	entry := s.history.GetByID(req.MessageID)
	if entry == nil {
		return &VisualResult{
			Success:      false,
			MessageID:    req.MessageID,
			ErrorMessage: fmt.Sprintf("message with id %d not found in chat history", req.MessageID),
		}
	}

	model := req.Model
	if model == "" {
		model = entry.Config.VisualizationModel
	}
	gen := s.engine.VisualizationCode(ctx, ai.VisualRequest{
		Query:  req.Query,
		Result: req.Result,
		Guide:  req.Guide,
		Model:  model,
	})
	s.visualUsage.Merge(gen.Usage)

	if !gen.Success {
		s.logger.Warn("visualization generation failed", "message_id", req.MessageID, "err", gen.ErrorMessage)
		return &VisualResult{Success: false, MessageID: req.MessageID, ErrorMessage: gen.ErrorMessage}
	}

	entry.VisualCode = gen.Content
	return &VisualResult{Success: true, MessageID: req.MessageID, Code: gen.Content}
}
