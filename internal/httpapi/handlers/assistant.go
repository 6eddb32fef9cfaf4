package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/lifecoachhq/coachapi/internal/chat"
	"github.com/lifecoachhq/coachapi/internal/common"
	"github.com/lifecoachhq/coachapi/internal/models"
)

// SessionFactory builds a fresh coaching session for one account.
type SessionFactory func(ownerID uint64) (*chat.Session, error)

type assistantEntry struct {
	mu      sync.Mutex
	session *chat.Session
}

// AssistantManager keeps one coaching session per account, created
// lazily on first use. Sessions process one message at a time, so each
// entry carries its own lock; the manager lock only guards the map.
type AssistantManager struct {
	mu       sync.Mutex
	sessions map[uint64]*assistantEntry
	factory  SessionFactory
}

func NewAssistantManager(factory SessionFactory) *AssistantManager {
	return &AssistantManager{
		sessions: make(map[uint64]*assistantEntry),
		factory:  factory,
	}
}

func (m *AssistantManager) acquire(ownerID uint64) (*assistantEntry, error) {
	m.mu.Lock()
	e, ok := m.sessions[ownerID]
	m.mu.Unlock()
	if ok {
		return e, nil
	}

	s, err := m.factory(ownerID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[ownerID]; ok {
		// Lost the race; the other session wins.
		return existing, nil
	}
	e = &assistantEntry{session: s}
	m.sessions[ownerID] = e
	return e, nil
}

// With runs fn against the account's session under its lock.
func (m *AssistantManager) With(ownerID uint64, fn func(*chat.Session) error) error {
	e, err := m.acquire(ownerID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

func (h *Handler) assistantUser(uid uint64) (chat.User, error) {
	var u models.User
	if err := h.DB.First(&u, "id = ?", uid).Error; err != nil {
		return chat.User{}, err
	}
	return chat.User{ID: int(uid), Name: u.Username, Type: chat.UserTypeHuman}, nil
}

type assistantMessageReq struct {
	Message string               `json:"message" binding:"required"`
	Options *chat.MessageOptions `json:"options"`
}

// PostAssistantMessage runs one turn of the coaching pipeline. Failed
// generation or SQL execution still returns 200 with success=false on
// the body; the turn happened, it just did not go well.
func (h *Handler) PostAssistantMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req assistantMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	user, err := h.assistantUser(uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	var res *chat.ProcessResult
	err = h.Assistants.With(uid, func(s *chat.Session) error {
		s.AddUser(user)
		var serr error
		res, serr = s.SubmitMessage(c.Request.Context(), user, req.Message, req.Options)
		return serr
	})
	if err != nil {
		if errors.Is(err, chat.ErrUserNotPermitted) {
			common.Fail(c, http.StatusForbidden, 40301, "not permitted in this session")
			return
		}
		log.Printf("[PostAssistantMessage] uid=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, res)
}

// GetAssistantHistory returns the session transcript, oldest first.
func (h *Handler) GetAssistantHistory(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	var entries []*chat.MessageEntry
	err := h.Assistants.With(uid, func(s *chat.Session) error {
		entries = s.GetHistory(limit)
		return nil
	})
	if err != nil {
		log.Printf("[GetAssistantHistory] uid=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, gin.H{"messages": entries, "count": len(entries)})
}

// ClearAssistantHistory wipes the transcript. Accumulated costs stay.
func (h *Handler) ClearAssistantHistory(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	err := h.Assistants.With(uid, func(s *chat.Session) error {
		s.ClearHistory()
		return nil
	})
	if err != nil {
		log.Printf("[ClearAssistantHistory] uid=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, gin.H{"cleared": true})
}

type assistantVisualReq struct {
	MessageID int              `json:"message_id" binding:"required"`
	Query     string           `json:"query"`
	Result    []map[string]any `json:"result"`
	Guide     string           `json:"guide"`
	Model     string           `json:"model"`
}

// PostAssistantVisualization generates chart code for a past query
// turn.
func (h *Handler) PostAssistantVisualization(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req assistantVisualReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var res *chat.VisualResult
	err := h.Assistants.With(uid, func(s *chat.Session) error {
		res = s.RunVisualization(c.Request.Context(), chat.VisualizationRequest{
			MessageID: req.MessageID,
			Query:     req.Query,
			Result:    req.Result,
			Guide:     req.Guide,
			Model:     req.Model,
		})
		return nil
	})
	if err != nil {
		log.Printf("[PostAssistantVisualization] uid=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, res)
}

// GetAssistantCosts reports the three accumulators and the rounded
// total.
func (h *Handler) GetAssistantCosts(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var out gin.H
	err := h.Assistants.With(uid, func(s *chat.Session) error {
		out = gin.H{
			"summary":             s.CostSummary(),
			"query_usage":         s.QueryUsage(),
			"non_query_usage":     s.NonQueryUsage(),
			"visualization_usage": s.VisualizationUsage(),
		}
		return nil
	})
	if err != nil {
		log.Printf("[GetAssistantCosts] uid=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, out)
}
