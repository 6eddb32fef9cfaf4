package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lifecoachhq/coachapi/internal/chat"
	"github.com/lifecoachhq/coachapi/internal/common"
	"gorm.io/gorm"
)

type createThreadReq struct {
	Title    string               `json:"title"`
	Settings *chat.ThreadSettings `json:"settings"`
}

func (h *Handler) CreateThread(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createThreadReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	t, err := h.ChatSvc.CreateThread(c.Request.Context(), uid, req.Title, req.Settings)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create thread")
		return
	}
	common.Ok(c, gin.H{"thread_id": t.ThreadID})
}

func (h *Handler) ListThreads(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	threads, err := h.ChatSvc.ListThreads(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list threads")
		return
	}
	common.Ok(c, gin.H{"threads": threads})
}

func (h *Handler) DeleteThread(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.ChatSvc.DeleteThread(c.Request.Context(), uid, c.Param("thread_id")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "thread not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to delete thread")
		return
	}
	common.Ok(c, gin.H{"deleted": true})
}

type postMessageReq struct {
	ThreadID string `json:"thread_id" binding:"required"`
	UserName string `json:"user_name"`
	Message  string `json:"message" binding:"required"`
}

func (h *Handler) PostMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req postMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.UserName == "" {
		req.UserName = "User"
	}

	res, err := h.ChatSvc.ProcessNewMessage(c.Request.Context(), uid, req.ThreadID, req.UserName, req.Message, idempotencyKey(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "thread not found")
			return
		}
		log.Printf("[PostMessage] uid=%d thread_id=%s err=%v", uid, req.ThreadID, err)
		common.Fail(c, http.StatusBadGateway, 50201, "failed to generate reply")
		return
	}
	common.Ok(c, res)
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	threadID := c.Param("thread_id")
	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if v := c.Query("before_id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, threadID, limit, beforeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "thread not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}
	common.Ok(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

func idempotencyKey(c *gin.Context) *string {
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if key == "" || len(key) > 128 {
		return nil
	}
	return &key
}

func (h *Handler) PostMessageAsync(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req postMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.UserName == "" {
		req.UserName = "User"
	}
	key := idempotencyKey(c)

	if _, err := h.ChatSvc.ValidateThreadOwner(c.Request.Context(), uid, req.ThreadID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "thread not found")
			return
		}
		log.Printf("[PostMessageAsync] ValidateThreadOwner uid=%d thread_id=%s err=%v", uid, req.ThreadID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Insert the user message up front so the transcript is complete even
	// if the reply job lags or fails.
	if _, _, err := h.ChatSvc.InsertInboundMessage(c.Request.Context(), uid, req.ThreadID, req.UserName, req.Message, key); err != nil {
		log.Printf("[PostMessageAsync] InsertInboundMessage uid=%d thread_id=%s err=%v", uid, req.ThreadID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		ThreadID:       req.ThreadID,
		Prompt:         req.Message,
		IdempotencyKey: key,
		Status:         chat.JobQueued,
	}
	job, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		log.Printf("[PostMessageAsync] CreateJobOrGetExisting uid=%d thread_id=%s err=%v", uid, req.ThreadID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
			log.Printf("[PostMessageAsync] PublishJob uid=%d job_id=%s err=%v", uid, job.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}
	common.Ok(c, gin.H{"job_id": job.ID})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.Ok(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"thread_id":         j.ThreadID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
