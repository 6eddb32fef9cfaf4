package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lifecoachhq/coachapi/internal/chat"
	"github.com/lifecoachhq/coachapi/internal/common"
	"github.com/lifecoachhq/coachapi/internal/config"
	"github.com/lifecoachhq/coachapi/internal/httpapi/middleware"
	"github.com/lifecoachhq/coachapi/internal/store/rabbitmq"
	"gorm.io/gorm"
)

type Handler struct {
	DB         *gorm.DB
	Cfg        config.Config
	ChatSvc    *chat.Service
	Assistants *AssistantManager
	Rabbit     *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, chatSvc *chat.Service, assistants *AssistantManager, rabbit *rabbitmq.Publisher) *Handler {
	return &Handler{
		DB:         db,
		Cfg:        cfg,
		ChatSvc:    chatSvc,
		Assistants: assistants,
		Rabbit:     rabbit,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.Ok(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
