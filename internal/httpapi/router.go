package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lifecoachhq/coachapi/internal/chat"
	"github.com/lifecoachhq/coachapi/internal/common"
	"github.com/lifecoachhq/coachapi/internal/config"
	"github.com/lifecoachhq/coachapi/internal/httpapi/handlers"
	"github.com/lifecoachhq/coachapi/internal/httpapi/middleware"
	"github.com/lifecoachhq/coachapi/internal/store/rabbitmq"
)

func NewRouter(db *gorm.DB, cfg config.Config, chatSvc *chat.Service, assistants *handlers.AssistantManager, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, chatSvc, assistants, rabbit)

	r.GET("/ping", h.Ping)

	r.POST("/users", h.Register)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// Threaded chat (JWT required)
	authGroup.POST("/chat/threads", h.CreateThread)
	authGroup.GET("/chat/threads", h.ListThreads)
	authGroup.DELETE("/chat/threads/:thread_id", h.DeleteThread)
	authGroup.GET("/chat/threads/:thread_id/messages", h.ListMessages)
	authGroup.POST("/chat/messages", h.PostMessage)
	authGroup.POST("/chat/messages/async", h.PostMessageAsync)
	authGroup.GET("/chat/jobs/:job_id", h.GetJob)

	// Coaching assistant sessions (JWT required)
	authGroup.POST("/assistant/messages", h.PostAssistantMessage)
	authGroup.GET("/assistant/history", h.GetAssistantHistory)
	authGroup.DELETE("/assistant/history", h.ClearAssistantHistory)
	authGroup.POST("/assistant/visualizations", h.PostAssistantVisualization)
	authGroup.GET("/assistant/costs", h.GetAssistantCosts)

	return r
}
