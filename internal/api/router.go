// Package api exposes the study services over HTTP.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/example/studyplan/internal/logger"
)

type RouterConfig struct {
	Handler   *Handler
	JWTSecret string
	Log       *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(cfg.Log))

	h := cfg.Handler
	r.GET("/health", h.Health)

	protected := r.Group("/api")
	protected.Use(RequireAuth(cfg.JWTSecret, cfg.Log.With("middleware", "auth")))
	{
		protected.POST("/subjects", h.CreateSubject)

		protected.POST("/topics", h.CreateTopic)
		protected.GET("/topics/subject/:subjectId", h.ListTopics)
		protected.POST("/topics/:id/complete", h.CompleteTopic)
		protected.POST("/topics/:id/review", h.ReviewTopic)

		protected.GET("/rewards", h.Rewards)

		protected.GET("/notifications", h.ListNotifications)
		protected.POST("/notifications/:id/read", h.MarkNotificationRead)

		protected.POST("/telegram/link", h.LinkTelegram)
	}
	return r
}
