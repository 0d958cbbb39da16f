package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/example/studyplan/internal/apperr"
	"github.com/example/studyplan/internal/notifications"
	"github.com/example/studyplan/internal/study"
)

// Handler serves the study API
type Handler struct {
	study         *study.Service
	notifications *notifications.Service
	db            *sqlx.DB
}

func NewHandler(studySvc *study.Service, ns *notifications.Service, db *sqlx.DB) *Handler {
	return &Handler{study: studySvc, notifications: ns, db: db}
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	RespondOK(c, gin.H{"status": "ok"})
}

func (h *Handler) CreateSubject(c *gin.Context) {
	var in study.NewSubject
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, apperr.Validation("invalid request body"))
		return
	}
	subject, err := h.study.CreateSubject(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, subject)
}

func (h *Handler) CreateTopic(c *gin.Context) {
	var in study.NewTopic
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, apperr.Validation("invalid request body"))
		return
	}
	topic, err := h.study.CreateTopic(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, topic)
}

func (h *Handler) ListTopics(c *gin.Context) {
	subjectID, ok := pathID(c, "subjectId")
	if !ok {
		return
	}
	topics, err := h.study.ListTopics(c.Request.Context(), currentUserID(c), subjectID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, topics)
}

func (h *Handler) CompleteTopic(c *gin.Context) {
	topicID, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.study.Complete(c.Request.Context(), currentUserID(c), topicID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, res)
}

func (h *Handler) ReviewTopic(c *gin.Context) {
	topicID, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.study.Review(c.Request.Context(), currentUserID(c), topicID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, res)
}

func (h *Handler) Rewards(c *gin.Context) {
	summary, err := h.study.Rewards(c.Request.Context(), currentUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, summary)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	inbox, err := h.notifications.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, inbox)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, n)
}

// LinkTelegram redeems the code the bot sent to a chat.
func (h *Handler) LinkTelegram(c *gin.Context) {
	var in study.LinkTelegramInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, apperr.Validation("invalid request body"))
		return
	}
	if err := h.study.LinkTelegram(c.Request.Context(), currentUserID(c), in); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, apperr.Validation("invalid id",
			apperr.FieldError{Field: name, Error: "must be a positive integer"}))
		return 0, false
	}
	return id, true
}
