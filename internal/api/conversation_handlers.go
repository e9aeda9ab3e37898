package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"harmoni/internal/models"
	"harmoni/internal/service/conversation"
)

type conversationPayload struct {
	ID          string        `json:"id" binding:"required,max=128"`
	Title       string        `json:"title" binding:"omitempty,max=200"`
	Messages    []chatMessage `json:"messages"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

func (p conversationPayload) toModel() *models.Conversation {
	conv := &models.Conversation{
		ID:          p.ID,
		Title:       p.Title,
		Messages:    make([]*models.Message, 0, len(p.Messages)),
		CreatedAt:   p.CreatedAt,
		LastUpdated: p.LastUpdated,
	}
	for _, m := range p.Messages {
		conv.Messages = append(conv.Messages, &models.Message{
			ID:        m.ID,
			Role:      models.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return conv
}

type saveConversationRequest struct {
	Conversation *conversationPayload `json:"conversation" binding:"required"`
}

type appendMessageRequest struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content" binding:"required"`
	} `json:"message"`
}

func (h *Handler) listConversations(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	listing := h.conversations.List(c.Request.Context(), identity, queryInt(c, "limit"))
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": listing.Conversations,
		"degraded":      listing.Degraded,
	})
}

func (h *Handler) getConversation(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	lookup, err := h.conversations.Get(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		h.conversationError(c, err)
		return
	}
	if lookup.Degraded {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "conversation not found", "degraded": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conversation": lookup.Conversation})
}

func (h *Handler) saveConversation(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var req saveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindingMessage(err))
		return
	}
	res, err := h.conversations.Save(c.Request.Context(), identity, req.Conversation.toModel())
	if err != nil {
		h.conversationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      !res.Degraded,
		"conversation": res.Conversation,
		"degraded":     res.Degraded,
	})
}

func (h *Handler) appendMessage(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindingMessage(err))
		return
	}
	res, err := h.conversations.AppendMessage(c.Request.Context(), identity, c.Param("id"), req.Message.Role, req.Message.Content)
	if err != nil {
		h.conversationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      !res.Degraded,
		"conversation": res.Conversation,
		"degraded":     res.Degraded,
	})
}

func (h *Handler) deleteConversation(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	if !h.conversations.Delete(c.Request.Context(), identity, c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) conversationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "conversation not found"})
	case errors.Is(err, conversation.ErrInvalidConversation):
		badRequest(c, err.Error())
	default:
		h.logger.Error("conversation request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "conversation request failed"})
	}
}
