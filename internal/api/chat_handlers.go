package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"harmoni/internal/models"
	"harmoni/internal/service/ai"
	"harmoni/internal/service/assessment"
	"harmoni/internal/service/conversation"
	"harmoni/internal/service/screening"
)

type chatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type chatContext struct {
	PHQ9Score        *int   `json:"phq9Score" binding:"omitempty,min=0,max=27"`
	Severity         string `json:"severity"`
	HasCompletedPHQ9 bool   `json:"hasCompletedPHQ9"`
}

type chatRequest struct {
	Messages       []chatMessage `json:"messages"`
	Context        *chatContext  `json:"context"`
	ConversationID string        `json:"conversationId" binding:"omitempty,max=128"`
}

// chatTurn produces the next assistant reply and records the exchange when
// a conversation id is supplied.
func (h *Handler) chatTurn(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindingMessage(err))
		return
	}

	history := make([]*models.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, &models.Message{
			ID:        m.ID,
			Role:      models.NormalizeRole(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	ctx := c.Request.Context()
	reply, err := h.chat.Reply(ctx, ai.ChatRequest{
		Messages:  history,
		Screening: h.screeningContext(ctx, identity, req.Context),
	})
	if err != nil {
		if errors.Is(err, ai.ErrEmptyConversation) {
			badRequest(c, err.Error())
			return
		}
		h.logger.Error("chat reply failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to generate reply"})
		return
	}

	body := gin.H{"reply": reply.Reply}
	if reply.IsFallback {
		body["isError"] = true
		body["errorType"] = reply.ErrorType
	}
	if reply.CrisisDetected {
		body["crisisResources"] = screening.CrisisResources
	}
	if req.ConversationID != "" && !reply.IsFallback {
		body["conversationId"] = req.ConversationID
		body["degraded"] = h.recordTurn(ctx, identity, req.ConversationID, history, reply.Reply)
	}
	c.JSON(http.StatusOK, body)
}

// screeningContext prefers the client-supplied context and otherwise falls
// back to the caller's latest stored screening.
func (h *Handler) screeningContext(ctx context.Context, identity string, cc *chatContext) *ai.ScreeningContext {
	if cc != nil && cc.HasCompletedPHQ9 && cc.PHQ9Score != nil {
		return &ai.ScreeningContext{
			TotalScore: *cc.PHQ9Score,
			Severity:   models.Severity(strings.ToUpper(strings.TrimSpace(cc.Severity))),
		}
	}
	if h.assessments == nil {
		return nil
	}
	user, err := h.assessments.UpsertUser(ctx, assessment.Identity{Key: identity})
	if err != nil {
		h.logger.Warn("screening lookup skipped", zap.Error(err))
		return nil
	}
	latest, err := h.assessments.LatestForUser(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			h.logger.Warn("screening lookup failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		return nil
	}
	return &ai.ScreeningContext{TotalScore: latest.TotalScore, Severity: latest.Severity}
}

// recordTurn reports whether persistence was degraded.
func (h *Handler) recordTurn(ctx context.Context, identity, conversationID string, history []*models.Message, reply string) bool {
	var userContent string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			userContent = history[i].Content
			break
		}
	}
	res, err := h.conversations.RecordTurn(ctx, identity, conversationID, userContent, reply)
	if err != nil {
		if !errors.Is(err, conversation.ErrNotFound) {
			h.logger.Warn("record chat turn failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
		return true
	}
	return res.Degraded
}
