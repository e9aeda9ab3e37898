package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"harmoni/internal/models"
	"harmoni/internal/service/assessment"
	"harmoni/internal/service/screening"
)

type quizRequest struct {
	Answers  []string `json:"answers" binding:"required,min=9,max=10"`
	Email    string   `json:"email" binding:"omitempty,email"`
	Username string   `json:"username" binding:"omitempty,max=100"`
}

type phq9Request struct {
	Question1Score       *int   `json:"question1Score" binding:"required,min=0,max=3"`
	Question2Score       *int   `json:"question2Score" binding:"required,min=0,max=3"`
	Question3Score       *int   `json:"question3Score" binding:"required,min=0,max=3"`
	Question4Score       *int   `json:"question4Score" binding:"required,min=0,max=3"`
	Question5Score       *int   `json:"question5Score" binding:"required,min=0,max=3"`
	Question6Score       *int   `json:"question6Score" binding:"required,min=0,max=3"`
	Question7Score       *int   `json:"question7Score" binding:"required,min=0,max=3"`
	Question8Score       *int   `json:"question8Score" binding:"required,min=0,max=3"`
	Question9Score       *int   `json:"question9Score" binding:"required,min=0,max=3"`
	FunctionalImpairment string `json:"functionalImpairment"`
	Email                string `json:"email" binding:"omitempty,email"`
	Username             string `json:"username" binding:"omitempty,max=100"`
	Notes                string `json:"notes" binding:"omitempty,max=2000"`
}

func (r phq9Request) scores() []int {
	ptrs := []*int{
		r.Question1Score, r.Question2Score, r.Question3Score,
		r.Question4Score, r.Question5Score, r.Question6Score,
		r.Question7Score, r.Question8Score, r.Question9Score,
	}
	out := make([]int, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

type reviewRequest struct {
	ReviewedBy  string `json:"reviewedBy" binding:"required,max=100"`
	ReviewNotes string `json:"reviewNotes" binding:"omitempty,max=2000"`
}

// submitQuiz scores the questionnaire from its display labels.
func (h *Handler) submitQuiz(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindingMessage(err))
		return
	}
	answers, err := screening.ParseAnswers(req.Answers)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.storeSubmission(c, identity, req.Email, req.Username, assessment.Submission{
		Scores:     answers.Scores,
		Impairment: answers.Impairment,
	})
}

// submitPHQ9 scores a submission carrying numeric item scores.
func (h *Handler) submitPHQ9(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var req phq9Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindingMessage(err))
		return
	}
	impairment, err := screening.ParseImpairment(req.FunctionalImpairment)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.storeSubmission(c, identity, req.Email, req.Username, assessment.Submission{
		Scores:     req.scores(),
		Impairment: impairment,
		Notes:      req.Notes,
	})
}

func (h *Handler) storeSubmission(c *gin.Context, identity, email, username string, sub assessment.Submission) {
	ctx := c.Request.Context()
	user, err := h.assessments.UpsertUser(ctx, assessment.Identity{
		Key:      identity,
		Email:    strings.TrimSpace(email),
		Username: strings.TrimSpace(username),
	})
	if err != nil {
		h.logger.Error("upsert user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to save assessment"})
		return
	}
	resp, err := h.assessments.CreateResponse(ctx, user.ID, sub)
	if err != nil {
		if errors.Is(err, screening.ErrInvalidScores) {
			badRequest(c, err.Error())
			return
		}
		h.logger.Error("create screening response failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to save assessment"})
		return
	}
	c.JSON(http.StatusCreated, screeningOutput(resp))
}

// listPHQ9 returns the caller's latest submission or their history.
func (h *Handler) listPHQ9(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user, err := h.assessments.UpsertUser(ctx, assessment.Identity{Key: identity})
	if err != nil {
		h.logger.Error("upsert user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load assessments"})
		return
	}

	if c.Query("latest") == "true" {
		resp, err := h.assessments.LatestForUser(ctx, user.ID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusOK, gin.H{"success": true, "response": nil})
			return
		}
		if err != nil {
			h.logger.Error("load latest screening failed", zap.String("user_id", user.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load assessments"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "response": resp})
		return
	}

	responses, err := h.assessments.ListForUser(ctx, user.ID, queryInt(c, "limit"))
	if err != nil {
		h.logger.Error("list screenings failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load assessments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "responses": responses})
}

func (h *Handler) listHighRisk(c *gin.Context) {
	responses, err := h.assessments.ListHighRisk(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		h.logger.Error("list high-risk screenings failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load assessments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "responses": responses})
}

func (h *Handler) reviewResponse(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, bindingMessage(err))
		return
	}
	resp, err := h.assessments.Review(c.Request.Context(), c.Param("id"), req.ReviewedBy, req.ReviewNotes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "response not found"})
			return
		}
		h.logger.Error("review screening failed", zap.String("response_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to review response"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": resp})
}

func screeningOutput(resp *models.ScreeningResponse) gin.H {
	return gin.H{
		"success":              true,
		"id":                   resp.ID,
		"totalScore":           resp.TotalScore,
		"severityLevel":        resp.Severity,
		"riskLevel":            resp.RiskLevel,
		"suicidalIdeation":     resp.SuicidalIdeation,
		"flaggedForReview":     resp.FlaggedForReview,
		"functionalImpairment": resp.FunctionalImpairment,
		"submittedAt":          resp.CreatedAt,
		"interpretation":       screening.Interpret(resp.Severity, resp.RiskLevel),
		"recommendations":      screening.Recommendations(resp.Severity, resp.RiskLevel, resp.SuicidalIdeation),
	}
}
