package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"harmoni/internal/auth"
	"harmoni/internal/models"
	"harmoni/internal/observability"
	"harmoni/internal/service/ai"
	"harmoni/internal/service/assessment"
	"harmoni/internal/service/conversation"
)

// ChatService produces the next model turn.
type ChatService interface {
	Reply(ctx context.Context, req ai.ChatRequest) (*ai.ChatReply, error)
}

// AssessmentService stores users and screening responses.
type AssessmentService interface {
	UpsertUser(ctx context.Context, id assessment.Identity) (*models.User, error)
	CreateResponse(ctx context.Context, userID string, sub assessment.Submission) (*models.ScreeningResponse, error)
	LatestForUser(ctx context.Context, userID string) (*models.ScreeningResponse, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.ScreeningResponse, error)
	ListHighRisk(ctx context.Context, limit int) ([]*models.ScreeningResponse, error)
	Review(ctx context.Context, id, reviewer, notes string) (*models.ScreeningResponse, error)
	Health(ctx context.Context) assessment.HealthReport
}

// ConversationService stores chat transcripts with degraded fallbacks.
type ConversationService interface {
	List(ctx context.Context, userID string, limit int) conversation.Listing
	Get(ctx context.Context, userID, id string) (conversation.Lookup, error)
	Save(ctx context.Context, userID string, conv *models.Conversation) (conversation.SaveResult, error)
	AppendMessage(ctx context.Context, userID, id, role, content string) (conversation.SaveResult, error)
	RecordTurn(ctx context.Context, userID, id, userContent, reply string) (conversation.SaveResult, error)
	Delete(ctx context.Context, userID, id string) bool
	Ping(ctx context.Context) error
}

// MemoryReporter exposes cache memory statistics for the health endpoint.
type MemoryReporter interface {
	MemoryInfo(ctx context.Context) (map[string]string, error)
}

// Dependencies groups the collaborators of Handler.
type Dependencies struct {
	Chat          ChatService
	Assessments   AssessmentService
	Conversations ConversationService
	Auth          *auth.Service
	Memory        MemoryReporter
	Metrics       *observability.Collector
	Logger        *zap.Logger
}

// Handler wires HTTP routes to the screening, chat and conversation services.
type Handler struct {
	chat          ChatService
	assessments   AssessmentService
	conversations ConversationService
	auth          *auth.Service
	memory        MemoryReporter
	metrics       *observability.Collector
	logger        *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(deps Dependencies) *Handler {
	registerValidatorTagNames()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	authService := deps.Auth
	if authService == nil {
		authService = auth.NewService("", "")
	}
	return &Handler{
		chat:          deps.Chat,
		assessments:   deps.Assessments,
		conversations: deps.Conversations,
		auth:          authService,
		memory:        deps.Memory,
		metrics:       deps.Metrics,
		logger:        logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := router.Group("/api")
	api.GET("/health/database", h.databaseHealth)
	api.GET("/health/redis", h.redisHealth)

	userRoutes := api.Group("")
	userRoutes.Use(h.auth.Middleware())
	userRoutes.POST("/quiz/submit", h.submitQuiz)
	userRoutes.POST("/phq9", h.submitPHQ9)
	userRoutes.GET("/phq9", h.listPHQ9)
	userRoutes.POST("/chat", h.chatTurn)
	userRoutes.GET("/conversations", h.listConversations)
	userRoutes.POST("/conversations", h.saveConversation)
	userRoutes.PUT("/conversations", h.saveConversation)
	userRoutes.GET("/conversations/:id", h.getConversation)
	userRoutes.POST("/conversations/:id", h.appendMessage)
	userRoutes.DELETE("/conversations/:id", h.deleteConversation)

	adminRoutes := api.Group("/admin")
	adminRoutes.Use(h.auth.RequireAdmin())
	adminRoutes.GET("/phq9/high-risk", h.listHighRisk)
	adminRoutes.POST("/phq9/:id/review", h.reviewResponse)
}

func (h *Handler) identity(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unable to identify caller"})
		return "", false
	}
	return userID, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
