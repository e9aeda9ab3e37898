package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"harmoni/internal/models"
	"harmoni/internal/observability"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	defaultTimeout   = 2 * time.Second
	storeLabel       = "redis"
)

// Listing is the result of a list call. Degraded is set when the store was
// unreachable and Conversations is empty for that reason.
type Listing struct {
	Conversations []*models.Conversation `json:"conversations"`
	Degraded      bool                   `json:"degraded"`
}

// Lookup is the result of a single read.
type Lookup struct {
	Conversation *models.Conversation `json:"conversation"`
	Degraded     bool                 `json:"degraded"`
}

// SaveResult is the result of a write. When Degraded is set the
// conversation was not persisted.
type SaveResult struct {
	Conversation *models.Conversation `json:"conversation"`
	Degraded     bool                 `json:"degraded"`
}

// Service applies the degradation policy on top of a Store.
type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *observability.Collector
	timeout time.Duration
	now     func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records degraded operations.
func WithMetrics(m *observability.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wraps store. A nil logger is replaced with a no-op logger.
func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:   store,
		logger:  logger,
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeLimit applies the default and clamps to MaxListLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// List returns the user's conversations, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) Listing {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	convs, err := s.store.ListForUser(ctx, userID, NormalizeLimit(limit))
	if err != nil {
		s.degraded("list", userID, err)
		return Listing{Conversations: []*models.Conversation{}, Degraded: true}
	}
	return Listing{Conversations: convs}
}

// Get returns ErrNotFound for missing or foreign conversations.
func (s *Service) Get(ctx context.Context, userID, id string) (Lookup, error) {
	if strings.TrimSpace(id) == "" {
		return Lookup{}, ErrInvalidConversation
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conv, err := s.store.Get(ctx, userID, id)
	if err != nil {
		if isContractError(err) {
			return Lookup{}, err
		}
		s.degraded("get", userID, err)
		return Lookup{Degraded: true}, nil
	}
	return Lookup{Conversation: conv}, nil
}

// Save normalises message roles and ids, derives a title when missing and
// upserts the conversation.
func (s *Service) Save(ctx context.Context, userID string, conv *models.Conversation) (SaveResult, error) {
	if conv == nil || strings.TrimSpace(conv.ID) == "" {
		return SaveResult{}, ErrInvalidConversation
	}
	prepared := s.prepare(conv)
	return s.persist(ctx, "save", userID, prepared)
}

// AppendMessage adds one message to an existing conversation.
func (s *Service) AppendMessage(ctx context.Context, userID, id string, role, content string) (SaveResult, error) {
	if strings.TrimSpace(content) == "" {
		return SaveResult{}, ErrInvalidConversation
	}
	lookup, err := s.Get(ctx, userID, id)
	if err != nil {
		return SaveResult{}, err
	}
	if lookup.Degraded {
		return SaveResult{Degraded: true}, nil
	}
	conv := lookup.Conversation
	conv.Messages = append(conv.Messages, s.newMessage(models.NormalizeRole(role), content))
	if conv.Title == "" {
		conv.Title = DeriveTitle(conv.FirstUserMessage())
	}
	return s.persist(ctx, "append", userID, conv)
}

// RecordTurn appends a user message and the model reply, creating the
// conversation when it does not exist yet.
func (s *Service) RecordTurn(ctx context.Context, userID, id, userContent, reply string) (SaveResult, error) {
	if strings.TrimSpace(id) == "" {
		return SaveResult{}, ErrInvalidConversation
	}
	lookup, err := s.Get(ctx, userID, id)
	var conv *models.Conversation
	switch {
	case errors.Is(err, ErrNotFound):
		conv = &models.Conversation{ID: id, Title: DeriveTitle(userContent)}
	case err != nil:
		return SaveResult{}, err
	case lookup.Degraded:
		return SaveResult{Degraded: true}, nil
	default:
		conv = lookup.Conversation
	}
	if strings.TrimSpace(userContent) != "" {
		conv.Messages = append(conv.Messages, s.newMessage(models.RoleUser, userContent))
	}
	conv.Messages = append(conv.Messages, s.newMessage(models.RoleModel, reply))
	return s.persist(ctx, "record_turn", userID, conv)
}

// Delete reports whether an owned conversation was removed.
func (s *Service) Delete(ctx context.Context, userID, id string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		s.degraded("delete", userID, err)
		return false
	}
	return ok
}

// Ping probes the backing store.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Ping(ctx)
}

func (s *Service) persist(ctx context.Context, op, userID string, conv *models.Conversation) (SaveResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	saved, err := s.store.Save(ctx, userID, conv)
	if err != nil {
		if isContractError(err) {
			return SaveResult{}, err
		}
		s.degraded(op, userID, err)
		return SaveResult{Conversation: conv, Degraded: true}, nil
	}
	return SaveResult{Conversation: saved}, nil
}

func (s *Service) prepare(conv *models.Conversation) *models.Conversation {
	out := *conv
	out.Messages = make([]*models.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		if msg == nil {
			continue
		}
		m := *msg
		m.Role = models.NormalizeRole(string(m.Role))
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = s.now().UTC()
		}
		out.Messages = append(out.Messages, &m)
	}
	if strings.TrimSpace(out.Title) == "" {
		out.Title = DeriveTitle(out.FirstUserMessage())
	}
	return &out
}

func (s *Service) newMessage(role models.Role, content string) *models.Message {
	return &models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
}

func (s *Service) degraded(op, userID string, err error) {
	s.logger.Warn("conversation store unavailable, serving degraded result",
		zap.String("operation", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	s.metrics.RecordDegraded(storeLabel, op)
}

func isContractError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidConversation)
}
