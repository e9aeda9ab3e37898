package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"harmoni/internal/models"
	"harmoni/internal/observability"
)

// ErrEmptyConversation is returned when a chat request carries no messages.
var ErrEmptyConversation = errors.New("messages must be a non-empty list")

const defaultCallTimeout = 30 * time.Second

// ChatRequest is one chat turn: the prior messages, newest last, and the
// optional screening used to tailor the instruction.
type ChatRequest struct {
	Messages  []*models.Message
	Screening *ScreeningContext
}

// ChatReply is the outcome of a turn. When IsFallback is set Reply is a
// pre-written message and ErrorType names the failure category.
type ChatReply struct {
	Reply          string
	IsFallback     bool
	ErrorType      string
	Category       FailureCategory
	CrisisDetected bool
}

// Orchestrator turns chat requests into provider calls and applies the
// fallback policy.
type Orchestrator struct {
	generator Generator
	persona   string
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *observability.Collector
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPersona overrides BasePersona.
func WithPersona(persona string) OrchestratorOption {
	return func(o *Orchestrator) {
		if strings.TrimSpace(persona) != "" {
			o.persona = persona
		}
	}
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMetrics records reply outcomes and provider latency.
func WithMetrics(m *observability.Collector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator builds an Orchestrator around generator.
func NewOrchestrator(generator Generator, logger *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		generator: generator,
		persona:   BasePersona,
		timeout:   defaultCallTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Reply validates the request and produces the next model turn. Provider
// failures never surface as errors: they yield a fallback reply instead.
// The only error returned is ErrEmptyConversation.
func (o *Orchestrator) Reply(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	history := normalizeHistory(req.Messages)
	if len(history) == 0 {
		return nil, ErrEmptyConversation
	}

	out := &ChatReply{CrisisDetected: DetectCrisis(history)}
	if out.CrisisDetected {
		o.logger.Warn("crisis language detected in chat turn", zap.Int("messages", len(history)))
		o.metrics.RecordCrisis()
	}

	instruction := BuildInstruction(o.persona, req.Screening)

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	start := time.Now()
	text, err := o.generator.Generate(callCtx, instruction, history)
	o.metrics.ObserveProvider(time.Since(start))

	if err != nil {
		category := Classify(err)
		out.Reply, out.ErrorType = Fallback(category)
		out.IsFallback = true
		out.Category = category
		o.logger.Error("llm provider call failed",
			zap.String("category", string(category)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		o.metrics.RecordChatReply("fallback")
		o.metrics.RecordFallback(string(category))
		return out, nil
	}

	if strings.TrimSpace(text) == "" {
		o.logger.Info("llm provider returned no text, using continuation prompt")
		out.Reply = EmptyReply
		o.metrics.RecordChatReply("empty")
		return out, nil
	}

	out.Reply = text
	o.metrics.RecordChatReply("reply")
	return out, nil
}

func normalizeHistory(in []*models.Message) []*models.Message {
	out := make([]*models.Message, 0, len(in))
	for _, msg := range in {
		if msg == nil {
			continue
		}
		m := *msg
		m.Role = models.NormalizeRole(string(m.Role))
		out = append(out, &m)
	}
	return out
}
