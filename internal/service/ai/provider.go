package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"harmoni/internal/config"
	"harmoni/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// ErrMissingAPIKey is returned when no provider credential is configured.
var ErrMissingAPIKey = errors.New("llm api key not configured")

// Generator produces one non-streaming completion for a conversation.
type Generator interface {
	Generate(ctx context.Context, instruction string, history []*models.Message) (string, error)
}

// NewChatModel builds the eino chat model for the configured provider.
func NewChatModel(ctx context.Context, cfg config.ChatConfig) (model.BaseChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", cfg.Provider, err)
	}
	return chatModel, nil
}

// ChatModelGenerator adapts an eino chat model to Generator.
type ChatModelGenerator struct {
	model model.BaseChatModel
	opts  []model.Option
}

// NewChatModelGenerator applies the sampling settings from cfg on every call.
func NewChatModelGenerator(chatModel model.BaseChatModel, cfg config.ChatConfig) *ChatModelGenerator {
	var opts []model.Option
	if cfg.Temperature > 0 {
		opts = append(opts, model.WithTemperature(cfg.Temperature))
	}
	if cfg.TopP > 0 {
		opts = append(opts, model.WithTopP(cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(cfg.MaxTokens))
	}
	return &ChatModelGenerator{model: chatModel, opts: opts}
}

// Generate sends the instruction as a system message followed by history.
func (g *ChatModelGenerator) Generate(ctx context.Context, instruction string, history []*models.Message) (string, error) {
	resp, err := g.model.Generate(ctx, convertMessages(instruction, history), g.opts...)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

func convertMessages(instruction string, history []*models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	if instruction != "" {
		messages = append(messages, schema.SystemMessage(instruction))
	}
	for _, msg := range history {
		if msg == nil {
			continue
		}
		role := schema.User
		if msg.Role == models.RoleModel {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}

type unavailableGenerator struct {
	err error
}

// Unavailable returns a Generator that always fails with err. It lets the
// service start without provider credentials and serve fallback replies.
func Unavailable(err error) Generator {
	if err == nil {
		err = ErrMissingAPIKey
	}
	return unavailableGenerator{err: err}
}

func (u unavailableGenerator) Generate(context.Context, string, []*models.Message) (string, error) {
	return "", u.err
}
