package generator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lamim/quizforge/internal/api"
	"github.com/lamim/quizforge/internal/config"
	"github.com/lamim/quizforge/internal/util"
	"github.com/lamim/quizforge/pkg/models"
)

// OpenAI generates items through an OpenAI-compatible chat completions endpoint
type OpenAI struct {
	client  *api.Client
	model   config.ModelConfig
	apiKey  string
	gen     config.GeneratorConfig
	prompts Prompts
	logger  *slog.Logger
}

// NewOpenAI creates a generator backed by the shared API client
func NewOpenAI(
	client *api.Client,
	model config.ModelConfig,
	apiKey string,
	gen config.GeneratorConfig,
	prompts Prompts,
	logger *slog.Logger,
) *OpenAI {
	return &OpenAI{
		client:  client,
		model:   model,
		apiKey:  apiKey,
		gen:     gen,
		prompts: prompts,
		logger:  logger,
	}
}

// GenerateItems implements Generator
func (o *OpenAI) GenerateItems(ctx context.Context, req Request) ([]models.RawItem, error) {
	prompt, err := o.prompts.Render(req)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	mc := o.model
	mc.Temperature = o.gen.Temperature(req.Task.Category)

	messages := make([]api.Message, 0, 2)
	if o.prompts.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: o.prompts.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: prompt})

	out, err := o.client.Complete(ctx, mc, o.apiKey, messages)
	if err != nil {
		return nil, err
	}

	items, err := ParseItems(out.Content)
	if err != nil {
		o.logger.Debug("Unparseable generator response",
			"task_id", req.Task.ID,
			"finish_reason", out.FinishReason,
			"truncated", out.Truncated(),
			"preview", util.TruncateString(out.Content, 200))
		return nil, err
	}

	o.logger.Debug("Generator response parsed",
		"task_id", req.Task.ID,
		"items", len(items),
		"completion_tokens", out.Usage.CompletionTokens)
	return items, nil
}
