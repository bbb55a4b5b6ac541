package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/lamim/quizforge/internal/config"
	"github.com/lamim/quizforge/internal/metrics"
	"github.com/lamim/quizforge/pkg/models"
)

// Gemini generates items with the Google Gemini API
type Gemini struct {
	client    *genai.Client
	modelName string
	gen       config.GeneratorConfig
	prompts   Prompts
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewGemini creates a Gemini generator. collector may be nil.
func NewGemini(
	ctx context.Context,
	apiKey string,
	gen config.GeneratorConfig,
	prompts Prompts,
	collector *metrics.Collector,
	logger *slog.Logger,
) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: gen.GeminiModel,
		gen:       gen,
		prompts:   prompts,
		metrics:   collector,
		logger:    logger,
	}, nil
}

// GenerateItems implements Generator
func (g *Gemini) GenerateItems(ctx context.Context, req Request) ([]models.RawItem, error) {
	prompt, err := g.prompts.Render(req)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(float32(g.gen.Temperature(req.Task.Category)))
	model.ResponseMIMEType = "application/json"
	if g.prompts.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(g.prompts.System)}}
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	g.metrics.RecordAPIRequest(g.modelName, time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	items, err := ParseItems(text)
	if err != nil {
		g.logger.Debug("Unparseable generator response", "task_id", req.Task.ID, "error", err)
		return nil, err
	}
	return items, nil
}

// Close releases the underlying client
func (g *Gemini) Close() error {
	return g.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
