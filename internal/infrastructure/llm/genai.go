package llm

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// GenAIGateway calls Gemini through the google.golang.org/genai SDK.
type GenAIGateway struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
	metrics     *prom.AppMetrics
	logger      logging.Logger
}

// NewGenAIGateway builds a Gemini gateway.
func NewGenAIGateway(ctx context.Context, cfg config.LLMConfig, metrics *prom.AppMetrics, logger logging.Logger) (*GenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "llm.api_key is required for gemini")
	}
	model := cfg.Model
	if model == "" || model == config.DefaultLLMModel {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "create genai client")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GenAIGateway{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		metrics:     metrics,
		logger:      logger.Named("llm"),
	}, nil
}

// Provider implements Gateway.
func (g *GenAIGateway) Provider() string { return ProviderGemini }

// Model implements Gateway.
func (g *GenAIGateway) Model() string { return g.model }

// Complete implements Gateway.
func (g *GenAIGateway) Complete(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	defer func() { observe(g.metrics, g.logger, ProviderGemini, g.model, start, err) }()

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	temp := req.Temperature
	if temp == 0 {
		temp = g.temperature
	}
	if temp > 0 {
		cfg.Temperature = genai.Ptr(float32(temp))
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	out, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, classifyGenAI(ctx, err)
	}
	text := out.Text()
	if text == "" {
		return nil, errors.New(errors.ErrCodeDataSourceParseError, "gemini returned an empty response")
	}

	r := &Response{Text: text, Provider: ProviderGemini, Model: g.model}
	if out.UsageMetadata != nil {
		r.PromptTokens = int(out.UsageMetadata.PromptTokenCount)
		r.CompletionTokens = int(out.UsageMetadata.CandidatesTokenCount)
	}
	return r, nil
}

func classifyGenAI(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return StatusError(ProviderGemini, apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return StatusError(ProviderGemini, apiErrPtr.Code, apiErrPtr.Message)
	}
	if ctx.Err() != nil {
		return errors.Wrap(err, errors.ErrCodeTimeout, "gemini request cancelled")
	}
	return errors.Wrap(err, errors.ErrCodeExternalService, "gemini request failed")
}

//Personal.AI order the ending
