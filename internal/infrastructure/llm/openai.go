package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// OpenAIGateway calls any OpenAI-compatible /chat/completions endpoint
// through the official SDK, pointed at cfg.BaseURL.
type OpenAIGateway struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	metrics     *prom.AppMetrics
	logger      logging.Logger
}

// NewOpenAIGateway builds the gateway.  A nil client gets one with cfg.Timeout.
func NewOpenAIGateway(cfg config.LLMConfig, client *http.Client, metrics *prom.AppMetrics, logger logging.Logger) (*OpenAIGateway, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "llm.base_url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "llm.model is required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = config.DefaultLLMTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithHTTPClient(client),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &OpenAIGateway{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		metrics:     metrics,
		logger:      logger.Named("llm"),
	}, nil
}

// Provider implements Gateway.
func (g *OpenAIGateway) Provider() string { return ProviderOpenAI }

// Model implements Gateway.
func (g *OpenAIGateway) Model() string { return g.model }

func (g *OpenAIGateway) params(req Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	}
	temp := req.Temperature
	if temp == 0 {
		temp = g.temperature
	}
	if temp > 0 {
		p.Temperature = openai.Float(temp)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}
	if maxTokens > 0 {
		p.MaxTokens = openai.Int(int64(maxTokens))
	}
	if req.JSON {
		p.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	return p
}

// Complete implements Gateway.
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	defer func() { observe(g.metrics, g.logger, ProviderOpenAI, g.model, start, err) }()

	completion, err := g.client.Chat.Completions.New(ctx, g.params(req))
	if err != nil {
		return nil, classifyOpenAI(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeDataSourceParseError, "completion has no choices")
	}
	model := completion.Model
	if model == "" {
		model = g.model
	}
	return &Response{
		Text:             completion.Choices[0].Message.Content,
		Provider:         ProviderOpenAI,
		Model:            model,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

func classifyOpenAI(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return StatusError(ProviderOpenAI, apiErr.StatusCode, apiErr.Error())
	}
	if ctx.Err() != nil {
		return errors.Wrap(err, errors.ErrCodeTimeout, "completion request cancelled")
	}
	return errors.Wrap(err, errors.ErrCodeExternalService, "AI provider request failed")
}

//Personal.AI order the ending
