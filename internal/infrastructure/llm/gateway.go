// Package llm talks to chat-completion providers.  Every gateway makes exactly
// one upstream call per Complete; retrying is left to the caller.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// Provider names accepted in LLMConfig.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a JSON-only reply where it supports that.
	JSON bool
}

// Response is the provider's textual reply.
type Response struct {
	Text             string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Gateway is a chat-completion backend.
type Gateway interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() string
	Model() string
}

// New builds the gateway selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, metrics *prom.AppMetrics, logger logging.Logger) (Gateway, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIGateway(cfg, nil, metrics, logger)
	case ProviderGemini:
		return NewGenAIGateway(ctx, cfg, metrics, logger)
	default:
		return nil, errors.Newf(errors.ErrCodeBadRequest, "unknown llm provider %q", cfg.Provider)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Upstream error classification
// ─────────────────────────────────────────────────────────────────────────────

const maxErrorBody = 300

// StatusError maps an upstream HTTP status to an AppError.  429 and 402 keep
// their meaning for the client; everything else is an opaque upstream failure.
func StatusError(provider string, status int, body string) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	detail := fmt.Sprintf("provider=%s status=%d body=%s", provider, status, strings.TrimSpace(body))
	switch status {
	case http.StatusTooManyRequests:
		return errors.New(errors.ErrCodeDataSourceRateLimited, "AI provider rate limit exceeded, try again later").WithDetail(detail)
	case http.StatusPaymentRequired:
		return errors.New(errors.ErrCodeUpstreamCreditsExhausted, "AI credits exhausted").WithDetail(detail)
	default:
		return errors.New(errors.ErrCodeExternalService, "AI provider request failed").WithDetail(detail)
	}
}

func observe(metrics *prom.AppMetrics, logger logging.Logger, provider, model string, start time.Time, err error) {
	took := time.Since(start)
	metrics.RecordLLMCall(provider, model, err == nil, took)
	if err != nil {
		logger.Warn("llm call failed",
			logging.String("provider", provider),
			logging.String("model", model),
			logging.Duration("took", took),
			logging.Err(err),
		)
		return
	}
	logger.Debug("llm call completed",
		logging.String("provider", provider),
		logging.String("model", model),
		logging.Duration("took", took),
	)
}

//Personal.AI order the ending
