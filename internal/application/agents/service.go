package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/BizAtlas/internal/infrastructure/llm"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

const (
	defaultFinancialYears  = 3
	defaultInteractionRows = 20
	rawSnippetLen          = 200
	defaultRunTimeout      = 90 * time.Second
)

// Request invokes one action.
type Request struct {
	Agent  string         `json:"agent"`
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Result is the tagged outcome of a run.  Data is set only when Status is ok.
type Result struct {
	RunID    string          `json:"run_id"`
	Agent    string          `json:"agent"`
	Action   string          `json:"action"`
	Status   Status          `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
	Model    string          `json:"model,omitempty"`
	Cached   bool            `json:"cached"`
	Duration time.Duration   `json:"duration_ns"`
}

// ResultCache stores successful results.  Any Get error counts as a miss.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AuditEvent is published once per run.
type AuditEvent struct {
	RunID     string    `json:"run_id"`
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	Status    Status    `json:"status"`
	Cached    bool      `json:"cached"`
	Model     string    `json:"model,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	ErrorCode string    `json:"error_code,omitempty"`
	At        time.Time `json:"at"`
}

// AuditPublisher ships audit events.
type AuditPublisher interface {
	PublishAgentCompleted(ctx context.Context, ev AuditEvent) error
}

// Service runs agent actions.
type Service struct {
	catalog *Catalog
	reader  DataReader
	gateway llm.Gateway
	cache   ResultCache
	ttl     time.Duration
	timeout time.Duration
	audit   AuditPublisher
	metrics *prom.AppMetrics
	logger  logging.Logger
	now     func() time.Time

	group singleflight.Group
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithCache caches ok results for ttl.
func WithCache(c ResultCache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithAudit publishes an AuditEvent after each run.
func WithAudit(p AuditPublisher) ServiceOption {
	return func(s *Service) { s.audit = p }
}

// WithRunTimeout bounds each shared run.  d <= 0 keeps the default.
func WithRunTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithNow replaces time.Now.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service.
func NewService(catalog *Catalog, reader DataReader, gateway llm.Gateway, metrics *prom.AppMetrics, logger logging.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Service{
		catalog: catalog,
		reader:  reader,
		gateway: gateway,
		metrics: metrics,
		logger:  logger.Named("agents"),
		timeout: defaultRunTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Catalog returns the loaded catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// CacheKey identifies a run by agent, action and a hash of its normalised
// params.
func CacheKey(agent, action string, params map[string]any) string {
	b, _ := json.Marshal(params)
	return "agents:" + agent + ":" + action + ":" + strconv.FormatUint(xxhash.Sum64(b), 16)
}

// Run executes one action.  A reply that fails strict decoding yields a
// Result tagged parse_error together with an AGT_003 error.  Identical
// concurrent runs share one execution that outlives any single caller; a
// caller whose ctx ends gets COMMON_009 while the others still get the result.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	agent, action, err := s.catalog.Lookup(req.Agent, req.Action)
	if err != nil {
		return nil, err
	}
	params, err := action.NormalizeParams(req.Params)
	if err != nil {
		return nil, err
	}
	key := CacheKey(agent.Name, action.Name, params)

	if res, ok := s.lookupCache(ctx, key); ok {
		res.RunID = uuid.NewString()
		res.Cached = true
		res.Duration = s.now().Sub(start)
		s.finish(ctx, res, nil)
		return res, nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.execute(rctx, agent, action, params, key)
	})

	var res Result
	select {
	case <-ctx.Done():
		res = Result{Agent: agent.Name, Action: action.Name, Status: StatusUpstreamError}
		err = errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "agent run abandoned")
	case out := <-ch:
		res = *(out.Val.(*Result))
		err = out.Err
		if out.Shared {
			s.logger.Debug("agent run coalesced", logging.String("agent", agent.Name), logging.String("action", action.Name))
		}
	}
	res.RunID = uuid.NewString()
	res.Duration = s.now().Sub(start)
	s.finish(ctx, &res, err)
	return &res, err
}

func (s *Service) execute(ctx context.Context, agent *Agent, action *Action, params map[string]any, key string) (*Result, error) {
	res := &Result{Agent: agent.Name, Action: action.Name}

	data, err := s.load(ctx, action, params)
	if err != nil {
		res.Status = StatusDataError
		return res, err
	}
	prompt, err := action.Render(data)
	if err != nil {
		res.Status = StatusDataError
		return res, err
	}

	if s.gateway == nil {
		res.Status = StatusUpstreamError
		return res, errors.New(errors.ErrCodeServiceUnavailable, "no AI gateway configured")
	}
	reply, err := s.gateway.Complete(ctx, llm.Request{System: agent.System, Prompt: prompt, JSON: true})
	if err != nil {
		res.Status = StatusUpstreamError
		code := errors.CodeUnknown
		if errors.GetCode(err) == errors.CodeUnknown {
			code = errors.ErrCodeExternalService
		}
		return res, errors.Wrap(err, code, "agent completion failed")
	}
	res.Model = reply.Model

	out := NewOutput(action.Schema)
	if err := DecodeStrict(reply.Text, out); err != nil {
		res.Status = StatusParseError
		s.logger.Warn("agent reply rejected",
			logging.String("agent", agent.Name),
			logging.String("action", action.Name),
			logging.String("reply", snippet(reply.Text)),
			logging.Err(err),
		)
		return res, err
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		res.Status = StatusParseError
		return res, errors.Wrap(err, errors.ErrCodeSerialization, "encode agent output")
	}
	res.Data = encoded
	res.Status = StatusOK

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, res, s.ttl); err != nil {
			s.logger.Warn("agent cache write failed", logging.String("key", key), logging.Err(err))
		}
	}
	return res, nil
}

func (s *Service) lookupCache(ctx context.Context, key string) (*Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	var res Result
	if err := s.cache.Get(ctx, key, &res); err != nil || res.Status != StatusOK {
		s.metrics.RecordCacheAccess("agents", false)
		return nil, false
	}
	s.metrics.RecordCacheAccess("agents", true)
	return &res, true
}

// load runs the action's declared reads concurrently.
func (s *Service) load(ctx context.Context, action *Action, params map[string]any) (*PromptData, error) {
	data := &PromptData{Params: params, Today: s.now().Format("2006-01-02")}
	if len(action.Reads) == 0 {
		return data, nil
	}
	if s.reader == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "agent data source is not configured")
	}
	id, _ := params["company_id"].(string)
	if id == "" {
		return nil, paramError("company_id", "is required")
	}

	g, gctx := errgroup.WithContext(ctx)
	if action.ReadsFrom(ReadCompany) {
		g.Go(func() error {
			c, err := s.reader.Company(gctx, id)
			if err != nil {
				return readError(err, ReadCompany)
			}
			data.Company = c
			return nil
		})
	}
	if action.ReadsFrom(ReadFinancials) {
		years := intParam(params, "years", defaultFinancialYears)
		g.Go(func() error {
			rows, err := s.reader.Financials(gctx, id, years)
			if err != nil {
				return readError(err, ReadFinancials)
			}
			data.Financials = rows
			data.Ratios = ComputeRatios(rows)
			if len(rows) > 0 {
				latest := rows[len(rows)-1]
				data.Latest = &latest
			}
			return nil
		})
	}
	if action.ReadsFrom(ReadObligations) {
		g.Go(func() error {
			rows, err := s.reader.Obligations(gctx, id)
			if err != nil {
				return readError(err, ReadObligations)
			}
			data.Obligations = rows
			return nil
		})
	}
	if action.ReadsFrom(ReadInteractions) {
		limit := intParam(params, "limit", defaultInteractionRows)
		g.Go(func() error {
			rows, err := s.reader.Interactions(gctx, id, limit)
			if err != nil {
				return readError(err, ReadInteractions)
			}
			data.Interactions = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Service) finish(ctx context.Context, res *Result, err error) {
	s.metrics.RecordAgentRun(res.Agent, res.Action, string(res.Status), res.Duration)

	fields := []logging.Field{
		logging.String("run_id", res.RunID),
		logging.String("agent", res.Agent),
		logging.String("action", res.Action),
		logging.String("status", string(res.Status)),
		logging.Bool("cached", res.Cached),
		logging.Duration("took", res.Duration),
	}
	if err != nil {
		s.logger.Warn("agent run failed", append(fields, logging.Err(err))...)
	} else {
		s.logger.Info("agent run completed", fields...)
	}

	if s.audit == nil {
		return
	}
	ev := AuditEvent{
		RunID:     res.RunID,
		Agent:     res.Agent,
		Action:    res.Action,
		Status:    res.Status,
		Cached:    res.Cached,
		Model:     res.Model,
		LatencyMs: res.Duration.Milliseconds(),
		At:        s.now().UTC(),
	}
	if err != nil {
		ev.ErrorCode = errors.GetCode(err).String()
	}
	if perr := s.audit.PublishAgentCompleted(context.WithoutCancel(ctx), ev); perr != nil {
		s.logger.Warn("agent audit publish failed", logging.String("run_id", res.RunID), logging.Err(perr))
	}
}

func readError(err error, source string) error {
	code := errors.CodeUnknown
	if errors.GetCode(err) == errors.CodeUnknown {
		code = errors.ErrCodeDatabaseError
	}
	return errors.Wrap(err, code, fmt.Sprintf("load %s", source))
}

func intParam(params map[string]any, name string, def int) int {
	if v, ok := params[name].(int); ok && v > 0 {
		return v
	}
	return def
}

// snippet shortens s to at most rawSnippetLen bytes without splitting a rune.
func snippet(s string) string {
	if len(s) <= rawSnippetLen {
		return s
	}
	cut := rawSnippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

//Personal.AI order the ending
