package agents

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/llm"
	"github.com/turtacn/BizAtlas/internal/testutil"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockGateway struct{ mock.Mock }

func (m *mockGateway) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*llm.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) Provider() string { return "mock" }
func (m *mockGateway) Model() string    { return "mock-1" }

type mockReader struct{ mock.Mock }

func (m *mockReader) Company(ctx context.Context, id string) (*geoentity.Entity, error) {
	args := m.Called(ctx, id)
	if e := args.Get(0); e != nil {
		return e.(*geoentity.Entity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReader) Financials(ctx context.Context, id string, years int) ([]FinancialYear, error) {
	args := m.Called(ctx, id, years)
	rows, _ := args.Get(0).([]FinancialYear)
	return rows, args.Error(1)
}

func (m *mockReader) Obligations(ctx context.Context, id string) ([]Obligation, error) {
	args := m.Called(ctx, id)
	rows, _ := args.Get(0).([]Obligation)
	return rows, args.Error(1)
}

func (m *mockReader) Interactions(ctx context.Context, id string, limit int) ([]Interaction, error) {
	args := m.Called(ctx, id, limit)
	rows, _ := args.Get(0).([]Interaction)
	return rows, args.Error(1)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) PublishAgentCompleted(ctx context.Context, ev AuditEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// memoryCache round-trips values through JSON like the Redis cache does.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "cache miss")
	}
	return json.Unmarshal(b, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = b
	c.ttls[key] = ttl
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// ─────────────────────────────────────────────────────────────────────────────
// Suite
// ─────────────────────────────────────────────────────────────────────────────

type ServiceTestSuite struct {
	suite.Suite
	gateway *mockGateway
	reader  *mockReader
	audit   *mockAudit
	cache   *memoryCache
	logger  *testutil.MockLogger
	svc     *Service
	company geoentity.Entity
}

func (s *ServiceTestSuite) SetupTest() {
	s.gateway = new(mockGateway)
	s.reader = new(mockReader)
	s.audit = new(mockAudit)
	s.cache = newMemoryCache()
	s.logger = testutil.NewMockLogger()
	s.company = testutil.NewEntity("c1", testutil.Named("Panadería Sol"), testutil.InSector("1071"))

	catalog, err := LoadCatalog("")
	s.Require().NoError(err)
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.svc = NewService(catalog, s.reader, s.gateway, nil, s.logger,
		WithCache(s.cache, 10*time.Minute),
		WithAudit(s.audit),
		WithNow(func() time.Time { return fixed }),
	)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) expectCompliance() {
	s.reader.On("Company", mock.Anything, "c1").Return(&s.company, nil)
	s.reader.On("Obligations", mock.Anything, "c1").Return([]Obligation{
		{Kind: "tax", Description: "Modelo 303", DueDate: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), Status: "pending"},
	}, nil)
}

const complianceReply = `{"status":"at_risk","score":62,"issues":[{"requirement":"VAT filing","severity":"medium","detail":"Q3 pending"}],"recommendations":["File Modelo 303 before the 20th"]}`

func (s *ServiceTestSuite) TestRun_OK() {
	s.expectCompliance()
	s.gateway.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.JSON && r.System != "" &&
			strings.Contains(r.Prompt, "Panadería Sol") &&
			strings.Contains(r.Prompt, "Modelo 303")
	})).Return(&llm.Response{Text: "```json\n" + complianceReply + "\n```", Model: "gpt-test"}, nil).Once()
	s.audit.On("PublishAgentCompleted", mock.Anything, mock.MatchedBy(func(ev AuditEvent) bool {
		return ev.Agent == "compliance" && ev.Status == StatusOK && !ev.Cached && ev.ErrorCode == ""
	})).Return(nil).Once()

	res, err := s.svc.Run(context.Background(), Request{Agent: "compliance", Action: "check", Params: map[string]any{"company_id": "c1"}})
	s.Require().NoError(err)

	s.Equal(StatusOK, res.Status)
	s.Equal("gpt-test", res.Model)
	s.NotEmpty(res.RunID)
	s.False(res.Cached)

	var out ComplianceCheck
	s.Require().NoError(json.Unmarshal(res.Data, &out))
	s.Equal("at_risk", out.Status)
	s.Len(out.Issues, 1)

	s.Equal(1, s.cache.len())
	s.True(s.logger.HasMessage("info", "agent run completed"))
	s.gateway.AssertExpectations(s.T())
	s.audit.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestRun_ParseErrorIsTyped() {
	s.expectCompliance()
	s.gateway.On("Complete", mock.Anything, mock.Anything).
		Return(&llm.Response{Text: "I think the company is mostly fine.", Model: "gpt-test"}, nil).Once()
	s.audit.On("PublishAgentCompleted", mock.Anything, mock.MatchedBy(func(ev AuditEvent) bool {
		return ev.Status == StatusParseError && ev.ErrorCode == string(errors.ErrCodeAgentOutputInvalid)
	})).Return(nil).Once()

	res, err := s.svc.Run(context.Background(), Request{Agent: "compliance", Action: "check", Params: map[string]any{"company_id": "c1"}})
	s.Require().Error(err)
	s.True(errors.IsCode(err, errors.ErrCodeAgentOutputInvalid))
	s.Equal(502, errors.HTTPStatusOf(err))

	s.Require().NotNil(res)
	s.Equal(StatusParseError, res.Status)
	s.Nil(res.Data, "no substituted default payload")
	s.Equal(0, s.cache.len(), "failures are not cached")
	s.True(s.logger.HasMessage("warn", "agent reply rejected"))
}

func (s *ServiceTestSuite) TestRun_UpstreamErrorsKeepStatus() {
	cases := []struct {
		err  error
		http int
	}{
		{llm.StatusError("mock", 429, "slow down"), 429},
		{llm.StatusError("mock", 402, "pay up"), 402},
		{llm.StatusError("mock", 503, "down"), 500},
		{assert.AnError, 500},
	}
	for _, tc := range cases {
		s.SetupTest()
		s.expectCompliance()
		s.gateway.On("Complete", mock.Anything, mock.Anything).Return(nil, tc.err).Once()
		s.audit.On("PublishAgentCompleted", mock.Anything, mock.Anything).Return(nil).Once()

		res, err := s.svc.Run(context.Background(), Request{Agent: "compliance", Action: "check", Params: map[string]any{"company_id": "c1"}})
		s.Require().Error(err)
		s.Equal(tc.http, errors.HTTPStatusOf(err), "%v", tc.err)
		s.Equal(StatusUpstreamError, res.Status)
		s.gateway.AssertNumberOfCalls(s.T(), "Complete", 1)
	}
}

func (s *ServiceTestSuite) TestRun_CacheHitSkipsGateway() {
	s.expectCompliance()
	s.gateway.On("Complete", mock.Anything, mock.Anything).
		Return(&llm.Response{Text: complianceReply, Model: "gpt-test"}, nil).Once()
	s.audit.On("PublishAgentCompleted", mock.Anything, mock.Anything).Return(nil)

	req := Request{Agent: "compliance", Action: "check", Params: map[string]any{"company_id": "c1"}}
	first, err := s.svc.Run(context.Background(), req)
	s.Require().NoError(err)
	second, err := s.svc.Run(context.Background(), req)
	s.Require().NoError(err)

	s.True(second.Cached)
	s.NotEqual(first.RunID, second.RunID)
	s.JSONEq(string(first.Data), string(second.Data))
	s.gateway.AssertNumberOfCalls(s.T(), "Complete", 1)
}

func (s *ServiceTestSuite) TestRun_DataErrors() {
	s.reader.On("Company", mock.Anything, "missing").
		Return(nil, errors.New(errors.ErrCodeEntityNotFound, "company not found"))
	s.reader.On("Obligations", mock.Anything, "missing").Return([]Obligation{}, nil)
	s.audit.On("PublishAgentCompleted", mock.Anything, mock.Anything).Return(nil)

	res, err := s.svc.Run(context.Background(), Request{Agent: "compliance", Action: "check", Params: map[string]any{"company_id": "missing"}})
	s.True(errors.IsCode(err, errors.ErrCodeEntityNotFound))
	s.Equal(StatusDataError, res.Status)
	s.gateway.AssertNotCalled(s.T(), "Complete", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestRun_RequestErrors() {
	_, err := s.svc.Run(context.Background(), Request{Agent: "nope", Action: "x"})
	s.True(errors.IsCode(err, errors.ErrCodeAgentNotFound))

	_, err = s.svc.Run(context.Background(), Request{Agent: "grants", Action: "x"})
	s.True(errors.IsCode(err, errors.ErrCodeAgentActionUnsupported))

	_, err = s.svc.Run(context.Background(), Request{Agent: "grants", Action: "match"})
	s.True(errors.IsCode(err, errors.ErrCodeAgentParamsInvalid))

	s.audit.AssertNotCalled(s.T(), "PublishAgentCompleted", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestRun_TextActionNeedsNoReads() {
	s.gateway.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return strings.Contains(r.Prompt, "the delivery was late again")
	})).Return(&llm.Response{Text: `{"sentiment":"negative","score":-0.5,"emotions":[{"label":"frustration","intensity":0.8}],"summary":"Unhappy."}`}, nil).Once()
	s.audit.On("PublishAgentCompleted", mock.Anything, mock.Anything).Return(nil)

	res, err := s.svc.Run(context.Background(), Request{Agent: "emotional", Action: "text", Params: map[string]any{"text": "the delivery was late again"}})
	s.Require().NoError(err)
	s.Equal(StatusOK, res.Status)
	s.reader.AssertNotCalled(s.T(), "Company", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestRun_RatiosUsesComputedFigures() {
	s.reader.On("Company", mock.Anything, "c1").Return(&s.company, nil)
	s.reader.On("Financials", mock.Anything, "c1", 2).Return([]FinancialYear{
		{Year: 2025, Revenue: 1000, Expenses: 800, Assets: 4000, Liabilities: 1000, Equity: 3000, CurrentAssets: 600, CurrentLiabilities: 300},
	}, nil)
	s.gateway.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return strings.Contains(r.Prompt, "current_ratio=2.000") && strings.Contains(r.Prompt, "net_margin=0.200")
	})).Return(&llm.Response{Text: `{"ratios":[{"name":"current_ratio","value":2,"benchmark":1.5,"assessment":"good"}],"summary":"Liquid."}`}, nil).Once()
	s.audit.On("PublishAgentCompleted", mock.Anything, mock.Anything).Return(nil)

	res, err := s.svc.Run(context.Background(), Request{Agent: "ratios", Action: "analyze", Params: map[string]any{"company_id": "c1", "years": float64(2)}})
	s.Require().NoError(err)
	s.Equal(StatusOK, res.Status)
	s.reader.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestRun_AuditFailureIsLoggedOnly() {
	s.expectCompliance()
	s.gateway.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Text: complianceReply}, nil)
	s.audit.On("PublishAgentCompleted", mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := s.svc.Run(context.Background(), Request{Agent: "compliance", Action: "check", Params: map[string]any{"company_id": "c1"}})
	s.NoError(err)
	s.True(s.logger.HasMessage("warn", "agent audit publish failed"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Standalone
// ─────────────────────────────────────────────────────────────────────────────

// blockingGateway holds every call until release is closed.
type blockingGateway struct {
	calls     atomic.Int32
	cancelled atomic.Bool
	entered   chan struct{}
	release   chan struct{}
}

func (g *blockingGateway) Complete(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	<-g.release
	if ctx.Err() != nil {
		g.cancelled.Store(true)
	}
	return &llm.Response{Text: `{"sentiment":"neutral","score":0,"emotions":[],"summary":"Flat."}`}, nil
}

func (g *blockingGateway) Provider() string { return "blocking" }
func (g *blockingGateway) Model() string    { return "b-1" }

func TestService_ConcurrentIdenticalRunsCoalesce(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	gw := &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(catalog, nil, gw, nil, nil)

	req := Request{Agent: "emotional", Action: "text", Params: map[string]any{"text": "fine"}}
	const n = 5
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = svc.Run(context.Background(), req)
	}()
	<-gw.entered
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Run(context.Background(), req)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gw.release)
	wg.Wait()

	assert.Equal(t, int32(1), gw.calls.Load())
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, StatusOK, results[i].Status)
		assert.False(t, seen[results[i].RunID], "run IDs are per request")
		seen[results[i].RunID] = true
	}
}

func TestService_CancelledCallerLeavesSharedRunAlone(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	gw := &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(catalog, nil, gw, nil, nil)
	req := Request{Agent: "emotional", Action: "text", Params: map[string]any{"text": "fine"}}

	ctx, cancel := context.WithCancel(context.Background())
	var (
		gone, kept       *Result
		goneErr, keptErr error
	)
	goneDone := make(chan struct{})
	go func() {
		gone, goneErr = svc.Run(ctx, req)
		close(goneDone)
	}()
	<-gw.entered

	keptDone := make(chan struct{})
	go func() {
		kept, keptErr = svc.Run(context.Background(), req)
		close(keptDone)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	<-goneDone
	require.Error(t, goneErr)
	assert.True(t, errors.IsCode(goneErr, errors.ErrCodeTimeout))
	require.NotNil(t, gone)
	assert.Equal(t, StatusUpstreamError, gone.Status)

	close(gw.release)
	<-keptDone
	require.NoError(t, keptErr)
	assert.Equal(t, StatusOK, kept.Status)
	assert.Equal(t, int32(1), gw.calls.Load())
	assert.False(t, gw.cancelled.Load(), "shared run must not inherit a caller's cancellation")
}

func TestSnippet_KeepsRunesWhole(t *testing.T) {
	long := "a" + strings.Repeat("é", 150)
	got := snippet(long)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), rawSnippetLen+len("..."))
	assert.Equal(t, "short", snippet("short"))
}

func TestCacheKey_StableAndDistinct(t *testing.T) {
	a := CacheKey("grants", "match", map[string]any{"company_id": "c1", "max_results": 5})
	b := CacheKey("grants", "match", map[string]any{"max_results": 5, "company_id": "c1"})
	c := CacheKey("grants", "match", map[string]any{"company_id": "c2", "max_results": 5})
	d := CacheKey("grants", "draft", map[string]any{"company_id": "c1", "max_results": 5})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Contains(t, a, "agents:grants:match:")
}

//Personal.AI order the ending
