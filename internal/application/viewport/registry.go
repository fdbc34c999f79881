package viewport

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/BizAtlas/internal/application/cluster"
	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// Config tunes a Registry.
type Config struct {
	DebounceDelay time.Duration
	// IdleTTL expires sessions with no activity; <= 0 keeps them forever.
	IdleTTL time.Duration
	// MaxSessions bounds concurrently open sessions; <= 0 means unbounded.
	MaxSessions int
	// SweepInterval defaults to IdleTTL/2, at least one second.
	SweepInterval time.Duration

	Cluster cluster.Options
	Limits  cluster.Limits
}

// ConfigFromMap derives a Registry Config from the map configuration.
func ConfigFromMap(cfg config.MapConfig) Config {
	return Config{
		DebounceDelay: cfg.DebounceDelay,
		IdleTTL:       cfg.SessionIdleTTL,
		MaxSessions:   cfg.MaxSessions,
		Cluster:       cluster.OptionsFromConfig(cfg),
		Limits:        cluster.LimitsFromConfig(cfg),
	}
}

// Registry owns the open map sessions and expires idle ones.
type Registry struct {
	cfg     Config
	source  geoentity.SnapshotSource
	querier *cluster.Querier
	store   SnapshotStore
	metrics *prom.AppMetrics
	logger  logging.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now; tests drive expiry with it.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithSnapshotStore enables Session.Snapshot.
func WithSnapshotStore(store SnapshotStore) RegistryOption {
	return func(r *Registry) { r.store = store }
}

// NewRegistry builds a Registry over source.
func NewRegistry(cfg Config, source geoentity.SnapshotSource, metrics *prom.AppMetrics, logger logging.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &Registry{
		cfg:      cfg,
		source:   source,
		metrics:  metrics,
		logger:   logger.Named("viewport"),
		now:      time.Now,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.querier = cluster.NewQuerier(cfg.Limits, metrics, r.logger)
	return r
}

// Start launches the idle sweeper.  Without Start, expiry still happens
// lazily in Create.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		if r.cfg.IdleTTL <= 0 {
			close(r.done)
			return
		}
		interval := r.cfg.SweepInterval
		if interval <= 0 {
			interval = r.cfg.IdleTTL / 2
		}
		if interval < time.Second {
			interval = time.Second
		}
		go r.sweepLoop(interval)
	})
}

func (r *Registry) sweepLoop(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stop:
			return
		}
	}
}

// Create opens a new session.  After Shutdown it fails with COMMON_008.
func (r *Registry) Create() (*Session, error) {
	r.Sweep()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "map session registry is shut down")
	}
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		n := len(r.sessions)
		r.mu.Unlock()
		r.logger.Warn("session limit reached", logging.Int("open", n))
		return nil, errors.New(errors.ErrCodeSessionLimitReached, "too many open map sessions")
	}
	s := newSession(uuid.NewString(), sessionDeps{
		source:  r.source,
		querier: r.querier,
		opts:    r.cfg.Cluster,
		delay:   r.cfg.DebounceDelay,
		store:   r.store,
		metrics: r.metrics,
		logger:  r.logger,
		now:     r.now,
	})
	r.sessions[s.id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	r.logger.Info("session opened", logging.String("session_id", s.id), logging.Int("open", n))
	return s, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeSessionNotFound, "map session not found").WithDetail("session_id=" + id)
	}
	return s, nil
}

// Close closes and forgets the session with id.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return errors.New(errors.ErrCodeSessionNotFound, "map session not found").WithDetail("session_id=" + id)
	}
	s.Close()
	r.metrics.SetActiveSessions(n)
	r.logger.Info("session closed", logging.String("session_id", id))
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than IdleTTL and returns how many.
func (r *Registry) Sweep() int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		r.logger.Info("session expired", logging.String("session_id", s.id))
	}
	if len(expired) > 0 {
		r.metrics.SetActiveSessions(n)
	}
	return len(expired)
}

// Shutdown stops the sweeper and closes every session.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.startOnce.Do(func() { close(r.done) })
		<-r.done

		r.mu.Lock()
		sessions := r.sessions
		r.sessions = make(map[string]*Session)
		r.closed = true
		r.mu.Unlock()

		for _, s := range sessions {
			s.Close()
		}
		r.metrics.SetActiveSessions(0)
	})
}

//Personal.AI order the ending
