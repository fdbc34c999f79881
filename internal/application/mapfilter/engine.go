package mapfilter

import (
	"time"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
)

// Result describes one filter evaluation.
type Result struct {
	Entities []geoentity.Entity
	// Key is the filter content hash; CacheKey adds the snapshot version.
	Key      string
	CacheKey string
	Version  uint64
	CacheHit bool
	Total    int
	Stages   []string
	Duration time.Duration
}

// Engine evaluates filters against snapshots through a FilterCache.
type Engine struct {
	cache   *FilterCache
	metrics *prom.AppMetrics
	logger  logging.Logger
}

// NewEngine builds an Engine.  A nil cache disables memoisation.
func NewEngine(cache *FilterCache, metrics *prom.AppMetrics, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{cache: cache, metrics: metrics, logger: logger}
}

// Cache returns the engine's cache, nil when memoisation is off.
func (e *Engine) Cache() *FilterCache { return e.cache }

// Run filters snap by f.  When the cache holds a non-empty result for the
// same filter hash and snapshot version, that slice is returned unchanged.
func (e *Engine) Run(snap *geoentity.Snapshot, f geoentity.Filter) (*Result, error) {
	start := time.Now()

	var (
		entities []geoentity.Entity
		scores   geoentity.Scores
		version  uint64
	)
	if snap != nil {
		entities, scores, version = snap.Entities, snap.Scores, snap.Version
	}

	plan, err := Compile(f)
	if err != nil {
		e.metrics.RecordFilter("error", 0, 0)
		return nil, err
	}

	res := &Result{
		Key:      plan.Key(),
		CacheKey: plan.Filter().CacheKey(version),
		Version:  version,
		Total:    len(entities),
		Stages:   plan.Stages(),
	}

	if e.cache != nil {
		if hit, ok := e.cache.Lookup(res.CacheKey); ok {
			res.Entities = hit
			res.CacheHit = true
			res.Duration = time.Since(start)
			e.metrics.RecordFilter("hit", res.Duration, len(hit))
			return res, nil
		}
	}

	res.Entities = plan.Apply(entities, scores)
	res.Duration = time.Since(start)
	if e.cache != nil {
		e.cache.Store(res.CacheKey, res.Entities)
	}

	e.metrics.RecordFilter("miss", res.Duration, len(res.Entities))
	e.logger.Debug("filter applied",
		logging.String("key", res.CacheKey),
		logging.Strings("stages", res.Stages),
		logging.Int("total", res.Total),
		logging.Int("filtered", len(res.Entities)),
		logging.Duration("took", res.Duration),
	)
	return res, nil
}

//Personal.AI order the ending
