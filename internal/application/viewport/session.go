// Package viewport holds per-map-instance state.  A Session owns one filter
// cache, the spatial index built from its filtered set, the current viewport
// and a debouncer for viewport changes; nothing is shared between sessions.
package viewport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/turtacn/BizAtlas/internal/application/cluster"
	"github.com/turtacn/BizAtlas/internal/application/mapfilter"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// SnapshotStore persists exported GeoJSON and returns where to fetch it.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, name string, body []byte) (key, url string, err error)
}

// FilterSummary reports one ApplyFilter call.
type FilterSummary struct {
	Key          string        `json:"hash"`
	CacheKey     string        `json:"cache_key"`
	Version      uint64        `json:"version"`
	Total        int           `json:"total"`
	Filtered     int           `json:"filtered"`
	Clusterable  int           `json:"clusterable"`
	CacheHit     bool          `json:"cache_hit"`
	IndexRebuilt bool          `json:"index_rebuilt"`
	Stages       []string      `json:"stages"`
	Duration     time.Duration `json:"duration_ns"`
}

// Update is pushed to subscribers when a debounced viewport query completes.
type Update struct {
	Seq     uint64           `json:"seq"`
	Bounds  cluster.Bounds   `json:"bounds"`
	Visible *cluster.Visible `json:"visible,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// SnapshotExport describes an exported GeoJSON snapshot.
type SnapshotExport struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	Features int    `json:"features"`
	Version  uint64 `json:"version"`
}

type viewportState struct {
	bounds cluster.Bounds
	zoom   float64
}

// Session is one map component instance.
type Session struct {
	id        string
	createdAt time.Time

	source    geoentity.SnapshotSource
	engine    *mapfilter.Engine
	querier   *cluster.Querier
	opts      cluster.Options
	debouncer *Debouncer
	store     SnapshotStore
	metrics   *prom.AppMetrics
	logger    logging.Logger
	now       func() time.Time

	// applyMu serialises ApplyFilter so a slower, older call never
	// overwrites the state installed by a newer one.
	applyMu sync.Mutex

	mu       sync.RWMutex
	filter   geoentity.Filter
	result   *mapfilter.Result
	scores   geoentity.Scores
	index    *cluster.Index
	indexKey string
	viewport *viewportState
	lastSeen time.Time

	subMu   sync.Mutex
	subs    map[uint64]chan Update
	nextSub uint64
	seq     uint64
	closed  bool
}

func newSession(id string, deps sessionDeps) *Session {
	now := deps.now
	if now == nil {
		now = time.Now
	}
	logger := deps.logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Session{
		id:        id,
		createdAt: now(),
		source:    deps.source,
		engine:    mapfilter.NewEngine(mapfilter.NewFilterCache(), deps.metrics, logger),
		querier:   deps.querier,
		opts:      deps.opts,
		store:     deps.store,
		metrics:   deps.metrics,
		logger:    logger.With(logging.String("session_id", id)),
		now:       now,
		subs:      make(map[uint64]chan Update),
	}
	s.lastSeen = s.createdAt
	s.debouncer = NewDebouncer(deps.delay, deps.metrics.RecordViewportEvent)
	return s
}

type sessionDeps struct {
	source  geoentity.SnapshotSource
	querier *cluster.Querier
	opts    cluster.Options
	delay   time.Duration
	store   SnapshotStore
	metrics *prom.AppMetrics
	logger  logging.Logger
	now     func() time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastSeen returns the time of the last operation on the session.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// KeepAlive marks the session active; long-lived streams call it so the
// idle sweep leaves them open.
func (s *Session) KeepAlive() { s.touch() }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

// Filter returns the filter last applied.
func (s *Session) Filter() geoentity.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// Entities returns the current filtered set.  The slice is shared with the
// session's cache and must not be modified.
func (s *Session) Entities() []geoentity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	return s.result.Entities
}

// ApplyFilter loads the current snapshot, filters it through the session's
// cache and rebuilds the spatial index when the filtered set or the snapshot
// version changed.  When a viewport is known, subscribers receive a fresh
// result straight away.  Calls on one session apply in arrival order.
func (s *Session) ApplyFilter(ctx context.Context, f geoentity.Filter) (*FilterSummary, error) {
	s.touch()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "load entity snapshot")
	}

	res, err := s.engine.Run(snap, f)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	rebuilt := false
	if s.index == nil || s.indexKey != res.CacheKey {
		timer := s.metrics.IndexBuildTimer()
		s.index = cluster.BuildIndex(res.Entities, s.opts)
		s.indexKey = res.CacheKey
		rebuilt = true
		took := timer.ObserveDuration()
		s.logger.Debug("spatial index rebuilt",
			logging.String("key", res.CacheKey),
			logging.Int("clusterable", s.index.Len()),
			logging.Int("skipped", s.index.Skipped()),
			logging.Duration("took", took),
		)
	}
	s.filter = f
	s.result = res
	s.scores = snap.Scores
	clusterable := s.index.Len()
	vp := s.viewport
	s.mu.Unlock()

	if vp != nil {
		s.publishVisible(vp.bounds, vp.zoom)
	}

	return &FilterSummary{
		Key:          res.Key,
		CacheKey:     res.CacheKey,
		Version:      res.Version,
		Total:        res.Total,
		Filtered:     len(res.Entities),
		Clusterable:  clusterable,
		CacheHit:     res.CacheHit,
		IndexRebuilt: rebuilt,
		Stages:       res.Stages,
		Duration:     res.Duration,
	}, nil
}

func (s *Session) currentIndex() *cluster.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Visible answers a viewport query immediately.
func (s *Session) Visible(b cluster.Bounds, zoom float64) (*cluster.Visible, error) {
	s.touch()
	return s.querier.Visible(s.currentIndex(), b, zoom)
}

// UpdateViewport records the viewport and schedules a debounced query whose
// result goes to subscribers.  Invalid input is rejected synchronously.
func (s *Session) UpdateViewport(b cluster.Bounds, zoom float64) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if zoom < 0 || math.IsNaN(zoom) {
		return errors.New(errors.ErrCodeInvalidZoom, "zoom must be a non-negative number")
	}

	s.mu.Lock()
	s.viewport = &viewportState{bounds: b, zoom: zoom}
	s.lastSeen = s.now()
	s.mu.Unlock()

	s.debouncer.Trigger(func() { s.publishVisible(b, zoom) })
	return nil
}

func (s *Session) publishVisible(b cluster.Bounds, zoom float64) {
	u := Update{Bounds: b}
	v, err := s.querier.Visible(s.currentIndex(), b, zoom)
	if err != nil {
		u.Error = err.Error()
		s.logger.Warn("viewport query failed", logging.Err(err))
	} else {
		u.Visible = v
	}
	s.publish(u)
}

// Subscribe returns a channel of viewport updates and a func to release it.
// Each subscriber keeps only the newest undelivered update.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan Update, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) publish(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	u.Seq = s.seq
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			// Replace the stale update nobody read yet.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}

// Children lists the items one zoom level below clusterID.
func (s *Session) Children(clusterID int) ([]cluster.Item, error) {
	s.touch()
	idx := s.currentIndex()
	if idx == nil {
		return nil, errors.New(errors.ErrCodeIndexNotReady, "no filter has been applied yet")
	}
	return idx.Children(clusterID)
}

// Leaves pages through the entities under clusterID.
func (s *Session) Leaves(clusterID, limit, offset int) ([]geoentity.Entity, error) {
	s.touch()
	idx := s.currentIndex()
	if idx == nil {
		return nil, errors.New(errors.ErrCodeIndexNotReady, "no filter has been applied yet")
	}
	return idx.Leaves(clusterID, limit, offset)
}

// ExpansionZoom is the zoom at which clusterID breaks apart.
func (s *Session) ExpansionZoom(clusterID int) (int, error) {
	s.touch()
	idx := s.currentIndex()
	if idx == nil {
		return 0, errors.New(errors.ErrCodeIndexNotReady, "no filter has been applied yet")
	}
	return idx.ExpansionZoom(clusterID)
}

// Snapshot exports the filtered set as a GeoJSON FeatureCollection to the
// snapshot store.
func (s *Session) Snapshot(ctx context.Context) (*SnapshotExport, error) {
	s.touch()
	if s.store == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "snapshot export is not configured")
	}

	s.mu.RLock()
	res, scores := s.result, s.scores
	s.mu.RUnlock()
	if res == nil {
		return nil, errors.New(errors.ErrCodeIndexNotReady, "no filter has been applied yet")
	}

	fc := cluster.EntityFeatures(res.Entities, scores)
	body, err := json.Marshal(fc)
	if err != nil {
		s.metrics.RecordSnapshotExport(false)
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode snapshot")
	}

	name := fmt.Sprintf("%s/%s-%s.geojson", s.id, res.Key, s.now().UTC().Format("20060102T150405Z"))
	key, url, err := s.store.PutSnapshot(ctx, name, body)
	if err != nil {
		s.metrics.RecordSnapshotExport(false)
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "store snapshot")
	}
	s.metrics.RecordSnapshotExport(true)
	s.logger.Info("snapshot exported",
		logging.String("key", key),
		logging.Int("features", len(fc.Features)),
		logging.Uint64("version", res.Version),
	)
	return &SnapshotExport{Key: key, URL: url, Features: len(fc.Features), Version: res.Version}, nil
}

// Close stops pending viewport work and releases subscribers.
func (s *Session) Close() {
	s.debouncer.Stop()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

//Personal.AI order the ending
