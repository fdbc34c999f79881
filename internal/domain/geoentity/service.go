package geoentity

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// unversionedBit marks versions minted locally while the VersionStore is
// unreachable.  They never equal a store-issued version, and each one is
// fresh, so nothing memoised against them is reused.
const unversionedBit = uint64(1) << 63

// DefaultLoadTimeout bounds a shared snapshot load when none is configured.
const DefaultLoadTimeout = 30 * time.Second

// SnapshotService loads entities and scores together and keeps the last
// snapshot until the VersionStore reports a newer version.
type SnapshotService struct {
	entities EntityRepository
	scores   ScoreRepository
	versions VersionStore
	logger   logging.Logger
	timeout  time.Duration

	group singleflight.Group
	local atomic.Uint64

	mu      sync.RWMutex
	current *Snapshot
}

// SnapshotOption customises a SnapshotService.
type SnapshotOption func(*SnapshotService)

// WithLoadTimeout bounds each shared load.  d <= 0 keeps DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) SnapshotOption {
	return func(s *SnapshotService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSnapshotService wires the repositories.  scores may be nil when no
// scoring process runs; every entity then has no relationship percentage.
func NewSnapshotService(entities EntityRepository, scores ScoreRepository, versions VersionStore, logger logging.Logger, opts ...SnapshotOption) *SnapshotService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &SnapshotService{
		entities: entities,
		scores:   scores,
		versions: versions,
		logger:   logger.Named("snapshot"),
		timeout:  DefaultLoadTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns the snapshot for the current version, loading it when
// the cached one is older.  Concurrent reloads of one version are coalesced
// into one load that is detached from every caller's cancellation; a caller
// whose ctx ends stops waiting without failing the others.
func (s *SnapshotService) Snapshot(ctx context.Context) (*Snapshot, error) {
	version := s.version(ctx)

	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur != nil && cur.Version == version {
		return cur, nil
	}

	ch := s.group.DoChan(strconv.FormatUint(version, 10), func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.load(lctx, version)
	})
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "snapshot load abandoned")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// Invalidate drops the cached snapshot.
func (s *SnapshotService) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *SnapshotService) version(ctx context.Context) uint64 {
	if s.versions == nil {
		return unversionedBit | s.local.Add(1)
	}
	v, err := s.versions.Current(ctx)
	if err != nil {
		s.logger.Warn("version store unavailable; loading unversioned snapshot", logging.Err(err))
		return unversionedBit | s.local.Add(1)
	}
	return v
}

func (s *SnapshotService) load(ctx context.Context, version uint64) (*Snapshot, error) {
	start := time.Now()
	snap := &Snapshot{Version: version}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.entities.ListAll(gctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load companies")
		}
		snap.Entities = list
		return nil
	})
	if s.scores != nil {
		g.Go(func() error {
			sc, err := s.scores.LoadScores(gctx)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load relationship scores")
			}
			snap.Scores = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	snap.LoadedAt = time.Now()

	s.mu.Lock()
	if s.current == nil || s.current.Version != snap.Version {
		s.current = snap
	}
	s.mu.Unlock()

	s.logger.Info("snapshot loaded",
		logging.Uint64("version", version),
		logging.Int("entities", len(snap.Entities)),
		logging.Int("scores", len(snap.Scores)),
		logging.Duration("took", time.Since(start)),
	)
	return snap, nil
}

// StaticSource serves a fixed snapshot.  The offline CLI and tests use it.
type StaticSource struct {
	snap atomic.Pointer[Snapshot]
}

// NewStaticSource wraps entities and scores as version 1.
func NewStaticSource(entities []Entity, scores Scores) *StaticSource {
	s := &StaticSource{}
	s.snap.Store(&Snapshot{Entities: entities, Scores: scores, Version: 1, LoadedAt: time.Now()})
	return s
}

// Snapshot implements SnapshotSource.
func (s *StaticSource) Snapshot(context.Context) (*Snapshot, error) {
	return s.snap.Load(), nil
}

// Replace swaps the served entities and bumps the version.
func (s *StaticSource) Replace(entities []Entity, scores Scores) {
	prev := s.snap.Load()
	s.snap.Store(&Snapshot{Entities: entities, Scores: scores, Version: prev.Version + 1, LoadedAt: time.Now()})
}

var (
	_ SnapshotSource = (*SnapshotService)(nil)
	_ SnapshotSource = (*StaticSource)(nil)
)

//Personal.AI order the ending
