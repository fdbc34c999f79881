package viewport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/BizAtlas/internal/application/cluster"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/testutil"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

type memoryStore struct {
	mu    sync.Mutex
	puts  map[string][]byte
	fails bool
}

func (m *memoryStore) PutSnapshot(_ context.Context, name string, body []byte) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails {
		return "", "", stderrors.New("bucket unavailable")
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	key := "snapshots/" + name
	m.puts[key] = body
	return key, "https://objects.test/" + key, nil
}

func testEntities() []geoentity.Entity {
	return []geoentity.Entity{
		testutil.NewEntity("a", testutil.At(40.4168, -3.7038), testutil.WithStatus("1"), testutil.InRegion("X")),
		testutil.NewEntity("b", testutil.At(40.4169, -3.7039), testutil.WithStatus("1"), testutil.InRegion("Y")),
		testutil.NewEntity("c", testutil.At(41.3874, 2.1686), testutil.WithStatus("2"), testutil.InRegion("X")),
		testutil.NewEntity("d", testutil.WithStatus("1"), testutil.InRegion("X")),
		testutil.NewEntity("e", testutil.At(39.4699, -0.3763), testutil.WithStatus("3"), testutil.InRegion("Z")),
	}
}

var iberia = cluster.Bounds{West: -10, South: 35, East: 5, North: 44}

type SessionTestSuite struct {
	suite.Suite
	source   *geoentity.StaticSource
	store    *memoryStore
	registry *Registry
	session  *Session
}

func (s *SessionTestSuite) SetupTest() {
	s.source = geoentity.NewStaticSource(testEntities(), geoentity.Scores{"a": 80})
	s.store = &memoryStore{}
	cfg := Config{
		DebounceDelay: 20 * time.Millisecond,
		MaxSessions:   10,
		Cluster:       cluster.DefaultOptions(),
		Limits:        cluster.Limits{MinVisibleZoom: 7, MaxVisibleMarkers: 500},
	}
	s.registry = NewRegistry(cfg, s.source, nil, nil, WithSnapshotStore(s.store))
	var err error
	s.session, err = s.registry.Create()
	s.Require().NoError(err)
}

func (s *SessionTestSuite) TearDownTest() {
	s.registry.Shutdown()
}

func (s *SessionTestSuite) TestApplyFilterSummary() {
	sum, err := s.session.ApplyFilter(context.Background(), geoentity.Filter{StatusIDs: []string{"1"}})
	s.Require().NoError(err)

	s.Equal(5, sum.Total)
	s.Equal(3, sum.Filtered)
	s.Equal(2, sum.Clusterable)
	s.Equal(uint64(1), sum.Version)
	s.False(sum.CacheHit)
	s.True(sum.IndexRebuilt)
	s.NotEmpty(sum.Key)
	s.Equal(sum.Key+"@1", sum.CacheKey)
}

func (s *SessionTestSuite) TestSameFilterHitsCacheAndKeepsIndex() {
	f := geoentity.Filter{Parroquias: []string{"X"}}
	_, err := s.session.ApplyFilter(context.Background(), f)
	s.Require().NoError(err)
	first := s.session.Entities()

	sum, err := s.session.ApplyFilter(context.Background(), f)
	s.Require().NoError(err)
	s.True(sum.CacheHit)
	s.False(sum.IndexRebuilt)
	s.Same(&first[0], &s.session.Entities()[0])
}

func (s *SessionTestSuite) TestNewVersionRebuilds() {
	f := geoentity.Filter{Parroquias: []string{"X"}}
	_, err := s.session.ApplyFilter(context.Background(), f)
	s.Require().NoError(err)

	s.source.Replace(append(testEntities(), testutil.NewEntity("f", testutil.At(43.26, -2.93), testutil.InRegion("X"))), nil)

	sum, err := s.session.ApplyFilter(context.Background(), f)
	s.Require().NoError(err)
	s.False(sum.CacheHit)
	s.True(sum.IndexRebuilt)
	s.Equal(uint64(2), sum.Version)
	s.Equal(4, sum.Filtered)
}

func (s *SessionTestSuite) TestInvalidFilterKeepsPreviousState() {
	_, err := s.session.ApplyFilter(context.Background(), geoentity.Filter{})
	s.Require().NoError(err)

	_, err = s.session.ApplyFilter(context.Background(), geoentity.Filter{Expression: "status =="})
	s.True(errors.IsCode(err, errors.ErrCodeInvalidExpression))
	s.Len(s.session.Entities(), 5)
}

func (s *SessionTestSuite) TestVisibleBeforeFilter() {
	_, err := s.session.Visible(iberia, 8)
	s.True(errors.IsCode(err, errors.ErrCodeIndexNotReady))

	res, err := s.session.Visible(iberia, 3)
	s.Require().NoError(err)
	s.True(res.BelowMinZoom)
}

func (s *SessionTestSuite) TestVisibleAfterFilter() {
	_, err := s.session.ApplyFilter(context.Background(), geoentity.Filter{})
	s.Require().NoError(err)

	res, err := s.session.Visible(iberia, 8)
	s.Require().NoError(err)
	total := 0
	for _, it := range res.Items {
		total += it.Count
	}
	s.Equal(4, total)
}

func (s *SessionTestSuite) TestUpdateViewportDebouncesToSubscribers() {
	_, err := s.session.ApplyFilter(context.Background(), geoentity.Filter{})
	s.Require().NoError(err)

	updates, cancel := s.session.Subscribe()
	defer cancel()

	for z := 7.0; z <= 12; z++ {
		s.Require().NoError(s.session.UpdateViewport(iberia, z))
	}

	select {
	case u := <-updates:
		s.Empty(u.Error)
		s.Require().NotNil(u.Visible)
		s.Equal(12.0, u.Visible.Zoom)
		s.Equal(iberia, u.Bounds)
	case <-time.After(time.Second):
		s.Fail("no update delivered")
	}

	select {
	case u := <-updates:
		s.Failf("superseded viewport fired", "zoom %v", u.Visible.Zoom)
	case <-time.After(80 * time.Millisecond):
	}
}

func (s *SessionTestSuite) TestApplyFilterRepublishesForKnownViewport() {
	_, err := s.session.ApplyFilter(context.Background(), geoentity.Filter{})
	s.Require().NoError(err)
	updates, cancel := s.session.Subscribe()
	defer cancel()

	s.Require().NoError(s.session.UpdateViewport(iberia, 9))
	<-updates

	_, err = s.session.ApplyFilter(context.Background(), geoentity.Filter{StatusIDs: []string{"3"}})
	s.Require().NoError(err)

	select {
	case u := <-updates:
		s.Require().NotNil(u.Visible)
		s.Require().Len(u.Visible.Items, 1)
		s.Equal("e", u.Visible.Items[0].EntityID)
	case <-time.After(time.Second):
		s.Fail("no update after filter change")
	}
}

func (s *SessionTestSuite) TestUpdateViewportRejectsBadInput() {
	err := s.session.UpdateViewport(cluster.Bounds{South: 10, North: 0}, 8)
	s.True(errors.IsCode(err, errors.ErrCodeInvalidBounds))

	err = s.session.UpdateViewport(iberia, -2)
	s.True(errors.IsCode(err, errors.ErrCodeInvalidZoom))
}

func (s *SessionTestSuite) TestDrillDown() {
	_, err := s.session.ApplyFilter(context.Background(), geoentity.Filter{})
	s.Require().NoError(err)

	res, err := s.session.Visible(iberia, 8)
	s.Require().NoError(err)

	var clusterID int
	for _, it := range res.Items {
		if it.Cluster {
			clusterID = it.ClusterID
		}
	}
	s.Require().NotZero(clusterID, "a and b should cluster at zoom 8")

	leaves, err := s.session.Leaves(clusterID, 10, 0)
	s.Require().NoError(err)
	s.Len(leaves, 2)

	children, err := s.session.Children(clusterID)
	s.Require().NoError(err)
	s.NotEmpty(children)

	ez, err := s.session.ExpansionZoom(clusterID)
	s.Require().NoError(err)
	s.Greater(ez, 8)
}

func (s *SessionTestSuite) TestDrillDownBeforeFilter() {
	_, err := s.session.Leaves(1, 10, 0)
	s.True(errors.IsCode(err, errors.ErrCodeIndexNotReady))
	_, err = s.session.Children(1)
	s.True(errors.IsCode(err, errors.ErrCodeIndexNotReady))
	_, err = s.session.ExpansionZoom(1)
	s.True(errors.IsCode(err, errors.ErrCodeIndexNotReady))
}

func (s *SessionTestSuite) TestSnapshotExport() {
	_, err := s.session.ApplyFilter(context.Background(), geoentity.Filter{StatusIDs: []string{"1"}})
	s.Require().NoError(err)

	exp, err := s.session.Snapshot(context.Background())
	s.Require().NoError(err)
	s.Equal(2, exp.Features)
	s.Equal(uint64(1), exp.Version)
	s.Contains(exp.Key, s.session.ID()+"/")
	s.Equal("https://objects.test/"+exp.Key, exp.URL)

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	s.Require().NoError(json.Unmarshal(s.store.puts[exp.Key], &fc))
	s.Equal("FeatureCollection", fc.Type)
	s.Len(fc.Features, 2)
}

func (s *SessionTestSuite) TestSnapshotErrors() {
	_, err := s.session.Snapshot(context.Background())
	s.True(errors.IsCode(err, errors.ErrCodeIndexNotReady))

	_, err = s.session.ApplyFilter(context.Background(), geoentity.Filter{})
	s.Require().NoError(err)
	s.store.fails = true
	_, err = s.session.Snapshot(context.Background())
	s.True(errors.IsCode(err, errors.ErrCodeStorageError))
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func TestSession_SnapshotWithoutStore(t *testing.T) {
	r := NewRegistry(Config{DebounceDelay: time.Millisecond}, geoentity.NewStaticSource(testEntities(), nil), nil, nil)
	defer r.Shutdown()
	sess, err := r.Create()
	require.NoError(t, err)

	_, err = sess.Snapshot(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func TestSession_SessionsDoNotShareState(t *testing.T) {
	r := NewRegistry(Config{DebounceDelay: time.Millisecond, Cluster: cluster.DefaultOptions()},
		geoentity.NewStaticSource(testEntities(), nil), nil, nil)
	defer r.Shutdown()

	s1, err := r.Create()
	require.NoError(t, err)
	s2, err := r.Create()
	require.NoError(t, err)

	_, err = s1.ApplyFilter(context.Background(), geoentity.Filter{StatusIDs: []string{"1"}})
	require.NoError(t, err)
	sum, err := s2.ApplyFilter(context.Background(), geoentity.Filter{StatusIDs: []string{"1"}})
	require.NoError(t, err)

	assert.False(t, sum.CacheHit, "caches are per session")
	assert.Len(t, s1.Entities(), 3)
	assert.Len(t, s2.Entities(), 3)
}

// gatedSource holds its first Snapshot call until release is closed.
type gatedSource struct {
	inner   *geoentity.StaticSource
	calls   sync.Mutex
	n       int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) Snapshot(ctx context.Context) (*geoentity.Snapshot, error) {
	g.calls.Lock()
	g.n++
	first := g.n == 1
	g.calls.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	return g.inner.Snapshot(ctx)
}

func TestSession_LaterApplyFilterWins(t *testing.T) {
	src := &gatedSource{
		inner:   geoentity.NewStaticSource(testEntities(), nil),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := NewRegistry(Config{DebounceDelay: time.Millisecond, Cluster: cluster.DefaultOptions()}, src, nil, nil)
	defer r.Shutdown()
	sess, err := r.Create()
	require.NoError(t, err)

	older := geoentity.Filter{StatusIDs: []string{"1"}}
	newer := geoentity.Filter{StatusIDs: []string{"2"}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := sess.ApplyFilter(context.Background(), older)
		assert.NoError(t, err)
	}()
	<-src.entered
	go func() {
		defer wg.Done()
		_, err := sess.ApplyFilter(context.Background(), newer)
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, newer, sess.Filter())
	require.Len(t, sess.Entities(), 1)
	assert.Equal(t, "c", sess.Entities()[0].ID)
}

func TestSession_SubscribeAfterClose(t *testing.T) {
	r := NewRegistry(Config{DebounceDelay: time.Millisecond}, geoentity.NewStaticSource(nil, nil), nil, nil)
	defer r.Shutdown()
	sess, err := r.Create()
	require.NoError(t, err)

	updates, cancel := sess.Subscribe()
	require.NoError(t, r.Close(sess.ID()))
	_, open := <-updates
	assert.False(t, open)
	cancel()

	late, _ := sess.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

//Personal.AI order the ending
