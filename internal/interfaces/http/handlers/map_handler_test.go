package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/BizAtlas/internal/application/cluster"
	"github.com/turtacn/BizAtlas/internal/application/viewport"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/response"
	"github.com/turtacn/BizAtlas/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryStore struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryStore) PutSnapshot(_ context.Context, name string, _ []byte) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "snapshots/" + name
	m.keys = append(m.keys, key)
	return key, "https://objects.test/" + key, nil
}

// envelope decodes Data lazily.
type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorBody `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

const visibleQuery = "west=-10&south=35&east=5&north=44"

type MapHandlerTestSuite struct {
	suite.Suite
	store    *memoryStore
	registry *viewport.Registry
	router   *gin.Engine
}

func (s *MapHandlerTestSuite) SetupTest() {
	entities := []geoentity.Entity{
		testutil.NewEntity("a", testutil.At(40.4168, -3.7038), testutil.WithStatus("1")),
		testutil.NewEntity("b", testutil.At(40.4169, -3.7039), testutil.WithStatus("1")),
		testutil.NewEntity("c", testutil.At(41.3874, 2.1686), testutil.WithStatus("2")),
		testutil.NewEntity("d", testutil.WithStatus("1")),
	}
	s.store = &memoryStore{}
	cfg := viewport.Config{
		DebounceDelay: 10 * time.Millisecond,
		MaxSessions:   5,
		Cluster:       cluster.DefaultOptions(),
		Limits:        cluster.Limits{MinVisibleZoom: 7, MaxVisibleMarkers: 500},
	}
	s.registry = viewport.NewRegistry(cfg, geoentity.NewStaticSource(entities, nil), nil, nil,
		viewport.WithSnapshotStore(s.store))

	s.router = gin.New()
	NewMapHandler(s.registry, nil, WithHeartbeat(time.Hour)).RegisterRoutes(s.router.Group("/api/v1"))
}

func (s *MapHandlerTestSuite) TearDownTest() {
	s.registry.Shutdown()
}

func (s *MapHandlerTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *MapHandlerTestSuite) createSession(body string) string {
	w := s.do(http.MethodPost, "/api/v1/map/sessions", body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var resp SessionResponse
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &resp))
	s.Require().NotEmpty(resp.SessionID)
	return resp.SessionID
}

func (s *MapHandlerTestSuite) sessionPath(id, suffix string) string {
	return "/api/v1/map/sessions/" + id + suffix
}

func (s *MapHandlerTestSuite) firstCluster(id string) int {
	w := s.do(http.MethodGet, s.sessionPath(id, "/visible?"+visibleQuery+"&zoom=8"), "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var v cluster.Visible
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &v))
	for _, it := range v.Items {
		if it.Cluster {
			return it.ClusterID
		}
	}
	s.FailNow("no cluster at zoom 8")
	return 0
}

func (s *MapHandlerTestSuite) TestCreateWithoutBody() {
	id := s.createSession("")
	s.Equal(1, s.registry.Len())

	w := s.do(http.MethodGet, s.sessionPath(id, "/visible?"+visibleQuery+"&zoom=8"), "")
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("GEO_006", decodeEnvelope(s.T(), w).Error.Code)
}

func (s *MapHandlerTestSuite) TestCreateWithFilter() {
	w := s.do(http.MethodPost, "/api/v1/map/sessions", `{"filter":{"status_ids":["1"]}}`)
	s.Require().Equal(http.StatusCreated, w.Code)

	var resp SessionResponse
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &resp))
	s.Require().NotNil(resp.Filter)
	s.Equal(4, resp.Filter.Total)
	s.Equal(3, resp.Filter.Filtered)
	s.Equal(2, resp.Filter.Clusterable)
}

func (s *MapHandlerTestSuite) TestCreateWithBadFilterClosesSession() {
	w := s.do(http.MethodPost, "/api/v1/map/sessions", `{"filter":{"expression":"name +"}}`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("GEO_004", decodeEnvelope(s.T(), w).Error.Code)
	s.Equal(0, s.registry.Len())
}

func (s *MapHandlerTestSuite) TestMalformedJSON() {
	w := s.do(http.MethodPost, "/api/v1/map/sessions", `{"filter":`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("COMMON_002", decodeEnvelope(s.T(), w).Error.Code)
}

func (s *MapHandlerTestSuite) TestUnknownSession() {
	for _, path := range []string{"/visible?" + visibleQuery + "&zoom=8", "/clusters/1/leaves", "/stream"} {
		w := s.do(http.MethodGet, s.sessionPath("nope", path), "")
		s.Equal(http.StatusNotFound, w.Code, path)
		s.Equal("GEO_001", decodeEnvelope(s.T(), w).Error.Code, path)
	}
}

func (s *MapHandlerTestSuite) TestApplyFilterAndVisible() {
	id := s.createSession("")

	w := s.do(http.MethodPost, s.sessionPath(id, "/filter"), `{"status_ids":["1","2"]}`)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var sum viewport.FilterSummary
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &sum))
	s.Equal(4, sum.Filtered)
	s.Equal(3, sum.Clusterable)

	w = s.do(http.MethodGet, s.sessionPath(id, "/visible?"+visibleQuery+"&zoom=8"), "")
	s.Require().Equal(http.StatusOK, w.Code)
	var v cluster.Visible
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &v))
	s.Len(v.Items, 2)
	s.False(v.Truncated)
}

func (s *MapHandlerTestSuite) TestEmptyFilterBodyClears() {
	id := s.createSession(`{"filter":{"status_ids":["2"]}}`)
	w := s.do(http.MethodPost, s.sessionPath(id, "/filter"), "")
	s.Require().Equal(http.StatusOK, w.Code)
	var sum viewport.FilterSummary
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &sum))
	s.Equal(4, sum.Filtered)
}

func (s *MapHandlerTestSuite) TestVisibleBelowMinZoom() {
	id := s.createSession(`{"filter":{}}`)
	w := s.do(http.MethodGet, s.sessionPath(id, "/visible?"+visibleQuery+"&zoom=6"), "")
	s.Require().Equal(http.StatusOK, w.Code)
	var v cluster.Visible
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &v))
	s.True(v.BelowMinZoom)
	s.Empty(v.Items)
}

func (s *MapHandlerTestSuite) TestVisibleValidation() {
	id := s.createSession(`{"filter":{}}`)
	tests := []struct {
		query string
		code  string
	}{
		{"west=-10&south=35&east=5&zoom=8", "COMMON_002"},
		{visibleQuery + "&zoom=abc", "COMMON_002"},
		{visibleQuery + "&zoom=30", "GEO_003"},
		{"west=-10&south=50&east=5&north=44&zoom=8", "GEO_002"},
	}
	for _, tt := range tests {
		w := s.do(http.MethodGet, s.sessionPath(id, "/visible?"+tt.query), "")
		s.Equal(http.StatusBadRequest, w.Code, tt.query)
		s.Equal(tt.code, decodeEnvelope(s.T(), w).Error.Code, tt.query)
	}
}

func (s *MapHandlerTestSuite) TestVisibleGeoJSON() {
	id := s.createSession(`{"filter":{}}`)
	w := s.do(http.MethodGet, s.sessionPath(id, "/visible?"+visibleQuery+"&zoom=8&format=geojson"), "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(geoJSONType, w.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &fc))
	s.Equal("FeatureCollection", fc.Type)
	s.Len(fc.Features, 2)
	var clusters int
	for _, f := range fc.Features {
		if f.Properties["cluster"] == true {
			clusters++
			s.Equal("2", f.Properties["point_count_abbreviated"])
		}
	}
	s.Equal(1, clusters)
}

func (s *MapHandlerTestSuite) TestDrillDown() {
	id := s.createSession(`{"filter":{}}`)
	cid := s.firstCluster(id)

	w := s.do(http.MethodGet, s.sessionPath(id, fmt.Sprintf("/clusters/%d/leaves?limit=1", cid)), "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var leaves []geoentity.Entity
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &leaves))
	s.Len(leaves, 1)

	w = s.do(http.MethodGet, s.sessionPath(id, fmt.Sprintf("/clusters/%d/children", cid)), "")
	s.Require().Equal(http.StatusOK, w.Code)
	var children []cluster.Item
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &children))
	s.NotEmpty(children)

	w = s.do(http.MethodGet, s.sessionPath(id, fmt.Sprintf("/clusters/%d/expansion-zoom", cid)), "")
	s.Require().Equal(http.StatusOK, w.Code)
	var ez ExpansionZoomResponse
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &ez))
	s.Equal(cid, ez.ClusterID)
	s.Greater(ez.Zoom, 8)
}

func (s *MapHandlerTestSuite) TestDrillDownValidation() {
	id := s.createSession(`{"filter":{}}`)

	w := s.do(http.MethodGet, s.sessionPath(id, "/clusters/x/leaves"), "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("GEO_005", decodeEnvelope(s.T(), w).Error.Code)

	w = s.do(http.MethodGet, s.sessionPath(id, "/clusters/1/leaves?limit=0"), "")
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, s.sessionPath(id, "/clusters/1/leaves?offset=-1"), "")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *MapHandlerTestSuite) TestSnapshot() {
	id := s.createSession(`{"filter":{"status_ids":["1"]}}`)
	w := s.do(http.MethodPost, s.sessionPath(id, "/snapshot"), "")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var exp viewport.SnapshotExport
	s.Require().NoError(json.Unmarshal(decodeEnvelope(s.T(), w).Data, &exp))
	s.Equal(2, exp.Features)
	s.Equal("https://objects.test/"+exp.Key, exp.URL)
	s.Len(s.store.keys, 1)
}

func (s *MapHandlerTestSuite) TestCloseSession() {
	id := s.createSession("")
	w := s.do(http.MethodDelete, s.sessionPath(id, ""), "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(0, s.registry.Len())

	w = s.do(http.MethodDelete, s.sessionPath(id, ""), "")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *MapHandlerTestSuite) TestSessionLimit() {
	for i := 0; i < 5; i++ {
		s.createSession("")
	}
	w := s.do(http.MethodPost, "/api/v1/map/sessions", "")
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.Equal("GEO_008", decodeEnvelope(s.T(), w).Error.Code)
}

func (s *MapHandlerTestSuite) TestViewportValidation() {
	id := s.createSession("")
	w := s.do(http.MethodPost, s.sessionPath(id, "/viewport"), `{"west":-10,"south":35,"east":5,"north":44}`)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, s.sessionPath(id, "/viewport"), `{"west":-10,"south":35,"east":5,"north":44,"zoom":-1}`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("GEO_003", decodeEnvelope(s.T(), w).Error.Code)
}

func (s *MapHandlerTestSuite) TestStreamDeliversDebouncedViewport() {
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	id := s.createSession(`{"filter":{}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+s.sessionPath(id, "/stream"), nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(resp.Header.Get("Content-Type"), "text/event-stream")

	body := bytes.NewBufferString(`{"west":-10,"south":35,"east":5,"north":44,"zoom":8}`)
	post, err := http.Post(srv.URL+s.sessionPath(id, "/viewport"), "application/json", body)
	s.Require().NoError(err)
	post.Body.Close()
	s.Require().Equal(http.StatusAccepted, post.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimPrefix(line, "event:")
		}
		if strings.HasPrefix(line, "data:") && event == "viewport" {
			data = strings.TrimPrefix(line, "data:")
			break
		}
	}
	s.Require().NotEmpty(data, "no viewport event received")

	var u viewport.Update
	s.Require().NoError(json.Unmarshal([]byte(data), &u))
	s.Require().NotNil(u.Visible)
	s.Len(u.Visible.Items, 2)
	s.Equal(uint64(1), u.Seq)
}

func TestMapHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(MapHandlerTestSuite))
}

//Personal.AI order the ending
