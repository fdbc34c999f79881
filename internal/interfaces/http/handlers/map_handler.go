package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BizAtlas/internal/application/cluster"
	"github.com/turtacn/BizAtlas/internal/application/viewport"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/response"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

const (
	defaultHeartbeat = 15 * time.Second
	geoJSONType      = "application/geo+json"
)

// MapHandler exposes map sessions: filtering, viewport queries, the SSE
// stream of debounced viewport results, cluster drill-down and snapshot
// export.
type MapHandler struct {
	registry  *viewport.Registry
	heartbeat time.Duration
	logger    logging.Logger
}

// MapHandlerOption customises a MapHandler.
type MapHandlerOption func(*MapHandler)

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) MapHandlerOption {
	return func(h *MapHandler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewMapHandler creates a MapHandler over registry.
func NewMapHandler(registry *viewport.Registry, logger logging.Logger, opts ...MapHandlerOption) *MapHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &MapHandler{registry: registry, heartbeat: defaultHeartbeat, logger: logger.Named("map")}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterRoutes mounts the session routes under r.
func (h *MapHandler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/map/sessions")
	g.POST("", h.CreateSession)
	g.DELETE("/:id", h.CloseSession)
	g.POST("/:id/filter", h.ApplyFilter)
	g.GET("/:id/visible", h.Visible)
	g.POST("/:id/viewport", h.UpdateViewport)
	g.GET("/:id/stream", h.Stream)
	g.GET("/:id/clusters/:cid/children", h.Children)
	g.GET("/:id/clusters/:cid/leaves", h.Leaves)
	g.GET("/:id/clusters/:cid/expansion-zoom", h.ExpansionZoom)
	g.POST("/:id/snapshot", h.Snapshot)
}

// ─────────────────────────────────────────────────────────────────────────────
// Request / response types
// ─────────────────────────────────────────────────────────────────────────────

// CreateSessionRequest optionally applies a first filter.
type CreateSessionRequest struct {
	Filter *geoentity.Filter `json:"filter"`
}

// SessionResponse describes an open session.
type SessionResponse struct {
	SessionID string                  `json:"session_id"`
	CreatedAt time.Time               `json:"created_at"`
	Filter    *viewport.FilterSummary `json:"filter,omitempty"`
}

// ViewportRequest is a bounding box plus zoom, from the query string or a
// JSON body.  Pointers let zero coordinates pass the required check.
type ViewportRequest struct {
	West  *float64 `form:"west" json:"west" binding:"required"`
	South *float64 `form:"south" json:"south" binding:"required"`
	East  *float64 `form:"east" json:"east" binding:"required"`
	North *float64 `form:"north" json:"north" binding:"required"`
	Zoom  *float64 `form:"zoom" json:"zoom" binding:"required"`
}

func (v ViewportRequest) bounds() cluster.Bounds {
	return cluster.Bounds{West: *v.West, South: *v.South, East: *v.East, North: *v.North}
}

// ExpansionZoomResponse is the body of the expansion-zoom route.
type ExpansionZoomResponse struct {
	ClusterID int `json:"cluster_id"`
	Zoom      int `json:"zoom"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Session lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// CreateSession handles POST /map/sessions.
func (h *MapHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Fail(c, bindError(err))
		return
	}

	s, err := h.registry.Create()
	if err != nil {
		response.Fail(c, err)
		return
	}
	resp := SessionResponse{SessionID: s.ID(), CreatedAt: s.CreatedAt()}
	if req.Filter != nil {
		summary, err := s.ApplyFilter(c.Request.Context(), *req.Filter)
		if err != nil {
			_ = h.registry.Close(s.ID())
			response.Fail(c, err)
			return
		}
		resp.Filter = summary
	}
	response.OK(c, http.StatusCreated, resp)
}

// CloseSession handles DELETE /map/sessions/:id.
func (h *MapHandler) CloseSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Close(id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, gin.H{"session_id": id, "closed": true})
}

func (h *MapHandler) session(c *gin.Context) (*viewport.Session, bool) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return nil, false
	}
	return s, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Filtering and viewport queries
// ─────────────────────────────────────────────────────────────────────────────

// ApplyFilter handles POST /map/sessions/:id/filter.  An empty body clears
// the filter.
func (h *MapHandler) ApplyFilter(c *gin.Context) {
	s, found := h.session(c)
	if !found {
		return
	}
	var f geoentity.Filter
	if err := c.ShouldBindJSON(&f); err != nil && !errors.Is(err, io.EOF) {
		response.Fail(c, bindError(err))
		return
	}
	summary, err := s.ApplyFilter(c.Request.Context(), f)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, summary)
}

// Visible handles GET /map/sessions/:id/visible.  format=geojson returns a
// bare FeatureCollection for map libraries.
func (h *MapHandler) Visible(c *gin.Context) {
	s, found := h.session(c)
	if !found {
		return
	}
	var q ViewportRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, bindError(err))
		return
	}
	v, err := s.Visible(q.bounds(), *q.Zoom)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if wantsGeoJSON(c) {
		writeGeoJSON(c, v.FeatureCollection())
		return
	}
	response.OK(c, http.StatusOK, v)
}

// UpdateViewport handles POST /map/sessions/:id/viewport.  The query runs
// after the debounce delay and its result arrives on the stream.
func (h *MapHandler) UpdateViewport(c *gin.Context) {
	s, found := h.session(c)
	if !found {
		return
	}
	var req ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}
	if err := s.UpdateViewport(req.bounds(), *req.Zoom); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusAccepted, gin.H{"scheduled": true})
}

// Stream handles GET /map/sessions/:id/stream as server-sent events.  Each
// debounced viewport result is sent as a "viewport" event; "ping" events
// keep proxies from closing an idle stream.
func (h *MapHandler) Stream(c *gin.Context) {
	s, found := h.session(c)
	if !found {
		return
	}
	updates, cancel := s.Subscribe()
	defer cancel()

	// Streams outlive the server write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("stream write deadline not cleared", logging.Err(err))
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	h.logger.Debug("stream opened", logging.String("session_id", s.ID()))
	defer h.logger.Debug("stream closed", logging.String("session_id", s.ID()))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case u, open := <-updates:
			if !open {
				c.SSEvent("closed", gin.H{"session_id": s.ID()})
				c.Writer.Flush()
				return
			}
			c.SSEvent("viewport", u)
			c.Writer.Flush()
		case <-ticker.C:
			s.KeepAlive()
			c.SSEvent("ping", response.Now().Unix())
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Cluster drill-down
// ─────────────────────────────────────────────────────────────────────────────

// Children handles GET /map/sessions/:id/clusters/:cid/children.
func (h *MapHandler) Children(c *gin.Context) {
	s, found := h.session(c)
	if !found {
		return
	}
	cid, err := clusterIDParam(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	items, err := s.Children(cid)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if wantsGeoJSON(c) {
		writeGeoJSON(c, (&cluster.Visible{Items: items}).FeatureCollection())
		return
	}
	response.OK(c, http.StatusOK, items)
}

// Leaves handles GET /map/sessions/:id/clusters/:cid/leaves?limit&offset.
func (h *MapHandler) Leaves(c *gin.Context) {
	s, found := h.session(c)
	if !found {
		return
	}
	cid, err := clusterIDParam(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	limit, offset, err := parsePagination(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	leaves, err := s.Leaves(cid, limit, offset)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if wantsGeoJSON(c) {
		writeGeoJSON(c, cluster.EntityFeatures(leaves, nil))
		return
	}
	response.OK(c, http.StatusOK, leaves)
}

// ExpansionZoom handles GET /map/sessions/:id/clusters/:cid/expansion-zoom.
func (h *MapHandler) ExpansionZoom(c *gin.Context) {
	s, found := h.session(c)
	if !found {
		return
	}
	cid, err := clusterIDParam(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	z, err := s.ExpansionZoom(cid)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, ExpansionZoomResponse{ClusterID: cid, Zoom: z})
}

// Snapshot handles POST /map/sessions/:id/snapshot.
func (h *MapHandler) Snapshot(c *gin.Context) {
	s, found := h.session(c)
	if !found {
		return
	}
	export, err := s.Snapshot(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusCreated, export)
}

func writeGeoJSON(c *gin.Context, v any) {
	c.Header("Content-Type", geoJSONType)
	c.JSON(http.StatusOK, v)
}

//Personal.AI order the ending
