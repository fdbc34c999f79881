package cluster

import (
	"math"
	"sort"
	"time"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// maxQueryZoom bounds the zoom a client may ask for.
const maxQueryZoom = 24

// Limits gates what a visible query may return.
type Limits struct {
	// MinVisibleZoom: below it nothing is rendered.
	MinVisibleZoom float64
	// MaxVisibleMarkers caps the item count; <= 0 disables the cap.
	MaxVisibleMarkers int
}

// LimitsFromConfig extracts the query limits from the map section.
func LimitsFromConfig(cfg config.MapConfig) Limits {
	return Limits{
		MinVisibleZoom:    float64(cfg.MinVisibleZoom),
		MaxVisibleMarkers: cfg.MaxVisibleMarkers,
	}
}

// Visible is the answer to one viewport query.
type Visible struct {
	Items []Item  `json:"items"`
	Zoom  float64 `json:"zoom"`
	// Total is the item count before truncation.
	Total int `json:"total"`
	// Truncated is set when the marker cap dropped items.
	Truncated bool `json:"truncated"`
	// BelowMinZoom is set when the zoom gate suppressed the query.
	BelowMinZoom bool `json:"below_min_zoom"`
}

// Querier answers viewport queries under a fixed set of limits.
type Querier struct {
	limits  Limits
	metrics *prom.AppMetrics
	logger  logging.Logger
}

// NewQuerier builds a Querier.  metrics may be nil.
func NewQuerier(limits Limits, metrics *prom.AppMetrics, logger logging.Logger) *Querier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Querier{limits: limits, metrics: metrics, logger: logger.Named("cluster")}
}

// Limits returns the configured limits.
func (q *Querier) Limits() Limits { return q.limits }

// Visible returns the clusters and points inside b at zoom.  Below
// MinVisibleZoom the result is empty whatever the index holds.  Results over
// MaxVisibleMarkers keep the largest clusters first, ties broken by lower ID.
func (q *Querier) Visible(idx *Index, b Bounds, zoom float64) (*Visible, error) {
	start := time.Now()

	if math.IsNaN(zoom) || zoom < 0 || zoom > maxQueryZoom {
		q.metrics.RecordVisibleQuery("error", time.Since(start), 0)
		return nil, errors.Newf(errors.ErrCodeInvalidZoom, "zoom must be within [0, %d]", maxQueryZoom)
	}
	if zoom < q.limits.MinVisibleZoom {
		q.metrics.RecordVisibleQuery("below_min_zoom", time.Since(start), 0)
		return &Visible{Items: []Item{}, Zoom: zoom, BelowMinZoom: true}, nil
	}

	if err := b.Validate(); err != nil {
		q.metrics.RecordVisibleQuery("error", time.Since(start), 0)
		return nil, err
	}

	if idx == nil {
		q.metrics.RecordVisibleQuery("error", time.Since(start), 0)
		return nil, errors.New(errors.ErrCodeIndexNotReady, "no filter has been applied yet")
	}

	items := idx.Clusters(b, zoom)
	res := &Visible{Items: items, Zoom: zoom, Total: len(items)}

	dropped := 0
	if limit := q.limits.MaxVisibleMarkers; limit > 0 && len(items) > limit {
		res.Items = truncate(items, limit)
		res.Truncated = true
		dropped = len(items) - limit
		q.logger.Warn("visible markers truncated",
			logging.Int("total", len(items)),
			logging.Int("kept", limit),
			logging.Float64("zoom", zoom),
			logging.String("bbox", b.String()),
		)
	}

	outcome := "ok"
	if res.Truncated {
		outcome = "truncated"
	}
	q.metrics.RecordVisibleQuery(outcome, time.Since(start), dropped)
	return res, nil
}

// truncate keeps the first limit items by priority.  items is not modified.
func truncate(items []Item, limit int) []Item {
	ranked := make([]Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool { return rankBefore(ranked[i], ranked[j]) })
	return ranked[:limit]
}

// rankBefore orders by count descending, then clusters by cluster ID and
// points by entity ID.  Clusters always hold at least two points, so the two
// kinds never tie on count.
func rankBefore(a, b Item) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if a.Cluster != b.Cluster {
		return a.Cluster
	}
	if a.Cluster {
		return a.ClusterID < b.ClusterID
	}
	return a.EntityID < b.EntityID
}

//Personal.AI order the ending
