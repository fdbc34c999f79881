// Package cluster groups map markers into hierarchical clusters, one level
// per zoom, and answers viewport queries against the result.
//
// The index follows the supercluster scheme: every clusterable entity is
// projected onto the unit web-mercator square, then from MaxZoom down to
// MinZoom each point greedily absorbs its unclaimed neighbours within
// Radius/Extent tile pixels, found through a per-level orb quadtree.  Cluster IDs encode the level and slot they came
// from so drill-down (children, leaves, expansion zoom) needs no lookup
// table.
package cluster

import (
	"math"
	"strconv"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// Options tunes clustering.  Zero fields take the package defaults.
type Options struct {
	MinZoom   int
	MaxZoom   int
	MinPoints int
	Radius    float64
	Extent    float64
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MinZoom:   0,
		MaxZoom:   config.DefaultClusterMaxZoom,
		MinPoints: config.DefaultClusterMinPoints,
		Radius:    config.DefaultClusterRadius,
		Extent:    config.DefaultClusterExtent,
	}
}

// OptionsFromConfig extracts clustering options from the map section.
func OptionsFromConfig(cfg config.MapConfig) Options {
	return Options{
		MinZoom:   cfg.MinZoom,
		MaxZoom:   cfg.MaxZoom,
		MinPoints: cfg.MinPoints,
		Radius:    cfg.Radius,
		Extent:    cfg.Extent,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MaxZoom <= 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.MinPoints < 2 {
		o.MinPoints = d.MinPoints
	}
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.Extent <= 0 {
		o.Extent = d.Extent
	}
	return o
}

// zoomBits is the width of the zoom field inside a cluster ID.
const zoomBits = 5

// node is a point or cluster at one zoom level.  Nodes of level z+1 are
// shared with the tree that indexes them, so marking one as claimed during
// the pass for level z is visible to later neighbour searches.
type node struct {
	x, y float64
	// zoom is the level at which this node was last visited; MaxInt means
	// not yet visited.
	zoom      int
	id        int // entity index for leaves, cluster ID otherwise
	parentID  int
	numPoints int
	cluster   bool
}

// Index is an immutable multi-level clustering of a set of entities.
type Index struct {
	opts     Options
	entities []geoentity.Entity
	levels   [][]*node    // levels[z] holds the nodes visible at zoom z
	trees    []*levelTree // trees[z] indexes levels[z]
	skipped  int
}

// BuildIndex clusters the clusterable entities.  Entities without finite
// coordinates are skipped and counted; entities is never modified.
func BuildIndex(entities []geoentity.Entity, opts Options) *Index {
	opts = opts.normalized()
	idx := &Index{
		opts:   opts,
		levels: make([][]*node, opts.MaxZoom+2),
		trees:  make([]*levelTree, opts.MaxZoom+2),
	}

	idx.entities = make([]geoentity.Entity, 0, len(entities))
	for i := range entities {
		if entities[i].Clusterable() {
			idx.entities = append(idx.entities, entities[i])
		} else {
			idx.skipped++
		}
	}

	leaves := make([]*node, len(idx.entities))
	for i := range idx.entities {
		lng, lat, _ := idx.entities[i].Coordinates()
		leaves[i] = &node{
			x:         lngX(lng),
			y:         latY(lat),
			zoom:      math.MaxInt,
			id:        i,
			parentID:  -1,
			numPoints: 1,
		}
	}

	top := opts.MaxZoom + 1
	idx.setLevel(top, leaves)
	for z := opts.MaxZoom; z >= opts.MinZoom; z-- {
		idx.setLevel(z, idx.clusterLevel(z))
	}
	return idx
}

func (idx *Index) setLevel(z int, nodes []*node) {
	idx.levels[z] = nodes
	idx.trees[z] = newLevelTree(len(nodes), func(i int) (float64, float64) {
		return nodes[i].x, nodes[i].y
	})
}

// clusterLevel derives level z from level z+1.
func (idx *Index) clusterLevel(z int) []*node {
	points := idx.levels[z+1]
	tree := idx.trees[z+1]
	r := idx.opts.Radius / (idx.opts.Extent * math.Pow(2, float64(z)))

	out := make([]*node, 0, len(points))
	for i, p := range points {
		if p.zoom <= z {
			continue
		}
		p.zoom = z

		neighbours := tree.within(p.x, p.y, r)
		origin := p.numPoints
		total := origin
		for _, nid := range neighbours {
			if b := points[nid]; b.zoom > z {
				total += b.numPoints
			}
		}

		if total > origin && total >= idx.opts.MinPoints {
			wx := p.x * float64(origin)
			wy := p.y * float64(origin)
			id := idx.encodeID(i, z+1)
			for _, nid := range neighbours {
				b := points[nid]
				if b.zoom <= z {
					continue
				}
				b.zoom = z
				wx += b.x * float64(b.numPoints)
				wy += b.y * float64(b.numPoints)
				b.parentID = id
			}
			p.parentID = id
			out = append(out, &node{
				x:         wx / float64(total),
				y:         wy / float64(total),
				zoom:      math.MaxInt,
				id:        id,
				parentID:  -1,
				numPoints: total,
				cluster:   true,
			})
			continue
		}

		out = append(out, p)
		if total > 1 {
			for _, nid := range neighbours {
				b := points[nid]
				if b.zoom <= z {
					continue
				}
				b.zoom = z
				out = append(out, b)
			}
		}
	}
	return out
}

// Cluster IDs sit above the leaf index range: (slot << zoomBits) + zoom + n.
func (idx *Index) encodeID(slot, zoom int) int {
	return (slot << zoomBits) + zoom + len(idx.entities)
}

func (idx *Index) decodeID(id int) (slot, zoom int, ok bool) {
	rel := id - len(idx.entities)
	if rel < 0 {
		return 0, 0, false
	}
	slot = rel >> zoomBits
	zoom = rel % (1 << zoomBits)
	if zoom < 1 || zoom >= len(idx.levels) || slot >= len(idx.levels[zoom]) {
		return 0, 0, false
	}
	return slot, zoom, true
}

// Len is the number of indexed (clusterable) entities.
func (idx *Index) Len() int { return len(idx.entities) }

// Skipped is the number of input entities left out for lacking coordinates.
func (idx *Index) Skipped() int { return idx.skipped }

// Options returns the effective options.
func (idx *Index) Options() Options { return idx.opts }

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// Item is either a cluster descriptor or a single entity.
type Item struct {
	Cluster   bool    `json:"cluster"`
	ClusterID int     `json:"cluster_id,omitempty"`
	Count     int     `json:"count"`
	EntityID  string  `json:"entity_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Lng       float64 `json:"lng"`
	Lat       float64 `json:"lat"`
}

func (idx *Index) item(n *node) Item {
	if n.cluster {
		return Item{
			Cluster:   true,
			ClusterID: n.id,
			Count:     n.numPoints,
			Lng:       xLng(n.x),
			Lat:       yLat(n.y),
		}
	}
	e := &idx.entities[n.id]
	lng, lat, _ := e.Coordinates()
	return Item{Count: 1, EntityID: e.ID, Name: e.Name, Lng: lng, Lat: lat}
}

func (idx *Index) limitZoom(zoom float64) int {
	z := int(math.Floor(zoom))
	if z > idx.opts.MaxZoom+1 {
		z = idx.opts.MaxZoom + 1
	}
	if z < idx.opts.MinZoom {
		z = idx.opts.MinZoom
	}
	return z
}

// Clusters returns the items intersecting b at zoom.  Boxes crossing the
// antimeridian (West > East) are split in two.
func (idx *Index) Clusters(b Bounds, zoom float64) []Item {
	minLng := math.Mod(math.Mod(b.West+180, 360)+360, 360) - 180
	minLat := math.Max(-90, math.Min(90, b.South))
	maxLng := 180.0
	if b.East != 180 {
		maxLng = math.Mod(math.Mod(b.East+180, 360)+360, 360) - 180
	}
	maxLat := math.Max(-90, math.Min(90, b.North))

	if b.East-b.West >= 360 {
		minLng, maxLng = -180, 180
	} else if minLng > maxLng {
		east := idx.Clusters(Bounds{West: minLng, South: minLat, East: 180, North: maxLat}, zoom)
		west := idx.Clusters(Bounds{West: -180, South: minLat, East: maxLng, North: maxLat}, zoom)
		return append(east, west...)
	}

	z := idx.limitZoom(zoom)
	nodes := idx.levels[z]
	ids := idx.trees[z].rangeQuery(lngX(minLng), latY(maxLat), lngX(maxLng), latY(minLat))
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.item(nodes[id]))
	}
	return out
}

// Children returns the items one level below clusterID.
func (idx *Index) Children(clusterID int) ([]Item, error) {
	nodes, err := idx.children(clusterID)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, idx.item(n))
	}
	return out, nil
}

func (idx *Index) children(clusterID int) ([]*node, error) {
	slot, zoom, ok := idx.decodeID(clusterID)
	if !ok {
		return nil, clusterNotFound(clusterID)
	}
	origin := idx.levels[zoom][slot]
	r := idx.opts.Radius / (idx.opts.Extent * math.Pow(2, float64(zoom-1)))
	level := idx.levels[zoom]

	var out []*node
	for _, id := range idx.trees[zoom].within(origin.x, origin.y, r) {
		if n := level[id]; n.parentID == clusterID {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, clusterNotFound(clusterID)
	}
	return out, nil
}

// Leaves returns up to limit entities under clusterID, skipping offset.
// limit <= 0 means all.
func (idx *Index) Leaves(clusterID, limit, offset int) ([]geoentity.Entity, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = math.MaxInt
	}
	var out []geoentity.Entity
	if _, err := idx.appendLeaves(&out, clusterID, limit, offset, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (idx *Index) appendLeaves(out *[]geoentity.Entity, clusterID, limit, offset, skipped int) (int, error) {
	children, err := idx.children(clusterID)
	if err != nil {
		return skipped, err
	}
	for _, c := range children {
		if c.cluster {
			if skipped+c.numPoints <= offset {
				skipped += c.numPoints
			} else {
				if skipped, err = idx.appendLeaves(out, c.id, limit, offset, skipped); err != nil {
					return skipped, err
				}
			}
		} else if skipped < offset {
			skipped++
		} else {
			*out = append(*out, idx.entities[c.id])
		}
		if len(*out) == limit {
			break
		}
	}
	return skipped, nil
}

// ExpansionZoom is the lowest zoom at which clusterID splits into more than
// one item.
func (idx *Index) ExpansionZoom(clusterID int) (int, error) {
	_, zoom, ok := idx.decodeID(clusterID)
	if !ok {
		return 0, clusterNotFound(clusterID)
	}
	expansion := zoom - 1
	for expansion <= idx.opts.MaxZoom {
		children, err := idx.children(clusterID)
		if err != nil {
			return 0, err
		}
		expansion++
		if len(children) != 1 {
			break
		}
		clusterID = children[0].id
		if !children[0].cluster {
			break
		}
	}
	return expansion, nil
}

func clusterNotFound(id int) error {
	return errors.New(errors.ErrCodeClusterNotFound, "cluster not found").
		WithDetail("cluster_id=" + strconv.Itoa(id))
}

//Personal.AI order the ending
