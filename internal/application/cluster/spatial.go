package cluster

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

// slotPoint is one node of a level, placed in the level's quadtree by its
// projected coordinate.  slot is the node's position in the level slice.
type slotPoint struct {
	slot int
	pt   orb.Point
}

func (s slotPoint) Point() orb.Point { return s.pt }

// levelTree indexes the nodes of one zoom level.
type levelTree struct {
	qt *quadtree.Quadtree
}

// newLevelTree indexes n points; at returns the projected coordinate of
// point i.  Slots are inserted in order so query results are deterministic.
func newLevelTree(n int, at func(i int) (x, y float64)) *levelTree {
	if n == 0 {
		return &levelTree{}
	}
	points := make([]slotPoint, n)
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	for i := range points {
		x, y := at(i)
		points[i] = slotPoint{slot: i, pt: orb.Point{x, y}}
		bound = bound.Extend(points[i].pt)
	}
	qt := quadtree.New(bound)
	for i := range points {
		// Add only fails for points outside bound, which was extended to
		// cover every point.
		_ = qt.Add(points[i])
	}
	return &levelTree{qt: qt}
}

// rangeQuery returns the slots of points inside the axis-aligned box.
func (t *levelTree) rangeQuery(minX, minY, maxX, maxY float64) []int {
	if t.qt == nil {
		return nil
	}
	found := t.qt.InBound(nil, orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}})
	return slots(found)
}

// within returns the slots of points at most r away from (qx, qy).
func (t *levelTree) within(qx, qy, r float64) []int {
	if t.qt == nil {
		return nil
	}
	r2 := r * r
	box := orb.Bound{Min: orb.Point{qx - r, qy - r}, Max: orb.Point{qx + r, qy + r}}
	found := t.qt.InBoundMatching(nil, box, func(p orb.Pointer) bool {
		pt := p.Point()
		return sqDist(pt[0], pt[1], qx, qy) <= r2
	})
	return slots(found)
}

func slots(found []orb.Pointer) []int {
	if len(found) == 0 {
		return nil
	}
	out := make([]int, len(found))
	for i, p := range found {
		out[i] = p.(slotPoint).slot
	}
	return out
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx, dy := ax-bx, ay-by
	return dx*dx + dy*dy
}

// ─────────────────────────────────────────────────────────────────────────────
// Web-mercator projection onto the unit square
// ─────────────────────────────────────────────────────────────────────────────

func lngX(lng float64) float64 {
	return lng/360 + 0.5
}

func latY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	switch {
	case y < 0:
		return 0
	case y > 1:
		return 1
	}
	return y
}

func xLng(x float64) float64 {
	return (x - 0.5) * 360
}

func yLat(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}

//Personal.AI order the ending
