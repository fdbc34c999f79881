package cluster

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/turtacn/BizAtlas/pkg/errors"
)

// Bounds is a viewport in degrees.  West may exceed East when the viewport
// crosses the antimeridian.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// World covers the whole map.
var World = Bounds{West: -180, South: -90, East: 180, North: 90}

// BoundsFromOrb converts an orb.Bound (Min = south-west corner).
func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{West: b.Min.X(), South: b.Min.Y(), East: b.Max.X(), North: b.Max.Y()}
}

// Bound returns b as an orb.Bound.  For antimeridian-crossing viewports the
// result has Min.X > Max.X and orb's own predicates do not apply.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

// CrossesAntimeridian reports whether the viewport wraps past 180°.
func (b Bounds) CrossesAntimeridian() bool {
	return b.West > b.East
}

// Contains reports whether (lng, lat) lies inside the viewport.
func (b Bounds) Contains(lng, lat float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.CrossesAntimeridian() {
		return lng >= b.West || lng <= b.East
	}
	return lng >= b.West && lng <= b.East
}

// Validate rejects non-finite values, latitudes out of range and inverted
// latitude order.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New(errors.ErrCodeInvalidBounds, "bounds must be finite").WithDetail(b.String())
		}
	}
	if b.South < -90 || b.North > 90 {
		return errors.New(errors.ErrCodeInvalidBounds, "latitude out of range").WithDetail(b.String())
	}
	if b.South > b.North {
		return errors.New(errors.ErrCodeInvalidBounds, "south exceeds north").WithDetail(b.String())
	}
	return nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North)
}

// ParseBBox parses "west,south,east,north".
func ParseBBox(s string) (Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bounds{}, errors.New(errors.ErrCodeInvalidBounds, "bbox must have four comma-separated numbers").WithDetail(s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, errors.Wrap(err, errors.ErrCodeInvalidBounds, "bbox value is not a number").WithDetail(s)
		}
		v[i] = f
	}
	b := Bounds{West: v[0], South: v[1], East: v[2], North: v[3]}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}

//Personal.AI order the ending
