package testutil

import (
	"fmt"
	"math/rand"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
)

// EntityOption customises a fixture entity.
type EntityOption func(*geoentity.Entity)

// At sets both coordinates.
func At(lat, lng float64) EntityOption {
	return func(e *geoentity.Entity) {
		e.Lat, e.Lng = geoentity.Float(lat), geoentity.Float(lng)
	}
}

// WithStatus sets StatusID.
func WithStatus(id string) EntityOption { return func(e *geoentity.Entity) { e.StatusID = id } }

// WithOwner sets OwnerID.
func WithOwner(id string) EntityOption { return func(e *geoentity.Entity) { e.OwnerID = id } }

// InRegion sets Parroquia.
func InRegion(code string) EntityOption { return func(e *geoentity.Entity) { e.Parroquia = code } }

// InSector sets Sector.
func InSector(code string) EntityOption { return func(e *geoentity.Entity) { e.Sector = code } }

// Named sets Name.
func Named(name string) EntityOption { return func(e *geoentity.Entity) { e.Name = name } }

// WithAddress sets Address.
func WithAddress(addr string) EntityOption { return func(e *geoentity.Entity) { e.Address = addr } }

// WithProducts sets ProductIDs.
func WithProducts(ids ...string) EntityOption {
	return func(e *geoentity.Entity) { e.ProductIDs = ids }
}

// WithTurnover sets Turnover.
func WithTurnover(v float64) EntityOption {
	return func(e *geoentity.Entity) { e.Turnover = geoentity.Float(v) }
}

// WithMargin sets Margin.
func WithMargin(v float64) EntityOption {
	return func(e *geoentity.Entity) { e.Margin = geoentity.Float(v) }
}

// NewEntity builds a fixture entity with the given ID.
func NewEntity(id string, opts ...EntityOption) geoentity.Entity {
	e := geoentity.Entity{ID: id, Name: "Firm " + id}
	for _, o := range opts {
		o(&e)
	}
	return e
}

var (
	fixtureStatuses = []string{"1", "2", "3"}
	fixtureOwners   = []string{"u1", "u2", "u3", "u4"}
	fixtureRegions  = []string{"X", "Y", "Z"}
	fixtureSectors  = []string{"4711", "5610", "6201"}
	fixtureProducts = []string{"p1", "p2", "p3", "p4", "p5"}
)

// RandomEntities returns n entities with varied attributes around Madrid.
// Roughly one in ten has no coordinates and one in five lacks turnover.
func RandomEntities(rng *rand.Rand, n int) []geoentity.Entity {
	out := make([]geoentity.Entity, n)
	for i := range out {
		e := geoentity.Entity{
			ID:        fmt.Sprintf("e%04d", i),
			Name:      fmt.Sprintf("Empresa %d", i),
			Address:   fmt.Sprintf("Calle %d", rng.Intn(200)),
			StatusID:  fixtureStatuses[rng.Intn(len(fixtureStatuses))],
			OwnerID:   fixtureOwners[rng.Intn(len(fixtureOwners))],
			Parroquia: fixtureRegions[rng.Intn(len(fixtureRegions))],
			Sector:    fixtureSectors[rng.Intn(len(fixtureSectors))],
		}
		for _, p := range fixtureProducts {
			if rng.Intn(3) == 0 {
				e.ProductIDs = append(e.ProductIDs, p)
			}
		}
		if rng.Intn(10) != 0 {
			e.Lat = geoentity.Float(40.4 + rng.Float64()*0.2)
			e.Lng = geoentity.Float(-3.8 + rng.Float64()*0.2)
		}
		if rng.Intn(5) != 0 {
			e.Turnover = geoentity.Float(float64(rng.Intn(2_000_000)))
		}
		if rng.Intn(4) != 0 {
			e.Margin = geoentity.Float(rng.Float64()*40 - 10)
		}
		out[i] = e
	}
	return out
}

// RandomScores assigns a relationship percentage to about two thirds of
// entities.
func RandomScores(rng *rand.Rand, entities []geoentity.Entity) geoentity.Scores {
	s := make(geoentity.Scores, len(entities))
	for _, e := range entities {
		if rng.Intn(3) != 0 {
			s[e.ID] = float64(rng.Intn(101))
		}
	}
	return s
}

//Personal.AI order the ending
