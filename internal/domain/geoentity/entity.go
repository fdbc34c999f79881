// Package geoentity models the company records rendered on the map and the
// filter specification that narrows them.  Entities are read-only here; they
// are created and edited by data-entry flows elsewhere in the suite.
package geoentity

import (
	"math"
	"time"
)

// Entity is one company as the map layer sees it.
type Entity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`

	// Sector is the activity category code (CNAE-style).
	Sector string `json:"sector,omitempty"`
	// Parroquia is the region (parish) code.
	Parroquia string `json:"parroquia,omitempty"`

	StatusID   string   `json:"status_id,omitempty"`
	OwnerID    string   `json:"owner_id,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	// Turnover (facturación) and Margin are optional financial metrics.
	Turnover *float64 `json:"turnover,omitempty"`
	Margin   *float64 `json:"margin,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Clusterable reports whether both coordinates are present and finite.
// Only clusterable entities enter the spatial index; the rest still take
// part in non-spatial filtering.
func (e *Entity) Clusterable() bool {
	return e.Lat != nil && e.Lng != nil && isFinite(*e.Lat) && isFinite(*e.Lng)
}

// Coordinates returns (lng, lat) and whether the entity is clusterable.
func (e *Entity) Coordinates() (lng, lat float64, ok bool) {
	if !e.Clusterable() {
		return 0, 0, false
	}
	return *e.Lng, *e.Lat, true
}

// HasProduct reports whether the entity offers any product in set.
func (e *Entity) HasProduct(set map[string]struct{}) bool {
	for _, p := range e.ProductIDs {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Float returns a pointer to f.  Handy for literals in fixtures and decoders.
func Float(f float64) *float64 { return &f }

// Scores is the auxiliary relationship-percentage (vinculación) lookup keyed
// by entity ID.  It is produced by an external scoring process.
type Scores map[string]float64

// Vinculacion returns the relationship percentage for id.
func (s Scores) Vinculacion(id string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s[id]
	return v, ok
}

// Snapshot is a point-in-time view of the company table plus its scores.
// Version increases whenever the underlying table changes.
type Snapshot struct {
	Entities []Entity
	Scores   Scores
	Version  uint64
	LoadedAt time.Time
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entities)
}

//Personal.AI order the ending
