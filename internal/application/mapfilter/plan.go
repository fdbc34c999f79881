// Package mapfilter narrows a geo-entity snapshot by a Filter.  Stages run in
// a fixed order, cheap categorical checks first and free-text search last;
// the order only changes intermediate list sizes, never the result.
package mapfilter

import (
	"strings"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
)

// Stage names, in evaluation order.
const (
	StageStatus      = "status"
	StageOwner       = "owner"
	StageRegion      = "region"
	StageCategory    = "category"
	StageOffering    = "offering"
	StageVinculacion = "vinculacion"
	StageFacturacion = "facturacion"
	StageMargen      = "margen"
	StageExpression  = "expression"
	StageSearch      = "search"
)

type predicate func(e *geoentity.Entity, scores geoentity.Scores) bool

type stage struct {
	name string
	keep predicate
}

// Plan is a compiled Filter.  It is immutable and safe for concurrent use.
type Plan struct {
	filter geoentity.Filter
	stages []stage
}

// Compile validates f and builds its stage list.  Empty fields contribute no
// stage.
func Compile(f geoentity.Filter) (*Plan, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	c := f.Canonical()
	p := &Plan{filter: c}

	if s := memberStage(StageStatus, c.StatusIDs, func(e *geoentity.Entity) string { return e.StatusID }); s != nil {
		p.stages = append(p.stages, *s)
	}
	if s := memberStage(StageOwner, c.OwnerIDs, func(e *geoentity.Entity) string { return e.OwnerID }); s != nil {
		p.stages = append(p.stages, *s)
	}
	if s := memberStage(StageRegion, c.Parroquias, func(e *geoentity.Entity) string { return e.Parroquia }); s != nil {
		p.stages = append(p.stages, *s)
	}
	if s := memberStage(StageCategory, c.Sectors, func(e *geoentity.Entity) string { return e.Sector }); s != nil {
		p.stages = append(p.stages, *s)
	}
	if len(c.ProductIDs) > 0 {
		set := toSet(c.ProductIDs)
		p.stages = append(p.stages, stage{name: StageOffering, keep: func(e *geoentity.Entity, _ geoentity.Scores) bool {
			return e.HasProduct(set)
		}})
	}

	if r := c.VinculacionRange; !r.IsZero() {
		p.stages = append(p.stages, stage{name: StageVinculacion, keep: func(e *geoentity.Entity, scores geoentity.Scores) bool {
			v, ok := scores.Vinculacion(e.ID)
			if !ok {
				return r.AdmitsMissing()
			}
			return r.Contains(v)
		}})
	}
	if r := c.FacturacionRange; !r.IsZero() {
		p.stages = append(p.stages, stage{name: StageFacturacion, keep: func(e *geoentity.Entity, _ geoentity.Scores) bool {
			if e.Turnover == nil {
				return r.AdmitsMissing()
			}
			return r.Contains(*e.Turnover)
		}})
	}
	if r := c.MargenRange; !r.IsZero() {
		// A missing margin always passes, unlike turnover and vinculación.
		p.stages = append(p.stages, stage{name: StageMargen, keep: func(e *geoentity.Entity, _ geoentity.Scores) bool {
			if e.Margin == nil {
				return true
			}
			return r.Contains(*e.Margin)
		}})
	}

	if c.Expression != "" {
		keep, err := expressionPredicate(c.Expression)
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, stage{name: StageExpression, keep: keep})
	}

	if c.Search != "" {
		term := c.Search
		p.stages = append(p.stages, stage{name: StageSearch, keep: func(e *geoentity.Entity, _ geoentity.Scores) bool {
			return containsFold(e.Name, term) || containsFold(e.Address, term) ||
				containsFold(e.Sector, term) || containsFold(e.Parroquia, term)
		}})
	}

	return p, nil
}

// Filter returns the canonical filter the plan was compiled from.
func (p *Plan) Filter() geoentity.Filter { return p.filter }

// Key is the content hash of the compiled filter.
func (p *Plan) Key() string { return p.filter.Key() }

// Stages lists the active stage names in evaluation order.
func (p *Plan) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.name
	}
	return names
}

// Apply runs every stage over entities and returns a new slice.  The input
// is never modified and the relative order of survivors is preserved.
func (p *Plan) Apply(entities []geoentity.Entity, scores geoentity.Scores) []geoentity.Entity {
	cur := make([]geoentity.Entity, len(entities))
	copy(cur, entities)

	for _, s := range p.stages {
		next := cur[:0]
		for i := range cur {
			if s.keep(&cur[i], scores) {
				next = append(next, cur[i])
			}
		}
		cur = next
		if len(cur) == 0 {
			break
		}
	}
	return cur
}

// Filter compiles f and applies it in one call.
func Filter(entities []geoentity.Entity, f geoentity.Filter, scores geoentity.Scores) ([]geoentity.Entity, error) {
	p, err := Compile(f)
	if err != nil {
		return nil, err
	}
	return p.Apply(entities, scores), nil
}

func memberStage(name string, values []string, field func(*geoentity.Entity) string) *stage {
	if len(values) == 0 {
		return nil
	}
	set := toSet(values)
	return &stage{name: name, keep: func(e *geoentity.Entity, _ geoentity.Scores) bool {
		_, ok := set[field(e)]
		return ok
	}}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// containsFold reports whether s contains the already lower-cased term.
func containsFold(s, term string) bool {
	if s == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), term)
}

//Personal.AI order the ending
