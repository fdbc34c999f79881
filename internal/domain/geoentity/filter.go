package geoentity

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/turtacn/BizAtlas/pkg/errors"
)

// Range is an inclusive numeric constraint.  A nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// NewRange builds a closed range [min, max].
func NewRange(min, max float64) *Range {
	return &Range{Min: Float(min), Max: Float(max)}
}

// IsZero reports whether r imposes no constraint.
func (r *Range) IsZero() bool {
	return r == nil || (r.Min == nil && r.Max == nil)
}

// Contains reports whether v lies in [Min, Max], inclusive on both ends.
func (r *Range) Contains(v float64) bool {
	if r.IsZero() {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// AdmitsMissing reports whether an entity with no value for the metric
// passes: true when the lower bound is absent or <= 0.
func (r *Range) AdmitsMissing() bool {
	return r.IsZero() || r.Min == nil || *r.Min <= 0
}

func (r *Range) validate(name string) error {
	if r.IsZero() {
		return nil
	}
	for _, b := range []*float64{r.Min, r.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			return errors.New(errors.ErrCodeInvalidRange, name+" bounds must be finite")
		}
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return errors.New(errors.ErrCodeInvalidRange, name+" min exceeds max").
			WithDetail(fmt.Sprintf("min=%g max=%g", *r.Min, *r.Max))
	}
	return nil
}

// Filter is the user-controlled narrowing of the entity list.  Every field
// is optional; an empty field imposes no constraint.
type Filter struct {
	StatusIDs  []string `json:"status_ids,omitempty"`
	OwnerIDs   []string `json:"owner_ids,omitempty"`
	Parroquias []string `json:"parroquias,omitempty"`
	Sectors    []string `json:"sectors,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`

	Search string `json:"search,omitempty"`

	VinculacionRange *Range `json:"vinculacion_range,omitempty"`
	FacturacionRange *Range `json:"facturacion_range,omitempty"`
	MargenRange      *Range `json:"margen_range,omitempty"`

	// Expression is an optional boolean expr-lang predicate.
	Expression string `json:"expression,omitempty"`
}

// IsEmpty reports whether f imposes no constraint at all.
func (f Filter) IsEmpty() bool {
	return len(f.StatusIDs) == 0 && len(f.OwnerIDs) == 0 && len(f.Parroquias) == 0 &&
		len(f.Sectors) == 0 && len(f.ProductIDs) == 0 &&
		strings.TrimSpace(f.Search) == "" &&
		f.VinculacionRange.IsZero() && f.FacturacionRange.IsZero() && f.MargenRange.IsZero() &&
		strings.TrimSpace(f.Expression) == ""
}

// Validate checks range bounds.  Expression syntax is checked at compile time.
func (f Filter) Validate() error {
	if err := f.VinculacionRange.validate("vinculacion_range"); err != nil {
		return err
	}
	if err := f.FacturacionRange.validate("facturacion_range"); err != nil {
		return err
	}
	return f.MargenRange.validate("margen_range")
}

// Canonical returns a copy of f with sorted, de-duplicated inclusion lists,
// the search term trimmed and lower-cased, and empty ranges dropped.  Two
// filters that select the same entities for every input share a canonical
// form.
func (f Filter) Canonical() Filter {
	return Filter{
		StatusIDs:        canonicalSet(f.StatusIDs),
		OwnerIDs:         canonicalSet(f.OwnerIDs),
		Parroquias:       canonicalSet(f.Parroquias),
		Sectors:          canonicalSet(f.Sectors),
		ProductIDs:       canonicalSet(f.ProductIDs),
		Search:           strings.ToLower(strings.TrimSpace(f.Search)),
		VinculacionRange: canonicalRange(f.VinculacionRange),
		FacturacionRange: canonicalRange(f.FacturacionRange),
		MargenRange:      canonicalRange(f.MargenRange),
		Expression:       strings.TrimSpace(f.Expression),
	}
}

// Hash is the 64-bit xxhash of the canonical JSON form.
func (f Filter) Hash() uint64 {
	// Marshalling a struct of strings, slices and *float64 cannot fail.
	b, _ := json.Marshal(f.Canonical())
	return xxhash.Sum64(b)
}

// Key is Hash rendered as 16 hex digits.
func (f Filter) Key() string {
	return fmt.Sprintf("%016x", f.Hash())
}

// CacheKey combines the filter hash with a snapshot version, so a memoised
// result is never served across a data change.
func (f Filter) CacheKey(version uint64) string {
	return f.Key() + "@" + strconv.FormatUint(version, 10)
}

func canonicalSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func canonicalRange(r *Range) *Range {
	if r.IsZero() {
		return nil
	}
	c := &Range{}
	if r.Min != nil {
		c.Min = Float(*r.Min)
	}
	if r.Max != nil {
		c.Max = Float(*r.Max)
	}
	return c
}

//Personal.AI order the ending
