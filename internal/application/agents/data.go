package agents

import (
	"context"
	"sort"
	"time"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
)

// Data sources an action may declare under "reads".
const (
	ReadCompany      = "company"
	ReadFinancials   = "financials"
	ReadObligations  = "obligations"
	ReadInteractions = "interactions"
)

var knownReads = map[string]struct{}{
	ReadCompany:      {},
	ReadFinancials:   {},
	ReadObligations:  {},
	ReadInteractions: {},
}

// FinancialYear is one row of a company's annual accounts.
type FinancialYear struct {
	Year               int     `json:"year"`
	Revenue            float64 `json:"revenue"`
	Expenses           float64 `json:"expenses"`
	Assets             float64 `json:"assets"`
	Liabilities        float64 `json:"liabilities"`
	Equity             float64 `json:"equity"`
	CurrentAssets      float64 `json:"current_assets"`
	CurrentLiabilities float64 `json:"current_liabilities"`
}

// Obligation is a dated regulatory or contractual duty: a filing, a licence
// renewal, a certificate expiry.
type Obligation struct {
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date"`
	Status      string    `json:"status"`
}

// Interaction is a recorded contact with a company.
type Interaction struct {
	At      time.Time `json:"at"`
	Channel string    `json:"channel"`
	Author  string    `json:"author"`
	Note    string    `json:"note"`
}

// DataReader loads what agent prompts are built from.
type DataReader interface {
	Company(ctx context.Context, id string) (*geoentity.Entity, error)
	// Financials returns up to years rows, oldest first.
	Financials(ctx context.Context, companyID string, years int) ([]FinancialYear, error)
	// Obligations returns open obligations ordered by due date.
	Obligations(ctx context.Context, companyID string) ([]Obligation, error)
	// Interactions returns up to limit rows, newest first.
	Interactions(ctx context.Context, companyID string, limit int) ([]Interaction, error)
}

// YearRatios are the ratios derived from one FinancialYear.  Ratios whose
// denominator is zero are omitted.
type YearRatios struct {
	Year   int
	Values map[string]float64
}

// ComputeRatios derives the standard ratios for each year.
func ComputeRatios(years []FinancialYear) []YearRatios {
	out := make([]YearRatios, 0, len(years))
	for _, y := range years {
		v := make(map[string]float64, 5)
		profit := y.Revenue - y.Expenses
		if y.CurrentLiabilities != 0 {
			v["current_ratio"] = y.CurrentAssets / y.CurrentLiabilities
		}
		if y.Assets != 0 {
			v["debt_ratio"] = y.Liabilities / y.Assets
			v["return_on_assets"] = profit / y.Assets
		}
		if y.Equity != 0 {
			v["return_on_equity"] = profit / y.Equity
		}
		if y.Revenue != 0 {
			v["net_margin"] = profit / y.Revenue
		}
		out = append(out, YearRatios{Year: y.Year, Values: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// PromptData is the template context for action prompts.
type PromptData struct {
	Params       map[string]any
	Company      *geoentity.Entity
	Financials   []FinancialYear
	Latest       *FinancialYear
	Ratios       []YearRatios
	Obligations  []Obligation
	Interactions []Interaction
	Today        string
}

//Personal.AI order the ending
