package agents

// Output schemas.  Replies are decoded into these with unknown fields
// rejected, then checked with the validate tags.

// ComplianceCheck is the reply of compliance.check.
type ComplianceCheck struct {
	Status          string            `json:"status" validate:"required,oneof=compliant at_risk non_compliant"`
	Score           float64           `json:"score" validate:"gte=0,lte=100"`
	Issues          []ComplianceIssue `json:"issues" validate:"dive"`
	Recommendations []string          `json:"recommendations" validate:"dive,required"`
}

// ComplianceIssue is one finding.
type ComplianceIssue struct {
	Requirement string `json:"requirement" validate:"required"`
	Severity    string `json:"severity" validate:"required,oneof=low medium high"`
	Detail      string `json:"detail"`
}

// ComplianceDeadlines is the reply of compliance.deadlines.
type ComplianceDeadlines struct {
	Deadlines []Deadline `json:"deadlines" validate:"dive"`
}

// Deadline is one upcoming obligation.
type Deadline struct {
	Obligation string `json:"obligation" validate:"required"`
	DueDate    string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Priority   string `json:"priority" validate:"required,oneof=low medium high"`
}

// GrantMatches is the reply of grants.match.
type GrantMatches struct {
	Grants []GrantMatch `json:"grants" validate:"dive"`
}

// GrantMatch is one suggested grant.
type GrantMatch struct {
	Name      string  `json:"name" validate:"required"`
	Agency    string  `json:"agency"`
	FitScore  float64 `json:"fit_score" validate:"gte=0,lte=100"`
	MaxAmount float64 `json:"max_amount" validate:"gte=0"`
	Deadline  string  `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
	Rationale string  `json:"rationale" validate:"required"`
}

// GrantDraft is the reply of grants.draft.
type GrantDraft struct {
	Summary    string       `json:"summary" validate:"required"`
	Objectives []string     `json:"objectives" validate:"required,min=1,dive,required"`
	Budget     []BudgetLine `json:"budget" validate:"dive"`
}

// BudgetLine is one budget concept.
type BudgetLine struct {
	Concept string  `json:"concept" validate:"required"`
	Amount  float64 `json:"amount" validate:"gte=0"`
}

// RenewalForecast is the reply of renewal.forecast.
type RenewalForecast struct {
	Renewals   []Renewal `json:"renewals" validate:"dive"`
	NextAction string    `json:"next_action" validate:"required"`
}

// Renewal is one item due for renewal.
type Renewal struct {
	Item    string `json:"item" validate:"required"`
	DueDate string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Risk    string `json:"risk" validate:"required,oneof=low medium high"`
}

// RatioAnalysis is the reply of ratios.analyze.
type RatioAnalysis struct {
	Ratios  []Ratio `json:"ratios" validate:"required,min=1,dive"`
	Summary string  `json:"summary" validate:"required"`
}

// Ratio is one interpreted ratio.
type Ratio struct {
	Name       string   `json:"name" validate:"required"`
	Value      float64  `json:"value"`
	Benchmark  *float64 `json:"benchmark"`
	Assessment string   `json:"assessment" validate:"required,oneof=good fair poor"`
}

// EmotionalReading is the reply of the emotional actions.
type EmotionalReading struct {
	Sentiment string    `json:"sentiment" validate:"required,oneof=positive neutral negative"`
	Score     float64   `json:"score" validate:"gte=-1,lte=1"`
	Emotions  []Emotion `json:"emotions" validate:"dive"`
	Summary   string    `json:"summary" validate:"required"`
}

// Emotion is one detected emotion.
type Emotion struct {
	Label     string  `json:"label" validate:"required"`
	Intensity float64 `json:"intensity" validate:"gte=0,lte=1"`
}

var schemas = map[string]func() any{
	"compliance.check":     func() any { return new(ComplianceCheck) },
	"compliance.deadlines": func() any { return new(ComplianceDeadlines) },
	"grants.match":         func() any { return new(GrantMatches) },
	"grants.draft":         func() any { return new(GrantDraft) },
	"renewal.forecast":     func() any { return new(RenewalForecast) },
	"ratios.analyze":       func() any { return new(RatioAnalysis) },
	"emotional.reading":    func() any { return new(EmotionalReading) },
}

// NewOutput returns a fresh value for schema, or nil when unknown.
func NewOutput(schema string) any {
	f, ok := schemas[schema]
	if !ok {
		return nil
	}
	return f()
}

//Personal.AI order the ending
