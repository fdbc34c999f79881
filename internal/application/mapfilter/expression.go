package mapfilter

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// exprEnv is the variable set an Expression sees for each entity.  Optional
// metrics are exposed as a value plus a has_* flag so comparisons never hit
// nil.
type exprEnv struct {
	ID        string   `expr:"id"`
	Name      string   `expr:"name"`
	Status    string   `expr:"status"`
	Owner     string   `expr:"owner"`
	Sector    string   `expr:"sector"`
	Parroquia string   `expr:"parroquia"`
	Products  []string `expr:"products"`
	HasCoords bool     `expr:"has_coords"`

	Turnover       float64 `expr:"turnover"`
	HasTurnover    bool    `expr:"has_turnover"`
	Margin         float64 `expr:"margin"`
	HasMargin      bool    `expr:"has_margin"`
	Vinculacion    float64 `expr:"vinculacion"`
	HasVinculacion bool    `expr:"has_vinculacion"`
}

func newExprEnv(e *geoentity.Entity, scores geoentity.Scores) exprEnv {
	env := exprEnv{
		ID:        e.ID,
		Name:      e.Name,
		Status:    e.StatusID,
		Owner:     e.OwnerID,
		Sector:    e.Sector,
		Parroquia: e.Parroquia,
		Products:  e.ProductIDs,
		HasCoords: e.Clusterable(),
	}
	if e.Turnover != nil {
		env.Turnover, env.HasTurnover = *e.Turnover, true
	}
	if e.Margin != nil {
		env.Margin, env.HasMargin = *e.Margin, true
	}
	env.Vinculacion, env.HasVinculacion = scores.Vinculacion(e.ID)
	return env
}

const maxCachedPrograms = 256

var programs = struct {
	sync.Mutex
	m map[string]*vm.Program
}{m: make(map[string]*vm.Program)}

// compileExpression compiles src once per distinct source text.
func compileExpression(src string) (*vm.Program, error) {
	programs.Lock()
	defer programs.Unlock()

	if p, ok := programs.m[src]; ok {
		return p, nil
	}
	p, err := expr.Compile(src, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidExpression, "filter expression does not compile").
			WithDetail(err.Error())
	}
	if len(programs.m) >= maxCachedPrograms {
		programs.m = make(map[string]*vm.Program)
	}
	programs.m[src] = p
	return p, nil
}

// ValidateExpression reports whether src compiles as a boolean predicate.
func ValidateExpression(src string) error {
	_, err := compileExpression(src)
	return err
}

func expressionPredicate(src string) (predicate, error) {
	program, err := compileExpression(src)
	if err != nil {
		return nil, err
	}
	return func(e *geoentity.Entity, scores geoentity.Scores) bool {
		out, err := expr.Run(program, newExprEnv(e, scores))
		if err != nil {
			return false
		}
		keep, _ := out.(bool)
		return keep
	}, nil
}

//Personal.AI order the ending
