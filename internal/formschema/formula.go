package formschema

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
)

// Formulas use gval's full language (arithmetic, comparisons, ternary,
// string functions) extended with JSONPath so that $.items[*].qty style
// selectors are available next to plain field names.
var formulaLanguage = gval.Full(jsonpath.Language())

func compileFormula(expr string) (gval.Evaluable, error) {
	ev, err := formulaLanguage.NewEvaluable(expr)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", expr, err)
	}
	return ev, nil
}

// EvalFormula evaluates expr against data. Missing parameters surface as
// errors.
func EvalFormula(ctx context.Context, expr string, data map[string]any) (any, error) {
	ev, err := compileFormula(expr)
	if err != nil {
		return nil, err
	}
	return ev(ctx, data)
}
