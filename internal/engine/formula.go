package engine

import (
	"math"

	"github.com/expr-lang/expr"
)

// EvalFormulas computes the metric set for one period of raw field data.
// Missing fields evaluate as zero; a formula whose Requires list names a
// missing or zero field yields an absent metric, as does any evaluation
// error, division by zero, or non-finite result. Pure function of its
// inputs.
func EvalFormulas(formulas []compiledFormula, fields Fields) MetricSet {
	metrics := make(MetricSet, len(formulas))
	for _, f := range formulas {
		if v, ok := evalFormula(f, fields, true); ok {
			metrics[f.spec.Name] = v
		}
	}
	return metrics
}

// evalTrendFormulas computes derived trend metrics over an already-built
// metric set. Unlike raw formulas, a referenced metric missing from the set
// makes the result absent: a CAGR gap is unknown when either CAGR is.
func evalTrendFormulas(formulas []compiledFormula, metrics MetricSet) MetricSet {
	out := make(MetricSet, len(formulas))
	for _, f := range formulas {
		if v, ok := evalFormula(f, Fields(metrics), false); ok {
			out[f.spec.Name] = v
		}
	}
	return out
}

func evalFormula(f compiledFormula, fields Fields, missingIsZero bool) (float64, bool) {
	for _, req := range f.spec.Requires {
		if v, ok := fields[req]; !ok || v == 0 {
			return 0, false
		}
	}

	env := make(map[string]interface{}, len(f.fields))
	for _, name := range f.fields {
		v, ok := fields[name]
		if !ok {
			if !missingIsZero {
				return 0, false
			}
			v = 0
		}
		env[name] = v
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return 0, false
	}
	v, ok := toFloat(out)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
