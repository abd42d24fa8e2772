package engine

import "math"

// CAGR computes the compound growth rate between the first and last value of
// an oldest-first series, as a fraction per transition. Both endpoints must
// be strictly positive and the series needs at least two periods; otherwise
// the trend is non-computable. Interior values do not enter the formula, so a
// non-positive interior value leaves the trend computable.
func CAGR(series []float64) (float64, bool) {
	n := len(series)
	if n < 2 {
		return 0, false
	}
	start, end := series[0], series[n-1]
	if start <= 0 || end <= 0 {
		return 0, false
	}
	return math.Pow(end/start, 1/float64(n-1)) - 1, true
}

// EvalTrends computes the requested trends over an oldest-first sequence of
// historical field maps. Ambiguous or short series never raise; they come
// back as non-computable results with an insufficient-data shape.
func EvalTrends(specs []TrendSpec, historical []Fields) []TrendResult {
	results := make([]TrendResult, 0, len(specs))
	for _, spec := range specs {
		results = append(results, evalTrend(spec, historical))
	}
	return results
}

func evalTrend(spec TrendSpec, historical []Fields) TrendResult {
	result := TrendResult{Name: spec.Name, Shape: ShapeInsufficientData}

	series := make([]float64, 0, len(historical))
	usable := true
	for _, period := range historical {
		v, ok := period[spec.Field]
		if !ok {
			usable = false
			break
		}
		series = append(series, v)
	}
	if !usable || len(series) < 2 {
		return result
	}

	if rate, ok := CAGR(series); ok {
		result.Rate = rate
		result.Computable = true
	}
	result.Shape = classifyShape(growthSequence(series))
	return result
}

// growthSequence returns period-over-period growth fractions; transitions
// from a zero base are dropped as unusable.
func growthSequence(series []float64) []float64 {
	growth := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		if prev == 0 {
			continue
		}
		growth = append(growth, (series[i]-prev)/math.Abs(prev))
	}
	return growth
}

// classifyShape buckets a growth sequence into a qualitative pattern. Checks
// are ordered: monotonic patterns win over sign-based ones, and the
// sign-flip patterns only apply to the latest transition.
func classifyShape(growth []float64) TrendShape {
	if len(growth) < 2 {
		return ShapeInsufficientData
	}

	increasing, decreasing := true, true
	allPositive, allNegative := true, true
	for i, g := range growth {
		if g <= 0 {
			allPositive = false
		}
		if g >= 0 {
			allNegative = false
		}
		if i > 0 {
			if g <= growth[i-1] {
				increasing = false
			}
			if g >= growth[i-1] {
				decreasing = false
			}
		}
	}

	latest := growth[len(growth)-1]
	hadNegative, hadPositive := false, false
	for _, g := range growth[:len(growth)-1] {
		if g < 0 {
			hadNegative = true
		}
		if g > 0 {
			hadPositive = true
		}
	}

	switch {
	case increasing:
		return ShapeAccelerating
	case decreasing:
		return ShapeDecelerating
	case allPositive:
		return ShapeConsistentlyGrowing
	case allNegative:
		return ShapeConsistentlyDeclining
	case latest > 0 && hadNegative:
		return ShapeRecovering
	case latest < 0 && hadPositive:
		return ShapeDeteriorating
	}
	return ShapeVolatile
}
