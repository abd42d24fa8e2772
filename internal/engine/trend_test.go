package engine

import (
	"math"
	"testing"
)

func TestCAGR(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		want   float64
		ok     bool
	}{
		{"two periods 21 percent", []float64{100, 121}, 0.21, true},
		{"three periods compound", []float64{100, 110, 121}, 0.10, true},
		{"flat series", []float64{50, 50, 50}, 0, true},
		{"declining", []float64{100, 81}, -0.19, true},
		{"single period", []float64{100}, 0, false},
		{"empty", nil, 0, false},
		{"zero start", []float64{0, 100}, 0, false},
		{"negative end", []float64{100, -5}, 0, false},
		{"negative interior still computable", []float64{100, -5, 121}, 0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CAGR(tt.series)
			if ok != tt.ok {
				t.Fatalf("CAGR(%v) ok = %v, want %v", tt.series, ok, tt.ok)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CAGR(%v) = %v, want %v", tt.series, got, tt.want)
			}
		})
	}
}

func TestClassifyShape(t *testing.T) {
	tests := []struct {
		name   string
		growth []float64
		want   TrendShape
	}{
		{"strictly increasing growth", []float64{0.05, 0.10, 0.20}, ShapeAccelerating},
		{"strictly decreasing growth", []float64{0.20, 0.10, 0.05}, ShapeDecelerating},
		{"all positive not monotonic", []float64{0.10, 0.05, 0.10}, ShapeConsistentlyGrowing},
		{"all negative not monotonic", []float64{-0.10, -0.05, -0.10}, ShapeConsistentlyDeclining},
		{"negative then positive latest", []float64{-0.10, 0.02, -0.01, 0.05}, ShapeRecovering},
		{"positive then negative latest", []float64{0.10, -0.02, 0.01, -0.05}, ShapeDeteriorating},
		{"mixed with zero latest", []float64{0.10, -0.05, 0}, ShapeVolatile},
		{"one growth value", []float64{0.10}, ShapeInsufficientData},
		{"empty", nil, ShapeInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyShape(tt.growth); got != tt.want {
				t.Errorf("classifyShape(%v) = %q, want %q", tt.growth, got, tt.want)
			}
		})
	}
}

func TestClassifyShapeDecreasingWinsOverSigns(t *testing.T) {
	// Strictly decreasing but all positive: the monotonic pattern wins.
	if got := classifyShape([]float64{0.30, 0.20, 0.10}); got != ShapeDecelerating {
		t.Errorf("got %q, want %q", got, ShapeDecelerating)
	}
}

func TestGrowthSequenceSkipsZeroBase(t *testing.T) {
	got := growthSequence([]float64{0, 100, 150})
	if len(got) != 1 {
		t.Fatalf("got %d growth values, want 1", len(got))
	}
	if math.Abs(got[0]-0.5) > 1e-9 {
		t.Errorf("got %v, want 0.5", got[0])
	}
}

func TestGrowthSequenceNegativeBase(t *testing.T) {
	// Growth from a negative base uses the absolute base so a move toward
	// positive reads as positive growth.
	got := growthSequence([]float64{-100, -50})
	if len(got) != 1 || math.Abs(got[0]-0.5) > 1e-9 {
		t.Fatalf("got %v, want [0.5]", got)
	}
}

func TestEvalTrendMissingField(t *testing.T) {
	historical := []Fields{
		{"revenue": 100},
		{"revenue": 110}, // total_debt absent in both periods
	}
	result := evalTrend(TrendSpec{Name: "debt_cagr", Field: "total_debt"}, historical)
	if result.Computable {
		t.Error("trend over a missing field must not be computable")
	}
	if result.Shape != ShapeInsufficientData {
		t.Errorf("shape = %q, want %q", result.Shape, ShapeInsufficientData)
	}
}

func TestEvalTrendPartialSeries(t *testing.T) {
	historical := []Fields{
		{"revenue": 100},
		{"other": 1}, // revenue missing mid-series
		{"revenue": 121},
	}
	result := evalTrend(TrendSpec{Name: "revenue_cagr", Field: "revenue"}, historical)
	if result.Computable {
		t.Error("gap in the series must make the trend non-computable")
	}
}

func TestEvalTrendComputable(t *testing.T) {
	historical := []Fields{
		{"revenue": 100},
		{"revenue": 110},
		{"revenue": 121},
	}
	result := evalTrend(TrendSpec{Name: "revenue_cagr", Field: "revenue"}, historical)
	if !result.Computable {
		t.Fatal("expected computable trend")
	}
	if math.Abs(result.Rate-0.10) > 1e-9 {
		t.Errorf("rate = %v, want 0.10", result.Rate)
	}
}
