package rank

import (
	"math"
	"reflect"
	"testing"
)

func almostEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestMinMaxNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected []float64
	}{
		{
			name:     "empty",
			input:    nil,
			expected: []float64{},
		},
		{
			name:     "scales to unit range",
			input:    []float64{2, 4, 6},
			expected: []float64{0, 0.5, 1},
		},
		{
			name:     "all equal becomes ones",
			input:    []float64{3, 3, 3},
			expected: []float64{1, 1, 1},
		},
		{
			name:     "single value becomes one",
			input:    []float64{42},
			expected: []float64{1},
		},
		{
			name:     "handles negatives",
			input:    []float64{-1, 0, 1},
			expected: []float64{0, 0.5, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MinMaxNormalize(tt.input)
			if !almostEqual(result, tt.expected) {
				t.Errorf("MinMaxNormalize(%v) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFuseScores_AppliesWeights(t *testing.T) {
	dense := []float64{1, 0}
	lexical := []float64{0, 1}

	fused := FuseScores(dense, lexical, FusionWeights{Dense: 0.7, Lexical: 0.3})
	if !almostEqual(fused, []float64{0.7, 0.3}) {
		t.Errorf("expected [0.7 0.3], got %v", fused)
	}

	fused = FuseScores(dense, lexical, FusionWeights{Dense: 0.5, Lexical: 0.5})
	if !almostEqual(fused, []float64{0.5, 0.5}) {
		t.Errorf("expected [0.5 0.5], got %v", fused)
	}
}

func TestFuseScores_DefaultsOnZeroWeights(t *testing.T) {
	fused := FuseScores([]float64{1, 0}, []float64{0, 1}, FusionWeights{})
	if !almostEqual(fused, []float64{0.7, 0.3}) {
		t.Errorf("expected default weights, got %v", fused)
	}
}

func TestFuseScores_NormalizesBeforeCombining(t *testing.T) {
	// Dense scores on a different scale than lexical scores must not
	// dominate just by magnitude
	dense := []float64{1000, 500}
	lexical := []float64{0, 10}

	fused := FuseScores(dense, lexical, FusionWeights{Dense: 0.5, Lexical: 0.5})
	if !almostEqual(fused, []float64{0.5, 0.5}) {
		t.Errorf("expected scale-free fusion [0.5 0.5], got %v", fused)
	}
}

func TestRanking_OrdersByScoreDescending(t *testing.T) {
	ids := []string{"c1", "c2", "c3"}
	scores := []float64{0.2, 0.9, 0.5}

	order := Ranking(ids, scores)
	if !reflect.DeepEqual(order, []int{1, 2, 0}) {
		t.Errorf("expected [1 2 0], got %v", order)
	}
}

func TestRanking_BreaksTiesByID(t *testing.T) {
	ids := []string{"b", "a", "c"}
	scores := []float64{1, 2, 1}

	order := Ranking(ids, scores)
	// Highest score first, then the tied pair ordered a-z by ID
	if !reflect.DeepEqual(order, []int{1, 0, 2}) {
		t.Errorf("expected [1 0 2], got %v", order)
	}
}

func TestRanking_Empty(t *testing.T) {
	if order := Ranking(nil, nil); len(order) != 0 {
		t.Errorf("expected empty ranking, got %v", order)
	}
}
