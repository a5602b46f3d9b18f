package rank

import "sort"

// FusionWeights control the dense/lexical blend of fused scores.
type FusionWeights struct {
	Dense   float64
	Lexical float64
}

// DefaultFusionWeights favor the dense signal.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Dense: 0.7, Lexical: 0.3}
}

// MinMaxNormalize scales scores to [0, 1] within the slice. When all
// values are equal every score becomes 1, so a uniform distribution
// neither boosts nor buries the other signal.
func MinMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}

	span := max - min
	for i, s := range scores {
		out[i] = (s - min) / span
	}
	return out
}

// FuseScores normalizes both score distributions and combines them with
// the given weights. Inputs must be parallel slices over the same
// candidates.
func FuseScores(dense, lexical []float64, w FusionWeights) []float64 {
	if w.Dense <= 0 && w.Lexical <= 0 {
		w = DefaultFusionWeights()
	}

	nd := MinMaxNormalize(dense)
	nl := MinMaxNormalize(lexical)

	fused := make([]float64, len(nd))
	for i := range fused {
		fused[i] = w.Dense*nd[i] + w.Lexical*nl[i]
	}
	return fused
}

// Ranking returns candidate indices ordered by score descending. Ties
// are broken by ID ascending so equal-scored candidates order
// deterministically.
func Ranking(ids []string, scores []float64) []int {
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return ids[ia] < ids[ib]
	})
	return order
}
