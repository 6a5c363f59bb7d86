package domain

import "math"

// CosineSimilarity returns dot(a,b)/(|a|·|b|) clamped to [0,1].
// Vectors of different length are compared over the shorter prefix.
// Zero magnitude on either side yields 0.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}
	if magA == 0 || magB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
