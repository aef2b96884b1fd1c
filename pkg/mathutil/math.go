// Package mathutil provides small numeric helpers shared by retrieval and dedup.
package mathutil

import "math"

// Mean returns the arithmetic mean of scores, or 0 for an empty slice.
func Mean(scores []float32) float32 {
	if len(scores) == 0 {
		return 0
	}
	var sum float32
	for _, s := range scores {
		sum += s
	}
	return sum / float32(len(scores))
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 when either vector is empty, zero-length, or the dimensions differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// ClampLimit validates a pagination limit, applying default and max constraints.
// If limit <= 0, returns defaultVal. If limit > maxVal, returns maxVal.
func ClampLimit(limit, defaultVal, maxVal int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit > maxVal {
		return maxVal
	}
	return limit
}

// ClampFloat clamps a float32 value to a range [min, max].
func ClampFloat(value, min, max float32) float32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
