package embedding

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Cosine returns the cosine similarity of u and v. It is 0 when either vector
// is missing, empty, of mismatched length or has zero norm.
func Cosine(u, v []float64) float64 {
	if len(u) == 0 || len(v) == 0 || len(u) != len(v) {
		return 0
	}
	nu := floats.Norm(u, 2)
	nv := floats.Norm(v, 2)
	if nu == 0 || nv == 0 {
		return 0
	}
	sim := floats.Dot(u, v) / (nu * nv)
	if math.IsNaN(sim) {
		return 0
	}
	return math.Max(-1, math.Min(1, sim))
}

// Centroid averages the non-nil vectors that share the first vector's length.
// Returns nil when there is nothing to average.
func Centroid(vectors [][]float64) []float64 {
	var sum []float64
	count := 0
	for _, vector := range vectors {
		if len(vector) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(vector))
		}
		if len(vector) != len(sum) {
			continue
		}
		floats.Add(sum, vector)
		count++
	}
	if count == 0 {
		return nil
	}
	floats.Scale(1/float64(count), sum)
	return sum
}

// Finite reports whether every component is a finite number.
func Finite(vector []float64) bool {
	for _, value := range vector {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return false
		}
	}
	return true
}
