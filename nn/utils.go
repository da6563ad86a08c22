package nn

import (
	"github.com/chewxy/math32"
)

// MaxAbsDiff calculates the maximum absolute difference between two slices
func MaxAbsDiff(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	m := float32(0)
	for i := 0; i < n; i++ {
		d := math32.Abs(a[i] - b[i])
		if d > m {
			m = d
		}
	}
	return m
}

// Argmax returns the index of the largest value (first wins on ties), or -1
// for an empty slice.
func Argmax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Mean returns the mean value of a slice
func Mean(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	sum := float32(0)
	for _, x := range v {
		sum += x
	}
	return sum / float32(len(v))
}

// Clamp01 clamps every element of v to [0, 1] in place.
func Clamp01(v []float32) {
	for i, x := range v {
		switch {
		case x < 0 || math32.IsNaN(x):
			v[i] = 0
		case x > 1:
			v[i] = 1
		}
	}
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

func copySlice(src []float32) []float32 {
	if src == nil {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}

func copyMatrix(src [][]float32) [][]float32 {
	if src == nil {
		return nil
	}
	dst := make([][]float32, len(src))
	for i, row := range src {
		dst[i] = copySlice(row)
	}
	return dst
}

func copyMask(src []NeuronStatus) []NeuronStatus {
	if src == nil {
		return nil
	}
	dst := make([]NeuronStatus, len(src))
	copy(dst, src)
	return dst
}

func zeroMatrix(m [][]float32) {
	for _, row := range m {
		for j := range row {
			row[j] = 0
		}
	}
}

func zeroSlice(v []float32) {
	for i := range v {
		v[i] = 0
	}
}
