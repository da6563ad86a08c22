// Package pca projects high-dimensional vectors (hidden-layer activations,
// usually) onto their top two principal components.
package pca

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/openfluke/digitlab/nn"
)

// varianceEpsilon is the smallest eigenvalue treated as real variance.
const varianceEpsilon = 1e-12

// Projection is the result of ProjectTo2D. Components[k] is the k-th
// principal axis in input coordinates (nil when the data has no variance
// along it) and Variance[k] its eigenvalue.
type Projection struct {
	Points     [][2]float32 `json:"points"`
	Mean       []float64    `json:"mean"`
	Components [2][]float64 `json:"components"`
	Variance   [2]float64   `json:"variance"`
}

// ProjectTo2D centers the vectors, finds the two eigenvectors of their
// covariance with the largest eigenvalues and projects every vector onto
// them. Each axis is oriented so its largest-magnitude entry is positive,
// making the result deterministic for a given input.
//
// Fewer than two vectors, or vectors with no variance, project to the
// origin. All vectors must share one width.
func ProjectTo2D(vectors [][]float32) (*Projection, error) {
	n := len(vectors)
	proj := &Projection{Points: make([][2]float32, n)}
	if n == 0 {
		return proj, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errors.Wrapf(&nn.SizeMismatchError{What: "vector", Expected: dim, Got: len(v)}, "vector %d", i)
		}
	}

	data := mat.NewDense(n, max(dim, 1), nil)
	for i, v := range vectors {
		for j, x := range v {
			data.Set(i, j, float64(x))
		}
	}

	proj.Mean = make([]float64, dim)
	for j := range proj.Mean {
		proj.Mean[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}
	if n < 2 || dim == 0 {
		return proj, nil
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, errors.New("pca: eigendecomposition did not converge")
	}
	values := eig.Values(nil) // ascending
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	for k := 0; k < 2 && k < dim; k++ {
		col := dim - 1 - k
		if values[col] <= varianceEpsilon {
			break
		}
		axis := mat.Col(nil, col, &vecs)
		orient(axis)
		proj.Components[k] = axis
		proj.Variance[k] = values[col]
	}

	for i := range vectors {
		proj.Points[i] = proj.project(data.RawRowView(i))
	}
	return proj, nil
}

// Project places a new vector in the plane of an existing projection.
func (p *Projection) Project(v []float32) ([2]float32, error) {
	if len(v) != len(p.Mean) {
		return [2]float32{}, &nn.SizeMismatchError{What: "vector", Expected: len(p.Mean), Got: len(v)}
	}
	row := make([]float64, len(v))
	for i, x := range v {
		row[i] = float64(x)
	}
	return p.project(row), nil
}

func (p *Projection) project(row []float64) [2]float32 {
	var pt [2]float32
	for k, axis := range p.Components {
		if axis == nil {
			continue
		}
		sum := 0.0
		for j, a := range axis {
			sum += (row[j] - p.Mean[j]) * a
		}
		pt[k] = float32(sum)
	}
	return pt
}

// orient flips axis in place so its largest-magnitude entry is positive.
func orient(axis []float64) {
	best := 0
	for i, a := range axis {
		if math.Abs(a) > math.Abs(axis[best]) {
			best = i
		}
	}
	if axis[best] < 0 {
		for i := range axis {
			axis[i] = -axis[i]
		}
	}
}
