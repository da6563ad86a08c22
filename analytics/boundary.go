package analytics

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/digitlab/nn"
)

// BoundaryThreshold marks a grid cell as lying on the boundary between
// the two classes when |confA - confB| is below it.
const BoundaryThreshold = 0.15

// BoundaryConfig controls SampleDecisionBoundary.
type BoundaryConfig struct {
	Resolution int `json:"resolution"` // cells per side, >= 2

	// Secondary is the y-axis direction in input space. It is
	// orthogonalized against B-A. When nil, or parallel to B-A, a seeded
	// Gaussian direction is used instead.
	Secondary []float32 `json:"secondary,omitempty"`
	// Spread scales the y axis to Spread * |B-A| at the grid edges.
	Spread float64 `json:"spread"`
	Seed   int64   `json:"seed"`
}

// DefaultBoundaryConfig returns a 20x20 grid with a half-distance spread.
func DefaultBoundaryConfig() BoundaryConfig {
	return BoundaryConfig{Resolution: 20, Spread: 0.5, Seed: 1}
}

// BoundaryCell is the network's verdict at one grid point.
type BoundaryCell struct {
	Label      int     `json:"label"`
	ConfA      float32 `json:"conf_a"`
	ConfB      float32 `json:"conf_b"`
	IsBoundary bool    `json:"is_boundary"`
}

// BoundaryGrid is an R x R sweep between two exemplars. Cells[row][col]:
// col walks from A (0) to B (R-1), row walks the secondary axis from -1
// to +1 times its scaled length.
type BoundaryGrid struct {
	Resolution int              `json:"resolution"`
	ClassA     int              `json:"class_a"`
	ClassB     int              `json:"class_b"`
	Axis       []float32        `json:"axis"` // scaled secondary direction
	Cells      [][]BoundaryCell `json:"cells"`
}

// BoundaryFraction returns the share of cells flagged IsBoundary.
func (g *BoundaryGrid) BoundaryFraction() float64 {
	total, hits := 0, 0
	for _, row := range g.Cells {
		for _, c := range row {
			total++
			if c.IsBoundary {
				hits++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// SampleDecisionBoundary predicts every point of a grid spanned by the
// A->B blend and a secondary axis orthogonal to it. Pixels are clamped to
// [0,1] before prediction.
func SampleDecisionBoundary(net *nn.Network, a, b []float32, classA, classB int, cfg BoundaryConfig) (*BoundaryGrid, error) {
	if cfg.Resolution < 2 {
		return nil, &nn.ConfigError{Field: "resolution", Reason: fmt.Sprintf("must be >= 2, got %d", cfg.Resolution)}
	}
	if cfg.Spread < 0 || math.IsNaN(cfg.Spread) {
		return nil, &nn.ConfigError{Field: "spread", Reason: fmt.Sprintf("must be >= 0, got %g", cfg.Spread)}
	}
	for _, c := range []int{classA, classB} {
		if err := nn.CheckLabel(c); err != nil {
			return nil, err
		}
	}
	if len(a) != net.InputSize {
		return nil, &nn.SizeMismatchError{What: "exemplar A", Expected: net.InputSize, Got: len(a)}
	}
	if len(b) != net.InputSize {
		return nil, &nn.SizeMismatchError{What: "exemplar B", Expected: net.InputSize, Got: len(b)}
	}

	axis, err := secondaryAxis(a, b, cfg)
	if err != nil {
		return nil, err
	}

	r := cfg.Resolution
	grid := &BoundaryGrid{
		Resolution: r,
		ClassA:     classA,
		ClassB:     classB,
		Axis:       axis,
		Cells:      make([][]BoundaryCell, r),
	}

	point := make([]float32, net.InputSize)
	for row := 0; row < r; row++ {
		s := 2*float32(row)/float32(r-1) - 1
		grid.Cells[row] = make([]BoundaryCell, r)
		for col := 0; col < r; col++ {
			t := float32(col) / float32(r-1)
			for i := range point {
				point[i] = a[i] + t*(b[i]-a[i]) + s*axis[i]
			}
			nn.Clamp01(point)

			probs, err := net.Probabilities(point)
			if err != nil {
				return nil, errors.Wrapf(err, "cell (%d,%d)", row, col)
			}
			cell := BoundaryCell{
				Label: nn.Argmax(probs),
				ConfA: probs[classA],
				ConfB: probs[classB],
			}
			cell.IsBoundary = math32.Abs(cell.ConfA-cell.ConfB) < BoundaryThreshold
			grid.Cells[row][col] = cell
		}
	}
	return grid, nil
}

// secondaryAxis returns the y direction: the configured (or random)
// vector made orthogonal to B-A by Gram-Schmidt and scaled to
// Spread * |B-A|. When A equals B the axis is scaled to Spread.
func secondaryAxis(a, b []float32, cfg BoundaryConfig) ([]float32, error) {
	dim := len(a)
	d := make([]float64, dim)
	for i := range d {
		d[i] = float64(b[i] - a[i])
	}
	dNorm := floats.Norm(d, 2)

	var dir []float64
	if cfg.Secondary != nil {
		if len(cfg.Secondary) != dim {
			return nil, &nn.SizeMismatchError{What: "secondary axis", Expected: dim, Got: len(cfg.Secondary)}
		}
		dir = make([]float64, dim)
		for i, v := range cfg.Secondary {
			dir[i] = float64(v)
		}
		if !orthogonalize(dir, d, dNorm) {
			dir = nil
		}
	}
	if dir == nil {
		rng := rand.New(rand.NewSource(cfg.Seed))
		for attempt := 0; attempt < 4 && dir == nil; attempt++ {
			dir = make([]float64, dim)
			for i := range dir {
				dir[i] = rng.NormFloat64()
			}
			if !orthogonalize(dir, d, dNorm) {
				dir = nil
			}
		}
		if dir == nil {
			return nil, errors.New("could not build a secondary axis orthogonal to B-A")
		}
	}

	scale := cfg.Spread * dNorm
	if dNorm == 0 {
		scale = cfg.Spread
	}
	floats.Scale(scale/floats.Norm(dir, 2), dir)

	axis := make([]float32, dim)
	for i, v := range dir {
		axis[i] = float32(v)
	}
	return axis, nil
}

// orthogonalize removes the d component from v in place and reports
// whether anything non-negligible is left.
func orthogonalize(v, d []float64, dNorm float64) bool {
	vNorm := floats.Norm(v, 2)
	if vNorm == 0 {
		return false
	}
	if dNorm > 0 {
		floats.AddScaled(v, -floats.Dot(v, d)/(dNorm*dNorm), d)
	}
	return floats.Norm(v, 2) > 1e-6*vNorm
}
