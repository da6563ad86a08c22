package analytics

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/nn"
)

// Misfit is one sample ranked by its cross-entropy loss.
type Misfit struct {
	Index          int       `json:"index"`
	Input          []float32 `json:"input"`
	TrueLabel      int       `json:"true_label"`
	PredictedLabel int       `json:"predicted_label"`
	Probabilities  []float32 `json:"probabilities"`
	Loss           float32   `json:"loss"`
	IsWrong        bool      `json:"is_wrong"`
	TrueConfidence float32   `json:"true_confidence"`
}

// RankMisfits returns the topN samples with the highest loss, worst first.
// Equal losses keep dataset order. topN <= 0 or larger than the set
// returns every sample.
func RankMisfits(net *nn.Network, inputs [][]float32, labels []int, topN int) ([]Misfit, error) {
	if err := checkSamples(inputs, labels); err != nil {
		return nil, err
	}

	misfits := make([]Misfit, len(inputs))
	for i, in := range inputs {
		pred, err := net.Predict(in)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		label := labels[i]
		misfits[i] = Misfit{
			Index:          i,
			Input:          append([]float32(nil), in...),
			TrueLabel:      label,
			PredictedLabel: pred.Label,
			Probabilities:  pred.Probabilities,
			Loss:           nn.CrossEntropy(pred.Probabilities, label),
			IsWrong:        pred.Label != label,
			TrueConfidence: pred.Probabilities[label],
		}
	}

	sort.SliceStable(misfits, func(i, j int) bool {
		return misfits[i].Loss > misfits[j].Loss
	})

	if topN <= 0 || topN > len(misfits) {
		topN = len(misfits)
	}
	return misfits[:topN], nil
}

// PrintMisfits prints one line per misfit.
func PrintMisfits(misfits []Misfit) {
	fmt.Printf("\n=== Top %d Misfits ===\n", len(misfits))
	for _, m := range misfits {
		mark := " "
		if m.IsWrong {
			mark = "✗"
		}
		fmt.Printf("  %s #%-6d true=%d pred=%d loss=%.4f p(true)=%.3f\n",
			mark, m.Index, m.TrueLabel, m.PredictedLabel, m.Loss, m.TrueConfidence)
	}
}
