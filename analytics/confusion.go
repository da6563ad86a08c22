// Package analytics evaluates a network over labeled sample sets: confusion
// matrices, misfit ranking, decision-boundary grids, gradient-flow health
// and neuron ablation impact. Monitor runs the expensive ones on a cadence.
package analytics

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/nn"
)

// ConfusionData counts predictions per (true, predicted) class pair.
type ConfusionData struct {
	Matrix      [nn.NumClasses][nn.NumClasses]int `json:"matrix"` // [true][predicted]
	ClassCounts [nn.NumClasses]int                `json:"class_counts"`
	Precision   [nn.NumClasses]float64            `json:"precision"`
	Recall      [nn.NumClasses]float64            `json:"recall"`
	Accuracy    float64                           `json:"accuracy"`
	Total       int                               `json:"total"`
}

// ComputeConfusion predicts every sample and fills the confusion matrix.
// Classes never seen as a label or prediction get precision and recall 0.
// An empty sample set yields all-zero data.
func ComputeConfusion(net *nn.Network, inputs [][]float32, labels []int) (*ConfusionData, error) {
	if err := checkSamples(inputs, labels); err != nil {
		return nil, err
	}

	cd := &ConfusionData{}
	for i, in := range inputs {
		pred, err := net.Predict(in)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		cd.Matrix[labels[i]][pred.Label]++
		cd.ClassCounts[labels[i]]++
		cd.Total++
	}
	cd.finalize()
	return cd, nil
}

func (cd *ConfusionData) finalize() {
	trace := 0
	for c := 0; c < nn.NumClasses; c++ {
		trace += cd.Matrix[c][c]

		column := 0
		for r := 0; r < nn.NumClasses; r++ {
			column += cd.Matrix[r][c]
		}
		if column > 0 {
			cd.Precision[c] = float64(cd.Matrix[c][c]) / float64(column)
		}
		if cd.ClassCounts[c] > 0 {
			cd.Recall[c] = float64(cd.Matrix[c][c]) / float64(cd.ClassCounts[c])
		}
	}
	if cd.Total > 0 {
		cd.Accuracy = float64(trace) / float64(cd.Total)
	}
}

// MostConfused returns the off-diagonal (true, predicted) pair with the
// highest count, or ok=false when there are no errors.
func (cd *ConfusionData) MostConfused() (trueLabel, predicted, count int, ok bool) {
	for r := 0; r < nn.NumClasses; r++ {
		for c := 0; c < nn.NumClasses; c++ {
			if r != c && cd.Matrix[r][c] > count {
				trueLabel, predicted, count, ok = r, c, cd.Matrix[r][c], true
			}
		}
	}
	return
}

// PrintSummary prints the matrix with per-class recall and precision.
func (cd *ConfusionData) PrintSummary() {
	fmt.Printf("\n=== Confusion Matrix (%d samples, accuracy %.2f%%) ===\n", cd.Total, cd.Accuracy*100)
	fmt.Printf("true\\pred")
	for c := 0; c < nn.NumClasses; c++ {
		fmt.Printf("%5d", c)
	}
	fmt.Printf("  recall\n")
	for r := 0; r < nn.NumClasses; r++ {
		fmt.Printf("%9d", r)
		for c := 0; c < nn.NumClasses; c++ {
			fmt.Printf("%5d", cd.Matrix[r][c])
		}
		fmt.Printf("  %5.1f%%\n", cd.Recall[r]*100)
	}
	fmt.Printf("precision")
	for c := 0; c < nn.NumClasses; c++ {
		fmt.Printf("%5.0f", cd.Precision[c]*100)
	}
	fmt.Println()
}

func checkSamples(inputs [][]float32, labels []int) error {
	if len(labels) != len(inputs) {
		return &nn.SizeMismatchError{What: "labels", Expected: len(inputs), Got: len(labels)}
	}
	for i, l := range labels {
		if err := nn.CheckLabel(l); err != nil {
			return errors.Wrapf(err, "sample %d", i)
		}
	}
	return nil
}
