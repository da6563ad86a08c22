package main

import (
	"math/rand"

	"github.com/petar/GoMNIST"
	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/nn"
)

// dataset is a labeled set of flattened 28x28 images with pixels in [0,1].
type dataset struct {
	inputs [][]float32
	labels []int
}

func (d *dataset) len() int { return len(d.inputs) }

// nonEmpty reports an error when the dataset has no samples to draw from.
func (d *dataset) nonEmpty(name string) error {
	if d.len() == 0 {
		return errors.Errorf("%s set has no samples", name)
	}
	return nil
}

// batch draws size random samples. d must not be empty.
func (d *dataset) batch(rng *rand.Rand, size int) ([][]float32, []int) {
	inputs := make([][]float32, size)
	labels := make([]int, size)
	for i := range inputs {
		j := rng.Intn(d.len())
		inputs[i] = d.inputs[j]
		labels[i] = d.labels[j]
	}
	return inputs, labels
}

// head returns the first n samples, or all of them.
func (d *dataset) head(n int) *dataset {
	if n > d.len() {
		n = d.len()
	}
	return &dataset{inputs: d.inputs[:n], labels: d.labels[:n]}
}

// loadMNIST reads the gzipped IDX files from dir. limit > 0 caps the
// number of samples taken from each set.
func loadMNIST(dir string, limit int) (train, test *dataset, err error) {
	trainSet, testSet, err := GoMNIST.Load(dir)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "load MNIST from %s", dir)
	}
	train, test = fromSet(trainSet, limit), fromSet(testSet, limit)
	if err := train.nonEmpty("MNIST training"); err != nil {
		return nil, nil, errors.Wrapf(err, "load MNIST from %s", dir)
	}
	return train, test, nil
}

func fromSet(set *GoMNIST.Set, limit int) *dataset {
	n := set.Count()
	if limit > 0 && limit < n {
		n = limit
	}
	d := &dataset{inputs: make([][]float32, n), labels: make([]int, n)}
	for i := 0; i < n; i++ {
		img, label := set.Get(i)
		pixels := make([]float32, len(img))
		for p, b := range img {
			pixels[p] = float32(b) / 255
		}
		d.inputs[i] = pixels
		d.labels[i] = int(label)
	}
	return d
}

// strokes are rough seven-segment style digits on the 28x28 grid:
// {row0, col0, row1, col1} line segments per class.
var strokes = [nn.NumClasses][][4]int{
	{{4, 9, 4, 18}, {4, 9, 23, 9}, {4, 18, 23, 18}, {23, 9, 23, 18}},
	{{4, 14, 23, 14}, {4, 14, 8, 11}},
	{{4, 9, 4, 18}, {4, 18, 13, 18}, {13, 9, 13, 18}, {13, 9, 23, 9}, {23, 9, 23, 18}},
	{{4, 9, 4, 18}, {4, 18, 23, 18}, {13, 11, 13, 18}, {23, 9, 23, 18}},
	{{4, 9, 13, 9}, {13, 9, 13, 18}, {4, 18, 23, 18}},
	{{4, 9, 4, 18}, {4, 9, 13, 9}, {13, 9, 13, 18}, {13, 18, 23, 18}, {23, 9, 23, 18}},
	{{4, 9, 4, 18}, {4, 9, 23, 9}, {13, 9, 13, 18}, {13, 18, 23, 18}, {23, 9, 23, 18}},
	{{4, 9, 4, 18}, {4, 18, 23, 12}},
	{{4, 9, 4, 18}, {4, 9, 23, 9}, {4, 18, 23, 18}, {13, 9, 13, 18}, {23, 9, 23, 18}},
	{{4, 9, 4, 18}, {4, 9, 13, 9}, {13, 9, 13, 18}, {4, 18, 23, 18}, {23, 9, 23, 18}},
}

// syntheticDigits draws n jittered stroke digits, cycling through the classes.
func syntheticDigits(rng *rand.Rand, n int) *dataset {
	d := &dataset{inputs: make([][]float32, n), labels: make([]int, n)}
	for i := 0; i < n; i++ {
		label := i % nn.NumClasses
		img := make([]float32, 28*28)
		dr, dc := rng.Intn(5)-2, rng.Intn(5)-2
		for _, s := range strokes[label] {
			drawLine(img, s[0]+dr, s[1]+dc, s[2]+dr, s[3]+dc)
		}
		for p := range img {
			img[p] += 0.05 * rng.Float32()
		}
		nn.Clamp01(img)
		d.inputs[i] = img
		d.labels[i] = label
	}
	return d
}

func drawLine(img []float32, r0, c0, r1, c1 int) {
	steps := max(abs(r1-r0), abs(c1-c0))
	for s := 0; s <= steps; s++ {
		t := 0.0
		if steps > 0 {
			t = float64(s) / float64(steps)
		}
		r := r0 + int(t*float64(r1-r0)+0.5)
		c := c0 + int(t*float64(c1-c0)+0.5)
		for dc := -1; dc <= 1; dc++ {
			if r >= 0 && r < 28 && c+dc >= 0 && c+dc < 28 {
				img[r*28+c+dc] = 1
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
