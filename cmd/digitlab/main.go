// Command digitlab trains a digit classifier headlessly and prints the same
// analyses the interactive lab shows: blueprint, confusion matrix, worst
// misfits, gradient health, activation-space clusters and a dreamed digit.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/openfluke/digitlab/analytics"
	"github.com/openfluke/digitlab/history"
	"github.com/openfluke/digitlab/introspect"
	"github.com/openfluke/digitlab/nn"
	"github.com/openfluke/digitlab/pca"
)

func main() {
	configPath := flag.String("config", "", "JSON config file (defaults are used when empty)")
	mnistDir := flag.String("mnist", "", "directory with the gzipped MNIST IDX files (synthetic digits when empty)")
	limit := flag.Int("limit", 0, "cap on samples loaded per MNIST set (0 = all)")
	lr := flag.Float64("lr", 0, "learning rate override")
	epochs := flag.Int("epochs", 0, "number of training ticks override")
	batch := flag.Int("batch", 0, "samples per tick override")
	every := flag.Int("every", 0, "log every N epochs override")
	seed := flag.Int64("seed", 0, "weight init and sampling seed override")
	verbose := flag.Bool("verbose", false, "log per-layer activation stats")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, *lr, *epochs, *batch, *every, *seed)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := run(cfg, *mnistDir, *limit, *verbose); err != nil {
		log.Fatalf("digitlab: %v", err)
	}
}

func applyFlags(cfg *Config, lr float64, epochs, batch, every int, seed int64) {
	if lr > 0 {
		cfg.Training.LearningRate = float32(lr)
	}
	if epochs > 0 {
		cfg.Epochs = epochs
	}
	if batch > 0 {
		cfg.BatchSize = batch
	}
	if every > 0 {
		cfg.LogEvery = every
	}
	if seed != 0 {
		cfg.Training.Seed = seed
	}
}

func run(cfg *Config, mnistDir string, limit int, verbose bool) error {
	rng := rand.New(rand.NewSource(cfg.Training.Seed))

	var train, test *dataset
	if mnistDir != "" {
		var err error
		if train, test, err = loadMNIST(mnistDir, limit); err != nil {
			return err
		}
		fmt.Printf("✓ Loaded MNIST: %d train, %d test\n", train.len(), test.len())
	} else {
		train = syntheticDigits(rng, 2000)
		test = syntheticDigits(rng, 500)
		fmt.Printf("✓ Generated synthetic digits: %d train, %d test\n", train.len(), test.len())
	}
	if err := train.nonEmpty("training"); err != nil {
		return err
	}
	eval := test.head(cfg.EvalSize)

	net, err := nn.InitNetwork(cfg.Training)
	if err != nil {
		return err
	}
	net.SetObserver(&nn.ConsoleObserver{Logger: log.New(os.Stdout, "", log.Ltime), Verbose: verbose, Every: cfg.LogEvery})

	blueprint, _ := json.MarshalIndent(nn.ExtractNetworkBlueprint(net), "", "  ")
	fmt.Printf("\n📊 Network blueprint:\n%s\n\n", blueprint)

	epochsRec, err := history.NewEpochRecorder(cfg.HistoryCapacity)
	if err != nil {
		return err
	}
	frames, err := history.NewWeightRecorder(cfg.HistoryCapacity)
	if err != nil {
		return err
	}
	frames.Record(history.CaptureFrame(net))

	monitor, err := analytics.NewMonitor(cfg.Monitor, eval.inputs, eval.labels)
	if err != nil {
		return err
	}

	schedule, err := nn.NewScheduler(cfg.Schedule, cfg.Training.LearningRate)
	if err != nil {
		return err
	}
	baseLR := cfg.Training.LearningRate

	var lastReport *analytics.Report
	for tick := 0; tick < cfg.Epochs; tick++ {
		if err := net.ApplySchedule(schedule); err != nil {
			return err
		}
		inputs, labels := train.batch(rng, cfg.BatchSize)
		snapshot, err := net.TrainBatch(inputs, labels)
		if errors.Is(err, nn.ErrDiverged) {
			// Halve the base rate and rebuild the schedule around it.
			baseLR /= 2
			log.Printf("[WARN] %v; retrying with base learning rate %g", err, baseLR)
			if schedule, err = rescale(cfg.Schedule, baseLR); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		epochsRec.Record(snapshot)
		if snapshot.Epoch%cfg.FrameEvery == 0 {
			frames.Record(history.CaptureFrame(net))
		}

		report, err := monitor.Observe(net, snapshot.Epoch)
		if err != nil {
			return err
		}
		if report != nil {
			printReportLine(report)
			lastReport = report
		}
	}

	return summarize(net, eval, epochsRec, frames, lastReport, cfg)
}

// rescale rebuilds the schedule at a lower base rate, falling back to a
// constant rate when the configured floor no longer fits under it.
func rescale(cfg nn.ScheduleConfig, baseLR float32) (nn.LRScheduler, error) {
	if cfg.Kind == "cosine" && cfg.MinLR > baseLR {
		cfg.MinLR = baseLR
	}
	return nn.NewScheduler(cfg, baseLR)
}

func printReportLine(r *analytics.Report) {
	var parts []string
	if r.Confusion != nil {
		parts = append(parts, fmt.Sprintf("eval acc=%.1f%%", r.Confusion.Accuracy*100))
	}
	if r.GradientFlow != nil {
		parts = append(parts, fmt.Sprintf("gradients=%s", r.GradientFlow.Health))
	}
	if r.Boundary != nil {
		parts = append(parts, fmt.Sprintf("boundary %d/%d=%.0f%%",
			r.Boundary.ClassA, r.Boundary.ClassB, r.Boundary.BoundaryFraction()*100))
	}
	if len(r.Misfits) > 0 {
		parts = append(parts, fmt.Sprintf("worst loss=%.3f", r.Misfits[0].Loss))
	}
	log.Printf("[MONITOR] epoch %d: %s", r.Epoch, strings.Join(parts, " "))
}

func summarize(net *nn.Network, eval *dataset, epochsRec *history.EpochRecorder, frames *history.WeightRecorder, last *analytics.Report, cfg *Config) error {
	confusion, err := analytics.ComputeConfusion(net, eval.inputs, eval.labels)
	if err != nil {
		return err
	}
	confusion.PrintSummary()
	if t, p, n, ok := confusion.MostConfused(); ok {
		fmt.Printf("Most confused: %d read as %d (%d times)\n", t, p, n)
	}

	misfits, err := analytics.RankMisfits(net, eval.inputs, eval.labels, cfg.Monitor.TopMisfits)
	if err != nil {
		return err
	}
	analytics.PrintMisfits(misfits)

	if eval.len() > 0 {
		flow, err := analytics.MeasureGradientFlow(net, eval.inputs[0], eval.labels[0])
		if err != nil {
			return err
		}
		fmt.Printf("\n=== Gradient Flow: %s ===\n", flow.Health)
		for _, l := range flow.Layers {
			name := fmt.Sprintf("hidden %d", l.Layer)
			if l.Output {
				name = "output"
			}
			fmt.Printf("  %-9s mean|g|=%.2e max|g|=%.2e dead=%.0f%%\n", name, l.MeanAbsGrad, l.MaxAbsGrad, l.DeadFraction*100)
		}

		timeline, err := history.ConfidenceTimeline(frames.Frames(), eval.inputs[0], eval.labels[0])
		if err != nil {
			return err
		}
		fmt.Printf("\n=== Confidence on eval sample 0 (label %d) across %d frames ===\n", eval.labels[0], len(timeline))
		for _, pt := range timeline {
			fmt.Printf("  epoch %4d: p=%.3f pred=%d\n", pt.Epoch, pt.Confidence, pt.Predicted)
		}
	}

	if err := printClusters(net, eval); err != nil {
		return err
	}

	curve := epochsRec.LossCurve()
	if len(curve) > 0 {
		fmt.Printf("\nLoss over the last %d epochs: %.4f -> %.4f\n", len(curve), curve[0], curve[len(curve)-1])
	}
	if last != nil && last.Boundary != nil {
		fmt.Printf("Last boundary sweep (epoch %d): %.0f%% of cells undecided\n", last.Epoch, last.Boundary.BoundaryFraction()*100)
	}

	if cfg.DreamClass >= 0 {
		dream, err := introspect.Dream(net, cfg.DreamClass, 80, 0.5, nil)
		if err != nil {
			return err
		}
		n := len(dream.ConfidenceHistory)
		fmt.Printf("\n=== Dreamed %d (confidence %.3f -> %.3f) ===\n", cfg.DreamClass, dream.ConfidenceHistory[0], dream.ConfidenceHistory[n-1])
		fmt.Print(asciiImage(dream.Image))
	}
	return nil
}

// printClusters projects the last hidden layer, prints each class centroid
// and how well the classes separate, then lists near-duplicate neurons.
func printClusters(net *nn.Network, eval *dataset) error {
	if eval.len() < 2 {
		return nil
	}
	space, err := pca.ActivationSpace(net, eval.inputs, eval.labels, net.HiddenLayers()-1, nil)
	if err != nil {
		return err
	}
	var sum [nn.NumClasses][2]float32
	var count [nn.NumClasses]int
	for i, p := range space.Points {
		l := space.Labels[i]
		sum[l][0] += p[0]
		sum[l][1] += p[1]
		count[l]++
	}
	fmt.Printf("\n=== Activation space (last hidden layer, PCA) ===\n")
	for c := 0; c < nn.NumClasses; c++ {
		if count[c] == 0 {
			continue
		}
		fmt.Printf("  %d: (%7.3f, %7.3f) n=%d\n", c, sum[c][0]/float32(count[c]), sum[c][1]/float32(count[c]), count[c])
	}

	_, clusters := pca.KMeans(space.Points, nn.NumClasses, 50, 1, true)
	fmt.Printf("  silhouette: true labels %.3f, k-means %.3f\n",
		pca.Silhouette(space.Points, space.Labels), pca.Silhouette(space.Points, clusters))

	corr, err := analytics.NeuronCorrelation(net, eval.inputs, net.HiddenLayers()-1)
	if err != nil {
		return err
	}
	corr.PrintRedundant(0.95, 5)
	return nil
}

func asciiImage(img []float32) string {
	const shades = " .:-=+*#%@"
	var b strings.Builder
	for r := 0; r < 28; r++ {
		for c := 0; c < 28; c++ {
			v := img[r*28+c]
			b.WriteByte(shades[int(v*float32(len(shades)-1)+0.5)])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
