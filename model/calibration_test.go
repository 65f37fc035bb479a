package model

import (
	"math/rand"
	"testing"

	"github.com/rushteam/questkit/core"
)

func TestFitPlattMonotoneMapping(t *testing.T) {
	// 分数与标签正相关的合成数据
	rng := rand.New(rand.NewSource(5))
	n := 500
	scores := make([]float64, n)
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		s := rng.Float64()
		scores[i] = s
		if rng.Float64() < s {
			labels[i] = 1
		}
	}

	cal, err := FitPlatt(scores, labels)
	if err != nil {
		t.Fatal(err)
	}

	lo := cal.Calibrate(0.1)
	hi := cal.Calibrate(0.9)
	if hi <= lo {
		t.Errorf("calibration must preserve ordering: Calibrate(0.9)=%v <= Calibrate(0.1)=%v", hi, lo)
	}
	for _, p := range []float64{lo, hi, cal.Calibrate(0.5)} {
		if p <= 0 || p >= 1 {
			t.Errorf("calibrated probability out of (0,1): %v", p)
		}
	}
}

func TestFitPlattDegenerate(t *testing.T) {
	if _, err := FitPlatt(nil, nil); !core.IsNoData(err) {
		t.Errorf("empty input: got %v, want NO_DATA", err)
	}
	if _, err := FitPlatt([]float64{0.2, 0.8}, []float64{1, 1}); !core.IsDegenerateData(err) {
		t.Errorf("single class: got %v, want DEGENERATE_DATA", err)
	}
}

func TestCalibratedForestDeterministic(t *testing.T) {
	x, y := syntheticDataset(300, 9)
	opts := DefaultForestOptions()
	opts.NumTrees = 20
	forest, err := TrainForest(x, y, opts)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := forest.PredictBatch(x)
	if err != nil {
		t.Fatal(err)
	}
	cal, err := FitPlatt(raw, y)
	if err != nil {
		t.Fatal(err)
	}

	clf := &CalibratedForest{Forest: forest, Calibrator: cal}
	probe := []float64{0.7, 0.3, 0.5}
	p1, err := clf.PredictProba(probe)
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := clf.PredictProba(probe)
	if p1 != p2 {
		t.Errorf("prediction must be deterministic: %v vs %v", p1, p2)
	}
}
