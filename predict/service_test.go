package predict

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/feature"
	"github.com/rushteam/questkit/model"
	"github.com/rushteam/questkit/pkg/dsl"
)

type stubProvider struct {
	stats *core.UserStats
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) GetUserStats(ctx context.Context, userID string) (*core.UserStats, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.stats != nil {
		return p.stats, nil
	}
	return core.NewUserStats(userID), nil
}

// errEmbedder 永远失败的嵌入器，伪装成指定标识（触发编码降级路径）。
type errEmbedder struct {
	id  string
	dim int
}

func (e *errEmbedder) ModelID() string { return e.id }
func (e *errEmbedder) Dimension() int  { return e.dim }
func (e *errEmbedder) EncodeText(ctx context.Context, text string) ([]float64, error) {
	return nil, fmt.Errorf("embedder down")
}
func (e *errEmbedder) EncodeTexts(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, fmt.Errorf("embedder down")
}

// writeBundle 训练一个小模型包写到临时目录，嵌入器标识可指定。
func writeBundle(t *testing.T, embedderID string, dim int) string {
	t.Helper()
	schema := feature.BuildSchema(dim)

	rng := rand.New(rand.NewSource(17))
	n := 150
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, schema.Len())
		for j := 0; j < 4; j++ {
			row[j] = rng.Float64()
		}
		x[i] = row
		if row[0] > 0.5 {
			y[i] = 1
		}
	}

	opts := model.DefaultForestOptions()
	opts.NumTrees = 10
	forest, err := model.TrainForest(x, y, opts)
	if err != nil {
		t.Fatal(err)
	}
	scores, err := forest.PredictBatch(x)
	if err != nil {
		t.Fatal(err)
	}
	cal, err := model.FitPlatt(scores, y)
	if err != nil {
		t.Fatal(err)
	}

	bundle := &model.Bundle{
		Version:    model.BundleVersion,
		TrainedAt:  time.Now().UTC(),
		EmbedderID: embedderID,
		Dimension:  dim,
		Columns:    schema.Columns,
		Forest:     forest,
		Calibrator: cal,
	}
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := model.SaveBundle(path, bundle); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPredictDeterministicWithinBand(t *testing.T) {
	path := writeBundle(t, "hash-ngram-16-v1", 16)
	svc := NewService(path, &stubProvider{})

	p := &core.QuestProposal{UserID: "u1", Name: "read ten pages", Category: "reading", Duration: 14, Difficulty: 3}
	p1 := svc.Predict(context.Background(), p)
	p2 := svc.Predict(context.Background(), p)

	if p1 != p2 {
		t.Errorf("same input must give same output: %v vs %v", p1, p2)
	}
	if p1 < ClipMin || p1 > ClipMax {
		t.Errorf("prediction %v outside [%v, %v]", p1, ClipMin, ClipMax)
	}
}

func TestPredictMissingBundleFallsBackToNeutral(t *testing.T) {
	var logged bool
	svc := NewService(filepath.Join(t.TempDir(), "absent.json"), &stubProvider{},
		WithLogger(func(format string, args ...any) { logged = true }))

	got := svc.Predict(context.Background(), &core.QuestProposal{UserID: "u1", Name: "anything"})
	if got != core.NeutralSuccessRate {
		t.Errorf("missing bundle: got %v, want neutral %v", got, core.NeutralSuccessRate)
	}
	if !logged {
		t.Error("degraded path must go through the logger hook")
	}
	if svc.Loaded() {
		t.Error("failed load must not be cached as loaded")
	}
}

func TestPredictStatsProviderFailure(t *testing.T) {
	path := writeBundle(t, "hash-ngram-16-v1", 16)
	svc := NewService(path, &stubProvider{err: fmt.Errorf("store down")})

	got := svc.Predict(context.Background(), &core.QuestProposal{UserID: "u1", Name: "read"})
	if got < ClipMin || got > ClipMax {
		t.Errorf("stats failure must still yield a clipped prediction, got %v", got)
	}
}

func TestPredictEncodeFailureFallsBackToUserAverage(t *testing.T) {
	// 远程嵌入器标识无法凭标识重建，显式注入一个会失败的实现
	path := writeBundle(t, "remote:test-encoder", 16)
	stats := &core.UserStats{UserID: "u1", TotalQuests: 8, CompletedQuests: 6, AvgSuccessRate: 0.75}
	svc := NewService(path, &stubProvider{stats: stats},
		WithEmbedder(&errEmbedder{id: "remote:test-encoder", dim: 16}))

	got := svc.Predict(context.Background(), &core.QuestProposal{UserID: "u1", Name: "read"})
	if got != 0.75 {
		t.Errorf("encode failure: got %v, want user average 0.75", got)
	}
}

func TestPredictAppliesAdjustmentRules(t *testing.T) {
	path := writeBundle(t, "hash-ngram-16-v1", 16)
	rules, err := dsl.Compile([]dsl.Rule{{When: `prob >= 0.0`, Adjust: 1.0}})
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(path, &stubProvider{}, WithRules(rules))

	got := svc.Predict(context.Background(), &core.QuestProposal{UserID: "u1", Name: "read"})
	if got != ClipMax {
		t.Errorf("big positive adjustment must clip at %v, got %v", ClipMax, got)
	}
}

func TestReload(t *testing.T) {
	path := writeBundle(t, "hash-ngram-16-v1", 16)
	svc := NewService(path, &stubProvider{})

	if err := svc.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !svc.Loaded() {
		t.Fatal("bundle should be loaded")
	}

	svc.Reload()
	if svc.Loaded() {
		t.Fatal("Reload must drop the in-memory bundle")
	}
	if err := svc.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !svc.Loaded() {
		t.Error("bundle should be reloaded on demand")
	}
}
