package train

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/feature"
	"github.com/rushteam/questkit/model"
	"github.com/rushteam/questkit/store"
)

var testClock = func() time.Time {
	return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
}

// seedQuests 生成确定性的标注样本：难度低的任务完成，难度高的失败。
// 标签与 difficulty 列强相关，训练出的模型应能把两类明显分开。
func seedQuests(users, perUser int) []*core.Quest {
	categories := []string{"reading", "exercise", "study", "work", "health"}
	names := []string{"read ten pages", "run 5km", "review notes", "finish report", "sleep early"}

	var quests []*core.Quest
	id := int64(0)
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("u%d", u+1)
		for i := 0; i < perUser; i++ {
			id++
			difficulty := i%5 + 1
			completed := difficulty <= 2
			q := &core.Quest{
				ID:         id,
				UserID:     userID,
				Name:       names[i%len(names)],
				Motivation: "build the habit",
				Category:   categories[i%len(categories)],
				Duration:   7 + i%14,
				Difficulty: difficulty,
				Completed:  completed,
				CreatedAt:  testClock().AddDate(0, 0, -perUser+i),
			}
			if completed {
				done := testClock().AddDate(0, 0, -(i % 3))
				q.CompletedAt = &done
			}
			quests = append(quests, q)
		}
	}
	return quests
}

func newTestTrainer(t *testing.T, quests []*core.Quest) (*Trainer, string) {
	t.Helper()
	qs := store.NewMemoryQuestStore()
	qs.Add(quests...)

	embedder := model.NewHashingEmbedder(16)
	aggregator := feature.NewAggregator(qs, feature.WithClock(testClock))

	opts := DefaultOptions()
	opts.BundlePath = filepath.Join(t.TempDir(), "bundle.json")
	opts.Forest.NumTrees = 30
	return New(qs, embedder, aggregator, opts), opts.BundlePath
}

func TestTrainEndToEnd(t *testing.T) {
	trainer, bundlePath := newTestTrainer(t, seedQuests(5, 10))

	report, err := trainer.Train(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Samples != 50 {
		t.Errorf("Samples = %d, want 50", report.Samples)
	}
	if report.TrainSize+report.HoldoutSize != report.Samples {
		t.Errorf("split sizes %d+%d != %d", report.TrainSize, report.HoldoutSize, report.Samples)
	}

	// 标签与 difficulty 强相关，留出集 AUC 应明显好于随机
	if auc := report.Metrics["auc"]; auc <= 0.6 {
		t.Errorf("holdout auc = %v, want > 0.6 on separable data", auc)
	}
	for _, key := range []string{"accuracy", "precision", "recall", "f1", "brier"} {
		if _, ok := report.Metrics[key]; !ok {
			t.Errorf("metrics missing %q", key)
		}
	}

	// 模型包落盘且能整体恢复
	bundle, err := model.LoadBundle(bundlePath)
	if err != nil {
		t.Fatal(err)
	}
	if bundle.EmbedderID != "hash-ngram-16-v1" {
		t.Errorf("bundle embedder id = %q", bundle.EmbedderID)
	}
	if bundle.Embedder() == nil {
		t.Error("bundle embedder should be restored from id")
	}
	if !bundle.Schema().Equal(feature.BuildSchema(16)) {
		t.Error("bundle schema must match the training schema")
	}
}

func TestTrainRefreshesUserStats(t *testing.T) {
	quests := seedQuests(3, 10)
	qs := store.NewMemoryQuestStore()
	qs.Add(quests...)

	embedder := model.NewHashingEmbedder(16)
	aggregator := feature.NewAggregator(qs, feature.WithClock(testClock))
	opts := DefaultOptions()
	opts.BundlePath = filepath.Join(t.TempDir(), "bundle.json")
	opts.Forest.NumTrees = 10
	trainer := New(qs, embedder, aggregator, opts)

	if _, err := trainer.Train(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats := qs.GetUserStats("u1")
	if stats == nil {
		t.Fatal("training must write back refreshed user stats")
	}
	if stats.TotalQuests != 10 {
		t.Errorf("u1 TotalQuests = %d, want 10", stats.TotalQuests)
	}
	if stats.CompletedQuests != 4 {
		t.Errorf("u1 CompletedQuests = %d, want 4", stats.CompletedQuests)
	}
}

func TestTrainNotEnoughData(t *testing.T) {
	trainer, _ := newTestTrainer(t, seedQuests(1, 5))

	_, err := trainer.Train(context.Background())
	if !core.IsNoData(err) {
		t.Errorf("got %v, want NO_DATA for too few samples", err)
	}
}

func TestTrainDegenerateLabels(t *testing.T) {
	quests := seedQuests(3, 10)
	for _, q := range quests {
		q.Completed = true
		if q.CompletedAt == nil {
			done := testClock()
			q.CompletedAt = &done
		}
	}
	trainer, _ := newTestTrainer(t, quests)

	_, err := trainer.Train(context.Background())
	if !core.IsDegenerateData(err) {
		t.Errorf("got %v, want DEGENERATE_DATA for single-class labels", err)
	}
}

func TestTrainMissingColumn(t *testing.T) {
	quests := seedQuests(2, 10)
	quests[7].Name = ""
	trainer, _ := newTestTrainer(t, quests)

	_, err := trainer.Train(context.Background())
	domainErr := core.GetDomainError(err)
	if domainErr == nil || domainErr.Code != core.ErrorCodeMissingColumn {
		t.Fatalf("got %v, want MISSING_COLUMN", err)
	}
	if want := "name"; !strings.Contains(domainErr.Message, want) {
		t.Errorf("error %q must identify the missing column %q", domainErr.Message, want)
	}
}

func TestEvaluatePerfectRanking(t *testing.T) {
	labels := []float64{0, 0, 1, 1}
	probs := []float64{0.1, 0.2, 0.8, 0.9}

	metrics := Evaluate(labels, probs)
	if metrics["auc"] != 1.0 {
		t.Errorf("auc = %v, want 1.0 for perfect ranking", metrics["auc"])
	}
	if metrics["accuracy"] != 1.0 {
		t.Errorf("accuracy = %v, want 1.0", metrics["accuracy"])
	}
}

func TestEvaluateTiedScores(t *testing.T) {
	labels := []float64{0, 1, 0, 1}
	probs := []float64{0.5, 0.5, 0.5, 0.5}

	if auc := Evaluate(labels, probs)["auc"]; auc != 0.5 {
		t.Errorf("auc = %v, want 0.5 for constant scores", auc)
	}
}
