package feature

import (
	"context"
	"sort"
	"testing"

	"github.com/rushteam/questkit/core"
)

// stubEmbedder 是测试用的确定性嵌入器。
type stubEmbedder struct {
	dim int
}

func (s *stubEmbedder) ModelID() string { return "stub-embedder" }
func (s *stubEmbedder) Dimension() int  { return s.dim }

func (s *stubEmbedder) EncodeText(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, s.dim)
	for i := range vec {
		vec[i] = float64((len(text)+i)%7) / 7.0
	}
	return vec, nil
}

func (s *stubEmbedder) EncodeTexts(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec, err := s.EncodeText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestEncodeProposalColumnSetStable(t *testing.T) {
	enc := NewQuestEncoder(&stubEmbedder{dim: 8})
	stats := core.NewUserStats("u1")

	known, err := enc.EncodeProposal(context.Background(), &core.QuestProposal{
		UserID: "u1", Name: "read a book", Duration: 7, Difficulty: 2, Category: "reading",
	}, stats)
	if err != nil {
		t.Fatal(err)
	}
	unknown, err := enc.EncodeProposal(context.Background(), &core.QuestProposal{
		UserID: "u1", Name: "learn juggling", Duration: 7, Difficulty: 2, Category: "circus-arts",
	}, stats)
	if err != nil {
		t.Fatal(err)
	}

	// 未识别类别归入 general，不得引入新列
	ks1, ks2 := sortedKeys(known), sortedKeys(unknown)
	if len(ks1) != len(ks2) {
		t.Fatalf("column count differs: %d vs %d", len(ks1), len(ks2))
	}
	for i := range ks1 {
		if ks1[i] != ks2[i] {
			t.Fatalf("column set differs at %d: %q vs %q", i, ks1[i], ks2[i])
		}
	}
	if unknown["category_general"] != 1.0 {
		t.Errorf("unknown category should collapse to general, got %v", unknown["category_general"])
	}
}

func TestEncodeProposalDefaults(t *testing.T) {
	enc := NewQuestEncoder(&stubEmbedder{dim: 4})
	stats := core.NewUserStats("u1")

	features, err := enc.EncodeProposal(context.Background(), &core.QuestProposal{
		UserID: "u1", Name: "meditate",
	}, stats)
	if err != nil {
		t.Fatal(err)
	}

	if features["duration"] != float64(core.DefaultDuration) {
		t.Errorf("duration = %v, want default %d", features["duration"], core.DefaultDuration)
	}
	if features["difficulty"] != float64(core.DefaultDifficulty) {
		t.Errorf("difficulty = %v, want default %d", features["difficulty"], core.DefaultDifficulty)
	}
	if features["success_rate"] != core.NeutralSuccessRate {
		t.Errorf("success_rate = %v, want neutral %v", features["success_rate"], core.NeutralSuccessRate)
	}

	// 新用户 preferred_category = "none" 是参照水平，全部指示列为 0
	for _, cat := range core.KnownCategories {
		if cat == core.CategoryNone {
			continue
		}
		if features["preferred_category_"+cat] != 0.0 {
			t.Errorf("preferred_category_%s = %v, want 0", cat, features["preferred_category_"+cat])
		}
	}
}

func TestEncodeQuestSuccessRateSource(t *testing.T) {
	enc := NewQuestEncoder(&stubEmbedder{dim: 2})
	stats := core.NewUserStats("u1")
	stats.AvgSuccessRate = 0.8
	embedding := []float64{0.1, 0.2}

	withOwn := enc.EncodeQuest(&core.Quest{Name: "run", SuccessRate: 0.3, Duration: 5, Difficulty: 3}, stats, embedding)
	if withOwn["success_rate"] != 0.3 {
		t.Errorf("success_rate = %v, want own recorded 0.3", withOwn["success_rate"])
	}

	withoutOwn := enc.EncodeQuest(&core.Quest{Name: "run", Duration: 5, Difficulty: 3}, stats, embedding)
	if withoutOwn["success_rate"] != 0.8 {
		t.Errorf("success_rate = %v, want user average 0.8", withoutOwn["success_rate"])
	}
}

func TestRowMatchesSchema(t *testing.T) {
	dim := 8
	enc := NewQuestEncoder(&stubEmbedder{dim: dim})
	schema := BuildSchema(dim)
	stats := core.NewUserStats("u1")

	row, err := enc.Row(context.Background(), &core.QuestProposal{
		UserID: "u1", Name: "swim", Duration: 14, Difficulty: 4, Category: "exercise",
	}, stats, schema)
	if err != nil {
		t.Fatal(err)
	}
	if len(row) != schema.Len() {
		t.Fatalf("row length = %d, want %d", len(row), schema.Len())
	}
}
