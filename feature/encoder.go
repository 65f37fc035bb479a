package feature

import (
	"context"
	"fmt"

	"github.com/rushteam/questkit/core"
)

// oneHotReference 是 One-Hot 编码丢弃的参照水平。
// 训练和推理必须丢同一个水平；"none" 对任务类别永远不会出现
// （未知类别归入 general），对偏好类别恰好让无历史用户编码成全零。
const oneHotReference = core.CategoryNone

// OneHotEncoder One-Hot 编码（独热编码）
// 将类别特征转换为二进制指示列，每个已知类别对应一列，参照水平被丢弃。
type OneHotEncoder struct {
	Categories []string // 封闭类别词表，顺序即列顺序
	Reference  string   // 被丢弃的参照水平
}

// NewOneHotEncoder 创建基于封闭词表的 One-Hot 编码器。
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{
		Categories: core.KnownCategories,
		Reference:  oneHotReference,
	}
}

// EncodeWithKey 编码单个值（指定特征名前缀）。
// 未识别的值先归入 general，不会引入新列。
func (e *OneHotEncoder) EncodeWithKey(key string, value string) map[string]float64 {
	encoded := make(map[string]float64, len(e.Categories)-1)
	val := core.NormalizeCategory(value)
	for _, cat := range e.Categories {
		if cat == e.Reference {
			continue
		}
		name := fmt.Sprintf("%s_%s", key, cat)
		if cat == val {
			encoded[name] = 1.0
		} else {
			encoded[name] = 0.0
		}
	}
	return encoded
}

// QuestEncoder 把一条 (任务, 用户统计) 组装成完整的特征字典。
//
// 编码步骤（顺序固定）：
//  1. 缺失的 duration/difficulty 填默认值并收敛范围
//  2. 计算 name + " " + motivation 的文本嵌入
//  3. 组装数值特征：duration、difficulty、success_rate 及全部用户聚合字段
//  4. 对 category 与 preferred_category 做封闭词表 One-Hot（统一丢参照水平）
//  5. 嵌入向量展开为命名列 emb_0..emb_{D-1}
//
// 原始 id / name / motivation 不进入特征集。
type QuestEncoder struct {
	Embedder core.TextEmbedder

	oneHot *OneHotEncoder
}

// NewQuestEncoder 创建特征编码器。
func NewQuestEncoder(embedder core.TextEmbedder) *QuestEncoder {
	return &QuestEncoder{
		Embedder: embedder,
		oneHot:   NewOneHotEncoder(),
	}
}

// EncodeProposal 编码一条推理请求（成功率字段取用户历史均值作为稳定代理信号）。
func (e *QuestEncoder) EncodeProposal(ctx context.Context, p *core.QuestProposal, stats *core.UserStats) (map[string]float64, error) {
	embedding, err := e.Embedder.EncodeText(ctx, p.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("encode proposal text: %w", err)
	}
	return e.assemble(p.Duration, p.Difficulty, p.Category, stats.AvgSuccessRate, stats, embedding), nil
}

// EncodeQuest 编码一条历史记录（训练样本）。
// success_rate 优先用该任务自身记录的历史预测率，未记录时退回用户均值。
// embedding 由训练管线批量计算后传入。
func (e *QuestEncoder) EncodeQuest(q *core.Quest, stats *core.UserStats, embedding []float64) map[string]float64 {
	successRate := q.SuccessRate
	if successRate == 0 {
		successRate = stats.AvgSuccessRate
	}
	return e.assemble(q.Duration, q.Difficulty, q.Category, successRate, stats, embedding)
}

// Row 编码一条推理请求并按给定 Schema 对齐成特征向量。
func (e *QuestEncoder) Row(ctx context.Context, p *core.QuestProposal, stats *core.UserStats, schema *Schema) ([]float64, error) {
	features, err := e.EncodeProposal(ctx, p, stats)
	if err != nil {
		return nil, err
	}
	return schema.Reindex(features), nil
}

func (e *QuestEncoder) assemble(duration, difficulty int, category string, successRate float64, stats *core.UserStats, embedding []float64) map[string]float64 {
	features := make(map[string]float64, len(NumericColumns)+2*len(core.KnownCategories)+len(embedding))

	// 数值特征
	features["duration"] = float64(core.ClampDuration(duration))
	features["difficulty"] = float64(core.ClampDifficulty(difficulty))
	features["success_rate"] = successRate
	features["total_quests"] = float64(stats.TotalQuests)
	features["completed_quests"] = float64(stats.CompletedQuests)
	features["streak_days"] = float64(stats.StreakDays)
	features["average_success_rate"] = stats.AvgSuccessRate
	features["user_success_rate"] = stats.AvgSuccessRate

	// 类别特征
	for k, v := range e.oneHot.EncodeWithKey("category", category) {
		features[k] = v
	}
	for k, v := range e.oneHot.EncodeWithKey("preferred_category", stats.PreferredCategory) {
		features[k] = v
	}

	// 嵌入特征
	for i, v := range embedding {
		features[fmt.Sprintf("emb_%d", i)] = v
	}
	return features
}
