package core

import (
	"strings"
	"time"
)

// 缺失值的默认填充：进入编码器/嵌入器之前，duration 和 difficulty 必须有值。
const (
	DefaultDuration   = 5 // 缺失 duration 的默认天数
	DefaultDifficulty = 3 // 缺失 difficulty 的默认难度

	MinDifficulty = 1
	MaxDifficulty = 5
)

// 类别词表相关常量。
const (
	// CategoryGeneral 是兜底类别：未知/未识别的类别一律归入 general。
	CategoryGeneral = "general"

	// CategoryNone 仅用于 preferred_category：无历史用户的偏好类别。
	CategoryNone = "none"
)

// KnownCategories 是封闭的类别词表。
// 训练和推理必须使用同一份词表做 One-Hot 编码，顺序即编码顺序，不可变更。
// "none" 作为参照水平（reference level）在编码时被丢弃，见 feature 包。
var KnownCategories = []string{
	"reading",
	"study",
	"exercise",
	"work",
	"hobby",
	"health",
	CategoryGeneral,
	CategoryNone,
}

// NormalizeCategory 将任意类别字符串映射到封闭词表。
// 未识别的类别归入 general，而不是引入新列。
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return CategoryGeneral
	}
	for _, known := range KnownCategories {
		if c == known {
			return c
		}
	}
	return CategoryGeneral
}

// ClampDuration 处理缺失/非法的 duration：缺失（<=0）取默认值，下限 1 天。
func ClampDuration(duration int) int {
	if duration <= 0 {
		return DefaultDuration
	}
	return duration
}

// ClampDifficulty 处理缺失/非法的 difficulty：缺失（<=0）取默认值，其余收敛到 [1,5]。
func ClampDifficulty(difficulty int) int {
	if difficulty <= 0 {
		return DefaultDifficulty
	}
	if difficulty < MinDifficulty {
		return MinDifficulty
	}
	if difficulty > MaxDifficulty {
		return MaxDifficulty
	}
	return difficulty
}

// Quest 是一条历史任务记录（训练样本）。
//
// 字段约定：
//   - Category 可以是任意字符串，编码前通过 NormalizeCategory 收敛到封闭词表
//   - SuccessRate 是创建任务时记录的预测成功率，0 表示未记录
//     （有效值总在裁剪区间 [0.05, 0.95] 内，不会与 0 混淆）
//   - CompletedAt 仅在 Completed 为 true 时有值
type Quest struct {
	ID         int64
	UserID     string
	Name       string
	Motivation string // 可选的动机描述文本
	Category   string
	Duration   int // 预计天数，>=1
	Difficulty int // 难度，1..5
	Completed  bool

	SuccessRate float64 // 历史预测成功率，0 表示未记录

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// EmbeddingText 返回送入文本嵌入器的拼接文本：name + " " + motivation。
// motivation 缺失时退化为 name 本身。
func (q *Quest) EmbeddingText() string {
	return JoinEmbeddingText(q.Name, q.Motivation)
}

// QuestProposal 是推理入口的输入：用户提出的一条新任务。
type QuestProposal struct {
	UserID     string
	Name       string
	Duration   int    // 可缺失（<=0），编码时填默认值
	Difficulty int    // 可缺失（<=0），编码时填默认值
	Category   string // 可缺失，编码时归入 general
	Motivation string // 可缺失
}

// EmbeddingText 返回送入文本嵌入器的拼接文本，与训练侧 Quest.EmbeddingText 保持同一规则。
func (p *QuestProposal) EmbeddingText() string {
	return JoinEmbeddingText(p.Name, p.Motivation)
}

// JoinEmbeddingText 是训练/推理共用的文本拼接规则。
// 两侧必须走同一函数，否则嵌入输入会出现不可见的偏移。
func JoinEmbeddingText(name, motivation string) string {
	name = strings.TrimSpace(name)
	motivation = strings.TrimSpace(motivation)
	if motivation == "" {
		return name
	}
	return name + " " + motivation
}
