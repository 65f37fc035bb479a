package feature

import (
	"fmt"

	"github.com/rushteam/questkit/core"
)

// NumericColumns 是特征表中的数值列，顺序即编码顺序，不可变更。
// user_success_rate 与 average_success_rate 取值相同，保留冗余命名以兼容旧特征表。
var NumericColumns = []string{
	"duration",
	"difficulty",
	"success_rate",
	"total_quests",
	"completed_quests",
	"streak_days",
	"average_success_rate",
	"user_success_rate",
}

// Schema 是特征表的列契约：训练时固定，随模型包持久化，推理时据此对齐。
//
// 设计要点：
//   - 列集来自封闭词表的完整交叉积，而不是某个批次里恰好出现的类别；
//     否则一次推理请求没命中的类别会让特征向量悄悄错位
//   - 推理侧不重新推导列集，直接使用模型包里持久化的这一份
//     （训练与推理共享同一个事实来源）
type Schema struct {
	Columns []string `json:"columns"`

	index map[string]int
}

// NewSchema 用给定列集构造 Schema（通常来自模型包元数据）。
func NewSchema(columns []string) *Schema {
	s := &Schema{Columns: columns}
	s.buildIndex()
	return s
}

// BuildSchema 从封闭类别词表与嵌入维度构造完整列集：
// 数值列 + 两个类别字段的 One-Hot 列（丢弃参照水平 "none"）+ 嵌入列 emb_0..emb_{dim-1}。
func BuildSchema(dimension int) *Schema {
	columns := make([]string, 0, len(NumericColumns)+2*(len(core.KnownCategories)-1)+dimension)
	columns = append(columns, NumericColumns...)
	for _, cat := range core.KnownCategories {
		if cat == oneHotReference {
			continue
		}
		columns = append(columns, "category_"+cat)
	}
	for _, cat := range core.KnownCategories {
		if cat == oneHotReference {
			continue
		}
		columns = append(columns, "preferred_category_"+cat)
	}
	for i := 0; i < dimension; i++ {
		columns = append(columns, fmt.Sprintf("emb_%d", i))
	}
	return NewSchema(columns)
}

func (s *Schema) buildIndex() {
	s.index = make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		s.index[c] = i
	}
}

// Len 返回列数。
func (s *Schema) Len() int { return len(s.Columns) }

// Reindex 把特征字典对齐成与训练列一致的向量：
// 缺失的期望列填 0，多余的列丢弃，顺序强制与训练时一致。
// 这是训练/推理一致性契约的关键操作，列漂移在这里被设计性吸收，不上报错误。
func (s *Schema) Reindex(features map[string]float64) []float64 {
	if s.index == nil {
		s.buildIndex()
	}
	row := make([]float64, len(s.Columns))
	for name, value := range features {
		if i, ok := s.index[name]; ok {
			row[i] = value
		}
	}
	return row
}

// Equal 判断两个 Schema 的列集与顺序是否完全一致。
func (s *Schema) Equal(other *Schema) bool {
	if other == nil || len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// EmbeddingDimension 返回列集中嵌入列的数量。
// 用于加载模型包时校验嵌入器维度（维度不符意味着嵌入器版本不匹配，属致命加载错误）。
func (s *Schema) EmbeddingDimension() int {
	n := 0
	for _, c := range s.Columns {
		if len(c) > 4 && c[:4] == "emb_" {
			n++
		}
	}
	return n
}
