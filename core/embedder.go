package core

import "context"

// TextEmbedder 是文本嵌入器的领域接口。
//
// 契约：
//   - 输入任意字符串（任务名 + 动机文本的拼接），输出固定维度的稠密向量
//   - 单条编码与批量编码对同一文本必须产出逐位一致的结果
//   - 必须能在纯 CPU 环境运行；确定性（同输入同输出）
//   - ModelID 是普通字符串标识，序列化的模型包只记录标识，
//     加载失败时凭标识重建新实例（两段式加载契约），而不是修补序列化字节
//
// 实现：
//   - model.HashingEmbedder 本地确定性实现（默认）
//   - model.RemoteEmbedder 通过 MLService 调用外部嵌入服务
type TextEmbedder interface {
	// ModelID 返回模型标识（如 "hash-ngram-256-v1"），随模型包持久化
	ModelID() string

	// Dimension 返回输出向量维度
	Dimension() int

	// EncodeText 编码单条文本（推理路径）
	EncodeText(ctx context.Context, text string) ([]float64, error)

	// EncodeTexts 批量编码（训练路径），逐项结果与单条编码一致
	EncodeTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// Classifier 是二分类概率模型的最小抽象：输入对齐后的特征向量，输出“完成”类的概率。
// 具体实现可以是本地模型（随机森林 + 校准）或远程推理服务。
type Classifier interface {
	Name() string

	// PredictProba 返回正类（completed=true）的概率，范围 (0,1)。
	// 输入向量必须已按训练时的列顺序对齐（见 feature.Schema.Reindex）。
	PredictProba(features []float64) (float64, error)
}
