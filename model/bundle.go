package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/feature"
)

// BundleVersion 是当前模型包格式版本。
const BundleVersion = 1

// Bundle 是一次训练产出的完整模型包：(分类器, 嵌入器标识, 列契约) 三者绑定持久化，
// 保证特征维度与列身份在训练进程和推理进程之间永不漂移。
//
// 生命周期：
//   - 训练管线产出并整体原子写入（临时文件 + rename）
//   - 推理服务首次调用时整体加载进进程内存，此后只读共享
//   - 只能由重新训练整体替换，没有增量更新
//
// 分类器与嵌入器是两个可独立恢复的制品：
// 分类器走 JSON 反序列化；嵌入器只持久化标识字符串，
// 加载时凭标识新建实例（NewEmbedderFromID），不抢救序列化内部状态。
type Bundle struct {
	Version    int       `json:"version"`
	TrainedAt  time.Time `json:"trained_at"`
	EmbedderID string    `json:"embedder_id"`
	Dimension  int       `json:"dimension"`

	// Columns 训练时的精确列集与顺序（推理侧 Reindex 的事实来源）
	Columns []string `json:"columns"`

	Forest     *RandomForest    `json:"forest"`
	Calibrator *PlattCalibrator `json:"calibrator"`

	// Metrics 训练时的留出集诊断指标（仅记录，不作为门槛）
	Metrics map[string]float64 `json:"metrics,omitempty"`

	embedder core.TextEmbedder
	schema   *feature.Schema
}

// 模型包错误定义
var (
	// ErrBundleNotFound 表示模型文件不存在（推理侧可降级，训练侧需先产出）
	ErrBundleNotFound = core.NewDomainError(core.ModuleModel, core.ErrorCodeNotFound, "model: bundle file not found")
)

// Schema 返回训练列契约。
func (b *Bundle) Schema() *feature.Schema {
	if b.schema == nil {
		b.schema = feature.NewSchema(b.Columns)
	}
	return b.schema
}

// Classifier 返回组合分类器（森林 + 校准）。
func (b *Bundle) Classifier() core.Classifier {
	return &CalibratedForest{Forest: b.Forest, Calibrator: b.Calibrator}
}

// Embedder 返回嵌入器实例；尚未恢复时为 nil。
func (b *Bundle) Embedder() core.TextEmbedder { return b.embedder }

// SetEmbedder 显式注入嵌入器（远程嵌入器等无法凭标识重建的实现）。
// 标识或维度与模型包不符时拒绝，防止两侧模型混用。
func (b *Bundle) SetEmbedder(embedder core.TextEmbedder) error {
	if embedder.ModelID() != b.EmbedderID {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeSchemaMismatch,
			fmt.Sprintf("model: embedder id mismatch: bundle has %q, got %q", b.EmbedderID, embedder.ModelID()))
	}
	if embedder.Dimension() != b.Dimension {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeSchemaMismatch,
			fmt.Sprintf("model: embedder dimension mismatch: bundle has %d, got %d", b.Dimension, embedder.Dimension()))
	}
	b.embedder = embedder
	return nil
}

// Validate 校验模型包内部一致性：列集里的嵌入维度必须与记录的维度一致，
// 分类器的特征数必须与列数一致。不符说明嵌入器/模型版本错配，属致命加载错误。
func (b *Bundle) Validate() error {
	if b.Forest == nil {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: bundle has no classifier")
	}
	schema := b.Schema()
	if got := schema.EmbeddingDimension(); got != b.Dimension {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeSchemaMismatch,
			fmt.Sprintf("model: bundle embedding dimension %d does not match schema columns %d", b.Dimension, got))
	}
	if schema.Len() != b.Forest.NumFeatures {
		return core.NewDomainError(core.ModuleModel, core.ErrorCodeSchemaMismatch,
			fmt.Sprintf("model: bundle has %d columns but classifier expects %d features", schema.Len(), b.Forest.NumFeatures))
	}
	return nil
}

// SaveBundle 把模型包原子写入目标路径：先写同目录临时文件，再 rename 整体替换。
func SaveBundle(path string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bundle-*.json")
	if err != nil {
		return fmt.Errorf("create temp bundle: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp bundle: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace bundle: %w", err)
	}
	return nil
}

// LoadBundle 从磁盘加载模型包（两段式）：
//
//	第一段：JSON 反序列化分类器与元数据，做一致性校验；
//	第二段：凭嵌入器标识新建嵌入器实例。
//
// 第二段失败（如标识是需要显式注入的远程嵌入器）不视为加载失败，
// 调用方可随后 SetEmbedder；但 Embedder() 为 nil 时不可用于推理。
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBundleNotFound
		}
		return nil, fmt.Errorf("read bundle: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if embedder, err := NewEmbedderFromID(b.EmbedderID); err == nil {
		if err := b.SetEmbedder(embedder); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
