package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/rushteam/questkit/core"
)

// DefaultEmbedderID 是默认文本嵌入器的模型标识。
const DefaultEmbedderID = "hash-ngram-256-v1"

// DefaultEmbeddingDim 是默认嵌入维度。
const DefaultEmbeddingDim = 256

// HashingEmbedder 是本地确定性句向量嵌入器。
//
// 核心思想：
//   - 词 + 字符 3-gram 做带符号哈希（signed feature hashing），落入固定维度桶
//   - 向量做 L2 归一化，相近文本共享 n-gram，向量余弦相近
//   - 对任意文字（含多语言脚本）都可用：n-gram 按 rune 切，不依赖分词器
//
// 工程特征：
//   - 确定性：同文本同向量，单条与批量编码逐位一致
//   - 纯 CPU，无外部模型文件，模型标识即全部配置
//   - 语义强度弱于预训练句向量模型，可用 RemoteEmbedder 替换，
//     只要训练/推理两侧使用同一模型标识
type HashingEmbedder struct {
	id  string
	dim int
}

var _ core.TextEmbedder = (*HashingEmbedder)(nil)

// NewHashingEmbedder 创建指定维度的哈希嵌入器。
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &HashingEmbedder{
		id:  fmt.Sprintf("hash-ngram-%d-v1", dim),
		dim: dim,
	}
}

func (e *HashingEmbedder) ModelID() string { return e.id }
func (e *HashingEmbedder) Dimension() int  { return e.dim }

// EncodeText 编码单条文本。空文本返回零向量。
func (e *HashingEmbedder) EncodeText(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		e.addFeature(vec, "w:"+token)

		runes := []rune(token)
		if len(runes) < 3 {
			continue
		}
		for i := 0; i+3 <= len(runes); i++ {
			e.addFeature(vec, "g:"+string(runes[i:i+3]))
		}
	}

	// L2 归一化
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// EncodeTexts 批量编码，逐项结果与单条编码一致。
func (e *HashingEmbedder) EncodeTexts(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.EncodeText(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// addFeature 带符号哈希：低位定桶，一个独立位定符号。
func (e *HashingEmbedder) addFeature(vec []float64, feat string) {
	h := fnv.New64a()
	h.Write([]byte(feat))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dim))
	if (sum>>63)&1 == 1 {
		vec[bucket] -= 1.0
	} else {
		vec[bucket] += 1.0
	}
}

// ErrUnknownEmbedder 表示无法由模型标识重建嵌入器。
var ErrUnknownEmbedder = core.NewDomainError(core.ModuleModel, core.ErrorCodeNotFound, "model: unknown embedder id")

// NewEmbedderFromID 凭模型标识重建嵌入器实例。
//
// 这是两段式加载契约的第二段：模型包反序列化时只恢复标识字符串，
// 嵌入器本体由标识新建，而不是从序列化字节里抢救第三方内部状态。
// 远程嵌入器（"remote:" 前缀）携带外部依赖，无法凭标识凭空重建，
// 需要调用方显式注入（见 Bundle.SetEmbedder）。
func NewEmbedderFromID(id string) (core.TextEmbedder, error) {
	const prefix = "hash-ngram-"
	if strings.HasPrefix(id, prefix) && strings.HasSuffix(id, "-v1") {
		dimStr := strings.TrimSuffix(strings.TrimPrefix(id, prefix), "-v1")
		dim, err := strconv.Atoi(dimStr)
		if err == nil && dim > 0 {
			return NewHashingEmbedder(dim), nil
		}
	}
	return nil, ErrUnknownEmbedder
}
