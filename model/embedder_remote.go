package model

import (
	"context"
	"fmt"

	"github.com/rushteam/questkit/core"
)

// RemoteEmbedder 通过外部 ML 服务做句向量编码。
//
// 核心思想：
//   - 预训练多语言句向量模型（如 SBERT 系列）部署为独立服务
//   - 本端只持有模型标识与维度，通过 core.MLService 批量调用
//   - 服务端模型升级 = 换模型标识并重新训练，两侧永不混用
//
// 工程特征：
//   - 实时性：中等（一次 RPC，支持批量）
//   - 语义理解：强（预训练模型捕捉深层语义）
type RemoteEmbedder struct {
	// Service ML 服务接口（用于调用外部嵌入服务）
	Service core.MLService

	// ModelName 服务端模型名称
	ModelName string

	dim int
}

var _ core.TextEmbedder = (*RemoteEmbedder)(nil)

// NewRemoteEmbedder 创建远程嵌入器。
func NewRemoteEmbedder(service core.MLService, modelName string, dim int) *RemoteEmbedder {
	return &RemoteEmbedder{
		Service:   service,
		ModelName: modelName,
		dim:       dim,
	}
}

// ModelID 返回 "remote:" 前缀的模型标识。
func (e *RemoteEmbedder) ModelID() string { return "remote:" + e.ModelName }

func (e *RemoteEmbedder) Dimension() int { return e.dim }

// EncodeText 编码单条文本。
func (e *RemoteEmbedder) EncodeText(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.EncodeTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EncodeTexts 批量编码文本为向量。
func (e *RemoteEmbedder) EncodeTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if e.Service == nil {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeUnavailable, "model: embedding service is not set")
	}
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	req := &core.MLPredictRequest{
		ModelName: e.ModelName,
		Params: map[string]interface{}{
			"texts": texts,
		},
	}
	resp, err := e.Service.Predict(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("remote embedding failed: %w", err)
	}

	if len(resp.Vectors) != len(texts) {
		return nil, fmt.Errorf("vector count mismatch: expected %d, got %d", len(texts), len(resp.Vectors))
	}
	for i, vec := range resp.Vectors {
		if len(vec) != e.dim {
			return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeSchemaMismatch,
				fmt.Sprintf("model: embedding dimension mismatch at %d: got %d, expects %d", i, len(vec), e.dim))
		}
	}
	return resp.Vectors, nil
}
