// Package service 包含外部机器学习服务的客户端实现（core.MLService 的基础设施层）。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rushteam/questkit/core"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Type 认证类型：basic, bearer, api_key
	Type string

	// Username 用户名（basic auth）
	Username string

	// Password 密码（basic auth）
	Password string

	// Token Token（bearer auth）
	Token string

	// APIKey API Key（api_key auth）
	APIKey string
}

// EmbeddingHTTPClient 是句向量服务的 HTTP 客户端实现。
//
// 约定的 REST API 格式（TorchServe 风格）：
//   - 编码端点：POST /predictions/{model_name}
//   - 请求体：{"texts": ["...", "..."]}
//   - 响应：{"vectors": [[...], [...]]} 或直接返回向量数组
//   - 健康检查端点：GET /ping
//
// 工程特征：
//   - 实时性：好（REST API 低延迟）
//   - 使用场景：model.RemoteEmbedder 通过此客户端调用外部嵌入模型
type EmbeddingHTTPClient struct {
	// Endpoint 服务端点，例如 "http://localhost:8080"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选）
	ModelVersion string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	// httpClient HTTP 客户端
	httpClient *http.Client
}

// EmbeddingOption 客户端配置选项
type EmbeddingOption func(*EmbeddingHTTPClient)

// WithVersion 设置模型版本
func WithVersion(version string) EmbeddingOption {
	return func(c *EmbeddingHTTPClient) {
		c.ModelVersion = version
	}
}

// WithTimeout 设置超时时间
func WithTimeout(timeout time.Duration) EmbeddingOption {
	return func(c *EmbeddingHTTPClient) {
		c.Timeout = timeout
		if c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithAuth 设置认证信息
func WithAuth(auth *AuthConfig) EmbeddingOption {
	return func(c *EmbeddingHTTPClient) {
		c.Auth = auth
	}
}

// WithHTTPClient 设置自定义 HTTP 客户端
func WithHTTPClient(httpClient *http.Client) EmbeddingOption {
	return func(c *EmbeddingHTTPClient) {
		c.httpClient = httpClient
	}
}

// NewEmbeddingHTTPClient 创建句向量服务客户端。
func NewEmbeddingHTTPClient(endpoint, modelName string, opts ...EmbeddingOption) *EmbeddingHTTPClient {
	client := &EmbeddingHTTPClient{
		Endpoint:  endpoint,
		ModelName: modelName,
		Timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{
			Timeout: client.Timeout,
		}
	}
	return client
}

// Predict 批量编码（实现 core.MLService 接口）。
// 文本通过 req.Params["texts"] 传入，响应向量写入 Vectors。
func (c *EmbeddingHTTPClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if req.Params == nil {
		return nil, fmt.Errorf("params with texts are required")
	}
	texts, ok := req.Params["texts"]
	if !ok {
		return nil, fmt.Errorf("params with texts are required")
	}

	modelName := req.ModelName
	if modelName == "" {
		modelName = c.ModelName
	}
	url := fmt.Sprintf("%s/predictions/%s", c.Endpoint, modelName)
	if c.ModelVersion != "" {
		url = fmt.Sprintf("%s?version=%s", url, c.ModelVersion)
	}

	jsonData, err := json.Marshal(map[string]interface{}{"texts": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	vectors, err := parseVectors(bodyBytes)
	if err != nil {
		return nil, err
	}

	return &core.MLPredictResponse{
		Vectors:      vectors,
		Outputs:      string(bodyBytes),
		ModelVersion: c.ModelVersion,
	}, nil
}

// parseVectors 解析响应里的向量数组。
// 支持 {"vectors": [[...]]}、{"embeddings": [[...]]} 和裸数组三种格式。
func parseVectors(body []byte) ([][]float64, error) {
	var direct [][]float64
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("unable to parse response: %s", string(body))
	}
	for _, key := range []string{"vectors", "embeddings", "predictions"} {
		if raw, ok := obj[key]; ok {
			var vectors [][]float64
			if err := json.Unmarshal(raw, &vectors); err != nil {
				return nil, fmt.Errorf("parse %s: %w", key, err)
			}
			return vectors, nil
		}
	}
	return nil, fmt.Errorf("no vectors in response: %s", string(body))
}

// addAuth 添加认证信息到 HTTP 请求
func (c *EmbeddingHTTPClient) addAuth(req *http.Request) {
	if c.Auth == nil {
		return
	}
	switch c.Auth.Type {
	case "basic":
		req.SetBasicAuth(c.Auth.Username, c.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.Auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", c.Auth.APIKey)
	}
}

// Health 健康检查（GET /ping）
func (c *EmbeddingHTTPClient) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/ping", c.Endpoint)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Close 关闭连接
func (c *EmbeddingHTTPClient) Close(ctx context.Context) error {
	// HTTP 客户端不需要显式关闭
	return nil
}

// 确保 EmbeddingHTTPClient 实现了 core.MLService 接口
var _ core.MLService = (*EmbeddingHTTPClient)(nil)
