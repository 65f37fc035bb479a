// Package config 提供 YAML 配置加载与组件装配。
// 训练任务与推理服务共用一份配置文件，保证两侧读到同一个模型包路径与嵌入器设置。
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/questkit/pkg/dsl"
)

// Config 是完整的运行配置。
//
// 示例（YAML）：
//
//	model:
//	  bundle_path: data/model/bundle.json
//	  embedder: hash-ngram-256-v1
//	train:
//	  holdout_ratio: 0.2
//	  min_samples: 10
//	  num_trees: 100
//	stores:
//	  postgres_dsn: postgres://app@localhost/quests?sslmode=disable
//	  redis_addr: localhost:6379
//	rules:
//	  - when: 'stats.streak_days >= 7'
//	    adjust: 0.03
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Train  TrainConfig  `yaml:"train"`
	Stores StoresConfig `yaml:"stores"`
	Feast  FeastConfig  `yaml:"feast"`
	Rules  []dsl.Rule   `yaml:"rules"`
}

// ModelConfig 模型与嵌入器配置。
type ModelConfig struct {
	// BundlePath 模型包路径（训练写入、推理读取）
	BundlePath string `yaml:"bundle_path"`

	// Embedder 嵌入器标识：
	//   - "hash-ngram-<dim>-v1"：进程内哈希嵌入器（默认）
	//   - "remote:<model>"：外部句向量服务（需要 endpoint 与 dimension）
	Embedder string `yaml:"embedder"`

	// Dimension 远程嵌入器的向量维度（本地哈希嵌入器从标识解析）
	Dimension int `yaml:"dimension"`

	// Endpoint 远程嵌入服务端点（仅 remote 嵌入器）
	Endpoint string `yaml:"endpoint"`
}

// TrainConfig 训练参数。
type TrainConfig struct {
	HoldoutRatio     float64 `yaml:"holdout_ratio"`
	MinSamples       int     `yaml:"min_samples"`
	Seed             int64   `yaml:"seed"`
	NumTrees         int     `yaml:"num_trees"`
	MaxDepth         int     `yaml:"max_depth"`
	MinSamplesLeaf   int     `yaml:"min_samples_leaf"`
	EmbedBatch       int     `yaml:"embed_batch"`
	EmbedConcurrency int     `yaml:"embed_concurrency"`
}

// StoresConfig 存储后端配置。
type StoresConfig struct {
	// PostgresDSN 任务历史库连接串；为空时用内存实现（测试/原型）
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisAddr 聚合统计缓存镜像；为空时不做镜像
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	// CacheTTL 缓存秒数，默认 3600
	CacheTTL int `yaml:"cache_ttl"`
}

// FeastConfig Feast 在线存储配置（可选；配置后推理侧用 Feast 读统计）。
type FeastConfig struct {
	Endpoint string `yaml:"endpoint"`
	Project  string `yaml:"project"`

	// FeatureView 特征视图名，默认 "user_stats"
	FeatureView string `yaml:"feature_view"`
}

// Default 返回全部默认值的配置。
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			BundlePath: "data/model/bundle.json",
			Embedder:   "hash-ngram-256-v1",
		},
		Train: TrainConfig{
			HoldoutRatio:     0.2,
			MinSamples:       10,
			Seed:             42,
			NumTrees:         100,
			MaxDepth:         8,
			MinSamplesLeaf:   2,
			EmbedBatch:       64,
			EmbedConcurrency: 4,
		},
		Stores: StoresConfig{
			CacheTTL: 3600,
		},
	}
}

// Load 从文件加载配置，未出现的字段保持默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置的内部一致性。
func (c *Config) Validate() error {
	if c.Model.BundlePath == "" {
		return fmt.Errorf("model.bundle_path is required")
	}
	if c.Model.Embedder == "" {
		return fmt.Errorf("model.embedder is required")
	}
	if isRemoteEmbedder(c.Model.Embedder) {
		if c.Model.Endpoint == "" {
			return fmt.Errorf("model.endpoint is required for remote embedder %q", c.Model.Embedder)
		}
		if c.Model.Dimension <= 0 {
			return fmt.Errorf("model.dimension is required for remote embedder %q", c.Model.Embedder)
		}
	}
	if c.Train.HoldoutRatio <= 0 || c.Train.HoldoutRatio >= 1 {
		return fmt.Errorf("train.holdout_ratio must be in (0, 1), got %v", c.Train.HoldoutRatio)
	}
	return nil
}
