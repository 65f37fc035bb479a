package config

import (
	"fmt"
	"strings"

	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/feast"
	"github.com/rushteam/questkit/feature"
	"github.com/rushteam/questkit/model"
	"github.com/rushteam/questkit/pkg/dsl"
	"github.com/rushteam/questkit/predict"
	"github.com/rushteam/questkit/service"
	"github.com/rushteam/questkit/store"
	"github.com/rushteam/questkit/train"
)

func isRemoteEmbedder(id string) bool {
	return strings.HasPrefix(id, "remote:")
}

// BuildEmbedder 按配置创建嵌入器。
// 本地哈希嵌入器凭标识重建；远程嵌入器走 HTTP 句向量服务。
func BuildEmbedder(cfg *Config) (core.TextEmbedder, error) {
	id := cfg.Model.Embedder
	if isRemoteEmbedder(id) {
		modelName := strings.TrimPrefix(id, "remote:")
		client := service.NewEmbeddingHTTPClient(cfg.Model.Endpoint, modelName)
		return model.NewRemoteEmbedder(client, modelName, cfg.Model.Dimension), nil
	}
	return model.NewEmbedderFromID(id)
}

// BuildQuestStore 按配置创建任务历史存储。
// 未配置 Postgres 时退回内存实现（测试/原型）。
func BuildQuestStore(cfg *Config) (core.QuestStore, error) {
	if cfg.Stores.PostgresDSN != "" {
		return store.NewPostgresQuestStore(cfg.Stores.PostgresDSN)
	}
	return store.NewMemoryQuestStore(), nil
}

// BuildCache 按配置创建聚合统计的缓存镜像；未配置 Redis 时返回 nil（不镜像）。
func BuildCache(cfg *Config) (core.Store, error) {
	if cfg.Stores.RedisAddr == "" {
		return nil, nil
	}
	return store.NewRedisStore(cfg.Stores.RedisAddr, cfg.Stores.RedisDB)
}

// BuildAggregator 创建聚合器（带可选缓存镜像）。
func BuildAggregator(cfg *Config, questStore core.QuestStore, cache core.Store) *feature.Aggregator {
	var opts []feature.AggregatorOption
	if cache != nil {
		opts = append(opts, feature.WithStatsCache(cache, cfg.Stores.CacheTTL))
	}
	return feature.NewAggregator(questStore, opts...)
}

// BuildStatsProvider 创建推理侧的统计提供者。
// 配置了 Feast 时在线读取已物化的聚合统计，否则从任务历史实时重算。
func BuildStatsProvider(cfg *Config, aggregator *feature.Aggregator) (feature.StatsProvider, error) {
	if cfg.Feast.Endpoint == "" {
		return aggregator, nil
	}

	client, err := feast.NewClient(cfg.Feast.Endpoint, cfg.Feast.Project)
	if err != nil {
		return nil, fmt.Errorf("feast client: %w", err)
	}
	provider := feast.NewStatsProvider(client)
	if cfg.Feast.FeatureView != "" {
		provider.FeatureView = cfg.Feast.FeatureView
	}
	return provider, nil
}

// BuildTrainer 装配完整的训练管线。
func BuildTrainer(cfg *Config) (*train.Trainer, error) {
	embedder, err := BuildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	questStore, err := BuildQuestStore(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := BuildCache(cfg)
	if err != nil {
		return nil, err
	}
	aggregator := BuildAggregator(cfg, questStore, cache)

	opts := train.Options{
		BundlePath:       cfg.Model.BundlePath,
		HoldoutRatio:     cfg.Train.HoldoutRatio,
		MinSamples:       cfg.Train.MinSamples,
		Seed:             cfg.Train.Seed,
		EmbedBatch:       cfg.Train.EmbedBatch,
		EmbedConcurrency: cfg.Train.EmbedConcurrency,
		Forest: model.ForestOptions{
			NumTrees:       cfg.Train.NumTrees,
			MaxDepth:       cfg.Train.MaxDepth,
			MinSamplesLeaf: cfg.Train.MinSamplesLeaf,
			Seed:           cfg.Train.Seed,
		},
	}
	return train.New(questStore, embedder, aggregator, opts), nil
}

// BuildPredictService 装配推理服务。
func BuildPredictService(cfg *Config) (*predict.Service, error) {
	questStore, err := BuildQuestStore(cfg)
	if err != nil {
		return nil, err
	}
	aggregator := BuildAggregator(cfg, questStore, nil)
	provider, err := BuildStatsProvider(cfg, aggregator)
	if err != nil {
		return nil, err
	}

	var opts []predict.Option
	if len(cfg.Rules) > 0 {
		rules, err := dsl.Compile(cfg.Rules)
		if err != nil {
			return nil, fmt.Errorf("compile rules: %w", err)
		}
		opts = append(opts, predict.WithRules(rules))
	}
	if isRemoteEmbedder(cfg.Model.Embedder) {
		embedder, err := BuildEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, predict.WithEmbedder(embedder))
	}
	return predict.NewService(cfg.Model.BundlePath, provider, opts...), nil
}
