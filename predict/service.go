// Package predict 提供任务成功率的在线推理服务。
package predict

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/feature"
	"github.com/rushteam/questkit/model"
	"github.com/rushteam/questkit/pkg/dsl"
)

// 输出概率的裁剪区间：预测值永远不给出 0% 或 100% 的绝对断言。
const (
	ClipMin = 0.05
	ClipMax = 0.95
)

// Service 是成功率推理服务。
//
// 模型生命周期：
//   - 模型包在首次预测时整体加载进内存，此后所有请求只读共享（进程内单例）
//   - 并发的首次加载通过 singleflight 合并，只有一次磁盘读
//   - 重新训练落盘后调用 Reload 使新模型生效
//
// 降级约定（预测永不让调用方失败）：
//   - 模型包缺失/损坏 → 返回中性值 0.5
//   - 用户统计读取失败 → 按无历史用户处理（中性默认统计）
//   - 编码或推理出错 → 返回该用户历史均值（无历史时 0.5）
type Service struct {
	// BundlePath 模型包路径
	BundlePath string

	// Provider 每次预测时实时读取的用户聚合统计来源
	Provider feature.StatsProvider

	// Rules 可选的预测调整规则（命中后在裁剪前累加）
	Rules *dsl.RuleSet

	// Embedder 可选：显式注入嵌入器（模型包标识无法重建的远程嵌入器）
	Embedder core.TextEmbedder

	// Logger 可选的日志钩子，降级路径会经过这里；nil 表示静默
	Logger func(format string, args ...any)

	mu      sync.RWMutex
	bundle  *model.Bundle
	encoder *feature.QuestEncoder
	sf      singleflight.Group
}

// Option Service 配置选项
type Option func(*Service)

// WithRules 设置预测调整规则。
func WithRules(rules *dsl.RuleSet) Option {
	return func(s *Service) { s.Rules = rules }
}

// WithEmbedder 显式注入嵌入器。
func WithEmbedder(embedder core.TextEmbedder) Option {
	return func(s *Service) { s.Embedder = embedder }
}

// WithLogger 设置日志钩子。
func WithLogger(logger func(format string, args ...any)) Option {
	return func(s *Service) { s.Logger = logger }
}

// NewService 创建推理服务。
func NewService(bundlePath string, provider feature.StatsProvider, opts ...Option) *Service {
	s := &Service{
		BundlePath: bundlePath,
		Provider:   provider,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureLoaded 加载模型包（幂等）。已加载时直接返回；
// 未加载时并发调用合并为一次磁盘读，失败不缓存，下次调用重试。
func (s *Service) EnsureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.bundle != nil
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := s.sf.Do("load", func() (any, error) {
		s.mu.RLock()
		loaded := s.bundle != nil
		s.mu.RUnlock()
		if loaded {
			return nil, nil
		}

		bundle, err := model.LoadBundle(s.BundlePath)
		if err != nil {
			return nil, err
		}
		if bundle.Embedder() == nil && s.Embedder != nil {
			if err := bundle.SetEmbedder(s.Embedder); err != nil {
				return nil, err
			}
		}
		if bundle.Embedder() == nil {
			return nil, core.NewDomainError(core.ModulePredict, core.ErrorCodeUnavailable,
				"predict: bundle embedder requires explicit injection, see Service.Embedder")
		}

		s.mu.Lock()
		s.bundle = bundle
		s.encoder = feature.NewQuestEncoder(bundle.Embedder())
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// Reload 丢弃内存中的模型包，下一次预测重新从磁盘加载。
// 重新训练落盘后调用，使新模型对后续请求生效。
func (s *Service) Reload() {
	s.mu.Lock()
	s.bundle = nil
	s.encoder = nil
	s.mu.Unlock()
}

// Loaded 返回模型包是否已在内存中。
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle != nil
}

// Predict 预测一条新任务的成功概率，返回值总在 [ClipMin, ClipMax] 内。
// 任何内部故障都走降级路径而不向调用方返回错误；同样输入总得到同样输出。
func (s *Service) Predict(ctx context.Context, p *core.QuestProposal) float64 {
	if err := s.EnsureLoaded(ctx); err != nil {
		s.logf("predict: bundle unavailable, fall back to neutral: %v", err)
		return core.NeutralSuccessRate
	}

	s.mu.RLock()
	bundle, encoder := s.bundle, s.encoder
	s.mu.RUnlock()

	stats, err := s.Provider.GetUserStats(ctx, p.UserID)
	if err != nil || stats == nil {
		if err != nil {
			s.logf("predict: user stats for %s unavailable, use neutral stats: %v", p.UserID, err)
		}
		stats = core.NewUserStats(p.UserID)
	}

	row, err := encoder.Row(ctx, p, stats, bundle.Schema())
	if err != nil {
		s.logf("predict: encode failed for user %s: %v", p.UserID, err)
		return s.fallback(stats)
	}

	prob, err := bundle.Classifier().PredictProba(row)
	if err != nil {
		s.logf("predict: classifier failed for user %s: %v", p.UserID, err)
		return s.fallback(stats)
	}

	if s.Rules.Len() > 0 {
		adjusted, err := s.Rules.Apply(p, stats, prob)
		if err != nil {
			s.logf("predict: adjustment rules failed, keep model output: %v", err)
		} else {
			prob = adjusted
		}
	}
	return clip(prob)
}

// fallback 返回模型不可用时的替代值：用户历史均值，无历史时中性值。
func (s *Service) fallback(stats *core.UserStats) float64 {
	if stats != nil && stats.TotalQuests > 0 {
		return clip(stats.AvgSuccessRate)
	}
	return core.NeutralSuccessRate
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger(format, args...)
	}
}

func clip(p float64) float64 {
	if p < ClipMin {
		return ClipMin
	}
	if p > ClipMax {
		return ClipMax
	}
	return p
}
