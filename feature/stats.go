package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/questkit/core"
)

// StatsProvider 是推理时获取用户聚合统计的统一接口，采用策略模式。
//
// 实现：
//   - Aggregator 从 QuestStore 实时重算（默认，保证读到最新活动）
//   - feast.StatsProvider 从已部署的 Feature Store 在线读取
type StatsProvider interface {
	// Name 返回提供者名称（用于日志/监控）
	Name() string

	// GetUserStats 获取单个用户的聚合统计；无历史用户返回中性默认值
	GetUserStats(ctx context.Context, userID string) (*core.UserStats, error)
}

// statsCacheKeyPrefix 是聚合统计在 KV 缓存里的 key 前缀。
const statsCacheKeyPrefix = "questkit:user_stats:"

// StatsCacheKey 返回某个用户聚合统计的缓存 key。
func StatsCacheKey(userID string) string {
	return statsCacheKeyPrefix + userID
}

// Aggregator 是用户聚合统计的计算与刷新器（Feature Store Accessor）。
//
// 职责：
//   - 从完整任务历史重算每个用户的聚合统计（不做单条增量更新）
//   - 训练前刷新：写回持久化用户记录，并镜像到 KV 缓存供展示层读取
//   - 推理时按需实时计算（实现 StatsProvider）
//
// 并发约定：刷新是对全量历史的读-算-写快照操作，
// 单个用户的写回由 QuestStore.UpdateUserStats 保证原子性。
type Aggregator struct {
	Store core.QuestStore

	// Cache 可选：刷新时把聚合结果镜像进 KV 存储（TTL 见 CacheTTL）
	Cache core.Store

	// CacheTTL 缓存秒数，默认 3600
	CacheTTL int

	// Concurrency 刷新时的并发用户数，默认 4
	Concurrency int

	// Now 用于测试注入时钟，默认 time.Now
	Now func() time.Time
}

// AggregatorOption Aggregator 配置选项
type AggregatorOption func(*Aggregator)

// WithStatsCache 设置聚合统计的 KV 缓存镜像。
func WithStatsCache(cache core.Store, ttlSeconds int) AggregatorOption {
	return func(a *Aggregator) {
		a.Cache = cache
		if ttlSeconds > 0 {
			a.CacheTTL = ttlSeconds
		}
	}
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.Now = now
	}
}

// WithRefreshConcurrency 设置刷新时的并发用户数。
func WithRefreshConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.Concurrency = n
		}
	}
}

// NewAggregator 创建聚合器。
func NewAggregator(store core.QuestStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		Store:       store,
		CacheTTL:    3600,
		Concurrency: 4,
		Now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Name() string { return "aggregator" }

// GetUserStats 实时计算某个用户的聚合统计（实现 StatsProvider）。
// 无任何历史记录时返回中性默认值：{0, 0, 0, "none", 0.5}。
func (a *Aggregator) GetUserStats(ctx context.Context, userID string) (*core.UserStats, error) {
	quests, err := a.Store.ListUserQuests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user quests: %w", err)
	}
	return a.ComputeUserStats(userID, quests), nil
}

// ComputeUserStats 由一个用户的全量任务历史算出聚合统计。
//
// 计算规则：
//   - preferred_category：出现次数最多的类别，平手取先出现者（稳定遍历顺序）
//   - streak_days：当前连续打卡天数，见 CalculateStreakDays
//   - average_success_rate：逐任务成功率（记录过的预测率，否则取完成与否的 0/1）的均值
func (a *Aggregator) ComputeUserStats(userID string, quests []*core.Quest) *core.UserStats {
	stats := core.NewUserStats(userID)
	if len(quests) == 0 {
		return stats
	}

	stats.TotalQuests = len(quests)

	counts := make(map[string]int, len(core.KnownCategories))
	order := make([]string, 0, len(core.KnownCategories))
	completions := make([]time.Time, 0, len(quests))
	rateSum := 0.0

	for _, q := range quests {
		if q.Completed {
			stats.CompletedQuests++
			if q.CompletedAt != nil {
				completions = append(completions, *q.CompletedAt)
			}
		}

		cat := core.NormalizeCategory(q.Category)
		if _, ok := counts[cat]; !ok {
			order = append(order, cat)
		}
		counts[cat]++

		switch {
		case q.SuccessRate > 0:
			rateSum += q.SuccessRate
		case q.Completed:
			rateSum += 1.0
		}
	}

	// 众数类别，平手取先出现者
	best, bestCount := core.CategoryNone, 0
	for _, cat := range order {
		if counts[cat] > bestCount {
			best, bestCount = cat, counts[cat]
		}
	}
	stats.PreferredCategory = best

	stats.StreakDays = CalculateStreakDays(completions, a.Now())
	stats.AvgSuccessRate = rateSum / float64(stats.TotalQuests)
	return stats
}

// Refresh 重算全部用户的聚合统计并写回：
// 先写持久化用户记录（QuestStore.UpdateUserStats），再镜像进 KV 缓存。
// 必须在每轮训练前执行，保证训练特征分布与推理时老用户看到的一致。
func (a *Aggregator) Refresh(ctx context.Context) (map[string]*core.UserStats, error) {
	userIDs, err := a.Store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}

	results := make([]*core.UserStats, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Concurrency)
	for i, userID := range userIDs {
		i, userID := i, userID
		g.Go(func() error {
			stats, err := a.GetUserStats(gctx, userID)
			if err != nil {
				return err
			}
			if err := a.Store.UpdateUserStats(gctx, stats); err != nil {
				return fmt.Errorf("update user stats %s: %w", userID, err)
			}
			results[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make(map[string]*core.UserStats, len(results))
	for _, stats := range results {
		all[stats.UserID] = stats
	}

	if a.Cache != nil {
		if err := a.cacheStats(ctx, all); err != nil {
			return nil, fmt.Errorf("cache user stats: %w", err)
		}
	}
	return all, nil
}

func (a *Aggregator) cacheStats(ctx context.Context, all map[string]*core.UserStats) error {
	kvs := make(map[string][]byte, len(all))
	for userID, stats := range all {
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		kvs[StatsCacheKey(userID)] = data
	}
	return a.Cache.BatchSet(ctx, kvs, a.CacheTTL)
}

// UserCompletedCounts 统计每个用户完成的任务数（展示层摘要）。
func UserCompletedCounts(quests []*core.Quest) map[string]int {
	counts := make(map[string]int)
	for _, q := range quests {
		if q.Completed {
			counts[q.UserID]++
		}
	}
	return counts
}

// CategoryCompletionRates 统计每个类别的完成率（展示层摘要）。
func CategoryCompletionRates(quests []*core.Quest) map[string]float64 {
	totals := make(map[string]int)
	completed := make(map[string]int)
	for _, q := range quests {
		cat := core.NormalizeCategory(q.Category)
		totals[cat]++
		if q.Completed {
			completed[cat]++
		}
	}
	rates := make(map[string]float64, len(totals))
	for cat, total := range totals {
		rates[cat] = float64(completed[cat]) / float64(total)
	}
	return rates
}
