package feast

import (
	"context"
	"fmt"

	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/pkg/conv"
)

// 用户聚合统计在 Feast 里的默认特征视图与特征名。
const (
	DefaultFeatureView = "user_stats"
	EntityKey          = "user_id"
)

// statsFeatures 是推理需要的全部统计特征（短名，按视图前缀拼全名）。
var statsFeatures = []string{
	"total_quests",
	"completed_quests",
	"streak_days",
	"preferred_category",
	"avg_success_rate",
}

// StatsProvider 从 Feast 在线存储读取用户聚合统计（实现 feature.StatsProvider）。
//
// 使用前提：独立的物化管线把 user_stats 特征视图写进了在线存储。
// 聚合值存在滞后（由物化周期决定）；要读最新活动用 feature.Aggregator 实时重算。
//
// 缺失语义与实时重算保持一致：
// 在线存储里查不到的用户按无历史处理，返回中性默认统计。
type StatsProvider struct {
	Client Client

	// FeatureView 特征视图名，默认 "user_stats"
	FeatureView string
}

// NewStatsProvider 创建 Feast 统计提供者。
func NewStatsProvider(client Client) *StatsProvider {
	return &StatsProvider{
		Client:      client,
		FeatureView: DefaultFeatureView,
	}
}

func (p *StatsProvider) Name() string { return "feast" }

// GetUserStats 在线读取单个用户的聚合统计。
func (p *StatsProvider) GetUserStats(ctx context.Context, userID string) (*core.UserStats, error) {
	view := p.FeatureView
	if view == "" {
		view = DefaultFeatureView
	}

	features := make([]string, len(statsFeatures))
	for i, name := range statsFeatures {
		features[i] = view + ":" + name
	}

	resp, err := p.Client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   features,
		EntityRows: []map[string]interface{}{{EntityKey: userID}},
	})
	if err != nil {
		return nil, fmt.Errorf("feast online features: %w", err)
	}
	if len(resp.FeatureVectors) == 0 {
		return core.NewUserStats(userID), nil
	}

	return p.buildStats(userID, view, resp.FeatureVectors[0].Values), nil
}

// buildStats 把在线特征值装配成 UserStats，缺失字段保持中性默认值。
func (p *StatsProvider) buildStats(userID, view string, values map[string]interface{}) *core.UserStats {
	stats := core.NewUserStats(userID)

	if v, ok := conv.ToInt(values[view+":total_quests"]); ok {
		stats.TotalQuests = v
	}
	if v, ok := conv.ToInt(values[view+":completed_quests"]); ok {
		stats.CompletedQuests = v
	}
	if v, ok := conv.ToInt(values[view+":streak_days"]); ok {
		stats.StreakDays = v
	}
	if v, ok := conv.ToString(values[view+":preferred_category"]); ok && v != "" {
		stats.PreferredCategory = core.NormalizeCategory(v)
	}
	if v, ok := conv.ToFloat64(values[view+":avg_success_rate"]); ok {
		stats.AvgSuccessRate = v
	}
	return stats
}
