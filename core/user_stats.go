package core

// NeutralSuccessRate 是无历史用户的中性先验成功率。
// 最重要的不变量：全新用户必须得到 0.5，而不是 0 或未定义值。
const NeutralSuccessRate = 0.5

// UserStats 是按用户聚合的派生统计（Feature Store 中的用户侧特征）。
//
// 这些值由完整任务历史重算得出，不做单条增量更新；
// 训练前必须先刷新（见 feature.Aggregator.Refresh），
// 保证训练时的特征分布与推理时老用户看到的一致。
type UserStats struct {
	UserID            string  `json:"user_id"`
	TotalQuests       int     `json:"total_quests"`
	CompletedQuests   int     `json:"completed_quests"`
	StreakDays        int     `json:"streak_days"`
	PreferredCategory string  `json:"preferred_category"`
	AvgSuccessRate    float64 `json:"average_success_rate"`
}

// NewUserStats 返回无历史用户的中性默认统计：
// total=0, completed=0, streak=0, preferred_category="none", average_success_rate=0.5。
func NewUserStats(userID string) *UserStats {
	return &UserStats{
		UserID:            userID,
		PreferredCategory: CategoryNone,
		AvgSuccessRate:    NeutralSuccessRate,
	}
}
