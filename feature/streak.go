package feature

import (
	"sort"
	"time"
)

// CalculateStreakDays 计算“当前连续打卡天数”：
// 以日历天为单位，统计以最近一次完成日结尾的连续天数。
//
// 规则：
//   - 连续的判定按 UTC 日历日，同一天多次完成只算一天
//   - 最近一次完成早于昨天（相对 today），视为断签，返回 0
//   - 只追踪当前连击，不记录历史最佳
func CalculateStreakDays(completions []time.Time, today time.Time) int {
	if len(completions) == 0 {
		return 0
	}

	// 去重为日历天序号
	seen := make(map[int]struct{}, len(completions))
	for _, t := range completions {
		seen[dayNumber(t)] = struct{}{}
	}
	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(days)))

	// 最近完成日早于昨天 → 断签
	last := days[0]
	if last < dayNumber(today)-1 {
		return 0
	}

	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i] != last-streak {
			break
		}
		streak++
	}
	return streak
}

// dayNumber 把时间换算成自 Unix 纪元起的 UTC 日历天序号。
func dayNumber(t time.Time) int {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(midnight.Unix() / 86400)
}
