// Package dsl 提供基于 CEL 的预测结果调整规则。
// 运营可以用表达式对模型输出做小幅后处理，而不必改代码重新发布。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/questkit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("quest", cel.DynType),
		cel.Variable("stats", cel.DynType),
		cel.Variable("prob", cel.DoubleType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	var err error
	celEnvOnce.Do(func() {
		celEnv, err = initCELEnv()
	})
	if celEnv == nil && err == nil {
		err = fmt.Errorf("cel env not initialized")
	}
	return celEnv, err
}

// Rule 是一条调整规则：When 条件命中时给预测概率加上 Adjust。
//
// 表达式语法（CEL 标准语法），可用变量：
//   - quest.category / quest.duration / quest.difficulty
//   - stats.streak_days / stats.total_quests / stats.avg_success_rate
//   - prob（模型输出的校准概率）
//
// 示例：
//   - `quest.difficulty >= 4 && stats.streak_days == 0` → Adjust -0.05
//   - `stats.streak_days >= 7` → Adjust +0.03
type Rule struct {
	When   string  `yaml:"when" json:"when"`
	Adjust float64 `yaml:"adjust" json:"adjust"`
}

// RuleSet 是编译好的规则集合，线程安全，可跨请求复用。
type RuleSet struct {
	rules    []Rule
	programs []cel.Program
}

// Compile 编译规则集合。任何一条表达式非法立即失败，不允许带病上线。
func Compile(rules []Rule) (*RuleSet, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	rs := &RuleSet{
		rules:    rules,
		programs: make([]cel.Program, len(rules)),
	}
	for i, rule := range rules {
		ast, issues := env.Compile(rule.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %d compile error: %v", i, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %d program error: %v", i, err)
		}
		rs.programs[i] = prg
	}
	return rs, nil
}

// Len 返回规则条数。
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Apply 依次执行全部规则，命中的调整量累加到概率上。
// 返回值未裁剪，由调用方收敛到输出区间。
func (rs *RuleSet) Apply(p *core.QuestProposal, stats *core.UserStats, prob float64) (float64, error) {
	if rs == nil || len(rs.rules) == 0 {
		return prob, nil
	}

	input := buildInput(p, stats, prob)
	adjusted := prob
	for i, prg := range rs.programs {
		out, _, err := prg.Eval(input)
		if err != nil {
			return prob, fmt.Errorf("rule %d eval error: %v", i, err)
		}
		hit, ok := out.Value().(bool)
		if !ok {
			return prob, fmt.Errorf("rule %d must return boolean, got %T", i, out.Value())
		}
		if hit {
			adjusted += rs.rules[i].Adjust
		}
	}
	return adjusted, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(p *core.QuestProposal, stats *core.UserStats, prob float64) map[string]interface{} {
	quest := map[string]interface{}{
		"user_id":    p.UserID,
		"name":       p.Name,
		"category":   core.NormalizeCategory(p.Category),
		"duration":   core.ClampDuration(p.Duration),
		"difficulty": core.ClampDifficulty(p.Difficulty),
	}
	user := map[string]interface{}{
		"user_id":            stats.UserID,
		"total_quests":       stats.TotalQuests,
		"completed_quests":   stats.CompletedQuests,
		"streak_days":        stats.StreakDays,
		"preferred_category": stats.PreferredCategory,
		"avg_success_rate":   stats.AvgSuccessRate,
	}
	return map[string]interface{}{
		"quest": quest,
		"stats": user,
		"prob":  prob,
	}
}
