package dsl

import (
	"math"
	"testing"

	"github.com/rushteam/questkit/core"
)

func TestRuleSetApply(t *testing.T) {
	rs, err := Compile([]Rule{
		{When: `quest.difficulty >= 4 && stats.streak_days == 0`, Adjust: -0.05},
		{When: `stats.streak_days >= 7`, Adjust: 0.03},
	})
	if err != nil {
		t.Fatal(err)
	}

	p := &core.QuestProposal{UserID: "u1", Name: "hard quest", Difficulty: 5}
	stats := core.NewUserStats("u1")

	got, err := rs.Apply(p, stats, 0.6)
	if err != nil {
		t.Fatal(err)
	}
	if want := 0.55; math.Abs(got-want) > 1e-12 {
		t.Errorf("Apply = %v, want %v (first rule hits)", got, want)
	}

	stats.StreakDays = 10
	got, err = rs.Apply(p, stats, 0.6)
	if err != nil {
		t.Fatal(err)
	}
	if want := 0.63; math.Abs(got-want) > 1e-12 {
		t.Errorf("Apply = %v, want %v (second rule hits)", got, want)
	}
}

func TestRuleSetEmpty(t *testing.T) {
	var rs *RuleSet
	got, err := rs.Apply(&core.QuestProposal{}, core.NewUserStats("u"), 0.5)
	if err != nil || got != 0.5 {
		t.Errorf("nil rule set must pass probability through, got %v, %v", got, err)
	}
}

func TestCompileInvalidExpression(t *testing.T) {
	if _, err := Compile([]Rule{{When: `quest.difficulty >=`, Adjust: 0.1}}); err == nil {
		t.Error("invalid expression must fail at compile time")
	}
}

func TestRuleSetNonBooleanExpression(t *testing.T) {
	rs, err := Compile([]Rule{{When: `prob + 0.1`, Adjust: 0.1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Apply(&core.QuestProposal{}, core.NewUserStats("u"), 0.5); err == nil {
		t.Error("non-boolean rule result must be rejected at eval time")
	}
}
