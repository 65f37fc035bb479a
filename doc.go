// Package questkit 是习惯养成应用的任务成功率预测工具包（Quest Kit）。
//
// 设计要点：
// - 离线训练 / 在线推理共享同一套特征编码与列契约（Schema 随模型包持久化，永不漂移）
// - 模型包整体原子落盘与整体加载，重新训练即全量替换
// - 推理永不失败：模型缺失、统计不可用、编码出错都走降级路径返回合理的保底值
package questkit

import (
	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/predict"
	"github.com/rushteam/questkit/train"
)

// 轻量 facade：便于用户直接 import "questkit" 使用核心抽象。
type Quest = core.Quest
type QuestProposal = core.QuestProposal
type UserStats = core.UserStats

type Trainer = train.Trainer
type Predictor = predict.Service

const (
	// NeutralSuccessRate 是无信号时的中性保底概率
	NeutralSuccessRate = core.NeutralSuccessRate
)
