package model

import (
	"math"

	"github.com/rushteam/questkit/core"
)

// PlattCalibrator 实现了 Platt Scaling 概率校准。
//
// 核心思想：
//   - 树集成的原始投票占比只保证排序，不具有概率意义
//   - 在留出集上拟合 sigmoid(A*s + B)，把原始分数映射为校准概率
//     （输出 0.7 ≈ 这类样本里约 70% 实际成功）
//   - 拟合使用 Lin/Weng/Keerthi 的 Newton 迭代，目标值做 Platt 平滑
type PlattCalibrator struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// FitPlatt 在 (原始分数, 标签) 上拟合校准参数。
// 标签必须同时包含正负两类，否则返回 ErrDegenerateLabels。
func FitPlatt(scores, labels []float64) (*PlattCalibrator, error) {
	n := len(scores)
	if n == 0 || len(labels) != n {
		return nil, ErrNoSamples
	}

	var prior0, prior1 float64
	for _, y := range labels {
		if y >= 0.5 {
			prior1++
		} else {
			prior0++
		}
	}
	if prior0 == 0 || prior1 == 0 {
		return nil, ErrDegenerateLabels
	}

	// Platt 目标值平滑，避免 0/1 硬目标过拟合
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	targets := make([]float64, n)
	for i, y := range labels {
		if y >= 0.5 {
			targets[i] = hiTarget
		} else {
			targets[i] = loTarget
		}
	}

	// Newton 迭代（Lin, Lin & Weng, 2007）
	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)

	fval := 0.0
	for i := 0; i < n; i++ {
		fApB := scores[i]*a + b
		if fApB >= 0 {
			fval += targets[i]*fApB + math.Log(1+math.Exp(-fApB))
		} else {
			fval += (targets[i]-1)*fApB + math.Log(1+math.Exp(fApB))
		}
	}

	for iter := 0; iter < maxIter; iter++ {
		// 梯度与 Hessian
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i := 0; i < n; i++ {
			fApB := scores[i]*a + b
			var p, q float64
			if fApB >= 0 {
				p = math.Exp(-fApB) / (1 + math.Exp(-fApB))
				q = 1 / (1 + math.Exp(-fApB))
			} else {
				p = 1 / (1 + math.Exp(fApB))
				q = math.Exp(fApB) / (1 + math.Exp(fApB))
			}
			d1 := targets[i] - p
			d2 := p * q
			h11 += scores[i] * scores[i] * d2
			h22 += d2
			h21 += scores[i] * d2
			g1 += scores[i] * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		// Newton 方向
		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		// 回溯线搜索
		step := 1.0
		for step >= minStep {
			newA, newB := a+step*dA, b+step*dB
			newF := 0.0
			for i := 0; i < n; i++ {
				fApB := scores[i]*newA + newB
				if fApB >= 0 {
					newF += targets[i]*fApB + math.Log(1+math.Exp(-fApB))
				} else {
					newF += (targets[i]-1)*fApB + math.Log(1+math.Exp(fApB))
				}
			}
			if newF < fval+1e-4*step*gd {
				a, b, fval = newA, newB, newF
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}

	return &PlattCalibrator{A: a, B: b}, nil
}

// Calibrate 把原始分数映射为校准后的概率。
func (c *PlattCalibrator) Calibrate(score float64) float64 {
	fApB := score*c.A + c.B
	if fApB >= 0 {
		return math.Exp(-fApB) / (1 + math.Exp(-fApB))
	}
	return 1 / (1 + math.Exp(fApB))
}

// CalibratedForest 是 (随机森林, Platt 校准) 的组合分类器，
// 即训练产物中的完整分类器，实现 core.Classifier。
type CalibratedForest struct {
	Forest     *RandomForest    `json:"forest"`
	Calibrator *PlattCalibrator `json:"calibrator"`
}

var _ core.Classifier = (*CalibratedForest)(nil)

func (c *CalibratedForest) Name() string { return "calibrated_random_forest" }

// PredictProba 返回校准后的正类概率。
func (c *CalibratedForest) PredictProba(features []float64) (float64, error) {
	raw, err := c.Forest.PredictProba(features)
	if err != nil {
		return 0, err
	}
	if c.Calibrator == nil {
		return raw, nil
	}
	return c.Calibrator.Calibrate(raw), nil
}
