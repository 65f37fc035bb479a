package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rushteam/questkit/core"
)

// RandomForest 实现了随机森林二分类器。
//
// 核心思想：
//   - 自助采样（bootstrap）+ 特征子采样训练多棵决策树
//   - 各树叶子正类占比取平均，得到原始投票分数
//   - 原始分数只保证排序，概率意义需要配合 PlattCalibrator 校准
//
// 工程特征：
//   - 实时性：好（推理只是若干次树下行）
//   - 确定性：同一随机种子下训练与推理完全可复现
//   - 类别不平衡：通过逐类别权重处理（balanced 权重）
type RandomForest struct {
	Trees []*treeNode `json:"trees"`

	// NumFeatures 训练时的特征维度，推理输入必须一致
	NumFeatures int `json:"num_features"`

	// ClassWeights 训练时的类别权重 [负类, 正类]
	ClassWeights [2]float64 `json:"class_weights"`

	// Seed 训练随机种子
	Seed int64 `json:"seed"`
}

// ForestOptions 随机森林训练参数。
type ForestOptions struct {
	NumTrees       int   // 树的数量，默认 100
	MaxDepth       int   // 最大深度，默认 8
	MinSamplesLeaf int   // 叶子最小样本数，默认 2
	Seed           int64 // 随机种子，默认 42
}

// DefaultForestOptions 返回默认训练参数。
func DefaultForestOptions() ForestOptions {
	return ForestOptions{
		NumTrees:       100,
		MaxDepth:       8,
		MinSamplesLeaf: 2,
		Seed:           42,
	}
}

// 随机森林错误定义
var (
	// ErrNoSamples 表示训练样本为空
	ErrNoSamples = core.NewDomainError(core.ModuleModel, core.ErrorCodeNoData, "model: no training samples")

	// ErrDegenerateLabels 表示标签全为同一类，无法训练有意义的分类器
	ErrDegenerateLabels = core.NewDomainError(core.ModuleModel, core.ErrorCodeDegenerateData, "model: labels contain a single class only")
)

// TrainForest 在特征矩阵 x（行与 feature.Schema 对齐）和标签 y（0/1）上训练随机森林。
//
// 失败语义：
//   - 空数据集返回 ErrNoSamples
//   - 单一类别标签返回 ErrDegenerateLabels，绝不静默产出常量输出模型
func TrainForest(x [][]float64, y []float64, opts ForestOptions) (*RandomForest, error) {
	if len(x) == 0 || len(y) != len(x) {
		return nil, ErrNoSamples
	}

	var pos, neg int
	for _, label := range y {
		if label >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return nil, ErrDegenerateLabels
	}

	if opts.NumTrees <= 0 {
		opts.NumTrees = DefaultForestOptions().NumTrees
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultForestOptions().MaxDepth
	}
	if opts.MinSamplesLeaf <= 0 {
		opts.MinSamplesLeaf = DefaultForestOptions().MinSamplesLeaf
	}

	n := len(x)
	// balanced 类别权重：n / (2 * n_class)
	weights := [2]float64{
		float64(n) / (2 * float64(neg)),
		float64(n) / (2 * float64(pos)),
	}

	numFeatures := len(x[0])
	params := treeParams{
		maxDepth:         opts.MaxDepth,
		minSamplesLeaf:   opts.MinSamplesLeaf,
		featuresPerSplit: int(math.Ceil(math.Sqrt(float64(numFeatures)))),
		weights:          weights,
	}

	forest := &RandomForest{
		Trees:        make([]*treeNode, opts.NumTrees),
		NumFeatures:  numFeatures,
		ClassWeights: weights,
		Seed:         opts.Seed,
	}

	for t := 0; t < opts.NumTrees; t++ {
		// 每棵树一个独立且确定的随机源
		rng := rand.New(rand.NewSource(opts.Seed + int64(t)))

		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		forest.Trees[t] = growTree(x, y, idx, 0, params, rng)
	}
	return forest, nil
}

func (f *RandomForest) Name() string { return "random_forest" }

// PredictProba 返回正类（完成）的原始投票占比。
// 输入向量维度必须与训练时一致；排序可靠，概率需经校准。
func (f *RandomForest) PredictProba(features []float64) (float64, error) {
	if len(features) != f.NumFeatures {
		return 0, core.NewDomainError(core.ModuleModel, core.ErrorCodeSchemaMismatch,
			fmt.Sprintf("model: feature dimension mismatch: got %d, expects %d", len(features), f.NumFeatures))
	}
	if len(f.Trees) == 0 {
		return 0, ErrNoSamples
	}

	sum := 0.0
	for _, tree := range f.Trees {
		sum += predictTree(tree, features)
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictBatch 批量预测（评估用）。
func (f *RandomForest) PredictBatch(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		p, err := f.PredictProba(row)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
