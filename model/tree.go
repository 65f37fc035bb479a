package model

import (
	"math"
	"math/rand"
	"sort"
)

// treeNode 是决策树节点，叶子与内部节点共用一个结构（JSON 可序列化）。
type treeNode struct {
	// Feature 分裂特征下标，-1 表示叶子
	Feature int `json:"f"`

	// Threshold 分裂阈值：<= 走左子树，> 走右子树
	Threshold float64 `json:"t,omitempty"`

	Left  *treeNode `json:"l,omitempty"`
	Right *treeNode `json:"r,omitempty"`

	// Prob 叶子节点的正类加权占比
	Prob float64 `json:"p"`
}

const leafFeature = -1

// treeParams 是单棵树的生长参数。
type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	// featuresPerSplit 每次分裂随机考察的特征数（特征子采样）
	featuresPerSplit int
	// weights 逐类别权重 [负类, 正类]，用于类别不平衡
	weights [2]float64
}

// growTree 在给定样本子集上递归生长一棵树。
// idx 是本棵树（自助采样后）的样本下标集合。
func growTree(x [][]float64, y []float64, idx []int, depth int, p treeParams, rng *rand.Rand) *treeNode {
	node := &treeNode{Feature: leafFeature, Prob: weightedPositiveFraction(y, idx, p.weights)}

	if depth >= p.maxDepth || len(idx) < 2*p.minSamplesLeaf {
		return node
	}
	if node.Prob == 0 || node.Prob == 1 {
		// 纯节点无需继续分裂
		return node
	}

	feat, threshold, ok := bestSplit(x, y, idx, p, rng)
	if !ok {
		return node
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if x[i][feat] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < p.minSamplesLeaf || len(right) < p.minSamplesLeaf {
		return node
	}

	node.Feature = feat
	node.Threshold = threshold
	node.Left = growTree(x, y, left, depth+1, p, rng)
	node.Right = growTree(x, y, right, depth+1, p, rng)
	return node
}

// bestSplit 在随机抽取的候选特征上寻找加权基尼不纯度最小的分裂点。
func bestSplit(x [][]float64, y []float64, idx []int, p treeParams, rng *rand.Rand) (int, float64, bool) {
	numFeatures := len(x[idx[0]])
	candidates := rng.Perm(numFeatures)
	if p.featuresPerSplit < numFeatures {
		candidates = candidates[:p.featuresPerSplit]
	}

	bestGini := math.Inf(1)
	bestFeat, bestThreshold := -1, 0.0

	// 每个候选特征：按值排序后扫一遍前缀和
	for _, feat := range candidates {
		order := make([]int, len(idx))
		copy(order, idx)
		sortByFeature(x, order, feat)

		var totalNeg, totalPos float64
		for _, i := range order {
			if y[i] >= 0.5 {
				totalPos += p.weights[1]
			} else {
				totalNeg += p.weights[0]
			}
		}

		var leftNeg, leftPos float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			if y[i] >= 0.5 {
				leftPos += p.weights[1]
			} else {
				leftNeg += p.weights[0]
			}

			// 相同特征值之间不能切
			if x[order[k]][feat] == x[order[k+1]][feat] {
				continue
			}

			gini := weightedGini(leftNeg, leftPos, totalNeg-leftNeg, totalPos-leftPos)
			if gini < bestGini {
				bestGini = gini
				bestFeat = feat
				bestThreshold = (x[order[k]][feat] + x[order[k+1]][feat]) / 2
			}
		}
	}

	if bestFeat < 0 {
		return 0, 0, false
	}
	return bestFeat, bestThreshold, true
}

// weightedGini 计算一次二分的加权基尼不纯度（左右两侧按权重和加权平均）。
func weightedGini(leftNeg, leftPos, rightNeg, rightPos float64) float64 {
	gini := func(neg, pos float64) float64 {
		total := neg + pos
		if total == 0 {
			return 0
		}
		pNeg, pPos := neg/total, pos/total
		return 1 - pNeg*pNeg - pPos*pPos
	}
	leftTotal := leftNeg + leftPos
	rightTotal := rightNeg + rightPos
	total := leftTotal + rightTotal
	return (leftTotal*gini(leftNeg, leftPos) + rightTotal*gini(rightNeg, rightPos)) / total
}

// weightedPositiveFraction 计算样本子集上正类的加权占比。
func weightedPositiveFraction(y []float64, idx []int, weights [2]float64) float64 {
	var neg, pos float64
	for _, i := range idx {
		if y[i] >= 0.5 {
			pos += weights[1]
		} else {
			neg += weights[0]
		}
	}
	if neg+pos == 0 {
		return 0.5
	}
	return pos / (neg + pos)
}

// predictTree 沿树下行到叶子，返回叶子的正类占比。
func predictTree(node *treeNode, features []float64) float64 {
	for node.Feature != leafFeature {
		if features[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Prob
}

// sortByFeature 按指定特征值对样本下标排序。
func sortByFeature(x [][]float64, order []int, feat int) {
	sort.Slice(order, func(a, b int) bool {
		return x[order[a]][feat] < x[order[b]][feat]
	})
}
