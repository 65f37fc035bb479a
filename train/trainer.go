package train

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/questkit/core"
	"github.com/rushteam/questkit/feature"
	"github.com/rushteam/questkit/model"
)

// 训练错误定义
var (
	// ErrNoTrainingData 表示标注样本不足以开启一轮训练。
	// 调用方（定时任务）应捕获此错误并跳过本轮，而不是当作故障告警。
	ErrNoTrainingData = core.NewDomainError(core.ModuleTrain, core.ErrorCodeNoData, "train: not enough labeled quests to train")
)

// Options 训练管线参数。
type Options struct {
	// BundlePath 模型包输出路径
	BundlePath string

	// HoldoutRatio 留出集比例，默认 0.2（至少留 1 条）
	HoldoutRatio float64

	// MinSamples 开启训练所需的最少标注样本数，默认 10
	MinSamples int

	// Seed 划分与森林训练共用的随机种子，默认 42
	Seed int64

	// Forest 森林训练参数（零值取 DefaultForestOptions）
	Forest model.ForestOptions

	// EmbedBatch 批量嵌入的批大小，默认 64
	EmbedBatch int

	// EmbedConcurrency 批量嵌入的并发批数，默认 4
	EmbedConcurrency int
}

// DefaultOptions 返回默认训练参数。
func DefaultOptions() Options {
	return Options{
		BundlePath:       "data/model/bundle.json",
		HoldoutRatio:     0.2,
		MinSamples:       10,
		Seed:             42,
		Forest:           model.DefaultForestOptions(),
		EmbedBatch:       64,
		EmbedConcurrency: 4,
	}
}

// Report 是一轮训练的结果摘要。
type Report struct {
	Samples     int                // 参与训练的样本总数
	TrainSize   int                // 训练集大小
	HoldoutSize int                // 留出集大小
	Metrics     map[string]float64 // 留出集诊断指标
	BundlePath  string             // 模型包写入路径
	TrainedAt   time.Time
}

// Trainer 是完整的离线训练管线（重训练即全量重建，没有增量更新）。
//
// 一轮 Train 的步骤：
//  1. 加载全部任务历史，筛出标注样本（completed 的真值即标签）
//  2. 刷新所有用户的聚合统计并写回（保证训练特征与推理侧老用户一致）
//  3. 批量计算全部文本嵌入（有界并发）
//  4. 逐样本编码 + 按 Schema 对齐成特征矩阵
//  5. 种子化乱序划分训练/留出集
//  6. 训练随机森林，留出集上拟合 Platt 校准
//  7. 留出集诊断指标（仅记录，不做保存门槛）
//  8. (分类器, 嵌入器标识, 列契约) 打包原子落盘
type Trainer struct {
	Store      core.QuestStore
	Embedder   core.TextEmbedder
	Aggregator *feature.Aggregator
	Options    Options
}

// New 创建训练管线。
func New(store core.QuestStore, embedder core.TextEmbedder, aggregator *feature.Aggregator, opts Options) *Trainer {
	if opts.HoldoutRatio <= 0 || opts.HoldoutRatio >= 1 {
		opts.HoldoutRatio = DefaultOptions().HoldoutRatio
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultOptions().MinSamples
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultOptions().Seed
	}
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = DefaultOptions().EmbedBatch
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = DefaultOptions().EmbedConcurrency
	}
	if opts.BundlePath == "" {
		opts.BundlePath = DefaultOptions().BundlePath
	}
	return &Trainer{
		Store:      store,
		Embedder:   embedder,
		Aggregator: aggregator,
		Options:    opts,
	}
}

// Train 执行一轮完整训练并落盘模型包。
//
// 失败语义：
//   - 样本不足返回 ErrNoTrainingData（可捕获后跳过本轮）
//   - 标签单一类别返回 DEGENERATE_DATA（来自森林训练，不静默产出常量模型）
//   - 源数据缺少必需字段立即失败，错误里指明缺的列
func (t *Trainer) Train(ctx context.Context) (*Report, error) {
	quests, err := t.Store.ListQuests(ctx)
	if err != nil {
		return nil, fmt.Errorf("load quests: %w", err)
	}
	if err := validateQuests(quests); err != nil {
		return nil, err
	}
	if len(quests) < t.Options.MinSamples {
		return nil, ErrNoTrainingData
	}

	statsByUser, err := t.Aggregator.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh user stats: %w", err)
	}

	embeddings, err := t.embedAll(ctx, quests)
	if err != nil {
		return nil, fmt.Errorf("embed quest texts: %w", err)
	}

	schema := feature.BuildSchema(t.Embedder.Dimension())
	encoder := feature.NewQuestEncoder(t.Embedder)

	x := make([][]float64, len(quests))
	y := make([]float64, len(quests))
	for i, q := range quests {
		stats := statsByUser[q.UserID]
		if stats == nil {
			stats = core.NewUserStats(q.UserID)
		}
		features := encoder.EncodeQuest(q, stats, embeddings[i])
		x[i] = schema.Reindex(features)
		if q.Completed {
			y[i] = 1
		}
	}

	trainX, trainY, holdX, holdY := split(x, y, t.Options.HoldoutRatio, t.Options.Seed)

	forestOpts := t.Options.Forest
	if forestOpts.NumTrees <= 0 {
		forestOpts = model.DefaultForestOptions()
	}
	forestOpts.Seed = t.Options.Seed

	forest, err := model.TrainForest(trainX, trainY, forestOpts)
	if err != nil {
		return nil, err
	}

	calibrator, err := t.fitCalibrator(forest, trainX, trainY, holdX, holdY)
	if err != nil {
		return nil, err
	}

	metrics, err := t.evaluate(forest, calibrator, holdX, holdY)
	if err != nil {
		return nil, err
	}

	trainedAt := time.Now().UTC()
	bundle := &model.Bundle{
		Version:    model.BundleVersion,
		TrainedAt:  trainedAt,
		EmbedderID: t.Embedder.ModelID(),
		Dimension:  t.Embedder.Dimension(),
		Columns:    schema.Columns,
		Forest:     forest,
		Calibrator: calibrator,
		Metrics:    metrics,
	}
	if err := bundle.SetEmbedder(t.Embedder); err != nil {
		return nil, err
	}
	if err := model.SaveBundle(t.Options.BundlePath, bundle); err != nil {
		return nil, fmt.Errorf("save bundle: %w", err)
	}

	return &Report{
		Samples:     len(quests),
		TrainSize:   len(trainX),
		HoldoutSize: len(holdX),
		Metrics:     metrics,
		BundlePath:  t.Options.BundlePath,
		TrainedAt:   trainedAt,
	}, nil
}

// validateQuests 校验源数据的必需字段，缺失立即失败并指明列名。
func validateQuests(quests []*core.Quest) error {
	for _, q := range quests {
		if q.UserID == "" {
			return core.NewDomainError(core.ModuleTrain, core.ErrorCodeMissingColumn,
				fmt.Sprintf("train: quest %d is missing required column user_id", q.ID))
		}
		if q.Name == "" {
			return core.NewDomainError(core.ModuleTrain, core.ErrorCodeMissingColumn,
				fmt.Sprintf("train: quest %d is missing required column name", q.ID))
		}
	}
	return nil
}

// embedAll 对全部样本文本做批量嵌入，按批有界并发，结果保持与 quests 同序。
func (t *Trainer) embedAll(ctx context.Context, quests []*core.Quest) ([][]float64, error) {
	texts := make([]string, len(quests))
	for i, q := range quests {
		texts[i] = q.EmbeddingText()
	}

	out := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.Options.EmbedConcurrency)
	for start := 0; start < len(texts); start += t.Options.EmbedBatch {
		end := start + t.Options.EmbedBatch
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			vecs, err := t.Embedder.EncodeTexts(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// split 种子化乱序后按比例切出留出集（至少 1 条，且训练集至少 1 条）。
func split(x [][]float64, y []float64, holdoutRatio float64, seed int64) (trainX [][]float64, trainY []float64, holdX [][]float64, holdY []float64) {
	n := len(x)
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	holdN := int(float64(n) * holdoutRatio)
	if holdN < 1 {
		holdN = 1
	}
	if holdN >= n {
		holdN = n - 1
	}

	for i, p := range perm {
		if i < holdN {
			holdX = append(holdX, x[p])
			holdY = append(holdY, y[p])
		} else {
			trainX = append(trainX, x[p])
			trainY = append(trainY, y[p])
		}
	}
	return trainX, trainY, holdX, holdY
}

// fitCalibrator 在留出集上拟合 Platt 校准。
// 留出集恰好单一类别时退回在训练集分数上拟合（训练集必含两类，否则森林训练早已失败）。
func (t *Trainer) fitCalibrator(forest *model.RandomForest, trainX [][]float64, trainY []float64, holdX [][]float64, holdY []float64) (*model.PlattCalibrator, error) {
	scores, err := forest.PredictBatch(holdX)
	if err != nil {
		return nil, err
	}
	calibrator, err := model.FitPlatt(scores, holdY)
	if err == nil {
		return calibrator, nil
	}
	if !core.IsDegenerateData(err) && !core.IsNoData(err) {
		return nil, err
	}

	scores, err = forest.PredictBatch(trainX)
	if err != nil {
		return nil, err
	}
	return model.FitPlatt(scores, trainY)
}

func (t *Trainer) evaluate(forest *model.RandomForest, calibrator *model.PlattCalibrator, holdX [][]float64, holdY []float64) (map[string]float64, error) {
	clf := &model.CalibratedForest{Forest: forest, Calibrator: calibrator}
	probs := make([]float64, len(holdX))
	for i, row := range holdX {
		p, err := clf.PredictProba(row)
		if err != nil {
			return nil, err
		}
		probs[i] = p
	}
	return Evaluate(holdY, probs), nil
}
