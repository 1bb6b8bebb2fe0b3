package jobs

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/literacy-poster/internal/kie"
	"github.com/yourusername/literacy-poster/internal/metrics"
)

// DefaultBatchConcurrency はバッチ項目を同時に処理する数の既定値です。
const DefaultBatchConcurrency = 4

// CreateResult はバッチ内1項目の作成結果です。Index は入力上の位置です。
type CreateResult struct {
	Index int
	JobID string
	Err   error
}

// Succeeded は作成に成功したかを返します。
func (r CreateResult) Succeeded() bool {
	return r.Err == nil && r.JobID != ""
}

// WaitResult はバッチ内1ジョブの待機結果です。
type WaitResult struct {
	JobID   string
	Outcome *Outcome
	Err     error
}

// Succeeded はジョブがリモートで成功したかを返します。
func (r WaitResult) Succeeded() bool {
	return r.Err == nil && r.Outcome.Succeeded()
}

// Summary はバッチ結果の集計です。
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"success"`
	Failed    int `json:"failed"`
}

// Summarize は項目ごとの結果を数え上げて集計します。別カウンタは持ちません。
func Summarize[T interface{ Succeeded() bool }](results []T) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// Orchestrator は独立した複数ジョブの作成と待機をまとめて行います。
// 1項目の失敗が他の項目を止めたり遅らせたりすることはありません。
type Orchestrator struct {
	creator     Creator
	poller      *Poller
	concurrency int
	logger      *zerolog.Logger
}

// NewOrchestrator は Orchestrator を生成します。
func NewOrchestrator(creator Creator, poller *Poller, concurrency int, logger *zerolog.Logger) *Orchestrator {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Orchestrator{creator: creator, poller: poller, concurrency: concurrency, logger: logger}
}

// Create は1件のジョブを作成します。
func (o *Orchestrator) Create(ctx context.Context, prompt string, opts kie.JobOptions) (string, error) {
	jobID, err := o.creator.CreateJob(ctx, prompt, opts)
	metrics.JobCreated(err == nil)
	return jobID, err
}

// Wait は1件のジョブの完了を待ちます。
func (o *Orchestrator) Wait(ctx context.Context, jobID string, opts WaitOptions) (*Outcome, error) {
	return o.poller.Wait(ctx, jobID, opts)
}

// CreateBatch は prompts の各要素からジョブを作成し、入力順の結果を返します。
func (o *Orchestrator) CreateBatch(ctx context.Context, prompts []string, opts kie.JobOptions) []CreateResult {
	results := make([]CreateResult, len(prompts))
	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for i, p := range prompts {
		i, p := i, p
		g.Go(func() error {
			jobID, err := o.Create(ctx, p, opts)
			results[i] = CreateResult{Index: i, JobID: jobID, Err: err}
			if err != nil {
				o.logger.Warn().Err(err).Int("index", i).Msg("batch item creation failed")
			}
			// 個別の失敗は結果に残し、他の項目は継続させる
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// WaitBatch は各ジョブを独立に待ち、入力順の結果を返します。
// 待機は同時実行数で制限せず、すべてのジョブを同時に待ちます。
func (o *Orchestrator) WaitBatch(ctx context.Context, jobIDs []string, opts WaitOptions) []WaitResult {
	results := make([]WaitResult, len(jobIDs))
	var g errgroup.Group

	for i, id := range jobIDs {
		i, id := i, id
		g.Go(func() error {
			outcome, err := o.poller.Wait(ctx, id, opts)
			results[i] = WaitResult{JobID: id, Outcome: outcome, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
