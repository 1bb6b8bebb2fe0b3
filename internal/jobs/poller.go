package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/literacy-poster/internal/kie"
	"github.com/yourusername/literacy-poster/internal/metrics"
)

const (
	DefaultMaxRetries = 60
	DefaultInterval   = 2 * time.Second
)

// WaitOptions は完了待ちのパラメータです。
type WaitOptions struct {
	MaxRetries int
	Interval   time.Duration
	Observer   PollObserver
}

// DefaultWaitOptions は既定の待機パラメータ（60回 × 2秒）を返します。
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{MaxRetries: DefaultMaxRetries, Interval: DefaultInterval}
}

// Poller は状態取得を一定間隔で繰り返し、終端状態かタイムアウトまで待ちます。
type Poller struct {
	reader StatusReader
	clock  Clock
	logger *zerolog.Logger
}

// PollerOption は Poller の任意設定です。
type PollerOption func(*Poller)

// WithClock は待機に使う Clock を差し替えます。
func WithClock(clock Clock) PollerOption {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger はログ出力先を設定します。
func WithLogger(logger *zerolog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPoller は Poller を生成します。
func NewPoller(reader StatusReader, opts ...PollerOption) *Poller {
	nop := zerolog.Nop()
	p := &Poller{reader: reader, clock: SystemClock{}, logger: &nop}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait は jobID の完了を待ちます。
//
// 状態取得は最大 MaxRetries 回で、同じジョブに対して並行して発行されることはありません。
// 取得自体が失敗した場合は再試行せず、そのエラーを返します。
// success / fail は Outcome として返し、回数を使い切った場合は State=timeout の Outcome を返します。
// ctx が終了した場合はローカルの待機だけを中断し、ctx のエラーを返します。
func (p *Poller) Wait(ctx context.Context, jobID string, opts WaitOptions) (*Outcome, error) {
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	log := p.logger.With().Str("task_id", jobID).Logger()

	for attempt := 1; attempt <= maxRetries; attempt++ {
		snap, err := p.reader.GetStatus(ctx, jobID)
		if err != nil {
			metrics.JobOutcome("error")
			log.Warn().Err(err).Int("attempt", attempt).Msg("status read failed, aborting wait")
			return nil, err
		}
		metrics.StatusRead(string(snap.State))
		notifyPoll(opts.Observer, attempt, snap)

		switch snap.State {
		case kie.StateSuccess:
			metrics.JobOutcome(string(kie.StateSuccess))
			log.Info().Int("attempt", attempt).Int64("cost_time", snap.CostTime).Msg("task succeeded")
			return &Outcome{
				JobID:    jobID,
				State:    kie.StateSuccess,
				ImageURL: snap.ImageURL,
				CostTime: snap.CostTime,
				Polls:    attempt,
			}, nil
		case kie.StateFail:
			metrics.JobOutcome(string(kie.StateFail))
			log.Info().Int("attempt", attempt).Str("fail_code", snap.FailCode).Str("fail_msg", snap.FailMsg).Msg("task failed")
			return &Outcome{
				JobID:    jobID,
				State:    kie.StateFail,
				CostTime: snap.CostTime,
				FailCode: snap.FailCode,
				FailMsg:  snap.FailMsg,
				Polls:    attempt,
			}, nil
		}

		// 最後の取得の後は待たずにタイムアウトとする
		if attempt == maxRetries {
			break
		}
		if err := p.clock.Sleep(ctx, opts.Interval); err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("wait abandoned")
			return nil, err
		}
	}

	metrics.JobOutcome(string(kie.StateTimeout))
	log.Info().Int("max_retries", maxRetries).Msg("stopped watching task")
	return &Outcome{JobID: jobID, State: kie.StateTimeout, Polls: maxRetries}, nil
}
