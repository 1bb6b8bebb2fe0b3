package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yourusername/literacy-poster/internal/history"
)

// ErrWatchTimedOut はバックグラウンド監視が回数上限に達したことを表します。
// asynq の再試行対象になります。
var ErrWatchTimedOut = errors.New("jobs: task still running after polling budget")

// WatchPayload は poster:watch タスクのペイロードです。
type WatchPayload struct {
	JobID     string `json:"taskId"`
	Theme     string `json:"theme"`
	Title     string `json:"title"`
	SessionID string `json:"sessionId"`
}

// Recorder は監視結果の書き込み先です。history.Service が実装します。
type Recorder interface {
	Record(ctx context.Context, key string, entry history.Entry) ([]history.Entry, error)
}

// Watcher はリクエストと切り離してジョブの完了を待ち、成功したものをセッション履歴に追加します。
type Watcher struct {
	poller   *Poller
	recorder Recorder
	wait     WaitOptions
	logger   *zerolog.Logger
}

// NewWatcher は Watcher を生成します。
func NewWatcher(poller *Poller, recorder Recorder, wait WaitOptions, logger *zerolog.Logger) *Watcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Watcher{poller: poller, recorder: recorder, wait: wait, logger: logger}
}

// Handle は1件のジョブを監視します。
// fail はリモートの確定結果なので再試行しません。タイムアウトと取得エラーはエラーを返します。
func (w *Watcher) Handle(ctx context.Context, payload WatchPayload) error {
	if payload.JobID == "" {
		return fmt.Errorf("missing taskId in payload")
	}
	log := w.logger.With().Str("task_id", payload.JobID).Str("session_id", payload.SessionID).Logger()

	outcome, err := w.poller.Wait(ctx, payload.JobID, w.wait)
	if err != nil {
		return fmt.Errorf("watch %s: %w", payload.JobID, err)
	}

	switch {
	case outcome.Succeeded():
		if payload.SessionID == "" || outcome.ImageURL == "" {
			log.Info().Msg("task succeeded without a history target")
			return nil
		}
		if _, err := w.recorder.Record(ctx, payload.SessionID, history.Entry{
			JobID:    payload.JobID,
			Theme:    payload.Theme,
			Title:    payload.Title,
			ImageURL: outcome.ImageURL,
		}); err != nil {
			return fmt.Errorf("record history for %s: %w", payload.JobID, err)
		}
		log.Info().Str("image_url", outcome.ImageURL).Msg("recorded task into history")
		return nil
	case outcome.TimedOut():
		return ErrWatchTimedOut
	default:
		log.Info().Str("fail_code", outcome.FailCode).Str("fail_msg", outcome.FailMsg).Msg("task failed remotely")
		return nil
	}
}
