package jobs

import (
	"context"

	"github.com/yourusername/literacy-poster/internal/kie"
)

// Creator はリモートジョブを作成できるクライアントが実装します。
type Creator interface {
	CreateJob(ctx context.Context, prompt string, opts kie.JobOptions) (string, error)
}

// StatusReader はリモートジョブの状態を1回読み取れるクライアントが実装します。
type StatusReader interface {
	GetStatus(ctx context.Context, jobID string) (*kie.Snapshot, error)
}

const (
	msgJobFailed  = "任务失败"
	msgJobTimeout = "任务超时，请稍后重试"
)

// Outcome は待機の最終結果です。State は success / fail / timeout のいずれかです。
type Outcome struct {
	JobID    string    `json:"taskId"`
	State    kie.State `json:"state"`
	ImageURL string    `json:"imageUrl,omitempty"`
	CostTime int64     `json:"costTime,omitempty"`
	FailCode string    `json:"failCode,omitempty"`
	FailMsg  string    `json:"failMsg,omitempty"`
	// Polls は実際に行った状態取得の回数です。
	Polls int `json:"-"`
}

// Succeeded はリモートで成功したかを返します。
func (o *Outcome) Succeeded() bool {
	return o != nil && o.State == kie.StateSuccess
}

// TimedOut はローカルで監視を打ち切ったかを返します。リモートのジョブは継続している可能性があります。
func (o *Outcome) TimedOut() bool {
	return o != nil && o.State == kie.StateTimeout
}

// Message は失敗・タイムアウト時の利用者向けメッセージを返します。
func (o *Outcome) Message() string {
	switch {
	case o == nil:
		return ""
	case o.State == kie.StateFail:
		if o.FailMsg != "" {
			return o.FailMsg
		}
		return msgJobFailed
	case o.State == kie.StateTimeout:
		return msgJobTimeout
	default:
		return ""
	}
}
