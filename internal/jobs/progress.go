package jobs

import "github.com/yourusername/literacy-poster/internal/kie"

// PollObserver は状態取得ごとに呼ばれるコールバックです。attempt は1始まりです。
type PollObserver func(attempt int, snap *kie.Snapshot)

func notifyPoll(cb PollObserver, attempt int, snap *kie.Snapshot) {
	if cb == nil || snap == nil {
		return
	}
	cb(attempt, snap)
}
