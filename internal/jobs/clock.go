package jobs

import (
	"context"
	"time"
)

// Clock はポーリング間隔の待機を抽象化します。テストでは実時間を使わずに経過を模擬します。
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock は実時間で待機します。ctx が終了すると即座に戻ります。
type SystemClock struct{}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
