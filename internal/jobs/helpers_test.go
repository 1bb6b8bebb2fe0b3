package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/literacy-poster/internal/kie"
)

// fakeClock は実時間を使わずに待機時間を積算します。
type fakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

type readStep struct {
	snap *kie.Snapshot
	err  error
}

// scriptedReader はジョブごとに決めた順序で状態を返します。台本を使い切ると最後の応答を繰り返します。
type scriptedReader struct {
	mu      sync.Mutex
	scripts map[string][]readStep
	calls   map[string]int
}

func newScriptedReader() *scriptedReader {
	return &scriptedReader{scripts: map[string][]readStep{}, calls: map[string]int{}}
}

func (r *scriptedReader) script(jobID string, steps ...readStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[jobID] = steps
}

func (r *scriptedReader) GetStatus(_ context.Context, jobID string) (*kie.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps, ok := r.scripts[jobID]
	if !ok || len(steps) == 0 {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	i := r.calls[jobID]
	r.calls[jobID]++
	if i >= len(steps) {
		i = len(steps) - 1
	}
	step := steps[i]
	if step.err != nil {
		return nil, step.err
	}
	snap := *step.snap
	snap.JobID = jobID
	return &snap, nil
}

func (r *scriptedReader) callCount(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[jobID]
}

func state(s kie.State) readStep {
	return readStep{snap: &kie.Snapshot{State: s}}
}

func success(url string, cost int64) readStep {
	return readStep{snap: &kie.Snapshot{State: kie.StateSuccess, ImageURL: url, CostTime: cost}}
}

func failure(code, msg string) readStep {
	return readStep{snap: &kie.Snapshot{State: kie.StateFail, FailCode: code, FailMsg: msg}}
}
