package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	taskTypeWatch = "poster:watch"
	queueWatch    = "poster"

	watchMaxRetry = 3
)

// Manager は監視タスクの投入とワーカーの実行を担います。
type Manager struct {
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	watcher *Watcher
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, concurrency int, watcher *Watcher, logger *zerolog.Logger) (*Manager, error) {
	if watcher == nil {
		return nil, errors.New("watcher is nil")
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueWatch: 1,
			},
			Logger: asynqLogger{logger},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:  client,
		server:  server,
		mux:     mux,
		watcher: watcher,
		timeout: watchTimeout(watcher.wait),
		logger:  logger,
	}
	mux.HandleFunc(taskTypeWatch, manager.handleWatchTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("asynq server stopped with error")
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Enqueue は監視タスクをキューに投入します。
func (m *Manager) Enqueue(ctx context.Context, payload *WatchPayload) (string, error) {
	task, err := newWatchTask(payload)
	if err != nil {
		return "", err
	}
	info, err := m.client.EnqueueContext(ctx, task,
		asynq.Queue(queueWatch),
		asynq.MaxRetry(watchMaxRetry),
		asynq.Timeout(m.timeout),
	)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (m *Manager) handleWatchTask(ctx context.Context, task *asynq.Task) error {
	var payload WatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", taskTypeWatch, err, asynq.SkipRetry)
	}
	return m.watcher.Handle(ctx, payload)
}

func newWatchTask(payload *WatchPayload) (*asynq.Task, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return nil, fmt.Errorf("payload.JobID is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskTypeWatch, body), nil
}

// watchTimeout は1回の監視に許す時間です。待機予算に余裕を持たせます。
func watchTimeout(wait WaitOptions) time.Duration {
	budget := time.Duration(wait.MaxRetries) * wait.Interval
	if budget <= 0 {
		return time.Minute
	}
	return budget + time.Minute
}

// asynqLogger は asynq のログを zerolog に流します。
type asynqLogger struct {
	l *zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
