// Package history は生成結果の履歴（新しい順、上限付き）を管理します。
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yourusername/literacy-poster/internal/metrics"
)

// DefaultCapacity は履歴の保持件数です。
const DefaultCapacity = 20

// ErrConfirmationRequired は確認なしで履歴の全削除が要求されたことを表します。
var ErrConfirmationRequired = errors.New("history: clear requires explicit confirmation")

// ErrInvalidEntry は必須項目が欠けた履歴が渡されたことを表します。
var ErrInvalidEntry = errors.New("history: taskId, theme, title and imageUrl are required")

// Entry は1件の生成結果です。
type Entry struct {
	JobID     string    `json:"taskId"`
	Theme     string    `json:"theme"`
	Title     string    `json:"title"`
	ImageURL  string    `json:"imageUrl"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate は必須項目を検証します。
func (e Entry) Validate() error {
	if strings.TrimSpace(e.JobID) == "" || strings.TrimSpace(e.Theme) == "" ||
		strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.ImageURL) == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Prepend は entry を先頭に追加し、capacity を超えた古いものを末尾から落とします。
// 引数のスライスは変更しません。
func Prepend(entries []Entry, entry Entry, capacity int) []Entry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	out := make([]Entry, 0, min(len(entries)+1, capacity))
	out = append(out, entry)
	for _, e := range entries {
		if len(out) == capacity {
			break
		}
		out = append(out, e)
	}
	return out
}

// Store は履歴の永続化先です。key はセッション単位の識別子です。
// Update は読み込み・変更・書き込みを1単位として行い、書き込み完了後に戻ります。
type Store interface {
	Load(ctx context.Context, key string) ([]Entry, error)
	Update(ctx context.Context, key string, mutate func([]Entry) []Entry) ([]Entry, error)
}

// Service は Store の上に履歴操作を提供します。
type Service struct {
	store    Store
	capacity int
	now      func() time.Time
}

// NewService は Service を生成します。capacity が0以下なら DefaultCapacity を使います。
func NewService(store Store, capacity int) *Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Service{store: store, capacity: capacity, now: time.Now}
}

// Record は履歴の先頭に entry を追加して永続化します。
func (s *Service) Record(ctx context.Context, key string, entry Entry) ([]Entry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	entries, err := s.store.Update(ctx, key, func(entries []Entry) []Entry {
		return Prepend(entries, entry, s.capacity)
	})
	if err != nil {
		return nil, err
	}
	metrics.HistoryRecorded()
	return entries, nil
}

// List は新しい順の履歴を返します。
func (s *Service) List(ctx context.Context, key string) ([]Entry, error) {
	entries, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Clear は履歴を空にします。confirmed が false の場合は何もせず ErrConfirmationRequired を返します。
func (s *Service) Clear(ctx context.Context, key string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	_, err := s.store.Update(ctx, key, func([]Entry) []Entry { return nil })
	return err
}
