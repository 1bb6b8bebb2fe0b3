package jobs

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/yourusername/literacy-poster/internal/kie"
)

// CachedReader は終端状態（success / fail）のスナップショットを保持する StatusReader です。
// 終端状態は以後変化しないため、キャッシュ済みのジョブにはリモート問い合わせを行いません。
type CachedReader struct {
	next  StatusReader
	cache *gocache.Cache
}

// NewCachedReader は next の前段にキャッシュを置きます。ttl が0以下なら30分です。
func NewCachedReader(next StatusReader, ttl time.Duration) *CachedReader {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedReader{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// GetStatus はキャッシュにあればそれを、なければ next から取得した結果を返します。
func (r *CachedReader) GetStatus(ctx context.Context, jobID string) (*kie.Snapshot, error) {
	if v, ok := r.cache.Get(jobID); ok {
		snap := v.(kie.Snapshot)
		return &snap, nil
	}
	snap, err := r.next.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if snap.State.Terminal() {
		r.cache.SetDefault(jobID, *snap)
	}
	return snap, nil
}

// Len はキャッシュ件数を返します。
func (r *CachedReader) Len() int {
	return r.cache.ItemCount()
}
