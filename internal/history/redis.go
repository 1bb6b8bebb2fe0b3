package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	historyKeyPrefix = "history:"

	// 楽観ロックが競合し続けた場合の再試行上限
	maxTxRetries = 10
)

// RedisStore はセッション履歴を Redis に JSON 配列として保存します。
// 更新は WATCH による楽観ロックで行います。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。ttl が0なら有効期限を設定しません。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Load は履歴を取得します。存在しない場合は nil を返します。
func (s *RedisStore) Load(ctx context.Context, key string) ([]Entry, error) {
	if key == "" {
		return nil, fmt.Errorf("history key is required")
	}
	data, err := s.rdb.Get(ctx, historyKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeEntries(data)
}

// Update は履歴を読み込み、mutate の結果を保存します。空になった場合はキーを削除します。
func (s *RedisStore) Update(ctx context.Context, key string, mutate func([]Entry) []Entry) ([]Entry, error) {
	if key == "" {
		return nil, fmt.Errorf("history key is required")
	}
	rkey := historyKey(key)
	var result []Entry

	txf := func(tx *redis.Tx) error {
		var current []Entry
		data, err := tx.Get(ctx, rkey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeEntries(data); err != nil {
				return err
			}
		}

		next := mutate(current)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(next) == 0 {
				pipe.Del(ctx, rkey)
				return nil
			}
			payload, err := json.Marshal(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, rkey, payload, s.ttl)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, rkey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = []Entry{}
		}
		return result, nil
	}
	return nil, fmt.Errorf("history: too many concurrent updates for %s", key)
}

func decodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("history: decode: %w", err)
	}
	return entries, nil
}

func historyKey(key string) string {
	return historyKeyPrefix + key
}
