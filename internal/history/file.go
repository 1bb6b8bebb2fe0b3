package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// FileStore は key ごとに1つの JSON ファイルへ履歴を保存します（CLI 用）。
// 書き込みは一時ファイルへの fsync 後に rename するため、途中で落ちても既存の履歴は壊れません。
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore は dir を作成して FileStore を返します。
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("history: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Load(_ context.Context, key string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(key)
}

func (f *FileStore) Update(_ context.Context, key string, mutate func([]Entry) []Entry) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read(key)
	if err != nil {
		return nil, err
	}
	next := mutate(current)
	if len(next) == 0 {
		if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("history: remove: %w", err)
		}
		return []Entry{}, nil
	}
	if err := f.write(key, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (f *FileStore) path(key string) string {
	name := unsafeKeyChars.ReplaceAllString(key, "_")
	if name == "" {
		name = "default"
	}
	return filepath.Join(f.dir, name+".json")
}

func (f *FileStore) read(key string) ([]Entry, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", f.path(key), err)
	}
	return entries, nil
}

func (f *FileStore) write(key string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("history: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("history: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("history: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}
