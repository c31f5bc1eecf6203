package cache

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Storage is the persistence backend for cache entries. Implementations must
// be safe for concurrent use.
type Storage interface {
	Read(key string) ([]byte, bool, error)
	Write(key string, data []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	Clear() error
}

// MemoryStorage keeps entries in a map. It is the default backend and the
// one tests use.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string][]byte)}
}

var _ Storage = (*MemoryStorage)(nil)

func (ms *MemoryStorage) Read(key string) ([]byte, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	data, exists := ms.entries[key]
	return data, exists, nil
}

func (ms *MemoryStorage) Write(key string, data []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries[key] = data
	return nil
}

func (ms *MemoryStorage) Delete(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.entries, key)
	return nil
}

func (ms *MemoryStorage) Keys() ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	keys := make([]string, 0, len(ms.entries))
	for key := range ms.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

func (ms *MemoryStorage) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries = make(map[string][]byte)
	return nil
}

// FileStorage persists each entry as one file under a directory, so cached
// data survives process restarts. Keys are hex-encoded into file names.
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorage creates the directory if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

var _ Storage = (*FileStorage)(nil)

const fileSuffix = ".bin"

func (fs *FileStorage) path(key string) string {
	return filepath.Join(fs.dir, hex.EncodeToString([]byte(key))+fileSuffix)
}

func (fs *FileStorage) Read(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(fs.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (fs *FileStorage) Write(key string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (fs *FileStorage) Delete(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(fs.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (fs *FileStorage) Keys() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		decoded, err := hex.DecodeString(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}
		keys = append(keys, string(decoded))
	}
	return keys, nil
}

func (fs *FileStorage) Clear() error {
	keys, err := fs.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := fs.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
