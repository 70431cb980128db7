// Package store defines the flat key-value persistence used for settings and
// the shopping list.
//
// Backends only move strings. KV layers typed access on top and never fails:
// read errors fall back to the caller's default and write errors are logged.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Keys of the persisted session settings.
const (
	KeyUserName     = "jarvis_user_name"
	KeyPersonality  = "jarvis_personality"
	KeyContinuous   = "jarvis_continuous_listening"
	KeyShoppingList = "jarvis_shopping_list"
	KeyTheme        = "jarvis_theme"
)

// Backend is a string key-value store.
type Backend interface {
	// Load returns the value for key. ok is false when the key is absent.
	Load(ctx context.Context, key string) (value string, ok bool, err error)

	// Save stores value under key.
	Save(ctx context.Context, key, value string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Memory is an in-process Backend. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Load implements Backend.
func (m *Memory) Load(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Save implements Backend.
func (m *Memory) Save(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }

// opTimeout bounds every backend call made through KV.
const opTimeout = 2 * time.Second

// KV provides typed, failure-tolerant access to a Backend.
type KV struct {
	b   Backend
	log *slog.Logger
}

// NewKV wraps b. A nil logger uses slog.Default().
func NewKV(b Backend, log *slog.Logger) *KV {
	if log == nil {
		log = slog.Default()
	}
	return &KV{b: b, log: log.With("component", "store")}
}

// Get returns the value for key, or def when it is absent or unreadable.
func (kv *KV) Get(key, def string) string {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	v, ok, err := kv.b.Load(ctx, key)
	if err != nil {
		kv.log.Warn("store read failed, using default", "key", key, "error", err)
		return def
	}
	if !ok {
		return def
	}
	return v
}

// GetBool returns true only when the stored value is "true". Absent or
// unreadable keys return def.
func (kv *KV) GetBool(key string, def bool) bool {
	v := kv.Get(key, strconv.FormatBool(def))
	return v == "true"
}

// GetList decodes a JSON string array. Absent, unreadable or malformed
// values yield an empty list.
func (kv *KV) GetList(key string) []string {
	v := kv.Get(key, "")
	if v == "" {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal([]byte(v), &list); err != nil {
		kv.log.Warn("malformed list in store, using empty list", "key", key, "error", err)
		return []string{}
	}
	if list == nil {
		list = []string{}
	}
	return list
}

// Set stores value under key. Failures are logged.
func (kv *KV) Set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := kv.b.Save(ctx, key, value); err != nil {
		kv.log.Warn("store write failed", "key", key, "error", err)
	}
}

// SetBool stores "true" or "false".
func (kv *KV) SetBool(key string, value bool) {
	kv.Set(key, strconv.FormatBool(value))
}

// SetList stores list as a JSON array.
func (kv *KV) SetList(key string, list []string) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		kv.log.Warn("encoding list failed", "key", key, "error", err)
		return
	}
	kv.Set(key, string(data))
}
