package storage

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process store backed by go-cache.
type Memory struct {
	items *gocache.Cache
	ttl   time.Duration
}

var (
	_ Storage = (*Memory)(nil)
	_ Lister  = (*Memory)(nil)
)

// NewMemory returns an empty memory store. Entries expire after ttl; zero or
// negative keeps them until removed.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		return &Memory{items: gocache.New(gocache.NoExpiration, 0), ttl: gocache.NoExpiration}
	}
	return &Memory{items: gocache.New(ttl, 2*ttl), ttl: ttl}
}

// GetItem implements Storage.
func (m *Memory) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := checkContext(ctx); err != nil {
		return "", false, err
	}
	v, ok := m.items.Get(key)
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

// SetItem implements Storage.
func (m *Memory) SetItem(ctx context.Context, key, value string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	m.items.Set(key, value, m.ttl)
	return nil
}

// RemoveItem implements Storage.
func (m *Memory) RemoveItem(ctx context.Context, key string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	m.items.Delete(key)
	return nil
}

// Keys implements Lister. Expired entries are excluded.
func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	items := m.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}
