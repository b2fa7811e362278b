// Package storage provides the key-value backends the decryption signature
// cache persists to. Keys and values are opaque strings.
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// Storage is a string key-value store.
type Storage interface {
	// GetItem returns the value stored under key. A missing key is reported
	// as ("", false, nil), not as an error.
	GetItem(ctx context.Context, key string) (string, bool, error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Backend names a storage implementation.
type Backend string

// Supported backends.
const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendRedis  Backend = "redis"
)

// Backends lists the supported backend names.
func Backends() []string {
	return []string{string(BackendMemory), string(BackendFile), string(BackendRedis)}
}

// Config selects and configures a backend.
type Config struct {
	Backend Backend

	// TTL applies to memory and redis entries. Zero keeps entries until replaced.
	TTL time.Duration

	// File backend.
	Dir          string
	IdentityFile string // age identity for at-rest encryption; empty disables it

	// Redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the configured backend. When the requested backend cannot be
// used (unreachable redis, unusable directory or identity) it falls back to an
// in-memory store and logs a warning; the returned Backend reports which one
// is in use. Only an unknown backend name is an error.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Storage, Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	backend := Backend(strings.ToLower(string(cfg.Backend)))
	if backend == "" {
		backend = BackendMemory
	}

	var (
		s   Storage
		err error
	)

	switch backend {
	case BackendMemory:
		return NewMemory(cfg.TTL), BackendMemory, nil
	case BackendFile:
		s, err = openFile(cfg)
	case BackendRedis:
		s, err = openRedis(ctx, cfg)
	default:
		return nil, "", veilerr.WithDetails(veilerr.ErrConfigInvalid, map[string]string{
			"storage.backend": string(cfg.Backend),
		})
	}

	if err != nil {
		logger.Warn("storage backend unavailable, falling back to memory",
			zap.String("backend", string(backend)),
			zap.Error(err),
		)
		return NewMemory(cfg.TTL), BackendMemory, nil
	}

	logger.Debug("storage backend ready", zap.String("backend", string(backend)))
	return s, backend, nil
}

func openFile(cfg Config) (Storage, error) {
	var opts []FileOption
	if cfg.IdentityFile != "" {
		identity, err := LoadOrCreateIdentity(cfg.IdentityFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithEncryption(identity))
	}
	return NewFile(cfg.Dir, opts...)
}

func openRedis(ctx context.Context, cfg Config) (Storage, error) {
	r := NewRedis(RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
		TTL:      cfg.TTL,
	})
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Close releases resources held by s when it has any.
func Close(s Storage) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Keys lists the keys held by s in sorted order. Backends that cannot
// enumerate fail with STORAGE_ERROR.
func Keys(ctx context.Context, s Storage) ([]string, error) {
	l, ok := s.(Lister)
	if !ok {
		return nil, veilerr.WithCause(veilerr.ErrStorage, fmt.Errorf("backend %T cannot list keys", s))
	}
	keys, err := l.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every key held by s and returns how many were removed.
func Clear(ctx context.Context, s Storage) (int, error) {
	keys, err := Keys(ctx, s)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := s.RemoveItem(ctx, k); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

func storageError(op string, err error) error {
	return veilerr.WithCause(veilerr.ErrStorage, fmt.Errorf("%s: %w", op, err))
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storageError("context", err)
	}
	return nil
}
