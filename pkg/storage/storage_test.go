package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	veilerr "github.com/mrz1836/veil/pkg/errors"
)

const sampleKey = "0x8617e340b3d01fa5f11f306f4090fd50e238070d:0xabc123"

func newFileStore(t *testing.T, opts ...FileOption) *File {
	t.Helper()
	f, err := NewFile(filepath.Join(t.TempDir(), "signatures"), opts...)
	require.NoError(t, err)
	return f
}

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedis(RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

// TestBackends_Contract runs the same behavior checks against every backend.
func TestBackends_Contract(t *testing.T) {
	t.Parallel()

	backends := map[string]func(t *testing.T) Storage{
		"memory": func(_ *testing.T) Storage { return NewMemory(0) },
		"file":   func(t *testing.T) Storage { return newFileStore(t) },
		"file encrypted": func(t *testing.T) Storage {
			id, err := age.GenerateX25519Identity()
			require.NoError(t, err)
			return newFileStore(t, WithEncryption(id))
		},
		"redis": func(t *testing.T) Storage {
			r, _ := newRedisStore(t)
			return r
		},
	}

	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := factory(t)

			_, found, err := s.GetItem(ctx, sampleKey)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.SetItem(ctx, sampleKey, `{"a":1}`))
			v, found, err := s.GetItem(ctx, sampleKey)
			require.NoError(t, err)
			assert.True(t, found)
			assert.JSONEq(t, `{"a":1}`, v)

			// Last write wins.
			require.NoError(t, s.SetItem(ctx, sampleKey, `{"a":2}`))
			v, _, err = s.GetItem(ctx, sampleKey)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, v)

			require.NoError(t, s.SetItem(ctx, "other", "x"))
			keys, err := Keys(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, []string{sampleKey, "other"}, keys)

			require.NoError(t, s.RemoveItem(ctx, sampleKey))
			require.NoError(t, s.RemoveItem(ctx, sampleKey), "removing a missing key is not an error")
			_, found, err = s.GetItem(ctx, sampleKey)
			require.NoError(t, err)
			assert.False(t, found)

			n, err := Clear(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			keys, err = Keys(ctx, s)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestMemory_TTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory(20 * time.Millisecond)
	require.NoError(t, m.SetItem(ctx, "k", "v"))

	_, found, err := m.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(40 * time.Millisecond)
	_, found, err = m.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemory(0).SetItem(ctx, "k", "v")
	require.ErrorIs(t, err, veilerr.ErrStorage)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, veilerr.IsRetryable(err))
}

func TestFile_EncryptedAtRest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	f := newFileStore(t, WithEncryption(id))
	assert.True(t, f.Encrypted())

	secret := `{"privateKey":"0xdeadbeef"}`
	require.NoError(t, f.SetItem(ctx, sampleKey, secret))

	raw, err := os.ReadFile(f.path(sampleKey))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "deadbeef")

	info, err := os.Stat(f.path(sampleKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(entryPerms), info.Mode().Perm())

	// A store with a different identity cannot read the entry.
	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	foreign := &File{dir: f.Dir(), identity: other}
	_, _, err = foreign.GetItem(ctx, sampleKey)
	require.ErrorIs(t, err, veilerr.ErrStorage)
}

func TestFile_IgnoresForeignFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir(), "README"), []byte("hi"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir(), "!!!.entry"), []byte("hi"), 0o600))
	require.NoError(t, f.SetItem(ctx, "k", "v"))

	keys, err := f.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestLoadOrCreateIdentity(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys", "identity.txt")
	first, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), identityComment))
	assert.Contains(t, string(data), first.Recipient().String())

	second, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())

	bad := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("# only comments\n"), 0o600))
	_, err = LoadOrCreateIdentity(bad)
	require.ErrorIs(t, err, veilerr.ErrStorage)
}

func TestRedis_PrefixAndTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	r := NewRedis(RedisConfig{Addr: mr.Addr(), Prefix: "app:", TTL: time.Minute})
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Ping(ctx))
	require.NoError(t, r.SetItem(ctx, "k", "v"))

	got, err := mr.Get("app:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, time.Minute, mr.TTL("app:k"))

	// Keys outside the prefix are not listed.
	require.NoError(t, mr.Set("unrelated", "x"))
	keys, err := r.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	mr.FastForward(2 * time.Minute)
	_, found, err := r.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedis_ServerDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r, mr := newRedisStore(t)
	mr.Close()

	_, _, err := r.GetItem(ctx, "k")
	require.ErrorIs(t, err, veilerr.ErrStorage)
	assert.True(t, veilerr.IsRetryable(err))
	require.ErrorIs(t, r.Ping(ctx), veilerr.ErrStorage)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("default is memory", func(t *testing.T) {
		t.Parallel()
		s, backend, err := Open(ctx, Config{}, nil)
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, backend)
		assert.IsType(t, &Memory{}, s)
	})

	t.Run("file with encryption", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		s, backend, err := Open(ctx, Config{
			Backend:      "FILE",
			Dir:          filepath.Join(dir, "cache"),
			IdentityFile: filepath.Join(dir, "identity.txt"),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, BackendFile, backend)
		f, ok := s.(*File)
		require.True(t, ok)
		assert.True(t, f.Encrypted())
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		s, backend, err := Open(ctx, Config{Backend: BackendRedis, RedisAddr: mr.Addr()}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = Close(s) })
		assert.Equal(t, BackendRedis, backend)
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		t.Parallel()
		core, logs := observer.New(zap.WarnLevel)
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		s, backend, err := Open(ctx, Config{Backend: BackendRedis, RedisAddr: addr}, zap.New(core))
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, backend)
		assert.IsType(t, &Memory{}, s)
		assert.Equal(t, 1, logs.FilterMessage("storage backend unavailable, falling back to memory").Len())
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Parallel()
		_, _, err := Open(ctx, Config{Backend: "indexeddb"}, nil)
		require.ErrorIs(t, err, veilerr.ErrConfigInvalid)
	})
}

func TestClose_NoCloser(t *testing.T) {
	t.Parallel()
	require.NoError(t, Close(NewMemory(0)))
}
