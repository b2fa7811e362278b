package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/mrz1836/veil/internal/fileutil"
)

const (
	entryExt        = ".entry"
	entryPerms      = 0o600
	identityComment = "# veil signature cache identity"
)

var errIdentityMissing = errors.New("no identity found")

// File stores one file per key under a directory. Writes are atomic. With an
// age identity configured, entries are encrypted at rest; cached signatures
// carry the ephemeral decryption private key.
type File struct {
	dir      string
	identity *age.X25519Identity
}

var (
	_ Storage = (*File)(nil)
	_ Lister  = (*File)(nil)
)

// FileOption configures a File store.
type FileOption func(*File)

// WithEncryption encrypts entries to the identity's recipient and decrypts
// them with the identity.
func WithEncryption(identity *age.X25519Identity) FileOption {
	return func(f *File) {
		f.identity = identity
	}
}

// NewFile returns a store rooted at dir, creating it if needed.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	if dir == "" {
		return nil, storageError("file store", fileutil.ErrEmptyPath)
	}
	if err := os.MkdirAll(dir, fileutil.DirPermissions); err != nil {
		return nil, storageError("creating store directory", err)
	}

	f := &File{dir: dir}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Dir returns the store directory.
func (f *File) Dir() string {
	return f.dir
}

// Encrypted reports whether entries are encrypted at rest.
func (f *File) Encrypted() bool {
	return f.identity != nil
}

// GetItem implements Storage.
func (f *File) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := checkContext(ctx); err != nil {
		return "", false, err
	}

	data, found, err := fileutil.ReadIfExists(f.path(key))
	if err != nil {
		return "", false, storageError("reading entry", err)
	}
	if !found {
		return "", false, nil
	}

	if f.identity != nil {
		if data, err = f.decrypt(data); err != nil {
			return "", false, storageError("decrypting entry", err)
		}
	}
	return string(data), true, nil
}

// SetItem implements Storage.
func (f *File) SetItem(ctx context.Context, key, value string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	data := []byte(value)
	if f.identity != nil {
		var err error
		if data, err = f.encrypt(data); err != nil {
			return storageError("encrypting entry", err)
		}
	}

	if err := fileutil.WriteAtomic(f.path(key), data, entryPerms); err != nil {
		return storageError("writing entry", err)
	}
	return nil
}

// RemoveItem implements Storage.
func (f *File) RemoveItem(ctx context.Context, key string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := fileutil.RemoveIfExists(f.path(key)); err != nil {
		return storageError("removing entry", err)
	}
	return nil
}

// Keys implements Lister.
func (f *File) Keys(ctx context.Context) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, storageError("listing entries", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, entryExt))
		if err != nil {
			continue
		}
		keys = append(keys, string(raw))
	}
	return keys, nil
}

// path maps a key to a file name. Keys contain ':' and arbitrary text, so they
// are base64url encoded rather than used verbatim.
func (f *File) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+entryExt)
}

func (f *File) encrypt(plaintext []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, f.identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *File) decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), f.identity)
	if err != nil {
		return nil, fmt.Errorf("initializing decryption: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plaintext, nil
}

// LoadOrCreateIdentity reads an age X25519 identity from path, generating and
// persisting a new one when the file does not exist.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, found, err := fileutil.ReadIfExists(path)
	if err != nil {
		return nil, storageError("reading identity", err)
	}

	if found {
		identity, err := parseIdentity(data)
		if err != nil {
			return nil, storageError("parsing identity", err)
		}
		return identity, nil
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, storageError("generating identity", err)
	}

	contents := fmt.Sprintf("%s\n# created: %s\n# public key: %s\n%s\n",
		identityComment,
		time.Now().UTC().Format(time.RFC3339),
		identity.Recipient().String(),
		identity.String(),
	)
	if err := fileutil.WriteAtomic(path, []byte(contents), entryPerms); err != nil {
		return nil, storageError("writing identity", err)
	}
	return identity, nil
}

func parseIdentity(data []byte) (*age.X25519Identity, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return age.ParseX25519Identity(line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, errIdentityMissing
}
