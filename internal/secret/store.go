// Package secret resolves credentials kept outside the config file.
package secret

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SecretStore provides a pluggable interface for storing sensitive data
// such as database passwords.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// ── Environment ────────────────────────────────────────────

// EnvStore maps key "db_password" to the variable <Prefix>_DB_PASSWORD.
type EnvStore struct {
	Prefix string
}

func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: prefix}
}

func (e *EnvStore) name(key string) string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	if e.Prefix == "" {
		return name
	}
	return strings.ToUpper(e.Prefix) + "_" + name
}

func (e *EnvStore) Set(key string, value []byte) error {
	return os.Setenv(e.name(key), string(value))
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(e.name(key))
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (e *EnvStore) Delete(key string) error {
	return os.Unsetenv(e.name(key))
}

// ── Files ──────────────────────────────────────────────────

// FileStore keeps one secret per file under Dir, in the layout used by
// mounted container secrets. Trailing newlines are dropped on read.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errors.Errorf("invalid secret key %q", key)
	}
	return filepath.Join(f.Dir, key), nil
}

func (f *FileStore) Set(key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return errors.Wrap(err, "create secret dir")
	}
	return os.WriteFile(p, value, 0o600)
}

func (f *FileStore) Get(key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read secret %s", key)
	}
	return []byte(strings.TrimRight(string(b), "\r\n")), nil
}

func (f *FileStore) Delete(key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ── Lookup ─────────────────────────────────────────────────

// Lookup returns the first non-empty value for key across stores.
func Lookup(key string, stores ...SecretStore) (string, bool, error) {
	for _, s := range stores {
		if s == nil {
			continue
		}
		v, err := s.Get(key)
		if err != nil {
			return "", false, err
		}
		if len(v) > 0 {
			return string(v), true, nil
		}
	}
	return "", false, nil
}
