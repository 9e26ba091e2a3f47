package snapshot

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// KV is the durable key/value surface the snapshot store writes through. It is
// deliberately minimal: string keys, opaque JSON values, no transactions and no
// cross-process coordination (last write wins).
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Keys returns all stored keys with the given prefix.
	Keys(prefix string) ([]string, error)
}

// FileKV keeps one JSON file per key under Dir. Writes go through a temp file
// plus rename so a partial write never corrupts an existing snapshot.
type FileKV struct {
	Dir string

	// Direct skips the temp-file dance and writes in place. Used as the
	// fallback writer when the atomic path fails (e.g. rename not permitted).
	Direct bool
}

const kvFileExt = ".json"

func (f FileKV) path(key string) string {
	return filepath.Join(f.Dir, encodeKey(key)+kvFileExt)
}

// encodeKey makes an arbitrary key safe as a file name while keeping common
// keys readable. Only characters outside [a-zA-Z0-9:_-] force the escape hatch.
func encodeKey(key string) string {
	safe := true
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ':' || r == '_' || r == '-' || r == '.':
		default:
			safe = false
		}
		if !safe {
			break
		}
	}
	if safe {
		return strings.ReplaceAll(key, ":", "__")
	}
	return "k_" + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(name string) string {
	name = strings.TrimSuffix(name, kvFileExt)
	if raw, ok := strings.CutPrefix(name, "k_"); ok {
		if b, err := base64.RawURLEncoding.DecodeString(raw); err == nil {
			return string(b)
		}
	}
	return strings.ReplaceAll(name, "__", ":")
}

func (f FileKV) ensure() error {
	if strings.TrimSpace(f.Dir) == "" {
		return errors.New("snapshot: kv dir is empty")
	}
	return os.MkdirAll(f.Dir, 0o755)
}

func (f FileKV) Get(key string) ([]byte, bool, error) {
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (f FileKV) Set(key string, value []byte) error {
	if err := f.ensure(); err != nil {
		return err
	}
	path := f.path(key)
	if f.Direct {
		return os.WriteFile(path, value, 0o644)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f FileKV) Delete(key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f FileKV) Keys(prefix string) ([]string, error) {
	ents, err := os.ReadDir(f.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), kvFileExt) || strings.HasSuffix(ent.Name(), ".tmp") {
			continue
		}
		key := decodeKey(ent.Name())
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}

// MemKV is an in-memory KV for tests and for fakes that simulate storage
// failures.
type MemKV struct {
	m map[string][]byte

	// FailSet, when set, makes every Set return this error.
	FailSet error
}

func NewMemKV() *MemKV { return &MemKV{m: map[string][]byte{}} }

func (m *MemKV) Get(key string) ([]byte, bool, error) {
	b, ok := m.m[key]
	return b, ok, nil
}

func (m *MemKV) Set(key string, value []byte) error {
	if m.FailSet != nil {
		return m.FailSet
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.m[key] = cp
	return nil
}

func (m *MemKV) Delete(key string) error {
	delete(m.m, key)
	return nil
}

func (m *MemKV) Keys(prefix string) ([]string, error) {
	var out []string
	for k := range m.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
