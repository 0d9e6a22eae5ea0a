package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// fileBackend is the YAML config file, read and written through koanf.
type fileBackend struct {
	path string
	k    *koanf.Koanf
}

// openFileBackend loads path if it exists. A missing file yields an empty
// backend so defaults apply.
func openFileBackend(path string) (*fileBackend, error) {
	b := &fileBackend{path: path, k: koanf.New(".")}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return b, nil
		}
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}
	if err := b.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return b, nil
}

func (b *fileBackend) set(key string, v any) error {
	return b.k.Set(key, v)
}

func (b *fileBackend) save() error {
	out, err := b.k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(b.path, out, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", b.path, err)
	}
	return nil
}
