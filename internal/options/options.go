// Package options persists the two user-facing switches shared by the popup
// and the agent.
package options

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	KeyAutoOpenArchives    = "autoOpenArchives"
	KeyConfirmBeforeDelete = "confirmBeforeDelete"
)

type Options struct {
	AutoOpenArchives    bool `yaml:"autoOpenArchives" json:"autoOpenArchives"`
	ConfirmBeforeDelete bool `yaml:"confirmBeforeDelete" json:"confirmBeforeDelete"`
}

func Defaults() Options {
	return Options{ConfirmBeforeDelete: true}
}

// Store is the asynchronous key-value surface the options live behind.
type Store interface {
	Load(ctx context.Context) (Options, error)
	Save(ctx context.Context, o Options) error
}

// fileOptions distinguishes an absent key from false.
type fileOptions struct {
	AutoOpenArchives    *bool `yaml:"autoOpenArchives,omitempty"`
	ConfirmBeforeDelete *bool `yaml:"confirmBeforeDelete,omitempty"`
}

// FileStore keeps options in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Options, error) {
	if err := ctx.Err(); err != nil {
		return Options{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o := Defaults()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return o, nil
	}
	if err != nil {
		return o, fmt.Errorf("read options: %w", err)
	}

	var fo fileOptions
	if err := yaml.Unmarshal(data, &fo); err != nil {
		return o, fmt.Errorf("parse options %s: %w", s.path, err)
	}
	if fo.AutoOpenArchives != nil {
		o.AutoOpenArchives = *fo.AutoOpenArchives
	}
	if fo.ConfirmBeforeDelete != nil {
		o.ConfirmBeforeDelete = *fo.ConfirmBeforeDelete
	}
	return o, nil
}

func (s *FileStore) Save(ctx context.Context, o Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(fileOptions{
		AutoOpenArchives:    &o.AutoOpenArchives,
		ConfirmBeforeDelete: &o.ConfirmBeforeDelete,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create options dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write options: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Set updates one option by its protocol key.
func Set(o Options, key, value string) (Options, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return o, fmt.Errorf("option %s: %q is not a boolean", key, value)
	}
	switch key {
	case KeyAutoOpenArchives:
		o.AutoOpenArchives = v
	case KeyConfirmBeforeDelete:
		o.ConfirmBeforeDelete = v
	default:
		return o, fmt.Errorf("unknown option %q (want %s or %s)", key, KeyAutoOpenArchives, KeyConfirmBeforeDelete)
	}
	return o, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu sync.Mutex
	o  Options
}

func NewMemory(o Options) *Memory { return &Memory{o: o} }

func (m *Memory) Load(ctx context.Context) (Options, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.o, nil
}

func (m *Memory) Save(ctx context.Context, o Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.o = o
	return nil
}
