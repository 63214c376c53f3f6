package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
)

// Store implements an in-memory NVRAM with an optional commit file.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	used    int
	total   int
	path    string

	// serializes socket table updates, which span several entries
	sockMu sync.Mutex
}

// NewStore creates a memory store holding at most totalSpace bytes. When
// path is set, entries committed earlier are loaded from it.
func NewStore(totalSpace int, path string) (*Store, error) {
	s := &Store{
		entries: make(map[string]string),
		total:   totalSpace,
		path:    path,
	}
	if path == "" {
		return s, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open nvram file: %w", err)
	}
	defer f.Close()

	entries, err := storage.ReadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load nvram file: %w", err)
	}
	for _, e := range entries {
		if err := storage.Validate(e.Name, e.Value); err != nil {
			return nil, fmt.Errorf("failed to load nvram file: %w", err)
		}
		s.put(e.Name, e.Value)
	}
	if s.used > s.total {
		return nil, fmt.Errorf("nvram file needs %d bytes: %w", s.used, storage.ErrNoSpace)
	}
	return s, nil
}

func (s *Store) put(name, value string) {
	if old, ok := s.entries[name]; ok {
		s.used -= storage.EntrySize(name, old)
	}
	s.entries[name] = value
	s.used += storage.EntrySize(name, value)
}

func (s *Store) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[name]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, name, value string) error {
	if err := storage.Validate(name, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + storage.EntrySize(name, value)
	if old, ok := s.entries[name]; ok {
		used -= storage.EntrySize(name, old)
	}
	if used > s.total {
		return storage.ErrNoSpace
	}
	s.put(name, value)
	return nil
}

func (s *Store) Unset(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[name]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.entries, name)
	s.used -= storage.EntrySize(name, v)
	return nil
}

func (s *Store) List(ctx context.Context) ([]storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(), nil
}

func (s *Store) sorted() []storage.Entry {
	out := make([]storage.Entry, 0, len(s.entries))
	for name, value := range s.entries {
		out = append(out, storage.Entry{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Commit writes all entries to the commit file through a temporary file and
// rename. Without a path it is a no-op.
func (s *Store) Commit(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	entries := s.sorted()
	s.mu.RUnlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".nvram-*")
	if err != nil {
		return storage.BackendError("commit", err)
	}
	defer os.Remove(tmp.Name())

	if err := storage.WriteEntries(tmp, entries); err != nil {
		tmp.Close()
		return storage.BackendError("commit", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return storage.BackendError("commit", err)
	}
	if err := tmp.Close(); err != nil {
		return storage.BackendError("commit", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return storage.BackendError("commit", err)
	}
	return nil
}

func (s *Store) Info(ctx context.Context) (*storage.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.path
	if path == "" {
		path = "-"
	}
	return &storage.Info{
		Version:    storage.Version,
		TotalSpace: s.total,
		FreeSpace:  s.total - s.used,
		UsedSpace:  s.used,
		Storage: []storage.StorageInfo{
			{Backend: "memory", Coding: "none", Path: path},
		},
	}, nil
}

func (s *Store) InsertSocket(ctx context.Context, entries []storage.Entry) error {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()

	_, err := storage.InsertSocket(ctx, s, entries)
	return err
}

func (s *Store) RemoveSocket(ctx context.Context, entries []storage.Entry) error {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()

	_, err := storage.RemoveSocket(ctx, s, entries)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
