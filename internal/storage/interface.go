package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidName   = errors.New("invalid nvram name")
	ErrInvalidValue  = errors.New("invalid nvram value")
	ErrNoSpace       = errors.New("nvram space exhausted")
	ErrInvalidSocket = errors.New("invalid socket record")
	ErrSocketExists  = errors.New("socket already exists")
	ErrBackend       = errors.New("nvram backend error")
)

// Version is the NVRAM format version reported by every backend.
const Version = "1.0"

// Entry is one NVRAM name/value pair.
type Entry struct {
	Name  string `json:"name" bson:"_id"`
	Value string `json:"value" bson:"value"`
}

// StorageInfo describes one persistence target of a backend.
type StorageInfo struct {
	Backend string `json:"backend"`
	Coding  string `json:"coding"`
	Path    string `json:"path"`
}

// Info is the space and backend report of a store.
type Info struct {
	Version    string        `json:"version"`
	TotalSpace int           `json:"total_space"`
	FreeSpace  int           `json:"free_space"`
	UsedSpace  int           `json:"used_space"`
	Storage    []StorageInfo `json:"storage"`
}

// Store is the NVRAM configuration store. Implementations serialize their
// own mutations and must be safe for concurrent use. No atomicity is
// promised across separate calls.
type Store interface {
	// Get returns the value of name, or ErrNotFound.
	Get(ctx context.Context, name string) (string, error)
	// Set creates or replaces name.
	Set(ctx context.Context, name, value string) error
	// Unset removes name, or returns ErrNotFound.
	Unset(ctx context.Context, name string) error
	// List returns every entry sorted by name.
	List(ctx context.Context) ([]Entry, error)
	// Commit makes the current entries durable.
	Commit(ctx context.Context) error
	// Info reports version, space usage and persistence targets.
	Info(ctx context.Context) (*Info, error)
	// InsertSocket records a listening socket described by entries.
	InsertSocket(ctx context.Context, entries []Entry) error
	// RemoveSocket deletes the listening socket described by entries.
	RemoveSocket(ctx context.Context, entries []Entry) error
	// Ping checks if the backend is alive.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// EntrySize is the space an entry occupies, counted as "name=value\0".
func EntrySize(name, value string) int {
	return len(name) + len(value) + 2
}

// ValidateName checks that name can be stored.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, "=\x00\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateValue checks that value can be stored.
func ValidateValue(value string) error {
	if strings.IndexByte(value, 0) >= 0 {
		return ErrInvalidValue
	}
	return nil
}

// Validate checks both name and value of an entry.
func Validate(name, value string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return ValidateValue(value)
}

// UsedSpace sums EntrySize over entries.
func UsedSpace(entries []Entry) int {
	used := 0
	for _, e := range entries {
		used += EntrySize(e.Name, e.Value)
	}
	return used
}

// BackendError wraps a driver error so callers can match ErrBackend.
func BackendError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrBackend, op, err)
}
