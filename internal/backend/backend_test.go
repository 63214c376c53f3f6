package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
)

func TestNew_MemoryBackend(t *testing.T) {
	cfg := &config.NVRAMConfig{Type: "memory", TotalSpace: 1024}

	store, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = store.Close() }()

	info, err := store.Info(context.Background())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Storage[0].Backend != "memory" {
		t.Errorf("expected memory backend, got %s", info.Storage[0].Backend)
	}
	if info.TotalSpace != 1024 {
		t.Errorf("expected total space 1024, got %d", info.TotalSpace)
	}
}

func TestNew_DefaultToMemory(t *testing.T) {
	cfg := &config.NVRAMConfig{Type: "", TotalSpace: 64}

	store, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error for empty type, got %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Set(context.Background(), "a", "b"); err != nil {
		t.Errorf("expected Set to succeed, got %v", err)
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	cfg := &config.NVRAMConfig{Type: "flash", TotalSpace: 64}

	_, err := New(context.Background(), cfg, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.conf")
	if err := os.WriteFile(path, []byte("lan_ifname=br0\nwan_proto=dhcp\n"), 0o600); err != nil {
		t.Fatalf("failed to write defaults: %v", err)
	}

	cfg := &config.NVRAMConfig{
		Type:            "memory",
		TotalSpace:      1024,
		DefaultsFile:    path,
		DefaultsPattern: "lan_",
	}

	store, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = store.Close() }()

	v, err := store.Get(context.Background(), "lan_ifname")
	if err != nil || v != "br0" {
		t.Errorf("expected lan_ifname=br0, got %q (%v)", v, err)
	}
	if _, err := store.Get(context.Background(), "wan_proto"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected wan_proto to be filtered out, got %v", err)
	}
}

func TestNew_MissingDefaultsFile(t *testing.T) {
	cfg := &config.NVRAMConfig{
		Type:         "memory",
		TotalSpace:   1024,
		DefaultsFile: filepath.Join(t.TempDir(), "missing.conf"),
	}

	if _, err := New(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for missing defaults file")
	}
}
