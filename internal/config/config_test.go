package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Store.Driver != "memory" || cfg.Mode != "release" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Throttle.TransformDelay != 30*time.Millisecond || cfg.Throttle.ColorDelay != 30*time.Millisecond {
		t.Fatalf("throttle = %+v", cfg.Throttle)
	}
	if cfg.WS.PingPeriod != 54*time.Second || cfg.WS.ReadLimit != 32768 {
		t.Fatalf("ws = %+v", cfg.WS)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.test.yaml")
	yaml := "port: 9000\nstore:\n  driver: valkey\n  valkey:\n    addr: cache:6379\nthrottle:\n  color_delay: 50ms\n"
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCENYX_PORT", "9100")
	t.Setenv("SCENYX_THROTTLE_FLUSH_ON_DISCONNECT", "true")

	cfg, err := load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("port = %d, want env value", cfg.Port)
	}
	if cfg.Store.Driver != "valkey" || cfg.Store.Valkey.Addr != "cache:6379" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Throttle.ColorDelay != 50*time.Millisecond || !cfg.Throttle.FlushOnDisconnect {
		t.Fatalf("throttle = %+v", cfg.Throttle)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"SCENYX_STORE_DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"SCENYX_STORE_DRIVER": "postgres"}},
		{"zero delay", map[string]string{"SCENYX_THROTTLE_TRANSFORM_DELAY": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := load(""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "config.absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d", cfg.Port)
	}
}

func TestMalformedFileIsAnError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.bad.yaml")
	if err := os.WriteFile(file, []byte("port: [9000\nstore: {driver\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := load(file); err == nil {
		t.Fatal("malformed config loaded without error")
	}
}
