package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	cfg := m.Get()
	if cfg.Engine.PoolSize != 15 || cfg.Engine.MaxSleepMs != 42 || cfg.Engine.DuplicateReserve != 1 {
		t.Errorf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Output.Driver != "mjpeg" {
		t.Errorf("driver = %q", cfg.Output.Driver)
	}
}

func TestParseFillsPartialFile(t *testing.T) {
	cfg, err := Parse([]byte("server_port: 9000\nengine:\n  pool_size: 4\n  last_frame_grace: 1500\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ServerPort != 9000 || cfg.Engine.PoolSize != 4 || cfg.Engine.LastFrameGrace != 1500 {
		t.Errorf("explicit values lost: %+v", cfg)
	}
	if cfg.Engine.StatsWindow != 200 || cfg.Engine.DefaultDuration != 3000 || cfg.LogLevel != "info" {
		t.Errorf("defaults not filled: %+v", cfg.Engine)
	}
	if _, err := Parse([]byte("server_port: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestViperSetIsSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	v := m.GetViper()
	if got := v.GetInt("engine.pool_size"); got != 15 {
		t.Fatalf("viper engine.pool_size = %d", got)
	}
	v.Set("engine.pool_size", 8)
	v.Set("output.driver", "null")
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := reloaded.Get()
	if cfg.Engine.PoolSize != 8 || cfg.Output.Driver != "null" {
		t.Errorf("viper edits not persisted: pool=%d driver=%q", cfg.Engine.PoolSize, cfg.Output.Driver)
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("untouched key changed: port=%d", cfg.ServerPort)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetOverlayWidgets([]map[string]interface{}{{"type": "text", "text": "hi"}}); err != nil {
		t.Fatal(err)
	}
	cfg := m.Get()
	cfg.Overlay.Widgets[0]["text"] = "changed"
	cfg.ServerPort = 1

	again := m.Get()
	if again.Overlay.Widgets[0]["text"] != "hi" || again.ServerPort != 8080 {
		t.Error("Get leaked internal state")
	}
}

func TestUpdateFillsDefaults(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Update(&Config{ServerPort: 7000}); err != nil {
		t.Fatal(err)
	}
	if m.GetPort() != 7000 || m.Get().Engine.PoolSize != 15 {
		t.Errorf("update result: %+v", m.Get())
	}
	if err := m.SetLogLevel("debug"); err != nil || m.GetLogLevel() != "debug" {
		t.Errorf("SetLogLevel: %v %q", err, m.GetLogLevel())
	}
}
