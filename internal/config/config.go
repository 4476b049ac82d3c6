package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	ServerPort         int    `json:"server_port" yaml:"server_port"`
	LogLevel           string `json:"log_level" yaml:"log_level"`
	LogPretty          bool   `json:"log_pretty" yaml:"log_pretty"`
	InhibitScreensaver bool   `json:"inhibit_screensaver" yaml:"inhibit_screensaver"`

	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Output  OutputConfig  `json:"output" yaml:"output"`
	Overlay OverlayConfig `json:"overlay" yaml:"overlay"`
	Source  SourceConfig  `json:"source" yaml:"source"`
}

// EngineConfig holds the frame pool and scheduler policy.
// Durations are milliseconds, timestamps are 90 kHz ticks.
type EngineConfig struct {
	PoolSize         int   `json:"pool_size" yaml:"pool_size"`
	MaxSleepMs       int   `json:"max_sleep_ms" yaml:"max_sleep_ms"`
	SeekBrakePolls   int   `json:"seek_brake_polls" yaml:"seek_brake_polls"`
	SeekBrakeDelayMs int   `json:"seek_brake_delay_ms" yaml:"seek_brake_delay_ms"`
	LastFrameGrace   int64 `json:"last_frame_grace" yaml:"last_frame_grace"`
	DefaultDuration  int64 `json:"default_duration" yaml:"default_duration"`
	Prebuffer        int64 `json:"prebuffer" yaml:"prebuffer"`

	SkipThreshold    int `json:"skip_threshold" yaml:"skip_threshold"`
	DiscardThreshold int `json:"discard_threshold" yaml:"discard_threshold"`
	WarnWindows      int `json:"warn_windows" yaml:"warn_windows"`
	StatsWindow      int `json:"stats_window" yaml:"stats_window"`

	StarvationFlush     bool `json:"starvation_flush" yaml:"starvation_flush"`
	StarvationTimeoutMs int  `json:"starvation_timeout_ms" yaml:"starvation_timeout_ms"`
	FlushFiller         bool `json:"flush_filler" yaml:"flush_filler"`
	DuplicateReserve    int  `json:"duplicate_reserve" yaml:"duplicate_reserve"`
	StillIntervalMs     int  `json:"still_interval_ms" yaml:"still_interval_ms"`
	StepTimeoutMs       int  `json:"step_timeout_ms" yaml:"step_timeout_ms"`
	AcquirePollMs       int  `json:"acquire_poll_ms" yaml:"acquire_poll_ms"`
}

// OutputConfig selects and sizes the output driver
type OutputConfig struct {
	Driver  string `json:"driver" yaml:"driver"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	Quality int    `json:"quality" yaml:"quality"`
	Title   string `json:"title" yaml:"title"`
}

// OverlayConfig represents overlay configuration
type OverlayConfig struct {
	Enabled bool                     `json:"enabled" yaml:"enabled"`
	Stats   bool                     `json:"stats" yaml:"stats"`
	Widgets []map[string]interface{} `json:"widgets" yaml:"widgets"`
}

// SourceConfig describes the decoder feeding the pool
type SourceConfig struct {
	Kind     string `json:"kind" yaml:"kind"`
	URI      string `json:"uri" yaml:"uri"`
	Pipeline string `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
	FPS      int    `json:"fps" yaml:"fps"`
	Format   string `json:"format" yaml:"format"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	v          *viper.Viper
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/framepacer/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "framepacer", "config.yaml"), nil
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("driver", m.config.Output.Driver).
		Int("pool_size", m.config.Engine.PoolSize).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	cfg := &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Overlay: OverlayConfig{
			Enabled: true,
			Stats:   true,
			Widgets: []map[string]interface{}{},
		},
	}
	cfg.Engine = DefaultEngine()
	cfg.Output = OutputConfig{
		Driver:  "mjpeg",
		Width:   1280,
		Height:  720,
		Quality: 90,
		Title:   "FramePacer",
	}
	cfg.Source = SourceConfig{
		Kind:   "pattern",
		Width:  640,
		Height: 360,
		FPS:    30,
		Format: "yv12",
	}
	return cfg
}

// DefaultEngine returns the default scheduler policy
func DefaultEngine() EngineConfig {
	return EngineConfig{
		PoolSize:            15,
		MaxSleepMs:          42,
		SeekBrakePolls:      10,
		SeekBrakeDelayMs:    3,
		LastFrameGrace:      0,
		DefaultDuration:     3000,
		Prebuffer:           9000,
		SkipThreshold:       10,
		DiscardThreshold:    10,
		WarnWindows:         2,
		StatsWindow:         200,
		StarvationFlush:     true,
		StarvationTimeoutMs: 30,
		FlushFiller:         true,
		DuplicateReserve:    1,
		StillIntervalMs:     20,
		StepTimeoutMs:       500,
		AcquirePollMs:       1000,
	}
}

// fillDefaults replaces zero values a partial file left out
func fillDefaults(cfg *Config) {
	def := Defaults()
	if cfg.ServerPort == 0 {
		cfg.ServerPort = def.ServerPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	e, de := &cfg.Engine, def.Engine
	setInt := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	setInt(&e.PoolSize, de.PoolSize)
	setInt(&e.MaxSleepMs, de.MaxSleepMs)
	setInt(&e.SeekBrakePolls, de.SeekBrakePolls)
	setInt(&e.SeekBrakeDelayMs, de.SeekBrakeDelayMs)
	setInt(&e.SkipThreshold, de.SkipThreshold)
	setInt(&e.DiscardThreshold, de.DiscardThreshold)
	setInt(&e.WarnWindows, de.WarnWindows)
	setInt(&e.StatsWindow, de.StatsWindow)
	setInt(&e.StarvationTimeoutMs, de.StarvationTimeoutMs)
	setInt(&e.StillIntervalMs, de.StillIntervalMs)
	setInt(&e.StepTimeoutMs, de.StepTimeoutMs)
	setInt(&e.AcquirePollMs, de.AcquirePollMs)
	if e.DefaultDuration <= 0 {
		e.DefaultDuration = de.DefaultDuration
	}
	if e.DuplicateReserve < 0 {
		e.DuplicateReserve = 0
	}
	if e.LastFrameGrace < 0 {
		e.LastFrameGrace = 0
	}

	if cfg.Output.Driver == "" {
		cfg.Output.Driver = def.Output.Driver
	}
	setInt(&cfg.Output.Width, def.Output.Width)
	setInt(&cfg.Output.Height, def.Output.Height)
	setInt(&cfg.Output.Quality, def.Output.Quality)

	if cfg.Source.Kind == "" {
		cfg.Source.Kind = def.Source.Kind
	}
	if cfg.Source.Format == "" {
		cfg.Source.Format = def.Source.Format
	}
	setInt(&cfg.Source.Width, def.Source.Width)
	setInt(&cfg.Source.Height, def.Source.Height)
	setInt(&cfg.Source.FPS, def.Source.FPS)

	if cfg.Overlay.Widgets == nil {
		cfg.Overlay.Widgets = []map[string]interface{}{}
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.v = nil
	m.mu.Unlock()
	return nil
}

// Parse decodes a YAML document and fills in defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fillDefaults(&cfg)
	return &cfg, nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.Overlay.Widgets = make([]map[string]interface{}, len(m.config.Overlay.Widgets))
	for i, w := range m.config.Overlay.Widgets {
		c := make(map[string]interface{}, len(w))
		for k, v := range w {
			c[k] = v
		}
		cfg.Overlay.Widgets[i] = c
	}
	return &cfg
}

// GetViper returns a viper view of the config file. Values set on it are
// written back by the next Save.
func (m *Manager) GetViper() *viper.Viper {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.v != nil {
		return m.v
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(m.configPath)
	if data, err := yaml.Marshal(m.config); err == nil {
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			logger.WithComponent("config").Warn().Err(err).Msg("Failed to seed viper from config")
		}
	}
	m.v = v
	return v
}

// syncFromViperLocked folds viper settings back into the typed config
func (m *Manager) syncFromViperLocked() error {
	if m.v == nil {
		return nil
	}
	data, err := yaml.Marshal(m.v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal viper settings: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	if err := m.syncFromViperLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	cfg := m.config
	m.mu.Unlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update updates the entire configuration
func (m *Manager) Update(cfg *Config) error {
	fillDefaults(cfg)
	m.mu.Lock()
	m.config = cfg
	m.v = nil
	m.mu.Unlock()
	return m.Save()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	m.mu.Lock()
	m.config.ServerPort = port
	m.v = nil
	m.mu.Unlock()
	return m.Save()
}

// GetPort gets the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ServerPort
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	m.mu.Lock()
	m.config.LogLevel = level
	m.v = nil
	m.mu.Unlock()
	return m.Save()
}

// GetLogLevel gets the log level
func (m *Manager) GetLogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.LogLevel
}

// SetOverlayWidgets replaces the persisted widget list
func (m *Manager) SetOverlayWidgets(widgets []map[string]interface{}) error {
	m.mu.Lock()
	m.config.Overlay.Widgets = widgets
	m.v = nil
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}

// Watch reloads the file when it changes on disk and hands the new config
// to onChange. Edits made through the API land here too.
func (m *Manager) Watch(onChange func(*Config)) {
	v := viper.New()
	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log := logger.WithComponent("config")
		if err := m.load(); err != nil {
			log.Warn().Err(err).Str("path", e.Name).Msg("Failed to reload config")
			return
		}
		log.Info().Str("path", e.Name).Msg("Config reloaded")
		onChange(m.Get())
	})
	v.WatchConfig()
}
