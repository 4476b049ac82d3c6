// Package source holds the decoders that feed pictures into the engine.
// Each kind registers a factory; New picks one by name.
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/config"
	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

// Source is a decoder drawing into the engine
type Source interface {
	Name() string
	// Run decodes until ctx is cancelled or the input ends. It returns nil
	// in both cases.
	Run(ctx context.Context) error
	engine.DecoderFlusher
}

// Config is the resolved source configuration
type Config struct {
	Kind     string
	URI      string
	Pipeline string
	Width    int
	Height   int
	FPS      int
	Format   frame.Format
	// Frames stops the source after this many pictures, 0 runs forever
	Frames int

	// Prebuffer is how far ahead of the clock the first picture is scheduled
	Prebuffer       int64
	DefaultDuration int64
}

// FrameDuration is one picture interval in clock ticks
func (c Config) FrameDuration() int64 {
	if c.FPS <= 0 {
		return c.DefaultDuration
	}
	return clock.Hz / int64(c.FPS)
}

// FromConfig resolves the source section of the config file
func FromConfig(sc config.SourceConfig, ec config.EngineConfig) (Config, error) {
	format, err := frame.ParseFormat(sc.Format)
	if err != nil {
		return Config{}, fmt.Errorf("source format: %w", err)
	}
	return Config{
		Kind:            sc.Kind,
		URI:             sc.URI,
		Pipeline:        sc.Pipeline,
		Width:           sc.Width,
		Height:          sc.Height,
		FPS:             sc.FPS,
		Format:          format,
		Prebuffer:       ec.Prebuffer,
		DefaultDuration: ec.DefaultDuration,
	}, nil
}

// Factory builds a source of one kind
type Factory func(e *engine.Engine, cfg Config) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a source kind available to New. Registering a kind twice
// replaces the earlier factory.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

// Kinds lists the registered source kinds
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New creates a source of cfg.Kind
func New(e *engine.Engine, cfg Config) (Source, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source kind %q (have %v)", cfg.Kind, Kinds())
	}
	return f(e, cfg)
}

func init() {
	Register("pattern", func(e *engine.Engine, cfg Config) (Source, error) {
		return NewPattern(e, cfg)
	})
	Register("x11grab", func(e *engine.Engine, cfg Config) (Source, error) {
		return NewX11Grab(e, cfg)
	})
}
