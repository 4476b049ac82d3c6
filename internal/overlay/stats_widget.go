package overlay

import (
	"image"
	"image/color"
	"sync"
)

// StatsWidget shows the scheduler's frame statistics as an OSD box. Its
// lines are pushed by whoever owns the engine.
type StatsWidget struct {
	*BaseWidget
	mu      sync.RWMutex
	lines   []string
	padding int
	fg      color.RGBA
	bg      color.RGBA
}

// NewStatsWidget creates a stats OSD widget
func NewStatsWidget(id string, config map[string]interface{}) (*StatsWidget, error) {
	w := &StatsWidget{
		BaseWidget: NewBaseWidget(id, 8, 8, 0.85),
		padding:    6,
		fg:         color.RGBA{220, 255, 220, 255},
		bg:         color.RGBA{20, 20, 30, 200},
	}
	if err := w.UpdateConfig(config); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *StatsWidget) Type() string {
	return "stats"
}

// SetLines replaces the displayed lines
func (w *StatsWidget) SetLines(lines []string) {
	w.mu.Lock()
	w.lines = append(w.lines[:0], lines...)
	w.mu.Unlock()
}

// Lines returns a copy of the displayed lines
func (w *StatsWidget) Lines() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.lines...)
}

func (w *StatsWidget) Render(img *image.RGBA) error {
	w.mu.RLock()
	lines := append([]string(nil), w.lines...)
	fg, bg, pad := w.fg, w.bg, w.padding
	x, y, opacity, enabled := w.x, w.y, w.opacity, w.enabled
	w.mu.RUnlock()
	if !enabled || len(lines) == 0 {
		return nil
	}
	renderTextBox(img, lines, x, y, pad, fg, &bg, opacity)
	return nil
}

func (w *StatsWidget) GetConfig() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	config := w.commonConfig(w.Type())
	config["padding"] = w.padding
	config["color"] = colorConfig(w.fg)
	config["background"] = colorConfig(w.bg)
	return config
}

func (w *StatsWidget) UpdateConfig(config map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.applyCommon(config)
	if _, ok := config["padding"]; ok {
		w.padding = getInt(config["padding"])
	}
	if c, ok := config["color"]; ok {
		w.fg = getColor(c, w.fg)
	}
	if c, ok := config["background"]; ok {
		w.bg = getColor(c, w.bg)
	}
	return nil
}
