package overlay

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/bryanchriswhite/FramePacer/internal/logger"
)

// Manager owns the overlay widgets and renders them into a layer the output
// driver composites onto its copy of each displayed frame.
type Manager struct {
	widgets map[string]Widget
	mu      sync.RWMutex
	enabled bool

	// dirty is set by any change the next Compose has to pick up
	dirty  bool
	canvas *image.RGBA
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{
		widgets: make(map[string]Widget),
		enabled: true,
		dirty:   true,
	}
}

func (m *Manager) markDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
}

// Changed reports whether the overlay changed since the last Compose
func (m *Manager) Changed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// AddWidget adds a widget to the overlay
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.widgets[widget.ID()]; exists {
		return fmt.Errorf("widget with ID %s already exists", widget.ID())
	}

	m.widgets[widget.ID()] = widget
	m.dirty = true
	logger.WithComponent("overlay").Info().Msgf("[Overlay] Added widget: %s (type: %s)", widget.ID(), widget.Type())
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.widgets[id]; !exists {
		return fmt.Errorf("widget with ID %s not found", id)
	}

	delete(m.widgets, id)
	m.dirty = true
	logger.WithComponent("overlay").Info().Msgf("[Overlay] Removed widget: %s", id)
	return nil
}

// GetWidget retrieves a widget by ID
func (m *Manager) GetWidget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	widget, exists := m.widgets[id]
	return widget, exists
}

// GetAllWidgets returns all widgets ordered by ID
func (m *Manager) GetAllWidgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

func (m *Manager) sortedLocked() []Widget {
	widgets := make([]Widget, 0, len(m.widgets))
	for _, widget := range m.widgets {
		widgets = append(widgets, widget)
	}
	sort.Slice(widgets, func(i, j int) bool { return widgets[i].ID() < widgets[j].ID() })
	return widgets
}

// UpdateWidget updates a widget's configuration
func (m *Manager) UpdateWidget(id string, config map[string]interface{}) error {
	m.mu.RLock()
	widget, exists := m.widgets[id]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("widget with ID %s not found", id)
	}

	if err := widget.UpdateConfig(config); err != nil {
		return fmt.Errorf("failed to update widget config: %w", err)
	}

	m.markDirty()
	logger.WithComponent("overlay").Info().Msgf("[Overlay] Updated widget: %s", id)
	return nil
}

// UpdateStats pushes new lines to every stats widget
func (m *Manager) UpdateStats(lines []string) {
	m.mu.RLock()
	var touched bool
	for _, w := range m.widgets {
		if sw, ok := w.(*StatsWidget); ok {
			sw.SetLines(lines)
			touched = true
		}
	}
	m.mu.RUnlock()
	if touched {
		m.markDirty()
	}
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	m.dirty = true
	logger.WithComponent("overlay").Info().Msgf("[Overlay] Overlay %s", map[bool]string{true: "enabled", false: "disabled"}[enabled])
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Compose renders all enabled widgets for a width x height picture. The
// canvas is reused until a widget changes or the size does. It returns nil
// when there is nothing to draw.
func (m *Manager) Compose(width, height int) []Layer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || len(m.widgets) == 0 || width <= 0 || height <= 0 {
		m.dirty = false
		return nil
	}

	sizeChanged := m.canvas == nil || m.canvas.Bounds().Dx() != width || m.canvas.Bounds().Dy() != height
	if m.dirty || sizeChanged {
		if sizeChanged {
			m.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
		} else {
			clear(m.canvas.Pix)
		}
		for _, widget := range m.sortedLocked() {
			if !widget.IsEnabled() {
				continue
			}
			if err := widget.Render(m.canvas); err != nil {
				logger.WithComponent("overlay").Info().Msgf("[Overlay] Failed to render widget %s: %v", widget.ID(), err)
			}
		}
		m.dirty = false
	}

	return []Layer{{Image: m.canvas, Opacity: 1}}
}

// CreateWidget creates a new widget instance from configuration
func (m *Manager) CreateWidget(widgetType string, id string, config map[string]interface{}) (Widget, error) {
	var widget Widget
	var err error

	switch widgetType {
	case "text":
		widget, err = NewTextWidget(id, config)
	case "stats":
		widget, err = NewStatsWidget(id, config)
	default:
		return nil, fmt.Errorf("unknown widget type: %s", widgetType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s widget: %w", widgetType, err)
	}

	return widget, nil
}

// LoadFromConfig loads widget configurations and creates widget instances
func (m *Manager) LoadFromConfig(configs []map[string]interface{}) error {
	for _, config := range configs {
		widgetType, ok := config["type"].(string)
		if !ok {
			logger.WithComponent("overlay").Info().Msgf("[Overlay] Skipping widget with missing type")
			continue
		}

		id, ok := config["id"].(string)
		if !ok {
			logger.WithComponent("overlay").Info().Msgf("[Overlay] Skipping widget with missing ID")
			continue
		}

		widget, err := m.CreateWidget(widgetType, id, config)
		if err != nil {
			logger.WithComponent("overlay").Info().Msgf("[Overlay] Failed to create widget %s: %v", id, err)
			continue
		}

		if err := m.AddWidget(widget); err != nil {
			logger.WithComponent("overlay").Info().Msgf("[Overlay] Failed to add widget %s: %v", id, err)
		}
	}

	return nil
}

// ExportConfig exports all widget configurations
func (m *Manager) ExportConfig() []map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	widgets := m.sortedLocked()
	configs := make([]map[string]interface{}, 0, len(widgets))
	for _, widget := range widgets {
		configs = append(configs, widget.GetConfig())
	}
	return configs
}

// Clear removes all widgets
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.widgets = make(map[string]Widget)
	m.dirty = true
	logger.WithComponent("overlay").Info().Msgf("[Overlay] Cleared all widgets")
}

// GetAvailableWidgetTypes returns a list of available widget types
func (m *Manager) GetAvailableWidgetTypes() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"type":        "text",
			"name":        "Text Label",
			"description": "Display custom text on the picture",
			"config_schema": map[string]interface{}{
				"text":       "string (required, newlines split lines)",
				"x":          "int (position)",
				"y":          "int (position)",
				"opacity":    "float (0.0-1.0)",
				"enabled":    "bool",
				"color":      "object {r, g, b, a}",
				"background": "object {r, g, b, a} (optional)",
				"padding":    "int",
			},
		},
		{
			"type":        "stats",
			"name":        "Playback Stats",
			"description": "Frame pool and scheduler statistics",
			"config_schema": map[string]interface{}{
				"x":          "int (position)",
				"y":          "int (position)",
				"opacity":    "float (0.0-1.0)",
				"enabled":    "bool",
				"color":      "object {r, g, b, a}",
				"background": "object {r, g, b, a}",
				"padding":    "int",
			},
		},
	}
}
