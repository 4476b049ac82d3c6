package overlay

import (
	"image"
	"image/color"
	"testing"
)

func TestComposeCachesUntilChanged(t *testing.T) {
	m := NewManager()
	if layers := m.Compose(64, 32); layers != nil {
		t.Fatalf("empty manager produced %d layers", len(layers))
	}

	w, err := m.CreateWidget("text", "title", map[string]interface{}{"text": "hi", "x": 2, "y": 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AddWidget(w); err != nil {
		t.Fatal(err)
	}
	if !m.Changed() {
		t.Fatal("AddWidget did not mark the overlay changed")
	}

	layers := m.Compose(64, 32)
	if len(layers) != 1 || layers[0].Image.Bounds() != image.Rect(0, 0, 64, 32) {
		t.Fatalf("unexpected layers %+v", layers)
	}
	if m.Changed() {
		t.Error("Compose did not clear the changed flag")
	}
	first := layers[0].Image

	again := m.Compose(64, 32)
	if again[0].Image != first {
		t.Error("unchanged overlay re-allocated its canvas")
	}

	if err := m.UpdateWidget("title", map[string]interface{}{"text": "bye"}); err != nil {
		t.Fatal(err)
	}
	if !m.Changed() {
		t.Error("UpdateWidget did not mark changed")
	}
}

func TestComposeDrawsText(t *testing.T) {
	m := NewManager()
	m.LoadFromConfig([]map[string]interface{}{
		{"type": "text", "id": "t", "text": "X", "x": 0, "y": 0,
			"background": map[string]interface{}{"r": 0, "g": 0, "b": 255, "a": 255}},
		{"type": "bogus", "id": "b"},
		{"id": "missing-type"},
	})
	if len(m.GetAllWidgets()) != 1 {
		t.Fatalf("loaded %d widgets", len(m.GetAllWidgets()))
	}
	layer := m.Compose(40, 30)[0].Image
	if c := layer.RGBAAt(1, 1); c.B != 255 || c.A != 255 {
		t.Errorf("background pixel %v", c)
	}
	if c := layer.RGBAAt(39, 29); c.A != 0 {
		t.Errorf("pixel outside widget not transparent: %v", c)
	}
}

func TestStatsWidgetLines(t *testing.T) {
	m := NewManager()
	w, err := m.CreateWidget("stats", "osd", nil)
	if err != nil {
		t.Fatal(err)
	}
	m.AddWidget(w)
	m.Compose(100, 50)

	m.UpdateStats([]string{"fps 30", "skipped 0%"})
	if !m.Changed() {
		t.Error("UpdateStats did not mark changed")
	}
	if got := w.(*StatsWidget).Lines(); len(got) != 2 || got[0] != "fps 30" {
		t.Errorf("lines = %v", got)
	}
}

func TestDisabledOverlayComposesNothing(t *testing.T) {
	m := NewManager()
	w, _ := NewTextWidget("t", map[string]interface{}{"text": "x"})
	m.AddWidget(w)
	m.SetEnabled(false)
	if m.Compose(10, 10) != nil {
		t.Error("disabled overlay produced layers")
	}
	if m.Changed() {
		t.Error("disabled compose left changed set")
	}
}

func TestBlendImageOpacityAndClipping(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	DrawRectangle(dst, 0, 0, 4, 4, color.RGBA{0, 0, 0, 255}, 1)

	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+3] = 255, 255
	}
	BlendImage(dst, src, 3, 3, 0.5)

	if c := dst.RGBAAt(3, 3); c.R < 120 || c.R > 135 {
		t.Errorf("half-opacity red = %d", c.R)
	}
	if c := dst.RGBAAt(2, 2); c.R != 0 {
		t.Errorf("pixel outside src changed: %v", c)
	}
}

func TestExportConfigRoundTrip(t *testing.T) {
	m := NewManager()
	m.LoadFromConfig([]map[string]interface{}{
		{"type": "text", "id": "b", "text": "two"},
		{"type": "text", "id": "a", "text": "one", "opacity": 0.5},
	})
	out := m.ExportConfig()
	if len(out) != 2 || out[0]["id"] != "a" || out[0]["opacity"] != 0.5 {
		t.Errorf("export = %v", out)
	}
	m.Clear()
	if len(m.GetAllWidgets()) != 0 {
		t.Error("Clear left widgets")
	}
}
