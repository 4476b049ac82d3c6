package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/engine"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		key     string
		current interface{}
		value   string
		want    interface{}
		wantErr bool
	}{
		{key: "engine.pool_size", current: 15, value: "20", want: int64(20)},
		{key: "engine.pool_size", current: 15, value: "many", wantErr: true},
		{key: "server_port", current: 8080, value: "70000", wantErr: true},
		{key: "engine.flush_filler", current: true, value: "false", want: false},
		{key: "engine.flush_filler", current: true, value: "nope", wantErr: true},
		{key: "output.driver", current: "mjpeg", value: "x11", want: "x11"},
		{key: "log_level", current: "info", value: "loud", wantErr: true},
		{key: "log_level", current: "info", value: "debug", want: "debug"},
		{key: "engine", current: map[string]interface{}{}, value: "x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.key, tt.current, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseValue(%s, %q) err = %v", tt.key, tt.value, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseValue(%s, %q) = %#v, want %#v", tt.key, tt.value, got, tt.want)
		}
	}
}

func TestGrabQuery(t *testing.T) {
	defer func() {
		grabWait, grabWidth, grabHeight = false, 0, 0
	}()

	q, err := grabQuery("shot.PNG")
	if err != nil || q != "format=png" {
		t.Errorf("query = %q, %v", q, err)
	}

	grabWait, grabWidth, grabHeight = true, 320, 180
	q, err = grabQuery("thumb.jpg")
	if err != nil {
		t.Fatal(err)
	}
	for _, part := range []string{"format=jpeg", "wait=true", "width=320", "height=180"} {
		if !strings.Contains(q, part) {
			t.Errorf("query %q missing %s", q, part)
		}
	}

	grabHeight = 0
	if _, err := grabQuery("thumb.jpg"); err == nil {
		t.Error("expected an error for width without height")
	}
	if _, err := grabQuery("shot.gif"); err == nil {
		t.Error("expected an error for an unknown extension")
	}
}

func TestStatsLines(t *testing.T) {
	prev := engine.Stats{Displayed: 10}
	s := engine.Stats{Displayed: 25, Free: 3, PoolSize: 15, DisplayQueued: 4, Clock: 90000}
	s.State.ModeName = "normal"

	lines := statsLines(s, prev, 500*time.Millisecond)
	if len(lines) != 4 {
		t.Fatalf("lines = %v", lines)
	}
	if lines[0] != "normal  30.0 fps" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "pool 3/15 free  queued 4" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if lines[3] != "clock 1.000s" {
		t.Errorf("line 3 = %q", lines[3])
	}
}
