package gstsrc

import (
	"strings"
	"testing"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/source"
)

func TestPipelineString(t *testing.T) {
	desc, err := pipelineString(source.Config{URI: "file:///tmp/a.mkv", Width: 640, Height: 360})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"uri=file:///tmp/a.mkv", "format=I420,width=640,height=360", "appsink name=sink"} {
		if !strings.Contains(desc, want) {
			t.Errorf("pipeline %q missing %q", desc, want)
		}
	}

	custom := "videotestsrc ! video/x-raw,format=I420 ! appsink name=sink"
	if desc, _ := pipelineString(source.Config{Pipeline: custom}); desc != custom {
		t.Errorf("custom pipeline replaced: %q", desc)
	}
	if _, err := pipelineString(source.Config{}); err == nil {
		t.Error("expected an error without uri")
	}
}

func TestNanosToTicks(t *testing.T) {
	if got := nanosToTicks(1_000_000_000); got != 90000 {
		t.Errorf("1s = %d ticks", got)
	}
	if got := nanosToTicks(33_333_333); got != 2999 {
		t.Errorf("33.3ms = %d ticks", got)
	}
	if got := nanosToTicks(-1); got != frame.NoPTS {
		t.Errorf("unset = %d", got)
	}
}

func TestCopyI420(t *testing.T) {
	// 6x3: luma stride 8, chroma 3x2 with stride 4, luma rows padded to 4
	const w, h = 6, 3
	data := make([]byte, 8*4+4*2*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*8+x] = byte(10 + y*w + x)
		}
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			data[32+y*4+x] = byte(100 + y*3 + x)
			data[40+y*4+x] = byte(200 + y*3 + x)
		}
	}

	f := frame.New(0, nil)
	if err := f.AllocPlanes(w, h, frame.FormatYV12); err != nil {
		t.Fatal(err)
	}
	if err := copyI420(f, data); err != nil {
		t.Fatal(err)
	}
	if f.Planes[0][2*w+5] != byte(10+2*w+5) {
		t.Errorf("luma = %d", f.Planes[0][2*w+5])
	}
	if f.Planes[1][1*3+2] != 105 || f.Planes[2][0] != 200 {
		t.Errorf("chroma = %d %d", f.Planes[1][5], f.Planes[2][0])
	}

	if err := copyI420(f, data[:20]); err == nil {
		t.Error("expected a short buffer error")
	}
}
