package inhibit

import (
	"errors"
	"testing"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
)

type fakeBus struct {
	next     uint32
	held     map[uint32]bool
	failNext bool
	closed   bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{next: 7, held: map[uint32]bool{}}
}

func (b *fakeBus) Inhibit(app, reason string) (uint32, error) {
	if b.failNext {
		b.failNext = false
		return 0, errors.New("no service")
	}
	b.next++
	b.held[b.next] = true
	return b.next, nil
}

func (b *fakeBus) UnInhibit(cookie uint32) error {
	if !b.held[cookie] {
		return errors.New("unknown cookie")
	}
	delete(b.held, cookie)
	return nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func TestSetIsIdempotent(t *testing.T) {
	bus := newFakeBus()
	in := New(bus, "framepacer")

	for i := 0; i < 3; i++ {
		if err := in.Set(true); err != nil {
			t.Fatal(err)
		}
	}
	if len(bus.held) != 1 || !in.Active() {
		t.Fatalf("held = %v", bus.held)
	}

	in.Set(false)
	in.Set(false)
	if len(bus.held) != 0 || in.Active() {
		t.Errorf("held = %v after release", bus.held)
	}
}

func TestSetFailureKeepsState(t *testing.T) {
	bus := newFakeBus()
	bus.failNext = true
	in := New(bus, "framepacer")
	if err := in.Set(true); err == nil {
		t.Fatal("expected an error")
	}
	if in.Active() {
		t.Error("active after a failed inhibit")
	}
}

func TestFollowSpeed(t *testing.T) {
	bus := newFakeBus()
	in := New(bus, "framepacer")

	in.FollowSpeed(clock.SpeedPause, clock.SpeedNormal)
	if !in.Active() {
		t.Fatal("not inhibited at normal speed")
	}
	in.FollowSpeed(clock.SpeedNormal, clock.SpeedPause)
	if in.Active() {
		t.Fatal("still inhibited while paused")
	}
}

func TestClose(t *testing.T) {
	bus := newFakeBus()
	in := New(bus, "framepacer")
	in.Set(true)
	if err := in.Close(); err != nil {
		t.Fatal(err)
	}
	if len(bus.held) != 0 || !bus.closed {
		t.Errorf("held=%v closed=%v", bus.held, bus.closed)
	}
}
