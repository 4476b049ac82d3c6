package frame

import (
	"sync"
	"testing"
	"time"
)

func TestListOrderAndPeak(t *testing.T) {
	var l List
	a, b, c := New(0, nil), New(1, nil), New(2, nil)
	l.PushBack(a)
	l.PushBack(b)
	l.PushFront(c)

	if l.Len() != 3 || l.Peak() != 3 {
		t.Fatalf("len=%d peak=%d", l.Len(), l.Peak())
	}
	if l.Front() != c {
		t.Error("PushFront did not place frame at head")
	}
	if !l.Remove(a) || l.Contains(a) {
		t.Error("Remove failed")
	}
	if got := l.PopFront(); got != c {
		t.Errorf("PopFront = %v", got)
	}
	if got := l.PopFront(); got != b {
		t.Errorf("PopFront = %v", got)
	}
	if l.PopFront() != nil {
		t.Error("PopFront on empty list returned a frame")
	}
	if l.Peak() != 3 {
		t.Errorf("peak dropped to %d", l.Peak())
	}
}

func TestListTakeAllAndMatch(t *testing.T) {
	var l List
	small, big := New(0, nil), New(1, nil)
	small.AllocPlanes(2, 2, FormatRGBA)
	big.AllocPlanes(8, 8, FormatRGBA)
	l.PushBack(small)
	l.PushBack(big)

	if i := l.IndexMatching(Params{Width: 8, Height: 8, Format: FormatRGBA}); i != 1 {
		t.Errorf("IndexMatching = %d, want 1", i)
	}
	if i := l.IndexMatching(Params{Width: 3, Height: 3, Format: FormatRGBA}); i != -1 {
		t.Errorf("IndexMatching = %d, want -1", i)
	}
	all := l.TakeAll()
	if len(all) != 2 || all[0] != small || l.Len() != 0 {
		t.Errorf("TakeAll returned %d frames, list len %d", len(all), l.Len())
	}
}

func TestQueueWaitUntilDeadline(t *testing.T) {
	q := NewQueue()
	q.Lock()
	start := time.Now()
	ok := q.WaitUntil(start.Add(20 * time.Millisecond))
	q.Unlock()
	if ok {
		t.Error("WaitUntil reported wakeup before deadline with nothing queued")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("WaitUntil returned early")
	}
}

func TestQueuePutWakesWaiter(t *testing.T) {
	q := NewQueue()
	got := make(chan *Frame, 1)
	var ready sync.WaitGroup
	ready.Add(1)
	go func() {
		q.Lock()
		ready.Done()
		for q.Len() == 0 {
			q.Wait()
		}
		got <- q.PopFront()
		q.Unlock()
	}()
	ready.Wait()

	f := New(7, nil)
	q.Put(f)
	select {
	case r := <-got:
		if r != f {
			t.Errorf("waiter got %v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
	if q.Count() != 0 || q.PeakCount() != 1 {
		t.Errorf("count=%d peak=%d", q.Count(), q.PeakCount())
	}
}
