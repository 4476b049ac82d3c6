package frame

import (
	"sync"
	"time"
)

// List is an unsynchronized FIFO of frames that remembers its peak length
type List struct {
	items []*Frame
	peak  int
}

// Len returns the number of queued frames
func (l *List) Len() int {
	return len(l.items)
}

// Peak returns the largest length the list has reached
func (l *List) Peak() int {
	return l.peak
}

// Front returns the oldest frame or nil
func (l *List) Front() *Frame {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

// At returns the i-th frame from the front
func (l *List) At(i int) *Frame {
	return l.items[i]
}

// PushBack appends a frame
func (l *List) PushBack(f *Frame) {
	l.items = append(l.items, f)
	if len(l.items) > l.peak {
		l.peak = len(l.items)
	}
}

// PushFront prepends a frame
func (l *List) PushFront(f *Frame) {
	l.items = append(l.items, nil)
	copy(l.items[1:], l.items)
	l.items[0] = f
	if len(l.items) > l.peak {
		l.peak = len(l.items)
	}
}

// PopFront removes and returns the oldest frame, or nil
func (l *List) PopFront() *Frame {
	if len(l.items) == 0 {
		return nil
	}
	f := l.items[0]
	l.items[0] = nil
	l.items = l.items[1:]
	return f
}

// RemoveAt removes the i-th frame
func (l *List) RemoveAt(i int) *Frame {
	f := l.items[i]
	copy(l.items[i:], l.items[i+1:])
	l.items[len(l.items)-1] = nil
	l.items = l.items[:len(l.items)-1]
	return f
}

// Remove removes f if present
func (l *List) Remove(f *Frame) bool {
	for i, it := range l.items {
		if it == f {
			l.RemoveAt(i)
			return true
		}
	}
	return false
}

// Contains reports whether f is queued
func (l *List) Contains(f *Frame) bool {
	for _, it := range l.items {
		if it == f {
			return true
		}
	}
	return false
}

// TakeAll empties the list and returns its frames in order
func (l *List) TakeAll() []*Frame {
	out := l.items
	l.items = nil
	return out
}

// IndexMatching returns the first frame already formatted as p, or -1
func (l *List) IndexMatching(p Params) int {
	for i, f := range l.items {
		if f.Matches(p) {
			return i
		}
	}
	return -1
}

// Queue is a List guarded by a mutex and a condition variable. Callers of the
// embedded List methods must hold the lock.
type Queue struct {
	sync.Mutex
	List
	cond *sync.Cond
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.Mutex)
	return q
}

// Put appends a frame and wakes every waiter
func (q *Queue) Put(f *Frame) {
	q.Lock()
	q.PushBack(f)
	q.Unlock()
	q.cond.Broadcast()
}

// Count returns the length under the lock
func (q *Queue) Count() int {
	q.Lock()
	defer q.Unlock()
	return q.Len()
}

// PeakCount returns the peak length under the lock
func (q *Queue) PeakCount() int {
	q.Lock()
	defer q.Unlock()
	return q.Peak()
}

// Broadcast wakes every waiter
func (q *Queue) Broadcast() {
	q.cond.Broadcast()
}

// Wait blocks until the next Broadcast. The lock must be held.
func (q *Queue) Wait() {
	q.cond.Wait()
}

// WaitUntil blocks until the next Broadcast or the deadline. The lock must be
// held. It returns false once the deadline has passed.
func (q *Queue) WaitUntil(deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return false
	}
	t := time.AfterFunc(d, func() {
		q.Lock()
		q.cond.Broadcast()
		q.Unlock()
	})
	q.cond.Wait()
	t.Stop()
	return time.Now().Before(deadline)
}
