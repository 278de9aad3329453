package coalesce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBurstCoalescesToOneFlush(t *testing.T) {
	var flushes int32
	c := New(200*time.Millisecond, func() {
		atomic.AddInt32(&flushes, 1)
	})
	defer c.Stop()

	// 10 mutations 50ms apart: each restarts the 200ms window, so no flush
	// fires during the burst and exactly one fires after it.
	for i := 0; i < 10; i++ {
		c.Notify()
		time.Sleep(50 * time.Millisecond)
	}
	if n := atomic.LoadInt32(&flushes); n != 0 {
		t.Fatalf("Flush fired during burst: %d\n", n)
	}

	time.Sleep(400 * time.Millisecond)
	if n := atomic.LoadInt32(&flushes); n != 1 {
		t.Errorf("Expected exactly 1 flush after quiet period, got %d\n", n)
	}
}

func TestSeparatedBurstsFlushSeparately(t *testing.T) {
	var flushes int32
	c := New(50*time.Millisecond, func() {
		atomic.AddInt32(&flushes, 1)
	})
	defer c.Stop()

	c.Notify()
	time.Sleep(150 * time.Millisecond)
	c.Notify()
	time.Sleep(150 * time.Millisecond)

	if n := atomic.LoadInt32(&flushes); n != 2 {
		t.Errorf("Expected 2 flushes for 2 separated bursts, got %d\n", n)
	}
}

func TestStopCancelsPendingFlush(t *testing.T) {
	var flushes int32
	c := New(50*time.Millisecond, func() {
		atomic.AddInt32(&flushes, 1)
	})
	c.Notify()
	if !c.Pending() {
		t.Errorf("Expected a pending flush after Notify\n")
	}
	c.Stop()
	c.Stop() // idempotent
	time.Sleep(150 * time.Millisecond)
	if n := atomic.LoadInt32(&flushes); n != 0 {
		t.Errorf("Flush fired after Stop: %d\n", n)
	}

	c.Notify()
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&flushes); n != 0 {
		t.Errorf("Notify after Stop scheduled a flush\n")
	}
}
