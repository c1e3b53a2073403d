package ingest

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports backfill throughput to a writer, printing a
// carriage-return status line every reportInterval chunks. Safe for use
// from concurrent workers.
type ProgressTracker struct {
	mu       sync.Mutex
	w        io.Writer
	total    int
	interval int
	done     int
	sinceLog int
	begun    time.Time
}

// NewProgressTracker starts tracking immediately. The writer is typically
// os.Stderr so status lines never mix with command output.
func NewProgressTracker(w io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval <= 0 {
		reportInterval = 1
	}
	return &ProgressTracker{
		w:        w,
		total:    total,
		interval: reportInterval,
		begun:    time.Now(),
	}
}

// Increment records n more processed chunks, clamped to the total.
func (t *ProgressTracker) Increment(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done += n
	if t.done > t.total {
		t.done = t.total
	}
	t.sinceLog += n
	if t.sinceLog >= t.interval {
		t.sinceLog = 0
		t.print()
	}
}

// Finish forces the counter to the total, prints a final status line and
// terminates it with a newline.
func (t *ProgressTracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = t.total
	t.print()
	fmt.Fprintln(t.w)
}

// Elapsed returns the time since the tracker was created.
func (t *ProgressTracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.begun)
}

// print writes one status line. Caller holds the lock.
func (t *ProgressTracker) print() {
	var pct float64
	if t.total > 0 {
		pct = float64(t.done) / float64(t.total) * 100
	}
	var rate float64
	if secs := time.Since(t.begun).Seconds(); secs > 0 {
		rate = float64(t.done) / secs
	}
	fmt.Fprintf(t.w, "\rProgress: %d/%d (%.1f%%) - %.1f chunks/s", t.done, t.total, pct, rate)
}
