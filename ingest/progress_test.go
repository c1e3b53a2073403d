package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	t.Run("reports at the configured interval", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 100, 10)

		tracker.Increment(5)
		assert.Empty(t, buf.String(), "below the interval nothing is printed")

		tracker.Increment(5)
		assert.Contains(t, buf.String(), "10/100")
	})

	t.Run("finish completes the line", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 40, 100)

		tracker.Increment(12)
		tracker.Finish()

		out := buf.String()
		assert.Contains(t, out, "40/40")
		assert.Contains(t, out, "100.0%")
		assert.True(t, strings.HasSuffix(out, "\n"))
	})

	t.Run("clamps to the total", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 100, 10)

		tracker.Increment(250)
		assert.Contains(t, buf.String(), "100/100")
	})

	t.Run("zero total", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 0, 10)

		tracker.Finish()
		assert.Contains(t, buf.String(), "0/0")
	})

	t.Run("shows throughput", func(t *testing.T) {
		var buf bytes.Buffer
		tracker := NewProgressTracker(&buf, 100, 50)

		time.Sleep(10 * time.Millisecond)
		tracker.Increment(50)

		assert.Contains(t, buf.String(), "chunks/s")
	})

	t.Run("elapsed is positive", func(t *testing.T) {
		tracker := NewProgressTracker(&bytes.Buffer{}, 10, 1)
		time.Sleep(time.Millisecond)
		assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	})
}
