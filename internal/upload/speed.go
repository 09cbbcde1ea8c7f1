package upload

import (
	"fmt"
	"math"
	"time"
)

// Metrics is the speed/ETA snapshot produced on each progress update.
type Metrics struct {
	Percentage       int
	SpeedBytesPerSec float64
	SpeedFormatted   string
	ETASeconds       float64
	ETAFormatted     string
}

// emaAlpha weights the most recent instantaneous sample; higher reacts
// faster to throughput changes at the cost of jitter.
const emaAlpha = 0.3

// minUpdateInterval throttles recomputation so bursty chunk
// acknowledgements do not produce visually jittery output.
const minUpdateInterval = 500 * time.Millisecond

// SpeedTracker smooths noisy (bytesSent, bytesTotal) samples into a
// display-ready transfer rate and ETA using an exponential moving
// average. One tracker serves one upload; Reset between files.
type SpeedTracker struct {
	lastTimestamp time.Time
	lastBytes     int64
	smoothed      float64
	lastMetrics   Metrics

	now func() time.Time
}

// NewSpeedTracker returns a tracker ready for the first sample.
func NewSpeedTracker() *SpeedTracker {
	t := &SpeedTracker{now: time.Now}
	t.lastMetrics = initialMetrics(0)
	return t
}

// Update folds in the latest progress sample. Calls arriving within the
// throttle window return the cached speed/ETA with only the percentage
// refreshed. The first sample seeds the tracker and reports zero speed;
// the EMA seeds from the first real instantaneous sample after that.
func (t *SpeedTracker) Update(bytesSent, bytesTotal int64) Metrics {
	now := t.now()
	percentage := 0
	if bytesTotal > 0 {
		percentage = int(math.Round(float64(bytesSent) / float64(bytesTotal) * 100))
	}

	if t.lastTimestamp.IsZero() {
		t.lastTimestamp = now
		t.lastBytes = bytesSent
		t.lastMetrics = initialMetrics(percentage)
		return t.lastMetrics
	}

	elapsed := now.Sub(t.lastTimestamp)
	if elapsed < minUpdateInterval {
		t.lastMetrics.Percentage = percentage
		return t.lastMetrics
	}

	instant := float64(bytesSent-t.lastBytes) / elapsed.Seconds()
	if t.smoothed == 0 {
		t.smoothed = instant
	} else {
		t.smoothed = emaAlpha*instant + (1-emaAlpha)*t.smoothed
	}

	eta := 0.0
	if t.smoothed > 0 {
		eta = float64(bytesTotal-bytesSent) / t.smoothed
	}

	t.lastTimestamp = now
	t.lastBytes = bytesSent
	t.lastMetrics = Metrics{
		Percentage:       percentage,
		SpeedBytesPerSec: t.smoothed,
		SpeedFormatted:   FormatSpeed(t.smoothed),
		ETASeconds:       eta,
		ETAFormatted:     FormatETA(eta),
	}
	return t.lastMetrics
}

// Reset clears all state; call between files.
func (t *SpeedTracker) Reset() {
	t.lastTimestamp = time.Time{}
	t.lastBytes = 0
	t.smoothed = 0
	t.lastMetrics = initialMetrics(0)
}

func initialMetrics(percentage int) Metrics {
	return Metrics{
		Percentage:     percentage,
		SpeedFormatted: "-- MB/s",
		ETAFormatted:   "Calculating...",
	}
}

// FormatSpeed renders bytes-per-second for display: one decimal below
// 100 MB/s, integer at or above.
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "-- MB/s"
	}
	mbps := bytesPerSecond / (1024 * 1024)
	if mbps >= 100 {
		return fmt.Sprintf("%d MB/s", int(math.Round(mbps)))
	}
	return fmt.Sprintf("%.1f MB/s", mbps)
}

// FormatETA renders a seconds estimate for display.
func FormatETA(seconds float64) string {
	if seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return "Calculating..."
	}
	if seconds < 60 {
		return "< 1m"
	}
	minutes := int(seconds) / 60
	remainder := int(math.Round(math.Mod(seconds, 60)))
	if remainder >= 60 {
		minutes++
		remainder = 0
	}
	if remainder > 0 {
		return fmt.Sprintf("%dm %ds", minutes, remainder)
	}
	return fmt.Sprintf("%dm", minutes)
}
