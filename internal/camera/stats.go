package camera

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/cabinet.report/internal/monitoring"
)

// maxGapSamples bounds the inter-frame gap buffer used for quantiles.
const maxGapSamples = 512

// FrameStats tracks per-session frame statistics with thread-safe
// operations. Sessions update it from the worker goroutine; the stats
// logger reads it from a ticker goroutine.
type FrameStats struct {
	mu            sync.Mutex
	frameCount    int64
	byteCount     int64
	detections    int64
	crossings     int64
	decodeErrors  int64
	lastFrameTime time.Time
	lastReset     time.Time
	gapSamples    []float64 // seconds between consecutive frames
}

// NewFrameStats creates a FrameStats instance.
func NewFrameStats(now time.Time) *FrameStats {
	return &FrameStats{lastReset: now}
}

// AddFrame records one ingested frame and its payload size.
func (fs *FrameStats) AddFrame(bytes int, now time.Time) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frameCount++
	fs.byteCount += int64(bytes)
	if !fs.lastFrameTime.IsZero() {
		gap := now.Sub(fs.lastFrameTime).Seconds()
		fs.gapSamples = append(fs.gapSamples, gap)
		if len(fs.gapSamples) > maxGapSamples {
			fs.gapSamples = fs.gapSamples[1:]
		}
	}
	fs.lastFrameTime = now
}

// AddDetections records detector observations that survived filtering.
func (fs *FrameStats) AddDetections(count int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.detections += int64(count)
}

// AddCrossing records one accepted boundary crossing.
func (fs *FrameStats) AddCrossing() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.crossings++
}

// AddDecodeError records a frame that failed to decode.
func (fs *FrameStats) AddDecodeError() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.decodeErrors++
}

// GapQuantile returns the q quantile (0..1) of inter-frame gaps in
// seconds, or 0 when fewer than two frames have arrived.
func (fs *FrameStats) GapQuantile(q float64) float64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.gapSamples) == 0 {
		return 0
	}
	sorted := make([]float64, len(fs.gapSamples))
	copy(sorted, fs.gapSamples)
	sort.Float64s(sorted)
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

// LogStats logs a one-line summary for the device and resets counters.
func (fs *FrameStats) LogStats(deviceID string, now time.Time) {
	fs.mu.Lock()
	frames := fs.frameCount
	bytes := fs.byteCount
	detections := fs.detections
	crossings := fs.crossings
	decodeErrors := fs.decodeErrors
	elapsed := now.Sub(fs.lastReset)
	fs.frameCount = 0
	fs.byteCount = 0
	fs.detections = 0
	fs.crossings = 0
	fs.decodeErrors = 0
	fs.lastReset = now
	fs.mu.Unlock()

	if frames == 0 && decodeErrors == 0 {
		return
	}
	fps := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		fps = float64(frames) / secs
	}
	monitoring.Logf("device %s: %d frames (%.1f fps, %d KiB), %d detections, %d crossings, %d decode errors, p95 gap %.0fms",
		deviceID, frames, fps, bytes/1024, detections, crossings, decodeErrors,
		fs.GapQuantile(0.95)*1000)
}
