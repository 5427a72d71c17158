package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cabinet.report/internal/monitoring"
	"github.com/banshee-data/cabinet.report/internal/timeutil"
)

// EventSink persists detection events. The SQLite event store implements
// this; tests substitute fakes.
type EventSink interface {
	SaveEvent(ctx context.Context, event *DetectionEvent) error
}

// EmitterConfig holds configuration for the asynchronous event writer.
type EmitterConfig struct {
	QueueDepth    int           // Bounded queue between sessions and writers
	Workers       int           // Writer goroutines draining the queue
	RetryAttempts int           // Total write attempts per event
	RetryBackoff  time.Duration // Base backoff, multiplied by attempt number
}

// DefaultEmitterConfig returns production-default emitter parameters.
func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		QueueDepth:    256,
		Workers:       2,
		RetryAttempts: 3,
		RetryBackoff:  200 * time.Millisecond,
	}
}

// Emitter packages accepted crossings into DetectionEvents and hands them
// to the persistence sink from writer goroutines. The frame pipeline never
// blocks on a slow or failed write: enqueueing is non-blocking and a full
// queue drops the event with a log record.
type Emitter struct {
	sink   EventSink
	config EmitterConfig
	clock  timeutil.Clock

	// Notify, when set, receives every enqueued event. The API layer uses
	// it to feed the live WebSocket hub; delivery is best-effort.
	Notify func(*DetectionEvent)

	queue   chan *DetectionEvent
	wg      sync.WaitGroup
	started atomic.Bool

	emitted atomic.Int64
	dropped atomic.Int64
}

// NewEmitter creates an emitter writing to sink. A nil clock selects the
// real clock.
func NewEmitter(sink EventSink, config EmitterConfig, clock timeutil.Clock) *Emitter {
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultEmitterConfig().QueueDepth
	}
	if config.Workers <= 0 {
		config.Workers = DefaultEmitterConfig().Workers
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Emitter{
		sink:   sink,
		config: config,
		clock:  clock,
		queue:  make(chan *DetectionEvent, config.QueueDepth),
	}
}

// Start launches the writer goroutines. ctx only cancels retry backoff;
// events already dequeued are allowed to finish their write.
func (e *Emitter) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for event := range e.queue {
				e.write(ctx, event)
			}
		}()
	}
}

// Close stops accepting events and waits for queued writes to drain.
func (e *Emitter) Close() {
	if e.started.CompareAndSwap(true, false) {
		close(e.queue)
		e.wg.Wait()
	}
}

// BuildEvent assembles the immutable DetectionEvent for an accepted
// crossing: label and confidence from the track's most recent observation,
// a JPEG snapshot cropped to the bounding box, the brand extracted from
// the label, and the detection-time timestamp.
func BuildEvent(deviceID string, crossing Crossing, frame *Frame, now time.Time) *DetectionEvent {
	track := crossing.Track
	snapshot, err := CropSnapshot(frame, track.Box)
	if err != nil {
		// Event still carries the detection; only the snapshot is lost.
		monitoring.Logf("camera: snapshot crop failed for device %s track %d: %v", deviceID, track.ID, err)
		snapshot = nil
	}
	return &DetectionEvent{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		TrackID:    track.ID,
		Label:      track.Label,
		Brand:      ExtractBrand(track.Label),
		Confidence: track.Confidence,
		Direction:  crossing.Direction,
		Snapshot:   snapshot,
		Timestamp:  now,
	}
}

// Enqueue hands an event to the writer pool without blocking. It returns
// false when the queue is full and the event was dropped.
func (e *Emitter) Enqueue(event *DetectionEvent) bool {
	if e.Notify != nil {
		e.Notify(event)
	}
	select {
	case e.queue <- event:
		e.emitted.Add(1)
		return true
	default:
		e.dropped.Add(1)
		monitoring.Logf("camera: event queue full, dropping %s %s for device %s",
			event.Label, event.Direction, event.DeviceID)
		return false
	}
}

// write persists one event with bounded retry and backoff. After the
// retry budget is exhausted the event is logged and dropped.
func (e *Emitter) write(ctx context.Context, event *DetectionEvent) {
	var lastErr error
	for attempt := 1; attempt <= e.config.RetryAttempts; attempt++ {
		if err := e.sink.SaveEvent(ctx, event); err == nil {
			return
		} else {
			lastErr = err
		}
		if attempt < e.config.RetryAttempts {
			select {
			case <-ctx.Done():
				monitoring.Logf("camera: abandoning event %s on shutdown: %v", event.ID, lastErr)
				return
			default:
			}
			e.clock.Sleep(time.Duration(attempt) * e.config.RetryBackoff)
		}
	}
	e.dropped.Add(1)
	monitoring.Logf("camera: dropping event %s (%s %s, device %s) after %d attempts: %v",
		event.ID, event.Label, event.Direction, event.DeviceID, e.config.RetryAttempts, lastErr)
}

// Counts returns the number of events enqueued and dropped since start.
func (e *Emitter) Counts() (emitted, dropped int64) {
	return e.emitted.Load(), e.dropped.Load()
}
