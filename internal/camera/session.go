package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/cabinet.report/internal/monitoring"
	"github.com/banshee-data/cabinet.report/internal/timeutil"
)

// DeviceSettings is the per-device configuration snapshot a session pulls
// when it starts detecting. It is immutable for the session; a
// configuration change lands via an explicit refresh control or the next
// connection.
type DeviceSettings struct {
	Boundary         *BoundaryLine // nil until calibration has stored one
	AToB             Direction     // direction label for SideA -> SideB
	DetectionEnabled bool
}

// DeviceDirectory is the external configuration store the frame server
// consults for device settings and online status.
type DeviceDirectory interface {
	DeviceSettings(ctx context.Context, deviceID string) (DeviceSettings, error)
	SetDeviceOnline(ctx context.Context, deviceID string, online bool) error
}

// controlKind enumerates out-of-band session controls.
type controlKind int

const (
	controlStart controlKind = iota
	controlStop
	controlRefreshBoundary
)

// SessionConfig holds the tunables shared by every session. Sessions only
// read it; there is no mutable shared state between connection workers.
type SessionConfig struct {
	Tracker        TrackerConfig
	MinConfidence  float64
	CooldownWindow time.Duration
	MaxFrameBytes  uint64
	StatsInterval  time.Duration
}

// DefaultSessionConfig returns production-default session parameters.
// MinConfidence matches the original deployment's detector threshold.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Tracker:        DefaultTrackerConfig(),
		MinConfidence:  0.5,
		CooldownWindow: 3 * time.Second,
		MaxFrameBytes:  DefaultMaxFrameBytes,
		StatsInterval:  time.Minute,
	}
}

// Session owns everything for one producer connection: the decode buffer,
// the tracker, the cooldown state, and the boundary snapshot. It is
// created on accept and destroyed on disconnect or protocol error; nothing
// survives a reconnect, because object identity cannot be guaranteed
// across sessions.
type Session struct {
	DeviceID string

	reader   *MessageReader
	config   SessionConfig
	detector Detector
	devices  DeviceDirectory
	emitter  *Emitter
	clock    timeutil.Clock
	stats    *FrameStats

	tracker   *Tracker
	cooldown  *CooldownManager
	analyzer  *CrossingAnalyzer // nil until a boundary is configured
	detecting bool

	controls chan controlKind
	seq      uint64
}

// newSession builds the per-connection state after a successful handshake.
func newSession(deviceID string, reader *MessageReader, config SessionConfig,
	detector Detector, devices DeviceDirectory, emitter *Emitter, clock timeutil.Clock) *Session {
	return &Session{
		DeviceID: deviceID,
		reader:   reader,
		config:   config,
		detector: NewThresholdDetector(detector, config.MinConfidence),
		devices:  devices,
		emitter:  emitter,
		clock:    clock,
		stats:    NewFrameStats(clock.Now()),
		tracker:  NewTracker(config.Tracker),
		cooldown: NewCooldownManager(config.CooldownWindow),
		controls: make(chan controlKind, 8),
	}
}

// control delivers an out-of-band signal. Returns false when the session's
// control queue is saturated; callers log and move on.
func (s *Session) control(kind controlKind) bool {
	select {
	case s.controls <- kind:
		return true
	default:
		return false
	}
}

// run processes the connection until disconnect, protocol error, or
// cancellation. Frames are handled strictly in arrival order; track
// continuity depends on sequential observation.
func (s *Session) run(ctx context.Context) error {
	s.loadSettings(ctx)

	ticker := s.clock.NewTicker(s.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case kind := <-s.controls:
			s.applyControl(ctx, kind)
			continue
		case <-ticker.C():
			s.stats.LogStats(s.DeviceID, s.clock.Now())
			continue
		default:
		}

		payload, err := s.reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // producer closed cleanly
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if err := s.processFrame(ctx, payload); err != nil {
			return err
		}
	}
}

// processFrame runs one frame through decode, detection, tracking,
// crossing analysis, and cooldown gating.
func (s *Session) processFrame(ctx context.Context, payload []byte) error {
	s.seq++
	now := s.clock.Now()
	s.stats.AddFrame(len(payload), now)

	if !s.detecting {
		// Frames are still consumed so the producer keeps its cadence,
		// but nothing is decoded or tracked while detection is stopped.
		return nil
	}

	frame, err := DecodeFrame(s.seq, payload, now)
	if err != nil {
		// Undecodable payload means the stream is corrupt; terminate
		// this connection only.
		s.stats.AddDecodeError()
		return err
	}

	observations, err := s.detector.Detect(ctx, frame)
	if err != nil {
		// Inference failure is frame-scoped: zero observations, log,
		// carry on. It must never take the connection down.
		monitoring.Logf("device %s: detector error on frame %d: %v", s.DeviceID, frame.Seq, err)
		observations = nil
	}
	s.stats.AddDetections(len(observations))

	observed := s.tracker.Update(observations, frame.Seq, now)
	if s.analyzer == nil {
		return nil
	}

	for _, track := range observed {
		crossing, ok := s.analyzer.Observe(track, frame.Width, frame.Height)
		if !ok {
			continue
		}
		if !s.cooldown.MayEmit(track, now) {
			monitoring.Debugf("device %s: crossing for track %d suppressed by cooldown", s.DeviceID, track.ID)
			continue
		}
		s.cooldown.Arm(track, now)
		s.stats.AddCrossing()
		event := BuildEvent(s.DeviceID, crossing, frame, now)
		s.emitter.Enqueue(event)
		monitoring.Logf("device %s: %s moved %s (track %d, conf %.2f, brand %q)",
			s.DeviceID, event.Label, event.Direction, track.ID, event.Confidence, event.Brand)
	}
	return nil
}

// applyControl handles one out-of-band signal between frames.
func (s *Session) applyControl(ctx context.Context, kind controlKind) {
	switch kind {
	case controlStart:
		if !s.detecting {
			s.detecting = true
			// Fresh tracker and cooldown on every start: stale identity
			// from a previous run must not leak into this one.
			s.tracker = NewTracker(s.config.Tracker)
			s.cooldown = NewCooldownManager(s.config.CooldownWindow)
			s.loadSettings(ctx)
			monitoring.Logf("device %s: detection started", s.DeviceID)
		}
	case controlStop:
		if s.detecting {
			s.detecting = false
			monitoring.Logf("device %s: detection stopped", s.DeviceID)
		}
	case controlRefreshBoundary:
		s.loadSettings(ctx)
		monitoring.Logf("device %s: boundary configuration refreshed", s.DeviceID)
	}
}

// loadSettings pulls the device's boundary snapshot and detection toggle.
// A directory error leaves the previous snapshot in place.
func (s *Session) loadSettings(ctx context.Context) {
	settings, err := s.devices.DeviceSettings(ctx, s.DeviceID)
	if err != nil {
		monitoring.Logf("device %s: failed to load settings: %v", s.DeviceID, err)
		return
	}
	s.detecting = settings.DetectionEnabled
	if settings.Boundary == nil {
		s.analyzer = nil
		return
	}
	if err := settings.Boundary.Validate(); err != nil {
		monitoring.Logf("device %s: ignoring invalid boundary: %v", s.DeviceID, err)
		return
	}
	s.analyzer = NewCrossingAnalyzer(*settings.Boundary, settings.AToB)
}
