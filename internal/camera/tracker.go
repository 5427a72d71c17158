package camera

import (
	"math"
	"sort"
	"time"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackNew     TrackState = "new"     // created this frame, promoted immediately
	TrackTracked TrackState = "tracked" // matched recently
	TrackStale   TrackState = "stale"   // unmatched for a few frames, still matchable
	TrackExpired TrackState = "expired" // past the liveness budget, removed
)

// TrackerConfig holds configuration parameters for the per-session tracker.
type TrackerConfig struct {
	MaxTracks         int           // Maximum number of concurrent tracks
	IoUThreshold      float64       // Minimum overlap for an IoU match
	CentroidGate      float64       // Maximum centroid distance (px) for a fallback match
	StaleAfterFrames  int           // Consecutive misses before Tracked -> Stale
	ExpireAfterFrames int           // Consecutive misses before removal
	ExpireAfter       time.Duration // Wall-clock liveness backstop for stalled streams
	HistoryLength     int           // Bounded reference-point history per track
}

// DefaultTrackerConfig returns production-default tracker parameters.
// ExpireAfterFrames matches the original deployment's liveness budget of
// thirty frames.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxTracks:         64,
		IoUThreshold:      0.3,
		CentroidGate:      80,
		StaleAfterFrames:  5,
		ExpireAfterFrames: 30,
		ExpireAfter:       10 * time.Second,
		HistoryLength:     16,
	}
}

// TrackPoint is one reference-point position in a track's history.
type TrackPoint struct {
	X   float64
	Y   float64
	Seq uint64
}

// Track is a persistent object identity across frames. Tracks are owned
// exclusively by one session goroutine; no locking is required.
type Track struct {
	ID    int64
	Label string
	State TrackState

	// Lifecycle counters
	Hits   int // consecutive successful matches
	Misses int // consecutive missed frames

	// Last known geometry
	Box        Box
	Confidence float64

	// Bounded reference-point history, oldest dropped
	History []TrackPoint

	FirstSeq uint64
	LastSeq  uint64
	LastSeen time.Time

	// Boundary state, owned by the CrossingAnalyzer
	Side          Side
	CooldownUntil time.Time
}

// Tracker associates detector observations with persistent tracks for a
// single connection. Detector output is noisy frame to frame (flicker,
// occlusion); the hit/miss lifecycle and deterministic tie-breaking keep
// one physical object on one track instead of spraying short-lived tracks
// and spurious crossings.
type Tracker struct {
	Tracks map[int64]*Track
	Config TrackerConfig

	nextID  int64
	lastSeq uint64
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		Tracks: make(map[int64]*Track),
		Config: config,
		nextID: 1,
	}
}

// candidate is a scored observation/track pairing considered for matching.
type candidate struct {
	obsIdx  int
	trackID int64
	tier    int     // 0 = IoU match, 1 = centroid fallback
	score   float64 // higher is better within a tier
}

// Update processes one frame's observations. Matched tracks are updated in
// place; unmatched observations open new tracks; tracks unmatched this
// frame move toward Stale and are removed once they exceed the liveness
// budget. It returns the tracks observed this frame, ordered by track id,
// for crossing analysis.
func (t *Tracker) Update(observations []Observation, seq uint64, now time.Time) []*Track {
	t.lastSeq = seq

	// Step 1: score every same-label pairing inside the gate.
	candidates := t.scorePairs(observations)

	// Step 2: greedy assignment in deterministic order. Sorting by tier,
	// then score descending, then lowest track id, then observation index
	// makes ties unambiguous.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.trackID != b.trackID {
			return a.trackID < b.trackID
		}
		return a.obsIdx < b.obsIdx
	})

	obsMatched := make(map[int]bool, len(observations))
	trackMatched := make(map[int64]bool, len(t.Tracks))
	for _, c := range candidates {
		if obsMatched[c.obsIdx] || trackMatched[c.trackID] {
			continue
		}
		obsMatched[c.obsIdx] = true
		trackMatched[c.trackID] = true
		t.applyMatch(t.Tracks[c.trackID], observations[c.obsIdx], seq, now)
	}

	// Step 3: unmatched observations open new tracks, promoted to Tracked
	// immediately.
	for i, obs := range observations {
		if obsMatched[i] || len(t.Tracks) >= t.Config.MaxTracks {
			continue
		}
		track := t.initTrack(obs, seq, now)
		trackMatched[track.ID] = true
	}

	// Step 4: advance misses on everything unmatched and expire tracks
	// past the liveness budget.
	for id, track := range t.Tracks {
		if trackMatched[id] {
			continue
		}
		track.Misses++
		track.Hits = 0
		switch {
		case track.Misses >= t.Config.ExpireAfterFrames,
			t.Config.ExpireAfter > 0 && now.Sub(track.LastSeen) > t.Config.ExpireAfter:
			track.State = TrackExpired
		case track.Misses >= t.Config.StaleAfterFrames:
			track.State = TrackStale
		}
	}
	t.removeExpired()

	// Step 5: collect this frame's observed tracks in id order.
	observed := make([]*Track, 0, len(trackMatched))
	for id := range trackMatched {
		observed = append(observed, t.Tracks[id])
	}
	sort.Slice(observed, func(i, j int) bool { return observed[i].ID < observed[j].ID })
	return observed
}

// scorePairs builds the candidate list: IoU matches above the threshold in
// tier 0, centroid-distance fallbacks inside the gate in tier 1.
func (t *Tracker) scorePairs(observations []Observation) []candidate {
	var candidates []candidate
	for i, obs := range observations {
		for id, track := range t.Tracks {
			if track.Label != obs.Label || track.State == TrackExpired {
				continue
			}
			if iou := track.Box.IoU(obs.Box); iou >= t.Config.IoUThreshold {
				candidates = append(candidates, candidate{obsIdx: i, trackID: id, tier: 0, score: iou})
				continue
			}
			ox, oy := obs.Box.Centroid()
			tx, ty := track.Box.Centroid()
			if dist := math.Hypot(ox-tx, oy-ty); dist <= t.Config.CentroidGate {
				candidates = append(candidates, candidate{obsIdx: i, trackID: id, tier: 1, score: -dist})
			}
		}
	}
	return candidates
}

// applyMatch updates a track with its matched observation.
func (t *Tracker) applyMatch(track *Track, obs Observation, seq uint64, now time.Time) {
	track.Box = obs.Box
	track.Confidence = obs.Confidence
	track.Hits++
	track.Misses = 0
	track.State = TrackTracked
	track.LastSeq = seq
	track.LastSeen = now

	x, y := obs.Box.RefPoint()
	track.History = append(track.History, TrackPoint{X: x, Y: y, Seq: seq})
	if n := t.Config.HistoryLength; n > 0 && len(track.History) > n {
		track.History = track.History[len(track.History)-n:]
	}
}

// initTrack creates a track from an unmatched observation.
func (t *Tracker) initTrack(obs Observation, seq uint64, now time.Time) *Track {
	x, y := obs.Box.RefPoint()
	track := &Track{
		ID:         t.nextID,
		Label:      obs.Label,
		State:      TrackTracked,
		Hits:       1,
		Box:        obs.Box,
		Confidence: obs.Confidence,
		History:    []TrackPoint{{X: x, Y: y, Seq: seq}},
		FirstSeq:   seq,
		LastSeq:    seq,
		LastSeen:   now,
		Side:       SideUnknown,
	}
	t.nextID++
	t.Tracks[track.ID] = track
	return track
}

// removeExpired drops expired tracks. They take no further part in
// matching or crossing analysis.
func (t *Tracker) removeExpired() {
	for id, track := range t.Tracks {
		if track.State == TrackExpired {
			delete(t.Tracks, id)
		}
	}
}

// ActiveTracks returns all live tracks ordered by id.
func (t *Tracker) ActiveTracks() []*Track {
	tracks := make([]*Track, 0, len(t.Tracks))
	for _, track := range t.Tracks {
		tracks = append(tracks, track)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	return tracks
}

// TrackCount returns counts of tracks by state.
func (t *Tracker) TrackCount() (total, tracked, stale int) {
	for _, track := range t.Tracks {
		total++
		switch track.State {
		case TrackTracked:
			tracked++
		case TrackStale:
			stale++
		}
	}
	return
}
