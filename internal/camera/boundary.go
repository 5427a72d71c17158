package camera

import (
	"fmt"
	"math"
)

// Side identifies which half-plane of the boundary line a point is in.
type Side string

const (
	SideUnknown Side = "unknown" // before the first decisive observation
	SideA       Side = "a"       // positive cross product
	SideB       Side = "b"       // negative cross product
)

// BoundaryLine is a user-drawn line segment, normalized to [0,1] against
// the calibration frame's dimensions. It is pulled from the device
// configuration when a session starts detecting and treated as immutable
// for the session; reconfiguration takes effect via an explicit refresh.
type BoundaryLine struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Validate checks that the endpoints are inside [0,1] and not coincident.
func (l BoundaryLine) Validate() error {
	for _, v := range []float64{l.X1, l.Y1, l.X2, l.Y2} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("boundary coordinate %v outside [0,1]", v)
		}
	}
	if l.X1 == l.X2 && l.Y1 == l.Y2 {
		return fmt.Errorf("boundary endpoints are coincident")
	}
	return nil
}

// Crossing describes one accepted side transition for a track.
type Crossing struct {
	Track     *Track
	From      Side
	To        Side
	Direction Direction
}

// CrossingAnalyzer evaluates track reference points against a device's
// boundary line and records side transitions.
//
// The side of a point is the sign of the 2-D cross product of the line's
// direction vector with the vector from the line's first endpoint to the
// point. Which transition maps to "in" is fixed by configuration at
// boundary-drawing time, not re-derived per crossing.
type CrossingAnalyzer struct {
	line BoundaryLine
	aToB Direction // direction reported for a SideA -> SideB transition
}

// NewCrossingAnalyzer builds an analyzer for one session. aToB is the
// direction label assigned to SideA->SideB transitions; SideB->SideA
// reports the opposite.
func NewCrossingAnalyzer(line BoundaryLine, aToB Direction) *CrossingAnalyzer {
	if aToB != DirectionIn && aToB != DirectionOut {
		aToB = DirectionIn
	}
	return &CrossingAnalyzer{line: line, aToB: aToB}
}

// Line returns the analyzer's boundary line.
func (a *CrossingAnalyzer) Line() BoundaryLine { return a.line }

// Side computes the side of the boundary for a point in pixel space.
// The normalized line is scaled to the frame dimensions before the cross
// product. A cross product of exactly zero returns SideUnknown; callers
// keep the previous side so pixel-level jitter on the line cannot
// oscillate.
func (a *CrossingAnalyzer) Side(px, py float64, frameW, frameH int) Side {
	x1 := a.line.X1 * float64(frameW)
	y1 := a.line.Y1 * float64(frameH)
	x2 := a.line.X2 * float64(frameW)
	y2 := a.line.Y2 * float64(frameH)

	d := (px-x1)*(y2-y1) - (py-y1)*(x2-x1)
	switch {
	case d > 0:
		return SideA
	case d < 0:
		return SideB
	default:
		return SideUnknown
	}
}

// Observe evaluates one track against the boundary and updates its
// recorded side. It returns a Crossing when the track moved from one
// established side to the other. The track's side is updated immediately,
// so a second crossing needs the object to return to the original side
// first.
func (a *CrossingAnalyzer) Observe(track *Track, frameW, frameH int) (Crossing, bool) {
	px, py := track.Box.RefPoint()
	side := a.Side(px, py, frameW, frameH)
	if side == SideUnknown {
		// Exactly on the line: no transition, previous side stands.
		return Crossing{}, false
	}

	prev := track.Side
	track.Side = side
	if prev == SideUnknown || prev == "" || prev == side {
		return Crossing{}, false
	}

	dir := a.aToB
	if prev == SideB {
		dir = a.aToB.Opposite()
	}
	return Crossing{Track: track, From: prev, To: side, Direction: dir}, true
}
