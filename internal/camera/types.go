package camera

import (
	"fmt"
	"image"
	"time"
)

// Box is an axis-aligned bounding box in frame pixel space.
type Box struct {
	X0 float64
	Y0 float64
	X1 float64
	Y1 float64
}

// Width returns the box width in pixels.
func (b Box) Width() float64 { return b.X1 - b.X0 }

// Height returns the box height in pixels.
func (b Box) Height() float64 { return b.Y1 - b.Y0 }

// Area returns the box area in pixels squared.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Centroid returns the box centre point.
func (b Box) Centroid() (x, y float64) {
	return (b.X0 + b.X1) / 2, (b.Y0 + b.Y1) / 2
}

// RefPoint returns the bottom-centre of the box. It approximates the
// object's contact point and is the point used for side-of-line geometry.
func (b Box) RefPoint() (x, y float64) {
	return (b.X0 + b.X1) / 2, b.Y1
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
func (b Box) IoU(o Box) float64 {
	ix0 := max(b.X0, o.X0)
	iy0 := max(b.Y0, o.Y0)
	ix1 := min(b.X1, o.X1)
	iy1 := min(b.Y1, o.Y1)
	if ix1 <= ix0 || iy1 <= iy0 {
		return 0
	}
	inter := (ix1 - ix0) * (iy1 - iy0)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (b Box) String() string {
	return fmt.Sprintf("(%.0f,%.0f)-(%.0f,%.0f)", b.X0, b.Y0, b.X1, b.Y1)
}

// Frame is one decoded image from a producing device. Frames are ephemeral:
// a session holds at most the current frame, which the emitter crops for
// event snapshots.
type Frame struct {
	Seq       uint64 // monotonically increasing per connection
	Raw       []byte // encoded payload as received off the wire
	Image     image.Image
	Width     int
	Height    int
	Timestamp time.Time
}

// Observation is a single detector output for one frame.
type Observation struct {
	Label      string
	Confidence float64
	Box        Box
}

// Direction classifies a boundary crossing.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// DetectionEvent is the final record of an accepted crossing. It is
// immutable once built and written exactly once to the event store.
type DetectionEvent struct {
	ID         string
	DeviceID   string
	TrackID    int64
	Label      string
	Brand      string // empty when no brand keyword matched
	Confidence float64
	Direction  Direction
	Snapshot   []byte // JPEG crop of the track's last bounding box
	Timestamp  time.Time
}
