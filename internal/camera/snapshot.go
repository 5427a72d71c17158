package camera

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// snapshotJPEGQuality trades snapshot size against legibility; snapshots
// are evidence thumbnails, not archival imagery.
const snapshotJPEGQuality = 85

// DecodeFrame parses an encoded image payload into a Frame. Producers send
// JPEG; anything the image registry can decode is accepted. A decode
// failure is connection-fatal for the caller.
func DecodeFrame(seq uint64, payload []byte, timestamp time.Time) (*Frame, error) {
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("camera: decode frame %d: %w", seq, err)
	}
	bounds := img.Bounds()
	return &Frame{
		Seq:       seq,
		Raw:       payload,
		Image:     img,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Timestamp: timestamp,
	}, nil
}

// CropSnapshot encodes the bounding-box region of the frame as JPEG. The
// box is clamped to the frame; a degenerate clamp falls back to the full
// frame so the event always carries imagery.
func CropSnapshot(frame *Frame, box Box) ([]byte, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("camera: no frame to crop")
	}

	rect := image.Rect(int(box.X0), int(box.Y0), int(box.X1), int(box.Y1))
	rect = rect.Intersect(frame.Image.Bounds())
	cropped := frame.Image
	if !rect.Empty() {
		cropped = imaging.Crop(frame.Image, rect)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(snapshotJPEGQuality)); err != nil {
		return nil, fmt.Errorf("camera: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
