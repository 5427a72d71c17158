package camera

import "context"

// Detector maps a frame to labeled, scored bounding boxes. Implementations
// must be safe for concurrent use: one instance is shared by every
// connection worker.
type Detector interface {
	Detect(ctx context.Context, frame *Frame) ([]Observation, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame *Frame) ([]Observation, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, frame *Frame) ([]Observation, error) {
	return f(ctx, frame)
}

// ThresholdDetector wraps a Detector and drops observations below a
// minimum confidence before they reach the tracker.
type ThresholdDetector struct {
	Inner         Detector
	MinConfidence float64
}

// NewThresholdDetector wraps inner with a confidence filter.
func NewThresholdDetector(inner Detector, minConfidence float64) *ThresholdDetector {
	return &ThresholdDetector{Inner: inner, MinConfidence: minConfidence}
}

// Detect runs the inner detector and filters its output. Errors pass
// through; the session treats them as zero observations for the frame.
func (d *ThresholdDetector) Detect(ctx context.Context, frame *Frame) ([]Observation, error) {
	observations, err := d.Inner.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	kept := observations[:0]
	for _, obs := range observations {
		if obs.Confidence >= d.MinConfidence {
			kept = append(kept, obs)
		}
	}
	return kept, nil
}
