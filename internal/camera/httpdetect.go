package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/cabinet.report/internal/httputil"
)

// HTTPDetector delegates inference to an external service. The service
// receives the raw JPEG frame and replies with a JSON detection list:
//
//	{"detections": [{"label": "...", "confidence": 0.9,
//	                 "box": {"x0": 0, "y0": 0, "x1": 10, "y1": 10}}]}
//
// Box coordinates are pixels in the submitted frame.
type HTTPDetector struct {
	client   httputil.HTTPClient
	endpoint string
}

// NewHTTPDetector creates a detector posting frames to endpoint. A nil
// client uses http.DefaultClient.
func NewHTTPDetector(client httputil.HTTPClient, endpoint string) *HTTPDetector {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &HTTPDetector{client: client, endpoint: endpoint}
}

type httpDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

type httpDetectResponse struct {
	Detections []httpDetection `json:"detections"`
}

// Detect posts the frame's JPEG bytes and decodes the service's reply.
func (d *HTTPDetector) Detect(ctx context.Context, frame *Frame) ([]Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(frame.Raw))
	if err != nil {
		return nil, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded httpDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	observations := make([]Observation, 0, len(decoded.Detections))
	for _, det := range decoded.Detections {
		observations = append(observations, Observation{
			Label:      det.Label,
			Confidence: det.Confidence,
			Box:        det.Box,
		})
	}
	return observations, nil
}
