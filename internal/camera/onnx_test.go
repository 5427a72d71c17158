package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawOutput builds a (4+len(labels), anchors) prediction buffer with all
// scores at zero.
func rawOutput(labels []string) []float32 {
	return make([]float32, (4+len(labels))*onnxAnchors)
}

// putAnchor writes one candidate at anchor index i: a centered box in
// model input pixels plus one class score.
func putAnchor(buf []float32, i int, cx, cy, w, h float32, class int, score float32) {
	buf[i] = cx
	buf[onnxAnchors+i] = cy
	buf[2*onnxAnchors+i] = w
	buf[3*onnxAnchors+i] = h
	buf[(4+class)*onnxAnchors+i] = score
}

func TestDecodePredictions(t *testing.T) {
	t.Parallel()
	labels := []string{"coca_cola_can", "pepsi_bottle"}

	t.Run("scales model coordinates to frame pixels", func(t *testing.T) {
		buf := rawOutput(labels)
		// Center of the 640x640 input, 64x64 box. In a 1280x480 frame
		// that becomes a 128x48 box centered at (640, 240).
		putAnchor(buf, 0, 320, 320, 64, 64, 0, 0.9)

		obs, err := decodePredictions(buf, labels, 1280, 480)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, "coca_cola_can", obs[0].Label)
		assert.InDelta(t, 0.9, obs[0].Confidence, 1e-6)
		assert.InDelta(t, 576, obs[0].Box.X0, 0.01)
		assert.InDelta(t, 216, obs[0].Box.Y0, 0.01)
		assert.InDelta(t, 704, obs[0].Box.X1, 0.01)
		assert.InDelta(t, 264, obs[0].Box.Y1, 0.01)
	})

	t.Run("picks the best class per anchor", func(t *testing.T) {
		buf := rawOutput(labels)
		putAnchor(buf, 5, 100, 100, 40, 40, 0, 0.3)
		buf[(4+1)*onnxAnchors+5] = 0.8 // pepsi_bottle outranks

		obs, err := decodePredictions(buf, labels, 640, 640)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, "pepsi_bottle", obs[0].Label)
	})

	t.Run("drops background anchors", func(t *testing.T) {
		buf := rawOutput(labels)
		putAnchor(buf, 0, 100, 100, 40, 40, 0, 0.04)

		obs, err := decodePredictions(buf, labels, 640, 640)
		require.NoError(t, err)
		assert.Empty(t, obs)
	})

	t.Run("clamps boxes to the frame", func(t *testing.T) {
		buf := rawOutput(labels)
		// Box hangs off the top-left corner.
		putAnchor(buf, 0, 10, 10, 100, 100, 0, 0.9)

		obs, err := decodePredictions(buf, labels, 640, 640)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, 0.0, obs[0].Box.X0)
		assert.Equal(t, 0.0, obs[0].Box.Y0)
	})

	t.Run("rejects wrong buffer length", func(t *testing.T) {
		_, err := decodePredictions(make([]float32, 100), labels, 640, 640)
		assert.ErrorContains(t, err, "unexpected output length")
	})
}

func TestSuppressOverlaps(t *testing.T) {
	t.Parallel()

	t.Run("same label overlapping keeps strongest", func(t *testing.T) {
		kept := suppressOverlaps([]Observation{
			{Label: "can", Confidence: 0.6, Box: Box{X0: 0, Y0: 0, X1: 100, Y1: 100}},
			{Label: "can", Confidence: 0.9, Box: Box{X0: 5, Y0: 5, X1: 105, Y1: 105}},
		})
		require.Len(t, kept, 1)
		assert.InDelta(t, 0.9, kept[0].Confidence, 1e-9)
	})

	t.Run("different labels both survive", func(t *testing.T) {
		kept := suppressOverlaps([]Observation{
			{Label: "can", Confidence: 0.9, Box: Box{X0: 0, Y0: 0, X1: 100, Y1: 100}},
			{Label: "bottle", Confidence: 0.6, Box: Box{X0: 5, Y0: 5, X1: 105, Y1: 105}},
		})
		assert.Len(t, kept, 2)
	})

	t.Run("disjoint same-label boxes both survive", func(t *testing.T) {
		kept := suppressOverlaps([]Observation{
			{Label: "can", Confidence: 0.9, Box: Box{X0: 0, Y0: 0, X1: 50, Y1: 50}},
			{Label: "can", Confidence: 0.8, Box: Box{X0: 200, Y0: 200, X1: 250, Y1: 250}},
		})
		assert.Len(t, kept, 2)
	})
}

func TestNewONNXDetectorRequiresLabels(t *testing.T) {
	t.Parallel()
	_, err := NewONNXDetector(ONNXDetectorConfig{ModelPath: "model.onnx"})
	assert.ErrorContains(t, err, "label table")
}
