package camera

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/banshee-data/cabinet.report/internal/monitoring"
)

// Input geometry for the YOLO-family product model.
const (
	onnxInputWidth  = 640
	onnxInputHeight = 640
	onnxAnchors     = 8400
)

// nmsIoUThreshold prunes overlapping candidate boxes during
// postprocessing. This is independent of the tracker's match threshold.
const nmsIoUThreshold = 0.45

// ONNXDetectorConfig describes the model to load.
type ONNXDetectorConfig struct {
	// ModelPath is the .onnx file on disk.
	ModelPath string

	// LibraryPath is the onnxruntime shared library. Empty uses the
	// process default search path.
	LibraryPath string

	// Labels maps class index to label, in model output order.
	Labels []string

	// InputName and OutputName override the model's tensor names.
	// Defaults match ultralytics exports.
	InputName  string
	OutputName string
}

// ONNXDetector runs a YOLO-family model through onnxruntime. A single
// session serves all connections; Run is serialized because the session
// owns its input and output tensors.
type ONNXDetector struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
}

var ortInitOnce sync.Once

// NewONNXDetector loads the model and prepares reusable tensors. Call
// Close when done; the onnxruntime environment itself stays initialized
// for the process lifetime.
func NewONNXDetector(config ONNXDetectorConfig) (*ONNXDetector, error) {
	if len(config.Labels) == 0 {
		return nil, fmt.Errorf("onnx detector needs a label table")
	}

	var initErr error
	ortInitOnce.Do(func() {
		if config.LibraryPath != "" {
			ort.SetSharedLibraryPath(config.LibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", initErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputShape := ort.NewShape(1, 3, onnxInputHeight, onnxInputWidth)
	outputShape := ort.NewShape(1, int64(4+len(config.Labels)), onnxAnchors)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}

	inputName := config.InputName
	if inputName == "" {
		inputName = "images"
	}
	outputName := config.OutputName
	if outputName == "" {
		outputName = "output0"
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	monitoring.Logf("loaded detection model %s (%d classes)", config.ModelPath, len(config.Labels))
	return &ONNXDetector{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		labels:  config.Labels,
	}, nil
}

// Close releases the session and its tensors.
func (d *ONNXDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	if d.output != nil {
		d.output.Destroy()
		d.output = nil
	}
}

// Detect runs one frame through the model and returns candidate
// observations in pixel coordinates of the original frame.
func (d *ONNXDetector) Detect(ctx context.Context, frame *Frame) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, fmt.Errorf("detector is closed")
	}

	resized := imaging.Resize(frame.Image, onnxInputWidth, onnxInputHeight, imaging.Linear)
	fillInputTensor(resized, d.input.GetData())

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	return decodePredictions(d.output.GetData(), d.labels, frame.Width, frame.Height)
}

// fillInputTensor writes the image as planar CHW float32 in [0,1].
func fillInputTensor(img image.Image, buffer []float32) {
	channelSize := onnxInputWidth * onnxInputHeight
	for y := 0; y < onnxInputHeight; y++ {
		offset := y * onnxInputWidth
		for x := 0; x < onnxInputWidth; x++ {
			i := offset + x
			r, g, b, _ := img.At(x, y).RGBA()
			buffer[i] = float32(r>>8) / 255.0
			buffer[channelSize+i] = float32(g>>8) / 255.0
			buffer[channelSize*2+i] = float32(b>>8) / 255.0
		}
	}
}

// decodePredictions converts the raw (4+C, anchors) output into boxes.
// Rows 0-3 hold cx, cy, w, h in input pixels; the remaining rows hold
// per-class scores. Overlapping candidates are pruned per label.
func decodePredictions(predictions []float32, labels []string, frameW, frameH int) ([]Observation, error) {
	channels := 4 + len(labels)
	expected := channels * onnxAnchors
	if len(predictions) != expected {
		return nil, fmt.Errorf("unexpected output length: got %d, want %d", len(predictions), expected)
	}

	scaleX := float64(frameW) / onnxInputWidth
	scaleY := float64(frameH) / onnxInputHeight

	candidates := make([]Observation, 0, 32)
	for i := 0; i < onnxAnchors; i++ {
		bestClass, bestScore := -1, float32(0)
		for c := 0; c < len(labels); c++ {
			if score := predictions[(4+c)*onnxAnchors+i]; score > bestScore {
				bestClass, bestScore = c, score
			}
		}
		// The confidence floor is applied upstream; keep only clearly
		// non-background anchors here to bound the NMS working set.
		if bestClass < 0 || bestScore < 0.05 {
			continue
		}

		cx := float64(predictions[i])
		cy := float64(predictions[onnxAnchors+i])
		w := float64(predictions[2*onnxAnchors+i])
		h := float64(predictions[3*onnxAnchors+i])

		candidates = append(candidates, Observation{
			Label:      labels[bestClass],
			Confidence: float64(bestScore),
			Box: Box{
				X0: clampF((cx-w/2)*scaleX, 0, float64(frameW)),
				Y0: clampF((cy-h/2)*scaleY, 0, float64(frameH)),
				X1: clampF((cx+w/2)*scaleX, 0, float64(frameW)),
				Y1: clampF((cy+h/2)*scaleY, 0, float64(frameH)),
			},
		})
	}

	return suppressOverlaps(candidates), nil
}

// suppressOverlaps keeps the highest-confidence box among same-label
// candidates that overlap beyond the NMS threshold.
func suppressOverlaps(candidates []Observation) []Observation {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	kept := make([]Observation, 0, len(candidates))
	for _, cand := range candidates {
		suppressed := false
		for _, k := range kept {
			if k.Label == cand.Label && k.Box.IoU(cand.Box) > nmsIoUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
