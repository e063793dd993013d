package face

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/biogate/internal/ir"
)

// ErrUnreadableImage is returned when an extractor cannot decode an image.
var ErrUnreadableImage = errors.New("unreadable image")

// Image is an encoded frame as delivered by a camera collaborator.
type Image []byte

// Box is a face bounding box in pixel coordinates.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Detection is one face found in an image.
type Detection struct {
	Embedding ir.FaceEmbedding `json:"embedding"`
	Box       Box              `json:"box"`
}

// Extractor finds faces in an image and returns their embeddings.
type Extractor interface {
	Extract(ctx context.Context, img Image) ([]Detection, error)
}

// Camera delivers frames. Frame may block until one is available and
// returns io.EOF when the source is exhausted.
type Camera interface {
	Frame(ctx context.Context) (Image, error)
}

// JSONExtractor reads images that are JSON documents of precomputed
// detections, as written by an external model process:
//
//	{"faces": [{"embedding": [0.1, ...], "box": {"top": 0, "right": 10, "bottom": 10, "left": 0}}]}
type JSONExtractor struct{}

type jsonImage struct {
	Faces []Detection `json:"faces"`
}

// Extract implements Extractor.
func (JSONExtractor) Extract(ctx context.Context, img Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc jsonImage
	if err := json.Unmarshal(img, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	if doc.Faces == nil {
		return []Detection{}, nil
	}
	return doc.Faces, nil
}

// EncodeJSONImage builds an image JSONExtractor understands.
func EncodeJSONImage(detections ...Detection) (Image, error) {
	if detections == nil {
		detections = []Detection{}
	}
	data, err := json.Marshal(jsonImage{Faces: detections})
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return data, nil
}

// FrameQueue is a Camera that replays a fixed list of frames.
type FrameQueue struct {
	mu     sync.Mutex
	frames []Image
}

// NewFrameQueue returns a camera that yields frames in order.
func NewFrameQueue(frames ...Image) *FrameQueue {
	return &FrameQueue{frames: frames}
}

// Frame implements Camera.
func (q *FrameQueue) Frame(ctx context.Context) (Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, io.EOF
	}
	img := q.frames[0]
	q.frames = q.frames[1:]
	return img, nil
}
