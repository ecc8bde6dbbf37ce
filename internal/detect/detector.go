// Package detect defines the detector/embedder capability boundary. The
// recognition pipeline consumes it as an opaque detect(image) -> detections
// call; the DNN adapter lives behind it.
package detect

import "sort"

// Box is a detection bounding box in pixel coordinates (y1, x1, y2, x2).
type Box struct {
	Y1 int `json:"y1"`
	X1 int `json:"x1"`
	Y2 int `json:"y2"`
	X2 int `json:"x2"`
}

// Area returns the box area in pixels.
func (b Box) Area() int {
	dy := b.Y2 - b.Y1
	if dy < 0 {
		dy = -dy
	}
	dx := b.X2 - b.X1
	if dx < 0 {
		dx = -dx
	}
	return dy * dx
}

// Detection is one detector hit. Face detectors fill Embedding; coin detectors
// fill ClassID.
type Detection struct {
	Box        Box
	Embedding  []float32
	ClassID    int
	Label      string
	Confidence float64
}

// Detector is the external detection/embedding capability.
type Detector interface {
	Detect(image []byte) ([]Detection, error)
}

// Cropper extracts an encoded crop of a detection box from the source image.
type Cropper interface {
	Crop(image []byte, box Box) ([]byte, error)
}

// SelectLargest returns at most n detections ordered by box area, largest
// first, bounding identification cost. Ties keep the detector's original
// order.
func SelectLargest(detections []Detection, n int) []Detection {
	selected := make([]Detection, len(detections))
	copy(selected, detections)
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Box.Area() > selected[j].Box.Area()
	})
	if len(selected) > n {
		selected = selected[:n]
	}
	return selected
}
