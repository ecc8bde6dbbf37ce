package detect

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"frserver/internal/logger"
)

const (
	// ConfidenceThreshold is the minimum detector confidence for a hit.
	ConfidenceThreshold = 0.5

	embeddingSize = 112
)

// FaceDetector runs a DNN face detector plus an embedding net. One instance
// serves one worker; gocv nets are not safe for concurrent forward passes.
type FaceDetector struct {
	net      gocv.Net
	embedder gocv.Net
	logger   *logger.Logger
}

// NewFaceDetector loads the detection and embedding networks.
func NewFaceDetector(modelPath, configPath, embedderPath string, logger *logger.Logger) (*FaceDetector, error) {
	net, err := loadNet(modelPath, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load face detector: %w", err)
	}

	if _, err := os.Stat(embedderPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedder model file not found: %s", embedderPath)
	}
	embedder := gocv.ReadNet(embedderPath, "")
	if embedder.Empty() {
		return nil, fmt.Errorf("failed to load embedder network")
	}

	logger.Info("face detection networks initialized")
	return &FaceDetector{net: net, embedder: embedder, logger: logger}, nil
}

// Detect finds faces and computes an embedding per face.
func (d *FaceDetector) Detect(imageData []byte) ([]Detection, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(300, 300), gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	results := d.net.Forward("")
	defer results.Close()

	var detections []Detection
	rows := results.Total() / 7
	for i := 0; i < rows; i++ {
		confidence := results.GetFloatAt(0, i*7+2)
		if confidence <= ConfidenceThreshold {
			continue
		}

		box := boxFromRow(results, i, mat.Cols(), mat.Rows())
		if box.Area() == 0 {
			continue
		}

		embedding, err := d.embed(mat, box)
		if err != nil {
			return nil, err
		}

		detections = append(detections, Detection{
			Box:        box,
			Embedding:  embedding,
			Confidence: float64(confidence),
		})
	}
	return detections, nil
}

// embed runs the embedding net on the face region.
func (d *FaceDetector) embed(mat gocv.Mat, box Box) ([]float32, error) {
	face := mat.Region(clampRect(box, 0, mat.Cols(), mat.Rows()))
	defer face.Close()

	blob := gocv.BlobFromImage(face, 1.0/255.0, image.Pt(embeddingSize, embeddingSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.embedder.SetInput(blob, "")
	out := d.embedder.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding output: %w", err)
	}
	embedding := make([]float32, len(data))
	copy(embedding, data)
	return embedding, nil
}

// Crop returns a PNG crop of the box, padded by a fifth of its size on each
// side and clamped to the image.
func (d *FaceDetector) Crop(imageData []byte, box Box) ([]byte, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	margin := ((box.Y2 - box.Y1) + (box.X2 - box.X1)) / 10
	crop := mat.Region(clampRect(box, margin, mat.Cols(), mat.Rows()))
	defer crop.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, crop)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// Close releases the networks.
func (d *FaceDetector) Close() {
	d.net.Close()
	d.embedder.Close()
}

// CoinDetector runs a DNN object detector whose classes are coin catalog
// entries.
type CoinDetector struct {
	net    gocv.Net
	logger *logger.Logger
}

// NewCoinDetector loads the coin detection network.
func NewCoinDetector(modelPath, configPath string, logger *logger.Logger) (*CoinDetector, error) {
	net, err := loadNet(modelPath, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load coin detector: %w", err)
	}
	logger.Info("coin detection network initialized")
	return &CoinDetector{net: net, logger: logger}, nil
}

// Detect finds coins; each detection carries the detector class id for catalog
// lookup.
func (d *CoinDetector) Detect(imageData []byte) ([]Detection, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	results := d.net.Forward("")
	defer results.Close()

	var detections []Detection
	rows := results.Total() / 7
	for i := 0; i < rows; i++ {
		confidence := results.GetFloatAt(0, i*7+2)
		if confidence <= ConfidenceThreshold {
			continue
		}
		detections = append(detections, Detection{
			Box:        boxFromRow(results, i, mat.Cols(), mat.Rows()),
			ClassID:    int(results.GetFloatAt(0, i*7+1)),
			Confidence: float64(confidence),
		})
	}
	return detections, nil
}

// Close releases the network.
func (d *CoinDetector) Close() {
	d.net.Close()
}

// loadNet reads a DNN model plus config from disk, CPU target.
func loadNet(modelPath, configPath string) (gocv.Net, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return gocv.Net{}, fmt.Errorf("model file not found: %s", modelPath)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return gocv.Net{}, fmt.Errorf("config file not found: %s", configPath)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("failed to load network")
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		return gocv.Net{}, fmt.Errorf("failed to set network backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		return gocv.Net{}, fmt.Errorf("failed to set network target: %w", err)
	}
	return net, nil
}

// boxFromRow converts one normalized SSD output row into pixel coordinates.
func boxFromRow(results gocv.Mat, row, cols, rows int) Box {
	left := results.GetFloatAt(0, row*7+3)
	top := results.GetFloatAt(0, row*7+4)
	right := results.GetFloatAt(0, row*7+5)
	bottom := results.GetFloatAt(0, row*7+6)

	return Box{
		Y1: int(top * float32(rows)),
		X1: int(left * float32(cols)),
		Y2: int(bottom * float32(rows)),
		X2: int(right * float32(cols)),
	}
}

// clampRect pads a box by margin pixels and clamps it to the image bounds.
func clampRect(box Box, margin, cols, rows int) image.Rectangle {
	x1 := box.X1 - margin
	y1 := box.Y1 - margin
	x2 := box.X2 + margin
	y2 := box.Y2 + margin
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > cols-1 {
		x2 = cols - 1
	}
	if y2 > rows-1 {
		y2 = rows - 1
	}
	return image.Rect(x1, y1, x2, y2)
}
