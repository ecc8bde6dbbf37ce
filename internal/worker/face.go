package worker

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"frserver/internal/bus"
	"frserver/internal/clock"
	"frserver/internal/config"
	"frserver/internal/detect"
	"frserver/internal/frame"
	"frserver/internal/identity"
	"frserver/internal/logger"
	"frserver/internal/storage"
)

// placeholderLabel marks a non-primary face that matched nothing. Secondary
// boxes are never enrolled; low-quality peripheral faces would otherwise cause
// enrollment storms.
const placeholderLabel = "try again"

// FaceWorker resolves admitted frames into identities. It consumes the face
// worker queue, so each frame reaches exactly one worker instance; many
// workers run in parallel across sessions.
type FaceWorker struct {
	id       int
	bus      *bus.Bus
	detector detect.Detector
	cropper  detect.Cropper
	store    identity.Store
	photos   *storage.PhotoStore
	shifter  *clock.Shifter
	logger   *logger.Logger
	staleAge float64
	maxFaces int

	langMu    sync.Mutex
	languages map[string]string

	now func() float64
}

// NewFaceWorker creates a face worker. Each worker owns its detector instance
// and its own per-session clock shifts.
func NewFaceWorker(id int, b *bus.Bus, detector detect.Detector, cropper detect.Cropper, store identity.Store, photos *storage.PhotoStore, cfg *config.Config, logger *logger.Logger) *FaceWorker {
	return &FaceWorker{
		id:        id,
		bus:       b,
		detector:  detector,
		cropper:   cropper,
		store:     store,
		photos:    photos,
		shifter:   clock.NewShifter(),
		logger:    logger,
		staleAge:  cfg.StaleAge,
		maxFaces:  cfg.MaxFaces,
		languages: make(map[string]string),
		now:       clock.Now,
	}
}

// Run consumes the face worker queue until the bus is closed.
func (w *FaceWorker) Run() {
	w.logger.Info("face worker %d started", w.id)
	for ev := range w.bus.Consume(bus.GroupFaceWorkers) {
		w.handle(ev)
	}
	w.logger.Info("face worker %d stopped", w.id)
}

// handle dispatches one event. A failed frame is logged and dropped, and the
// identity cache is rebuilt in case the store was mutated underneath us; the
// worker itself keeps running.
func (w *FaceWorker) handle(ev bus.Event) {
	switch e := ev.(type) {
	case *bus.SyncClock:
		w.shifter.Resync(e.SessionID, e.Timestamp, w.now())
	case *bus.SetLanguage:
		w.setLanguage(e.SessionID, e.Lang)
	case *bus.Recognize:
		if err := w.recognize(e); err != nil {
			w.logger.Error("face worker %d: session %s frame dropped: %v", w.id, e.SessionID, err)
			if rerr := w.store.Recache(); rerr != nil {
				w.logger.Error("face worker %d: recache failed: %v", w.id, rerr)
			}
		}
	default:
		w.logger.Warning("face worker %d: unexpected %s event", w.id, ev.EventType())
	}
}

func (w *FaceWorker) setLanguage(sessionID, lang string) {
	w.langMu.Lock()
	defer w.langMu.Unlock()
	w.languages[sessionID] = lang
}

// recognize runs the per-frame pipeline: staleness admission, detection,
// largest-face selection, primary identification or enrollment, emission.
func (w *FaceWorker) recognize(e *bus.Recognize) error {
	timestamp, img, err := frame.Parse(e.Payload)
	if err != nil {
		return err
	}

	age := w.shifter.Age(e.SessionID, timestamp, w.now())
	if age >= w.staleAge {
		w.logger.Info("face worker %d: session %s frame stale (age %.3fs), skipping", w.id, e.SessionID, age)
		return nil
	}

	detections, err := w.detector.Detect(img)
	if err != nil {
		return err
	}
	if len(detections) == 0 {
		w.bus.Broadcast(bus.GroupFaceResults, &bus.FacesReady{SessionID: e.SessionID, Boxes: []bus.FaceBox{}})
		w.bus.Broadcast(bus.GroupDialog, &bus.DialogFacesReady{SessionID: e.SessionID})
		return nil
	}

	selected := detect.SelectLargest(detections, w.maxFaces)
	primary := selected[0]

	boxes := make([]bus.FaceBox, 0, len(selected))
	var primaryID, primaryName string
	for i, det := range selected {
		id, _, err := w.store.Identify(det.Embedding)
		if err != nil {
			return err
		}

		label := placeholderLabel
		if i == 0 {
			bucket := identity.MinuteBucket(time.Now())
			if id == identity.Unknown {
				id = w.enroll(img, det, bucket)
			} else if err := w.store.TouchVisit(id, bucket); err != nil {
				return err
			}
			name, err := w.store.DisplayName(id)
			if err != nil {
				// enrollment did not take; the random id stands in as a
				// non-authoritative label for this frame only
				name = id
			}
			primaryID, primaryName = id, name
			label = name
		} else if id != identity.Unknown {
			name, err := w.store.DisplayName(id)
			if err != nil {
				return err
			}
			label = name
		}

		boxes = append(boxes, bus.FaceBox{Y1: det.Box.Y1, X1: det.Box.X1, Y2: det.Box.Y2, X2: det.Box.X2, Label: label})
	}

	photo := ""
	if crop, err := w.cropper.Crop(img, primary.Box); err != nil {
		w.logger.Warning("face worker %d: failed to crop primary face: %v", w.id, err)
	} else {
		photo = base64.StdEncoding.EncodeToString(crop)
	}

	w.bus.Broadcast(bus.GroupFaceResults, &bus.FacesReady{SessionID: e.SessionID, Boxes: boxes})
	w.bus.Broadcast(bus.GroupDialog, &bus.DialogFacesReady{
		SessionID:   e.SessionID,
		IdentityID:  primaryID,
		Photo:       photo,
		DisplayName: primaryName,
	})
	return nil
}

// enroll creates a new identity for an unmatched primary face and logs its
// first visit. On store failure the returned random id is ephemeral: it labels
// this frame only and is not durable.
func (w *FaceWorker) enroll(img []byte, det detect.Detection, bucket string) string {
	id := uuid.NewString()

	count, err := w.store.UnnamedCount()
	if err != nil {
		w.logger.Error("face worker %d: enrollment failed, label %s is ephemeral: %v", w.id, id, err)
		return id
	}
	name := fmt.Sprintf("Unnamed #%d", count+1)

	photoPath := ""
	if crop, err := w.cropper.Crop(img, det.Box); err != nil {
		w.logger.Warning("face worker %d: failed to crop enrollment photo: %v", w.id, err)
	} else if path, err := w.photos.Save(crop, id); err != nil {
		w.logger.Warning("face worker %d: failed to archive enrollment photo: %v", w.id, err)
	} else {
		photoPath = path
	}

	rec := &identity.Record{
		ID:          id,
		DisplayName: name,
		Embedding:   det.Embedding,
		PhotoPath:   photoPath,
		EnrolledAt:  time.Now(),
	}
	if err := w.store.Enroll(rec); err != nil {
		w.logger.Error("face worker %d: enrollment failed, label %s is ephemeral: %v", w.id, id, err)
		return id
	}
	if err := w.store.TouchVisit(id, bucket); err != nil {
		w.logger.Error("face worker %d: failed to log first visit for %s: %v", w.id, id, err)
	}
	return id
}
