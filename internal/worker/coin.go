package worker

import (
	"sync"

	"frserver/internal/bus"
	"frserver/internal/clock"
	"frserver/internal/coins"
	"frserver/internal/config"
	"frserver/internal/detect"
	"frserver/internal/frame"
	"frserver/internal/logger"
)

// CoinWorker detects coins on admitted frames and maps them to catalog
// descriptors, localized to the session's language.
type CoinWorker struct {
	id       int
	bus      *bus.Bus
	detector detect.Detector
	catalog  *coins.Catalog
	shifter  *clock.Shifter
	logger   *logger.Logger
	staleAge float64

	langMu    sync.Mutex
	languages map[string]string

	now func() float64
}

// NewCoinWorker creates a coin worker with its own detector instance.
func NewCoinWorker(id int, b *bus.Bus, detector detect.Detector, catalog *coins.Catalog, cfg *config.Config, logger *logger.Logger) *CoinWorker {
	return &CoinWorker{
		id:        id,
		bus:       b,
		detector:  detector,
		catalog:   catalog,
		shifter:   clock.NewShifter(),
		logger:    logger,
		staleAge:  cfg.StaleAge,
		languages: make(map[string]string),
		now:       clock.Now,
	}
}

// Run consumes the coin worker queue until the bus is closed.
func (w *CoinWorker) Run() {
	w.logger.Info("coin worker %d started", w.id)
	for ev := range w.bus.Consume(bus.GroupCoinWorkers) {
		w.handle(ev)
	}
	w.logger.Info("coin worker %d stopped", w.id)
}

func (w *CoinWorker) handle(ev bus.Event) {
	switch e := ev.(type) {
	case *bus.SyncClock:
		w.shifter.Resync(e.SessionID, e.Timestamp, w.now())
	case *bus.SetLanguage:
		w.setLanguage(e.SessionID, e.Lang)
	case *bus.Recognize:
		if err := w.recognize(e); err != nil {
			w.logger.Error("coin worker %d: session %s frame dropped: %v", w.id, e.SessionID, err)
		}
	default:
		w.logger.Warning("coin worker %d: unexpected %s event", w.id, ev.EventType())
	}
}

func (w *CoinWorker) setLanguage(sessionID, lang string) {
	w.langMu.Lock()
	defer w.langMu.Unlock()
	w.languages[sessionID] = lang
}

func (w *CoinWorker) language(sessionID string) string {
	w.langMu.Lock()
	defer w.langMu.Unlock()
	if lang, ok := w.languages[sessionID]; ok {
		return lang
	}
	return "en"
}

// recognize detects coins on one frame and publishes the matched descriptors.
func (w *CoinWorker) recognize(e *bus.Recognize) error {
	timestamp, img, err := frame.Parse(e.Payload)
	if err != nil {
		return err
	}

	age := w.shifter.Age(e.SessionID, timestamp, w.now())
	if age >= w.staleAge {
		w.logger.Info("coin worker %d: session %s frame stale (age %.3fs), skipping", w.id, e.SessionID, age)
		return nil
	}

	detections, err := w.detector.Detect(img)
	if err != nil {
		return err
	}

	lang := w.language(e.SessionID)
	found := make([]coins.Descriptor, 0, len(detections))
	for _, det := range detections {
		descriptor, ok := w.catalog.LookupClass(det.ClassID)
		if !ok {
			w.logger.Warning("coin worker %d: no catalog entry for detector class %d", w.id, det.ClassID)
			continue
		}
		descriptor.Name = descriptor.LocalizedName(lang)
		found = append(found, descriptor)
	}

	w.bus.Broadcast(bus.GroupCoinResults, &bus.CoinsReady{SessionID: e.SessionID, Detections: found})
	return nil
}
