package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"frserver/internal/bus"
	"frserver/internal/clock"
	"frserver/internal/coins"
	"frserver/internal/config"
	"frserver/internal/logger"
)

// Client is the transport edge for one connection; the websocket adapter
// implements it.
type Client interface {
	Send(message []byte) error
}

// Session owns one client connection end to end: it fans frames out to the
// worker groups, broadcasts clock-sync ticks for its lifetime, and aggregates
// and filters worker results before relaying them to the client.
//
// One goroutine drains results and the sync ticker; Receive* methods publish
// from the transport's read loop without blocking. Nothing a session does can
// block another session.
type Session struct {
	id     string
	bus    *bus.Bus
	client Client
	coins  *coins.Aggregator
	logger *logger.Logger

	syncInterval time.Duration
	faceResults  <-chan bus.Event
	coinResults  <-chan bus.Event
	done         chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup

	now func() float64
}

// New allocates a session with a fresh random id.
func New(b *bus.Bus, client Client, cfg *config.Config, logger *logger.Logger) *Session {
	return &Session{
		id:           uuid.NewString(),
		bus:          b,
		client:       client,
		coins:        coins.NewAggregator(cfg.CoinWindow, cfg.CoinMinCount, logger),
		logger:       logger,
		syncInterval: time.Duration(cfg.ClockSyncInterval) * time.Second,
		done:         make(chan struct{}),
		now:          clock.Now,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Start joins the result groups and launches the session goroutine.
func (s *Session) Start() {
	s.faceResults = s.bus.Join(bus.GroupFaceResults, s.id)
	s.coinResults = s.bus.Join(bus.GroupCoinResults, s.id)
	s.wg.Add(1)
	go s.run()
	s.logger.Info("session %s connected", s.id)
}

// run is the session's actor loop: clock-sync ticks and result relay, until
// Close.
func (s *Session) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	s.broadcastClock()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.broadcastClock()
		case ev := <-s.faceResults:
			s.onFaceResult(ev)
		case ev := <-s.coinResults:
			s.onCoinResult(ev)
		}
	}
}

// broadcastClock sends the current server time to both worker groups and the
// client so shifts stay roughly aligned.
func (s *Session) broadcastClock() {
	ev := &bus.SyncClock{Timestamp: s.now(), SessionID: s.id}
	if err := s.bus.Send(bus.GroupFaceWorkers, ev); err != nil {
		s.logger.Warning("session %s: clock sync to face workers dropped: %v", s.id, err)
	}
	if err := s.bus.Send(bus.GroupCoinWorkers, ev); err != nil {
		s.logger.Warning("session %s: clock sync to coin workers dropped: %v", s.id, err)
	}
	s.sendEvent(ev)
}

// ReceiveFrame publishes one binary frame to both worker groups. A saturated
// bus drops the frame with a log line; the client never sees an error.
func (s *Session) ReceiveFrame(payload []byte) {
	ev := &bus.Recognize{Payload: payload, SessionID: s.id}
	if err := s.bus.Send(bus.GroupFaceWorkers, ev); err != nil {
		s.logger.Warning("session %s: frame to face workers dropped: %v", s.id, err)
	}
	if err := s.bus.Send(bus.GroupCoinWorkers, ev); err != nil {
		s.logger.Warning("session %s: frame to coin workers dropped: %v", s.id, err)
	}
}

// ReceiveControl handles a text payload from the client: either a bare
// language tag or a JSON control event (an explicit sync_clock resync or
// set_language). Unknown or malformed control events are logged, not silently
// ignored.
func (s *Session) ReceiveControl(text string) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		ev, err := bus.Decode([]byte(trimmed))
		if err != nil {
			s.logger.Warning("session %s: bad control event: %v", s.id, err)
			return
		}
		switch e := ev.(type) {
		case *bus.SyncClock:
			s.publishControl(&bus.SyncClock{Timestamp: e.Timestamp, SessionID: s.id})
		case *bus.SetLanguage:
			s.setLanguage(e.Lang)
		default:
			s.logger.Warning("session %s: unexpected %s control event", s.id, ev.EventType())
		}
		return
	}
	s.setLanguage(trimmed)
}

// setLanguage canonicalizes the tag and broadcasts it to both worker groups.
func (s *Session) setLanguage(lang string) {
	tag, err := language.Parse(lang)
	if err != nil {
		s.logger.Warning("session %s: invalid language tag %q: %v", s.id, lang, err)
		return
	}
	base, _ := tag.Base()
	s.publishControl(&bus.SetLanguage{Lang: base.String(), SessionID: s.id})
}

func (s *Session) publishControl(ev bus.Event) {
	if err := s.bus.Send(bus.GroupFaceWorkers, ev); err != nil {
		s.logger.Warning("session %s: %s to face workers dropped: %v", s.id, ev.EventType(), err)
	}
	if err := s.bus.Send(bus.GroupCoinWorkers, ev); err != nil {
		s.logger.Warning("session %s: %s to coin workers dropped: %v", s.id, ev.EventType(), err)
	}
}

// onFaceResult relays a face result to the client. Results for other sessions
// arrive on the shared group and are filtered out, never relayed.
func (s *Session) onFaceResult(ev bus.Event) {
	result, ok := ev.(*bus.FacesReady)
	if !ok || result.SessionID != s.id {
		return
	}
	s.sendJSON(faceMessage{Type: "face", SessionID: s.id, Boxes: result.Boxes})
}

// onCoinResult feeds a coin result into the aggregator and relays both the raw
// echo and the aggregated summary.
func (s *Session) onCoinResult(ev bus.Event) {
	result, ok := ev.(*bus.CoinsReady)
	if !ok || result.SessionID != s.id {
		return
	}

	s.sendJSON(coinMessage{Type: "coin", SessionID: s.id, Detections: result.Detections})

	now := s.now()
	s.coins.Ingest(result.Detections, now)
	summary := s.coins.Summarize(result.Detections, now)
	s.sendEvent(&bus.RecognizedCoins{SessionID: s.id, Coins: summary})
}

func (s *Session) sendEvent(ev bus.Event) {
	msg, err := bus.Marshal(ev)
	if err != nil {
		s.logger.Error("session %s: failed to encode %s: %v", s.id, ev.EventType(), err)
		return
	}
	if err := s.client.Send(msg); err != nil {
		s.logger.Warning("session %s: client send failed: %v", s.id, err)
	}
}

func (s *Session) sendJSON(message interface{}) {
	msg, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("session %s: failed to encode client message: %v", s.id, err)
		return
	}
	if err := s.client.Send(msg); err != nil {
		s.logger.Warning("session %s: client send failed: %v", s.id, err)
	}
}

// Close marks the session disconnected. The actor goroutine exits before Close
// returns, so no further clock broadcasts or relays happen; frames already
// dispatched to workers complete or drop normally, and their late results are
// discarded with the subscriptions.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.bus.Leave(bus.GroupFaceResults, s.id)
		s.bus.Leave(bus.GroupCoinResults, s.id)
		s.logger.Info("session %s disconnected", s.id)
	})
}

// faceMessage is the client-facing face result shape.
type faceMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Boxes     []bus.FaceBox `json:"text"`
}

// coinMessage is the client-facing raw coin echo shape.
type coinMessage struct {
	Type       string             `json:"type"`
	SessionID  string             `json:"session_id"`
	Detections []coins.Descriptor `json:"text"`
}
