package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frserver/internal/bus"
	"frserver/internal/coins"
	"frserver/internal/config"
	"frserver/internal/logger"
)

// fakeClient records every message the session pushes to its transport.
type fakeClient struct {
	mu       sync.Mutex
	messages []map[string]interface{}
}

func (c *fakeClient) Send(message []byte) error {
	var decoded map[string]interface{}
	if err := json.Unmarshal(message, &decoded); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, decoded)
	return nil
}

func (c *fakeClient) ofType(messageType string) []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []map[string]interface{}
	for _, m := range c.messages {
		if m["type"] == messageType {
			matched = append(matched, m)
		}
	}
	return matched
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func newTestSession(t *testing.T) (*Session, *bus.Bus, *fakeClient) {
	t.Helper()

	cfg := &config.Config{
		CoinWindow:        5.0,
		CoinMinCount:      4,
		ClockSyncInterval: 60,
		LogDirectory:      t.TempDir(),
	}
	log := logger.NewLogger(cfg)
	b := bus.New(16)
	client := &fakeClient{}

	s := New(b, client, cfg, log)
	s.syncInterval = 50 * time.Millisecond
	s.now = func() float64 { return 1000.0 }
	t.Cleanup(s.Close)
	return s, b, client
}

// nextEvent pops one queued event without blocking.
func nextEvent(t *testing.T, events <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	default:
		return nil
	}
}

func waitForMessage(t *testing.T, client *fakeClient, messageType string) map[string]interface{} {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(client.ofType(messageType)) > 0
	}, time.Second, 5*time.Millisecond, "no %s message reached the client", messageType)
	return client.ofType(messageType)[0]
}

func TestReceiveFrameReachesBothWorkerQueues(t *testing.T) {
	s, b, _ := newTestSession(t)
	faceQueue := b.Consume(bus.GroupFaceWorkers)
	coinQueue := b.Consume(bus.GroupCoinWorkers)

	s.ReceiveFrame([]byte("0000001000000frame"))

	for _, queue := range []<-chan bus.Event{faceQueue, coinQueue} {
		ev, ok := nextEvent(t, queue).(*bus.Recognize)
		require.True(t, ok)
		assert.Equal(t, s.ID(), ev.SessionID)
		assert.Equal(t, []byte("0000001000000frame"), ev.Payload)
	}
}

func TestBareLanguageTagIsCanonicalized(t *testing.T) {
	s, b, _ := newTestSession(t)
	faceQueue := b.Consume(bus.GroupFaceWorkers)
	coinQueue := b.Consume(bus.GroupCoinWorkers)

	s.ReceiveControl("en-US")

	for _, queue := range []<-chan bus.Event{faceQueue, coinQueue} {
		ev, ok := nextEvent(t, queue).(*bus.SetLanguage)
		require.True(t, ok)
		assert.Equal(t, "en", ev.Lang)
		assert.Equal(t, s.ID(), ev.SessionID)
	}
}

func TestInvalidLanguageTagIgnored(t *testing.T) {
	s, b, _ := newTestSession(t)
	faceQueue := b.Consume(bus.GroupFaceWorkers)

	s.ReceiveControl("!!not-a-tag!!")

	assert.Nil(t, nextEvent(t, faceQueue))
}

func TestJSONSyncClockRepublishedWithOwnSession(t *testing.T) {
	s, b, _ := newTestSession(t)
	faceQueue := b.Consume(bus.GroupFaceWorkers)
	coinQueue := b.Consume(bus.GroupCoinWorkers)

	s.ReceiveControl(`{"type":"sync_clock","timestamp":123.5,"session_id":"spoofed"}`)

	for _, queue := range []<-chan bus.Event{faceQueue, coinQueue} {
		ev, ok := nextEvent(t, queue).(*bus.SyncClock)
		require.True(t, ok)
		assert.Equal(t, 123.5, ev.Timestamp)
		assert.Equal(t, s.ID(), ev.SessionID, "client supplied session ids are never trusted")
	}
}

func TestJSONSetLanguageControl(t *testing.T) {
	s, b, _ := newTestSession(t)
	faceQueue := b.Consume(bus.GroupFaceWorkers)

	s.ReceiveControl(`{"type":"set_language","lang":"ru"}`)

	ev, ok := nextEvent(t, faceQueue).(*bus.SetLanguage)
	require.True(t, ok)
	assert.Equal(t, "ru", ev.Lang)
}

func TestMalformedControlEventIgnored(t *testing.T) {
	s, b, _ := newTestSession(t)
	faceQueue := b.Consume(bus.GroupFaceWorkers)

	s.ReceiveControl(`{"type":"sync_clock",`)
	s.ReceiveControl(`{"type":"no_such_event"}`)

	assert.Nil(t, nextEvent(t, faceQueue))
}

func TestStartBroadcastsClockSync(t *testing.T) {
	s, b, client := newTestSession(t)
	faceQueue := b.Consume(bus.GroupFaceWorkers)
	coinQueue := b.Consume(bus.GroupCoinWorkers)

	s.Start()

	msg := waitForMessage(t, client, "sync_clock")
	assert.Equal(t, 1000.0, msg["timestamp"])

	for _, queue := range []<-chan bus.Event{faceQueue, coinQueue} {
		require.Eventually(t, func() bool {
			ev, ok := nextEvent(t, queue).(*bus.SyncClock)
			return ok && ev.SessionID == s.ID()
		}, time.Second, 5*time.Millisecond)
	}
}

func TestFaceResultRelayedToClient(t *testing.T) {
	s, b, client := newTestSession(t)
	s.Start()

	b.Broadcast(bus.GroupFaceResults, &bus.FacesReady{
		SessionID: s.ID(),
		Boxes:     []bus.FaceBox{{Y1: 1, X1: 2, Y2: 3, X2: 4, Label: "Alice"}},
	})

	msg := waitForMessage(t, client, "face")
	assert.Equal(t, s.ID(), msg["session_id"])

	boxes, ok := msg["text"].([]interface{})
	require.True(t, ok)
	require.Len(t, boxes, 1)
	assert.Equal(t, "Alice", boxes[0].(map[string]interface{})["label"])
}

func TestOtherSessionResultsFiltered(t *testing.T) {
	s, b, client := newTestSession(t)
	s.Start()

	b.Broadcast(bus.GroupFaceResults, &bus.FacesReady{SessionID: "someone-else"})
	b.Broadcast(bus.GroupFaceResults, &bus.FacesReady{SessionID: s.ID()})

	waitForMessage(t, client, "face")

	for _, msg := range client.ofType("face") {
		assert.Equal(t, s.ID(), msg["session_id"])
	}
}

func TestCoinResultEchoedAndSummarized(t *testing.T) {
	s, b, client := newTestSession(t)
	s.Start()

	b.Broadcast(bus.GroupCoinResults, &bus.CoinsReady{
		SessionID: s.ID(),
		Detections: []coins.Descriptor{
			{ID: "d", Featured: true, Name: "Featured"},
			{ID: "a", Name: "A"},
			{ID: "b", Name: "B"},
			{ID: "c", Name: "C"},
		},
	})

	echo := waitForMessage(t, client, "coin")
	assert.Len(t, echo["text"], 4)

	summary := waitForMessage(t, client, "recognized_coins")
	listed, ok := summary["text"].([]interface{})
	require.True(t, ok)
	require.Len(t, listed, 4)

	ids := make([]string, 0, len(listed))
	for _, entry := range listed {
		ids = append(ids, entry.(map[string]interface{})["id"].(string))
	}
	// windowed coins first in first-seen order, the featured coin backfills last
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestCloseStopsRelayAndIsIdempotent(t *testing.T) {
	s, b, client := newTestSession(t)
	s.Start()
	waitForMessage(t, client, "sync_clock")

	s.Close()
	s.Close()

	before := client.count()
	b.Broadcast(bus.GroupFaceResults, &bus.FacesReady{SessionID: s.ID()})
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, before, client.count())
}
