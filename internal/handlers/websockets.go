package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"frserver/internal/bus"
	"frserver/internal/config"
	"frserver/internal/gateway"
	"frserver/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const readTimeout = 60 * time.Second

// wsClient adapts a websocket connection to the gateway's Client interface.
// gorilla connections allow only one concurrent writer, so writes are
// serialized.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn}
}

func (c *wsClient) Send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// StreamWebsocketHandler terminates one client session: binary messages are
// timestamped frames, text messages are control payloads. The session's
// gateway actor lives exactly as long as the connection.
func StreamWebsocketHandler(b *bus.Bus, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		connection.SetReadDeadline(time.Now().Add(readTimeout))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(readTimeout))
			return nil
		})

		session := gateway.New(b, newWSClient(connection), cfg, logger)
		session.Start()
		defer session.Close()

		for {
			messageType, msg, err := connection.ReadMessage()
			if err != nil {
				logger.Info("session %s read loop ended: %v", session.ID(), err)
				break
			}
			connection.SetReadDeadline(time.Now().Add(readTimeout))

			switch messageType {
			case websocket.BinaryMessage:
				session.ReceiveFrame(msg)
			case websocket.TextMessage:
				session.ReceiveControl(string(msg))
			}
		}
	}
}

// DialogWebsocketHandler relays dialog_faces_ready events (resolved primary
// identity, cropped photo) to enrollment/dialog observers.
func DialogWebsocketHandler(b *bus.Bus, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		observerID := uuid.NewString()
		events := b.Join(bus.GroupDialog, observerID)
		defer b.Leave(bus.GroupDialog, observerID)

		logger.Info("dialog observer %s connected", observerID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := connection.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				logger.Info("dialog observer %s disconnected", observerID)
				return
			case ev := <-events:
				msg, err := bus.Marshal(ev)
				if err != nil {
					logger.Error("dialog observer %s: failed to encode event: %v", observerID, err)
					continue
				}
				if err := connection.WriteMessage(websocket.TextMessage, msg); err != nil {
					logger.Info("dialog observer %s write failed: %v", observerID, err)
					return
				}
			}
		}
	}
}
