package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"frserver/internal/coins"
)

// Group names shared by the gateway and the worker pools. Worker groups are
// competing-consumer queues; result groups are broadcast fan-outs that every
// live session joins and filters by session id.
const (
	GroupFaceWorkers = "recognizefaces"
	GroupCoinWorkers = "recognizecoins"
	GroupFaceResults = "recognize-faces"
	GroupCoinResults = "recognize-coins"
	GroupDialog      = "dialog-recognize-faces"
)

// Event type discriminators.
const (
	TypeSyncClock        = "sync_clock"
	TypeSetLanguage      = "set_language"
	TypeRecognize        = "recognize"
	TypeFacesReady       = "faces_ready"
	TypeDialogFacesReady = "dialog_faces_ready"
	TypeCoinsReady       = "coins_ready"
	TypeRecognizedCoins  = "recognized_coins"
)

// ErrUnknownEvent is returned by Decode for event types outside the closed set.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is one message on the bus. The set of implementations is closed; every
// event carries the session it belongs to.
type Event interface {
	EventType() string
	Session() string
}

// SyncClock carries the gateway's wall-clock time so workers can re-estimate
// the session's clock shift.
type SyncClock struct {
	Timestamp float64 `json:"timestamp"`
	SessionID string  `json:"session_id"`
}

func (e *SyncClock) EventType() string { return TypeSyncClock }
func (e *SyncClock) Session() string   { return e.SessionID }

// SetLanguage switches the display language for one session.
type SetLanguage struct {
	Lang      string `json:"lang"`
	SessionID string `json:"session_id"`
}

func (e *SetLanguage) EventType() string { return TypeSetLanguage }
func (e *SetLanguage) Session() string   { return e.SessionID }

// Recognize carries one timestamped client frame to a worker.
type Recognize struct {
	Payload   []byte `json:"payload"`
	SessionID string `json:"session_id"`
}

func (e *Recognize) EventType() string { return TypeRecognize }
func (e *Recognize) Session() string   { return e.SessionID }

// FaceBox is one detected face box with its resolved label.
type FaceBox struct {
	Y1    int    `json:"y1"`
	X1    int    `json:"x1"`
	Y2    int    `json:"y2"`
	X2    int    `json:"x2"`
	Label string `json:"label"`
}

// FacesReady carries a frame's labeled face boxes back to the session.
type FacesReady struct {
	SessionID string    `json:"session_id"`
	Boxes     []FaceBox `json:"boxes"`
}

func (e *FacesReady) EventType() string { return TypeFacesReady }
func (e *FacesReady) Session() string   { return e.SessionID }

// DialogFacesReady notifies dialog observers about the resolved primary face.
// Fields other than the session id are empty when no primary identity was
// resolved for the frame.
type DialogFacesReady struct {
	SessionID   string `json:"session_id"`
	IdentityID  string `json:"identity_id,omitempty"`
	Photo       string `json:"photo,omitempty"` // base64 PNG crop
	DisplayName string `json:"display_name,omitempty"`
}

func (e *DialogFacesReady) EventType() string { return TypeDialogFacesReady }
func (e *DialogFacesReady) Session() string   { return e.SessionID }

// CoinsReady carries a frame's raw coin detections back to the session.
type CoinsReady struct {
	SessionID  string             `json:"session_id"`
	Detections []coins.Descriptor `json:"detections"`
}

func (e *CoinsReady) EventType() string { return TypeCoinsReady }
func (e *CoinsReady) Session() string   { return e.SessionID }

// RecognizedCoins is the aggregated "currently visible" coin set delivered to
// the client.
type RecognizedCoins struct {
	SessionID string             `json:"session_id"`
	Coins     []coins.Descriptor `json:"text"`
}

func (e *RecognizedCoins) EventType() string { return TypeRecognizedCoins }
func (e *RecognizedCoins) Session() string   { return e.SessionID }

// Marshal encodes an event as JSON with its type discriminator.
func Marshal(ev Event) ([]byte, error) {
	type tag struct {
		Type string `json:"type"`
	}
	switch e := ev.(type) {
	case *SyncClock:
		return json.Marshal(struct {
			tag
			*SyncClock
		}{tag{e.EventType()}, e})
	case *SetLanguage:
		return json.Marshal(struct {
			tag
			*SetLanguage
		}{tag{e.EventType()}, e})
	case *Recognize:
		return json.Marshal(struct {
			tag
			*Recognize
		}{tag{e.EventType()}, e})
	case *FacesReady:
		return json.Marshal(struct {
			tag
			*FacesReady
		}{tag{e.EventType()}, e})
	case *DialogFacesReady:
		return json.Marshal(struct {
			tag
			*DialogFacesReady
		}{tag{e.EventType()}, e})
	case *CoinsReady:
		return json.Marshal(struct {
			tag
			*CoinsReady
		}{tag{e.EventType()}, e})
	case *RecognizedCoins:
		return json.Marshal(struct {
			tag
			*RecognizedCoins
		}{tag{e.EventType()}, e})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// Decode parses a JSON event, validating its type discriminator against the
// closed event set. Unknown or malformed events are an error, never dropped
// silently.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	var ev Event
	switch envelope.Type {
	case TypeSyncClock:
		ev = &SyncClock{}
	case TypeSetLanguage:
		ev = &SetLanguage{}
	case TypeRecognize:
		ev = &Recognize{}
	case TypeFacesReady:
		ev = &FacesReady{}
	case TypeDialogFacesReady:
		ev = &DialogFacesReady{}
	case TypeCoinsReady:
		ev = &CoinsReady{}
	case TypeRecognizedCoins:
		ev = &RecognizedCoins{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Type)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", envelope.Type, err)
	}
	return ev, nil
}
