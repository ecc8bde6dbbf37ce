package worker

import (
	"errors"
	"reflect"
	"testing"

	"frserver/internal/bus"
	"frserver/internal/detect"
	"frserver/internal/identity"
)

type fakeDetector struct {
	detections []detect.Detection
	err        error
}

func (f *fakeDetector) Detect(image []byte) ([]detect.Detection, error) {
	return f.detections, f.err
}

type fakeCropper struct {
	data []byte
	err  error
}

func (f *fakeCropper) Crop(image []byte, box detect.Box) ([]byte, error) {
	return f.data, f.err
}

// fakeStore matches embeddings by exact equality and records every mutation.
type fakeStore struct {
	known        map[string][]float32
	names        map[string]string
	visits       map[string]int
	unnamed      int
	enrolled     []*identity.Record
	identifyErr  error
	enrollErr    error
	unnamedErr   error
	recacheCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		known:  make(map[string][]float32),
		names:  make(map[string]string),
		visits: make(map[string]int),
	}
}

func (s *fakeStore) Identify(embedding []float32) (string, float64, error) {
	if s.identifyErr != nil {
		return "", 0, s.identifyErr
	}
	for id, known := range s.known {
		if reflect.DeepEqual(known, embedding) {
			return id, 0.9, nil
		}
	}
	return identity.Unknown, 0.1, nil
}

func (s *fakeStore) Enroll(rec *identity.Record) error {
	if s.enrollErr != nil {
		return s.enrollErr
	}
	s.known[rec.ID] = rec.Embedding
	s.names[rec.ID] = rec.DisplayName
	s.enrolled = append(s.enrolled, rec)
	return nil
}

func (s *fakeStore) TouchVisit(identityID, minuteBucket string) error {
	s.visits[identityID+"|"+minuteBucket]++
	return nil
}

func (s *fakeStore) DisplayName(identityID string) (string, error) {
	name, ok := s.names[identityID]
	if !ok {
		return "", errors.New("identity not found")
	}
	return name, nil
}

func (s *fakeStore) UnnamedCount() (int, error) {
	return s.unnamed, s.unnamedErr
}

func (s *fakeStore) Rename(identityID, displayName string) error {
	s.names[identityID] = displayName
	return nil
}

func (s *fakeStore) List() ([]identity.Summary, error) {
	return nil, nil
}

func (s *fakeStore) Recache() error {
	s.recacheCount++
	return nil
}

func (s *fakeStore) visitCount(identityID string) int {
	total := 0
	for key, n := range s.visits {
		if len(key) > len(identityID) && key[:len(identityID)] == identityID {
			total += n
		}
	}
	return total
}

// drain returns the next event on the channel, or nil when none is pending.
func drain(t *testing.T, events <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	default:
		return nil
	}
}
