package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeCalibratesFromFirstFrame(t *testing.T) {
	s := NewShifter()

	age := s.Age("s1", 100, 105)

	shift, ok := s.Shift("s1")
	require.True(t, ok)
	assert.Equal(t, 5.0, shift)
	assert.Equal(t, 10.0, age)
}

func TestAgeMeasuresElapsedSinceReference(t *testing.T) {
	s := NewShifter()
	s.Age("s1", 100, 105) // shift = 5

	// Not literal latency: a frame sent 3s after the reference, received 3s
	// later, ages by the shift plus its own transit.
	assert.Equal(t, 10.0, s.Age("s1", 103, 108))
}

func TestShiftSetAtMostOnce(t *testing.T) {
	s := NewShifter()
	s.Age("s1", 100, 105)
	s.Age("s1", 100, 200)

	shift, _ := s.Shift("s1")
	assert.Equal(t, 5.0, shift)
}

func TestShiftsAreIndependentPerSession(t *testing.T) {
	s := NewShifter()
	s.Age("s1", 100, 105)
	s.Age("s2", 100, 120)

	s1, _ := s.Shift("s1")
	s2, _ := s.Shift("s2")
	assert.Equal(t, 5.0, s1)
	assert.Equal(t, 20.0, s2)
}

func TestResyncOverwritesShift(t *testing.T) {
	s := NewShifter()
	s.Age("s1", 100, 105)

	s.Resync("s1", 100, 102)

	shift, _ := s.Shift("s1")
	assert.Equal(t, 2.0, shift)
}

func TestShiftUnknownSession(t *testing.T) {
	s := NewShifter()

	_, ok := s.Shift("nope")
	assert.False(t, ok)
}
