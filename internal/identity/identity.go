// Package identity defines the known-identity store contract used by face
// workers: embedding-based identification, enrollment of unknown faces, and an
// append-only per-identity visit log.
package identity

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Unknown is the identity id reported when no stored embedding matches.
const Unknown = "Unknown"

// Record is one enrolled identity. ID and Embedding are write-once;
// DisplayName is mutable by operator action.
type Record struct {
	ID          string
	DisplayName string
	Embedding   []float32
	PhotoPath   string
	EnrolledAt  time.Time
	LastSeen    time.Time
}

// Summary is the admin-facing view of an identity, without the embedding.
type Summary struct {
	ID          string    `json:"identity_id"`
	DisplayName string    `json:"display_name"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	LastSeen    time.Time `json:"last_seen"`
	Visits      int       `json:"visits"`
}

// Store is the identity store capability. Implementations synchronize
// themselves; callers never lock around them and tolerate eventual staleness.
type Store interface {
	// Identify matches an embedding against the stored identities and returns
	// the best identity id and its score, or Unknown when the best score is
	// below the store's match threshold.
	Identify(embedding []float32) (string, float64, error)

	// Enroll persists a new identity record. The record's embedding and id are
	// immutable afterwards.
	Enroll(rec *Record) error

	// TouchVisit appends a visit-log entry for the minute bucket. Idempotent:
	// a second touch within the same bucket is a no-op.
	TouchVisit(identityID, minuteBucket string) error

	// DisplayName returns the identity's current display name.
	DisplayName(identityID string) (string, error)

	// UnnamedCount counts auto-named enrollments, used to derive the next
	// "Unnamed #N" display name.
	UnnamedCount() (int, error)

	// Rename sets an identity's display name.
	Rename(identityID, displayName string) error

	// List returns summaries of all identities.
	List() ([]Summary, error)

	// Recache invalidates and rebuilds any local caches from persistent state.
	// Workers call it defensively after a processing error.
	Recache() error
}

// MinuteBucket formats a time as the minute-granularity visit-log key.
func MinuteBucket(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// Cosine returns the cosine similarity of two embeddings, 0 when either has
// zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EncodeEmbedding packs an embedding as little-endian float32 bytes for BLOB
// storage.
func EncodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding unpacks a BLOB back into an embedding.
func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return embedding, nil
}
