package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frserver/internal/config"
	"frserver/internal/identity"
	"frserver/internal/logger"
)

func newTestStore(t *testing.T) (*DB, *IdentityStore) {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	store, err := NewIdentityStore(db, 0.6, log)
	require.NoError(t, err)
	return db, store
}

func enrollTestIdentity(t *testing.T, store *IdentityStore, id, name string, embedding []float32) {
	t.Helper()
	require.NoError(t, store.Enroll(&identity.Record{
		ID:          id,
		DisplayName: name,
		Embedding:   embedding,
		EnrolledAt:  time.Now(),
	}))
}

func TestEnrollAndIdentify(t *testing.T) {
	_, store := newTestStore(t)
	enrollTestIdentity(t, store, "id1", "Alice", []float32{1, 0, 0})

	id, score, err := store.Identify([]float32{1, 0, 0})

	require.NoError(t, err)
	assert.Equal(t, "id1", id)
	assert.InDelta(t, 1.0, score, 1e-6)
}

func TestIdentifyBelowThreshold(t *testing.T) {
	_, store := newTestStore(t)
	enrollTestIdentity(t, store, "id1", "Alice", []float32{1, 0, 0})

	id, _, err := store.Identify([]float32{0, 1, 0})

	require.NoError(t, err)
	assert.Equal(t, identity.Unknown, id)
}

func TestIdentifyEmptyStore(t *testing.T) {
	_, store := newTestStore(t)

	id, score, err := store.Identify([]float32{1, 0, 0})

	require.NoError(t, err)
	assert.Equal(t, identity.Unknown, id)
	assert.Equal(t, 0.0, score)
}

func TestIdentifyPicksBestMatch(t *testing.T) {
	_, store := newTestStore(t)
	enrollTestIdentity(t, store, "id1", "Alice", []float32{1, 0.2, 0})
	enrollTestIdentity(t, store, "id2", "Bob", []float32{1, 0, 0})

	id, _, err := store.Identify([]float32{1, 0, 0})

	require.NoError(t, err)
	assert.Equal(t, "id2", id)
}

func TestTouchVisitIdempotentPerMinuteBucket(t *testing.T) {
	_, store := newTestStore(t)
	enrollTestIdentity(t, store, "id1", "Alice", []float32{1, 0, 0})

	require.NoError(t, store.TouchVisit("id1", "2026-09-01 14:30"))
	require.NoError(t, store.TouchVisit("id1", "2026-09-01 14:30"))
	require.NoError(t, store.TouchVisit("id1", "2026-09-01 14:31"))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].Visits)
	assert.False(t, summaries[0].LastSeen.IsZero())
}

func TestUnnamedCount(t *testing.T) {
	_, store := newTestStore(t)
	enrollTestIdentity(t, store, "id1", "Unnamed #1", []float32{1, 0, 0})
	enrollTestIdentity(t, store, "id2", "Alice", []float32{0, 1, 0})
	enrollTestIdentity(t, store, "id3", "Unnamed #2", []float32{0, 0, 1})

	count, err := store.UnnamedCount()

	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRename(t *testing.T) {
	_, store := newTestStore(t)
	enrollTestIdentity(t, store, "id1", "Unnamed #1", []float32{1, 0, 0})

	require.NoError(t, store.Rename("id1", "Alice"))

	name, err := store.DisplayName("id1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)
}

func TestRenameUnknownIdentity(t *testing.T) {
	_, store := newTestStore(t)

	assert.Error(t, store.Rename("ghost", "Alice"))
}

func TestDisplayNameUnknownIdentity(t *testing.T) {
	_, store := newTestStore(t)

	_, err := store.DisplayName("ghost")
	assert.Error(t, err)
}

func TestRecacheSeesExternalWrites(t *testing.T) {
	db, store := newTestStore(t)

	// Simulate another writer inserting behind the store's back.
	_, err := db.Conn().Exec(`
		INSERT INTO identities (identity_id, display_name, embedding, enrolled_at)
		VALUES (?, ?, ?, ?)
	`, "ext1", "External", identity.EncodeEmbedding([]float32{0, 1, 0}), time.Now())
	require.NoError(t, err)

	id, _, err := store.Identify([]float32{0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, identity.Unknown, id, "stale cache must not see the external row yet")

	require.NoError(t, store.Recache())

	id, _, err = store.Identify([]float32{0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, "ext1", id)
}

func TestEnrollDuplicateID(t *testing.T) {
	_, store := newTestStore(t)
	enrollTestIdentity(t, store, "id1", "Alice", []float32{1, 0, 0})

	err := store.Enroll(&identity.Record{
		ID:          "id1",
		DisplayName: "Clone",
		Embedding:   []float32{1, 0, 0},
		EnrolledAt:  time.Now(),
	})
	assert.Error(t, err)
}
