package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"frserver/internal/identity"
	"frserver/internal/logger"
)

// IdentityStore implements identity.Store on SQLite. Identification runs
// against an in-memory cache of embedding vectors; the id set and vectors are
// rebuilt from the database by Recache.
type IdentityStore struct {
	db        *DB
	threshold float64
	logger    *logger.Logger

	cacheMu sync.Mutex
	ids     map[string]struct{}
	vectors map[string][]float32
}

// NewIdentityStore creates a store with the given match threshold and warms
// its caches from the database.
func NewIdentityStore(db *DB, threshold float64, logger *logger.Logger) (*IdentityStore, error) {
	s := &IdentityStore{
		db:        db,
		threshold: threshold,
		logger:    logger,
	}
	if err := s.Recache(); err != nil {
		return nil, fmt.Errorf("failed to warm identity cache: %w", err)
	}
	return s, nil
}

// Identify matches an embedding against all cached identities by cosine
// similarity. Returns identity.Unknown when the best score is below the match
// threshold.
func (s *IdentityStore) Identify(embedding []float32) (string, float64, error) {
	s.cacheMu.Lock()
	candidates := make([]string, 0, len(s.ids))
	for id := range s.ids {
		candidates = append(candidates, id)
	}
	s.cacheMu.Unlock()

	bestID, bestScore := identity.Unknown, 0.0
	for _, id := range candidates {
		vector, err := s.vector(id)
		if err != nil {
			return "", 0, err
		}
		if score := identity.Cosine(embedding, vector); score > bestScore {
			bestID, bestScore = id, score
		}
	}

	if bestScore < s.threshold {
		return identity.Unknown, bestScore, nil
	}
	return bestID, bestScore, nil
}

// vector returns an identity's embedding, loading it from the database on the
// first use after a recache.
func (s *IdentityStore) vector(identityID string) ([]float32, error) {
	s.cacheMu.Lock()
	vector, ok := s.vectors[identityID]
	s.cacheMu.Unlock()
	if ok {
		return vector, nil
	}

	s.db.RLock()
	var blob []byte
	err := s.db.Conn().QueryRow(
		`SELECT embedding FROM identities WHERE identity_id = ?`, identityID,
	).Scan(&blob)
	s.db.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding for %s: %w", identityID, err)
	}

	vector, err = identity.DecodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedding for %s: %w", identityID, err)
	}

	s.cacheMu.Lock()
	s.vectors[identityID] = vector
	s.cacheMu.Unlock()
	return vector, nil
}

// Enroll persists a new identity record and adds it to the caches.
func (s *IdentityStore) Enroll(rec *identity.Record) error {
	s.db.Lock()
	_, err := s.db.Conn().Exec(`
		INSERT INTO identities (identity_id, display_name, embedding, photo_path, enrolled_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.DisplayName, identity.EncodeEmbedding(rec.Embedding), rec.PhotoPath, rec.EnrolledAt, rec.EnrolledAt)
	s.db.Unlock()
	if err != nil {
		return fmt.Errorf("failed to enroll identity %s: %w", rec.ID, err)
	}

	s.cacheMu.Lock()
	s.ids[rec.ID] = struct{}{}
	s.vectors[rec.ID] = rec.Embedding
	s.cacheMu.Unlock()

	s.logger.Info("enrolled identity %s (%s)", rec.ID, rec.DisplayName)
	return nil
}

// TouchVisit appends a visit-log entry for the minute bucket (idempotent) and
// refreshes the identity's last_seen time.
func (s *IdentityStore) TouchVisit(identityID, minuteBucket string) error {
	s.db.Lock()
	defer s.db.Unlock()

	if _, err := s.db.Conn().Exec(`
		INSERT OR IGNORE INTO visits (identity_id, minute_bucket) VALUES (?, ?)
	`, identityID, minuteBucket); err != nil {
		return fmt.Errorf("failed to touch visit for %s: %w", identityID, err)
	}

	if _, err := s.db.Conn().Exec(`
		UPDATE identities SET last_seen = ? WHERE identity_id = ?
	`, time.Now(), identityID); err != nil {
		return fmt.Errorf("failed to update last_seen for %s: %w", identityID, err)
	}
	return nil
}

// DisplayName returns the identity's current display name.
func (s *IdentityStore) DisplayName(identityID string) (string, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	var name string
	err := s.db.Conn().QueryRow(
		`SELECT display_name FROM identities WHERE identity_id = ?`, identityID,
	).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("failed to get display name for %s: %w", identityID, err)
	}
	return name, nil
}

// UnnamedCount counts auto-named enrollments.
func (s *IdentityStore) UnnamedCount() (int, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	var count int
	err := s.db.Conn().QueryRow(
		`SELECT COUNT(*) FROM identities WHERE display_name LIKE 'Unnamed #%'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unnamed identities: %w", err)
	}
	return count, nil
}

// Rename sets an identity's display name.
func (s *IdentityStore) Rename(identityID, displayName string) error {
	s.db.Lock()
	defer s.db.Unlock()

	result, err := s.db.Conn().Exec(
		`UPDATE identities SET display_name = ? WHERE identity_id = ?`, displayName, identityID,
	)
	if err != nil {
		return fmt.Errorf("failed to rename identity %s: %w", identityID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to rename identity %s: %w", identityID, err)
	}
	if affected == 0 {
		return fmt.Errorf("identity %s not found", identityID)
	}
	return nil
}

// List returns summaries of all identities with their visit counts.
func (s *IdentityStore) List() ([]identity.Summary, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	rows, err := s.db.Conn().Query(`
		SELECT i.identity_id, i.display_name, i.enrolled_at, i.last_seen,
		       (SELECT COUNT(*) FROM visits v WHERE v.identity_id = i.identity_id)
		FROM identities i ORDER BY i.enrolled_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var summaries []identity.Summary
	for rows.Next() {
		var sum identity.Summary
		var lastSeen sql.NullTime
		if err := rows.Scan(&sum.ID, &sum.DisplayName, &sum.EnrolledAt, &lastSeen, &sum.Visits); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		if lastSeen.Valid {
			sum.LastSeen = lastSeen.Time
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Recache rebuilds the id set from the database and invalidates cached
// vectors. Called defensively by workers after a processing error, since the
// database may be mutated by other writers.
func (s *IdentityStore) Recache() error {
	s.db.RLock()
	rows, err := s.db.Conn().Query(`SELECT identity_id FROM identities`)
	if err != nil {
		s.db.RUnlock()
		return fmt.Errorf("failed to query identity ids: %w", err)
	}

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.db.RUnlock()
			return fmt.Errorf("failed to scan identity id: %w", err)
		}
		ids[id] = struct{}{}
	}
	rows.Close()
	s.db.RUnlock()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read identity ids: %w", err)
	}

	s.cacheMu.Lock()
	s.ids = ids
	s.vectors = make(map[string][]float32)
	s.cacheMu.Unlock()
	return nil
}
