package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"frserver/internal/logger"
)

// PhotoStore archives cropped enrollment photos on disk.
type PhotoStore struct {
	photoDir string
	logger   *logger.Logger
}

// NewPhotoStore creates a photo store rooted at photoDir.
func NewPhotoStore(photoDir string, logger *logger.Logger) *PhotoStore {
	return &PhotoStore{photoDir: photoDir, logger: logger}
}

// Save writes a PNG crop for the identity and returns its path.
func (s *PhotoStore) Save(data []byte, identityID string) (string, error) {
	if err := os.MkdirAll(s.photoDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create photo directory: %w", err)
	}

	fullpath := filepath.Join(s.photoDir, fmt.Sprintf("photo_%s.png", identityID))
	if err := os.WriteFile(fullpath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save photo %s: %w", fullpath, err)
	}

	s.logger.Info("saved enrollment photo %s", fullpath)
	return fullpath, nil
}
