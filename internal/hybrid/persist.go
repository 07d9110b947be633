package hybrid

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/lexivec/lexivec/internal/errors"
	"github.com/lexivec/lexivec/internal/fusion"
)

// On-disk layout inside the data directory. The document store lives
// in its own SQLite file managed continuously; Save and Load cover the
// in-memory indices.
const (
	DocumentsFile = "documents.db"
	LexicalFile   = "lexical.gob"
	VectorFile    = "vectors.idx"
	FusionFile    = "fusion.gob"
	lockFile      = ".lexivec.lock"
)

// Save persists the lexical and vector indices into dir under an
// exclusive directory lock. Each index writes atomically, so a crash
// mid-save leaves the previous snapshot intact per file.
func (s *Store) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("hybrid store is closed")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.IndexError(fmt.Sprintf("failed to create data directory %s", dir), err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return errors.IndexError("failed to acquire data directory lock", err)
	}
	if !locked {
		return errors.IndexError(
			fmt.Sprintf("data directory %s is locked by another process", dir), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release data directory lock",
				slog.String("error", err.Error()))
		}
	}()

	if err := s.lexical.Save(filepath.Join(dir, LexicalFile)); err != nil {
		return errors.IndexError("failed to save lexical index", err)
	}
	if s.vector != nil {
		if err := s.vector.Save(filepath.Join(dir, VectorFile)); err != nil {
			return errors.VectorStoreError("failed to save vector index", err)
		}
	}
	if learned, ok := s.ranker.(*fusion.LearnedRanker); ok && learned.Trained() {
		if err := learned.Save(filepath.Join(dir, FusionFile)); err != nil {
			return errors.New(errors.ErrCodeTrainingFailed,
				"failed to save fusion model", err)
		}
	}

	s.logger.Info("indices saved", slog.String("dir", dir))
	return nil
}

// Load restores the lexical and vector indices from dir under the
// directory lock. Missing files mean a fresh store and are not errors;
// a present but unreadable file is.
func (s *Store) Load(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("hybrid store is closed")
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return errors.IndexError("failed to acquire data directory lock", err)
	}
	if !locked {
		return errors.IndexError(
			fmt.Sprintf("data directory %s is locked by another process", dir), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release data directory lock",
				slog.String("error", err.Error()))
		}
	}()

	lexPath := filepath.Join(dir, LexicalFile)
	if _, err := os.Stat(lexPath); err == nil {
		if err := s.lexical.Load(lexPath); err != nil {
			return errors.New(errors.ErrCodeCorruptIndex,
				"failed to load lexical index", err)
		}
	}

	if s.vector != nil {
		vecPath := filepath.Join(dir, VectorFile)
		if _, err := os.Stat(vecPath); err == nil {
			if err := s.vector.Load(vecPath); err != nil {
				return errors.VectorStoreError("failed to load vector index", err)
			}
		}
	}

	if learned, ok := s.ranker.(*fusion.LearnedRanker); ok {
		modelPath := filepath.Join(dir, FusionFile)
		if _, err := os.Stat(modelPath); err == nil {
			if err := learned.Load(modelPath); err != nil {
				return errors.New(errors.ErrCodeTrainingFailed,
					"failed to load fusion model", err)
			}
		}
	}

	s.logger.Info("indices loaded", slog.String("dir", dir))
	return nil
}
