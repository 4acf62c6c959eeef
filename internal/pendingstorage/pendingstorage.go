// Package pendingstorage holds published datasets on disk between the network publish
// and the on-chain finalization event that makes them permanent.
package pendingstorage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/fsutil"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

const dirName = "pending_storage"

type PublishCache struct {
	Assertion    knowledge.Assertion `json:"assertion"`
	MerkleRoot   string              `json:"merkleRoot"`
	RemotePeerID string              `json:"remotePeerId,omitempty"`
	Blockchain   string              `json:"blockchain,omitempty"`
	CachedAt     time.Time           `json:"cachedAt"`
}

type Storage struct {
	log *logger.Logger
	dir string
	now func() time.Time
}

func New(dataDir string, baseLog *logger.Logger) (*Storage, error) {
	dir := filepath.Join(dataDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pending storage dir: %w", err)
	}
	return &Storage{
		log: baseLog.With("service", "PendingStorage"),
		dir: dir,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Storage) Dir() string { return s.dir }

func (s *Storage) path(operationID uuid.UUID) string {
	return filepath.Join(s.dir, operationID.String())
}

func (s *Storage) Cache(operationID uuid.UUID, doc PublishCache) error {
	if doc.CachedAt.IsZero() {
		doc.CachedAt = s.now()
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal pending publish: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path(operationID), raw); err != nil {
		return fmt.Errorf("write pending publish %s: %w", operationID, err)
	}
	s.log.Debug("Publish data cached", "operation_id", operationID, "merkle_root", doc.MerkleRoot)
	return nil
}

// Read returns the cached document. A missing file wraps ErrNotFound; the finalization
// step retries on it because the publish may still be in flight.
func (s *Storage) Read(operationID uuid.UUID) (*PublishCache, error) {
	raw, err := os.ReadFile(s.path(operationID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("pending publish %s: %w", operationID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var doc PublishCache
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode pending publish %s: %w", operationID, err)
	}
	return &doc, nil
}

func (s *Storage) Remove(operationID uuid.UUID) error {
	if err := os.Remove(s.path(operationID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ExpireOlderThan removes documents last written before cutoff.
func (s *Storage) ExpireOlderThan(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("Failed to expire pending publish", "file", e.Name(), "error", err)
			continue
		}
		n++
	}
	return n, nil
}
