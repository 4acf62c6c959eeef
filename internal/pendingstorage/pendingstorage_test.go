package pendingstorage

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

func TestCacheReadRemove(t *testing.T) {
	s, err := New(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := uuid.New()
	doc := PublishCache{
		Assertion:    knowledge.Assertion{Public: []string{`<urn:a> <urn:p> "1" .`}},
		MerkleRoot:   "0xroot",
		RemotePeerID: "peer-1",
	}
	if err := s.Cache(id, doc); err != nil {
		t.Fatalf("Cache: %v", err)
	}
	got, err := s.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.MerkleRoot != "0xroot" || got.RemotePeerID != "peer-1" || len(got.Assertion.Public) != 1 {
		t.Fatalf("unexpected doc: %+v", got)
	}
	if got.CachedAt.IsZero() {
		t.Fatalf("CachedAt not stamped")
	}
	if err := s.Remove(id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(id); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, err := s.Read(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Read after remove err=%v, want ErrNotFound", err)
	}
}

func TestExpireOlderThan(t *testing.T) {
	s, err := New(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	oldID, newID := uuid.New(), uuid.New()
	if err := s.Cache(oldID, PublishCache{MerkleRoot: "0x1"}); err != nil {
		t.Fatalf("Cache: %v", err)
	}
	if err := s.Cache(newID, PublishCache{MerkleRoot: "0x2"}); err != nil {
		t.Fatalf("Cache: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(s.path(oldID), past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	n, err := s.ExpireOlderThan(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ExpireOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	if _, err := s.Read(newID); err != nil {
		t.Fatalf("fresh document removed: %v", err)
	}
}
