package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/pkg/fsutil"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

type cachedResult struct {
	data     json.RawMessage
	cachedAt time.Time
}

// OperationResultCache keeps operation results in memory and on disk. The memory entry is
// always written before the file, so a reader that finds the file never sees a memory
// entry older than it.
type OperationResultCache struct {
	log *logger.Logger
	dir string

	mu  sync.RWMutex
	mem map[uuid.UUID]cachedResult
	now func() time.Time
}

// NewOperationResultCache stores files under dir. An empty dir keeps results in memory only.
func NewOperationResultCache(dir string, baseLog *logger.Logger) (*OperationResultCache, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create operation cache dir: %w", err)
		}
	}
	return &OperationResultCache{
		log: baseLog.With("service", "OperationResultCache"),
		dir: dir,
		mem: map[uuid.UUID]cachedResult{},
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *OperationResultCache) path(id uuid.UUID) string {
	return filepath.Join(c.dir, id.String()+".json")
}

// Put caches payload for id. Memory first, then file.
func (c *OperationResultCache) Put(id uuid.UUID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal operation result: %w", err)
	}
	return c.PutRaw(id, raw)
}

// PutRaw stores an already encoded payload.
func (c *OperationResultCache) PutRaw(id uuid.UUID, raw json.RawMessage) error {
	c.mu.Lock()
	c.mem[id] = cachedResult{data: raw, cachedAt: c.now()}
	c.mu.Unlock()
	if c.dir == "" {
		return nil
	}
	return fsutil.WriteFileAtomic(c.path(id), raw)
}

// Get returns the cached payload. A memory miss falls back to the file and repopulates memory.
func (c *OperationResultCache) Get(id uuid.UUID) (json.RawMessage, bool, error) {
	c.mu.RLock()
	entry, ok := c.mem[id]
	c.mu.RUnlock()
	if ok {
		return entry.data, true, nil
	}
	if c.dir == "" {
		return nil, false, nil
	}
	raw, err := os.ReadFile(c.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	if _, ok := c.mem[id]; !ok {
		c.mem[id] = cachedResult{data: raw, cachedAt: c.now()}
	}
	c.mu.Unlock()
	return raw, true, nil
}

// Remove drops both tiers. The file goes first so it is never newer than memory.
func (c *OperationResultCache) Remove(id uuid.UUID) error {
	var err error
	if c.dir != "" {
		if rmErr := os.Remove(c.path(id)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = rmErr
		}
	}
	c.mu.Lock()
	delete(c.mem, id)
	c.mu.Unlock()
	return err
}

// ExpireMemory evicts memory entries cached before cutoff. Files stay until Remove.
func (c *OperationResultCache) ExpireMemory(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, entry := range c.mem {
		if entry.cachedAt.Before(cutoff) {
			delete(c.mem, id)
			n++
		}
	}
	return n
}

// ExpireFiles removes cache files last modified before cutoff and returns how many went.
func (c *OperationResultCache) ExpireFiles(cutoff time.Time) (int, error) {
	if c.dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		id, err := uuid.Parse(e.Name()[:len(e.Name())-len(".json")])
		if err != nil {
			continue
		}
		if err := c.Remove(id); err != nil {
			c.log.Warn("failed to remove cached operation result", "operation_id", id, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
