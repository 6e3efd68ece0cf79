// Package symbolcache implements the content-addressed, schema-versioned
// on-disk cache of per-file symbol trees (C3). Loss of the cache
// directory must never change observable behavior: every miss falls
// back cleanly to a live LS request by the caller.
package symbolcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lexcodex/lspsymbols/internal/lsproc"
	"github.com/lexcodex/lspsymbols/internal/symtree"
)

func hashKey(filePath, contentHash, lsID string) string {
	sum := sha256.Sum256([]byte(filePath + "\x00" + contentHash + "\x00" + lsID))
	return hex.EncodeToString(sum[:])
}

// SchemaVersion is bumped whenever the on-disk record layout or the
// content-hash algorithm changes. Records written under an older or
// newer schema are treated as a miss, never as an error.
const SchemaVersion = 1

// record is the self-describing on-disk envelope for one cache entry.
type record struct {
	SchemaVersion int           `json:"schemaVersion"`
	FilePath      string        `json:"filePath"`
	ContentHash   string        `json:"contentHash"`
	LSID          string        `json:"lsId"`
	ProducedAt    time.Time     `json:"producedAt"`
	Symbols       *symtree.Tree `json:"symbols"`
}

// Cache is a directory of one file per cache key. All writes are atomic
// (temp file + rename); concurrent puts for the same key are safe and the
// last writer wins. Cache satisfies lsproc.SymbolCache.
type Cache struct {
	dir    string
	logger *log.Logger

	mu sync.Mutex
}

var _ lsproc.SymbolCache = (*Cache)(nil)

// New returns a Cache rooted at dir, creating it if necessary.
func New(dir string, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("symbolcache: create cache dir: %w", err)
	}
	return &Cache{dir: dir, logger: logger}, nil
}

func keyFileName(key lsproc.CacheKey) string {
	// The content hash alone is not unique across files with identical
	// bytes, so the file name folds in filePath and lsId as well.
	sum := hashKey(key.FilePath, key.ContentHash, key.LSID)
	return sum + ".symbols"
}

func (c *Cache) path(key lsproc.CacheKey) string {
	return filepath.Join(c.dir, keyFileName(key))
}

// Get returns the cached tree for key, or (nil, false) on a miss — either
// because no record exists or because its schema version does not match
// the current one. Read errors are logged and downgraded to a miss per
// the error-handling policy: cache failures never propagate.
func (c *Cache) Get(key lsproc.CacheKey) (*symtree.Tree, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Printf("symbolcache: read %s: %v", key.FilePath, err)
		}
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Printf("symbolcache: decode %s: %v", key.FilePath, err)
		return nil, false
	}
	if rec.SchemaVersion != SchemaVersion {
		return nil, false
	}
	if rec.FilePath != key.FilePath || rec.ContentHash != key.ContentHash || rec.LSID != key.LSID {
		return nil, false
	}
	return rec.Symbols, true
}

// Put writes tree under key via write-to-temp-then-rename, so a reader
// never observes a partially written record.
func (c *Cache) Put(key lsproc.CacheKey, tree *symtree.Tree) {
	rec := record{
		SchemaVersion: SchemaVersion,
		FilePath:      key.FilePath,
		ContentHash:   key.ContentHash,
		LSID:          key.LSID,
		ProducedAt:    time.Now(),
		Symbols:       tree,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Printf("symbolcache: encode %s: %v", key.FilePath, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.logger.Printf("symbolcache: write %s: %v", key.FilePath, err)
		return
	}
	if err := os.Rename(tmp, target); err != nil {
		c.logger.Printf("symbolcache: rename %s: %v", key.FilePath, err)
		_ = os.Remove(tmp)
	}
}

// Evict removes every record for filePath, regardless of content hash or
// LS id, so a stale entry cannot survive a file delete or rename.
func (c *Cache) Evict(filePath string) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("symbolcache: list cache dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(c.dir, entry.Name())
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.FilePath == filePath {
			_ = os.Remove(full)
		}
	}
	return nil
}
