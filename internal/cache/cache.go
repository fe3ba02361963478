// Package cache provides SHA256-hash based incremental-recompilation
// tracking: a compile unit whose content hash hasn't changed since the last
// successful compile is skipped.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cache stores the last-seen content hash of every compile unit, keyed by
// an opaque unit name (not necessarily a filesystem path).
type Cache struct {
	mu     sync.Mutex
	Hashes map[string]string `json:"hashes"`
	path   string
}

// New creates a new cache
func New(cachePath string) *Cache {
	return &Cache{
		Hashes: make(map[string]string),
		path:   cachePath,
	}
}

// Load loads the cache from disk
func Load(cachePath string) (*Cache, error) {
	c := New(cachePath)

	data, err := os.ReadFile(cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil // Empty cache is fine
		}
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	if err := json.Unmarshal(data, &c.Hashes); err != nil {
		return nil, fmt.Errorf("failed to parse cache: %w", err)
	}

	return c, nil
}

// Save saves the cache to disk
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(c.Hashes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	return nil
}

// NeedsRecompile reports whether content's hash differs from the one
// recorded for name, and records content's hash for next time. Safe for
// concurrent use across the goroutines a Compiler.CompileAll batch spawns.
func (c *Cache) NeedsRecompile(name string, content []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := sha256.Sum256(content)
	currentHash := hex.EncodeToString(sum[:])

	cached, exists := c.Hashes[name]
	if !exists || cached != currentHash {
		c.Hashes[name] = currentHash
		return true
	}
	return false
}

// Forget removes name from the cache, forcing its next NeedsRecompile call
// to report true regardless of content.
func (c *Cache) Forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Hashes, name)
}
