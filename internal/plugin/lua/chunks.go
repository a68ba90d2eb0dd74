package lua

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// ChunkCache holds compiled scripts by absolute path. It is safe for
// concurrent use; the watcher invalidates entries from its own goroutine.
type ChunkCache struct {
	mu     sync.Mutex
	protos map[string]*lua.FunctionProto
	// gens counts invalidations per path. A compile that started before an
	// invalidation is returned to its caller but not stored.
	gens    map[string]uint64
	compile func(path string) (*lua.FunctionProto, error)

	hits   uint64
	misses uint64
}

// NewChunkCache creates an empty cache.
func NewChunkCache() *ChunkCache {
	return &ChunkCache{
		protos:  make(map[string]*lua.FunctionProto),
		gens:    make(map[string]uint64),
		compile: compileFile,
	}
}

// Get returns the compiled chunk for path, compiling it on a miss.
func (c *ChunkCache) Get(path string) (*lua.FunctionProto, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if proto, ok := c.protos[path]; ok {
		c.hits++
		c.mu.Unlock()
		return proto, nil
	}
	c.misses++
	gen := c.gens[path]
	c.mu.Unlock()

	proto, err := c.compile(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gens[path] == gen {
		c.protos[path] = proto
	}
	c.mu.Unlock()
	return proto, nil
}

// Invalidate drops path and reports whether it was cached.
func (c *ChunkCache) Invalidate(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.protos[path]
	delete(c.protos, path)
	c.gens[path]++
	return ok
}

// Len returns the number of cached chunks.
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.protos)
}

// Stats returns hit and miss counts.
func (c *ChunkCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// compileFile parses and compiles one script.
func compileFile(path string) (*lua.FunctionProto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunk, err := parse.Parse(bufio.NewReader(f), path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	return proto, nil
}
