package offload

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jzx17/pipeoffload/pkg/pipeinfo"
	"github.com/jzx17/pipeoffload/pkg/types"
)

// Outcome is the compilation state of a pipeline shape
type Outcome int

const (
	// Unattempted means no compilation has been tried for the shape
	Unattempted Outcome = iota
	// Compiled means a kernel handle is available for reuse
	Compiled
	// FailedPermanently means compilation was tried and must not be retried
	FailedPermanently
)

func (o Outcome) String() string {
	switch o {
	case Unattempted:
		return "unattempted"
	case Compiled:
		return "compiled"
	case FailedPermanently:
		return "failed"
	default:
		return "unknown"
	}
}

// CacheEntry is one cache record
type CacheEntry struct {
	Key        string
	Descriptor *pipeinfo.Descriptor
	Outcome    Outcome
	Handle     types.KernelHandle
}

// Cache maps pipeline shapes to compilation outcomes.
// Handles are owned by the compiler and never disposed by the cache.
type Cache struct {
	mu      sync.Mutex
	records map[string]CacheEntry
	bounded *lru.Cache[string, CacheEntry]
}

// NewCache creates a cache. A positive capacity bounds it with least-recently-used eviction;
// an evicted shape returns to Unattempted.
func NewCache(capacity int) *Cache {
	c := &Cache{}
	if capacity > 0 {
		// lru.New only fails for a non-positive size
		c.bounded, _ = lru.New[string, CacheEntry](capacity)
	} else {
		c.records = make(map[string]CacheEntry)
	}
	return c
}

// Lookup returns the outcome recorded for the shape of d and its handle when compiled
func (c *Cache) Lookup(d *pipeinfo.Descriptor) (Outcome, types.KernelHandle) {
	rec, ok := c.get(d.Key())
	if !ok {
		return Unattempted, nil
	}
	return rec.Outcome, rec.Handle
}

// Install records a compiled kernel for the shape of d. A nil handle marks the shape failed.
func (c *Cache) Install(d *pipeinfo.Descriptor, h types.KernelHandle) {
	if h == nil {
		c.MarkFailed(d)
		return
	}
	c.put(CacheEntry{Key: d.Key(), Descriptor: d, Outcome: Compiled, Handle: h})
}

// MarkFailed records that the shape of d cannot be compiled
func (c *Cache) MarkFailed(d *pipeinfo.Descriptor) {
	c.put(CacheEntry{Key: d.Key(), Descriptor: d, Outcome: FailedPermanently})
}

// Len returns the number of shapes with a recorded outcome
func (c *Cache) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Snapshot returns all records ordered by key
func (c *Cache) Snapshot() []CacheEntry {
	var out []CacheEntry
	if c.bounded != nil {
		for _, k := range c.bounded.Keys() {
			if rec, ok := c.bounded.Peek(k); ok {
				out = append(out, rec)
			}
		}
	} else {
		c.mu.Lock()
		out = make([]CacheEntry, 0, len(c.records))
		for _, rec := range c.records {
			out = append(out, rec)
		}
		c.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (c *Cache) get(key string) (CacheEntry, bool) {
	if c.bounded != nil {
		return c.bounded.Get(key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key]
	return rec, ok
}

func (c *Cache) put(rec CacheEntry) {
	if c.bounded != nil {
		c.bounded.Add(rec.Key, rec)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.Key] = rec
}
