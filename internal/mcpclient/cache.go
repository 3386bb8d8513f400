package mcpclient

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ServerSpec identifies an MCP server process, matching a workflow
// document's `mcp:` block (internal/workflow.MCPServerSpec).
type ServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     []string
}

// Dialer constructs a Caller for a ServerSpec. Production code points this
// at NewStdioCaller; tests substitute a fake.
type Dialer func(ctx context.Context, spec ServerSpec) (Caller, error)

// Cache get-or-constructs one long-lived Caller per MCP server name, so an
// invoke/agent task reuses the same child process across workflow runs
// instead of relaunching it per call.
type Cache struct {
	dial   Dialer
	lru    *lru.Cache[string, Caller]
	mu     sync.Mutex
	inFlig map[string]chan struct{}
}

// NewCache returns a Cache holding up to size live MCP server connections,
// evicting (and closing) the least recently used beyond that.
func NewCache(size int, dial Dialer) (*Cache, error) {
	c := &Cache{dial: dial, inFlig: make(map[string]chan struct{})}
	evict, err := lru.NewWithEvict(size, func(_ string, caller Caller) {
		_ = caller.Close()
	})
	if err != nil {
		return nil, err
	}
	c.lru = evict
	return c, nil
}

// Get returns the cached Caller for spec.Name, dialing one if absent.
func (c *Cache) Get(ctx context.Context, spec ServerSpec) (Caller, error) {
	for {
		c.mu.Lock()
		if caller, ok := c.lru.Get(spec.Name); ok {
			c.mu.Unlock()
			return caller, nil
		}
		if wait, building := c.inFlig[spec.Name]; building {
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		wait := make(chan struct{})
		c.inFlig[spec.Name] = wait
		c.mu.Unlock()

		caller, err := c.dial(ctx, spec)

		c.mu.Lock()
		delete(c.inFlig, spec.Name)
		if err == nil {
			c.lru.Add(spec.Name, caller)
		}
		c.mu.Unlock()
		close(wait)

		return caller, err
	}
}

// Close closes every cached Caller.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if caller, ok := c.lru.Peek(key); ok {
			_ = caller.Close()
		}
	}
	c.lru.Purge()
	return nil
}
