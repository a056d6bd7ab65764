package engine

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/synth"
	"github.com/flemzord/toolbench/internal/tool"
)

const defaultUnitCacheSize = 64

// unitCache keeps the synthesized registries of recently used sessions.
// Evicted entries are rebuilt from the descriptors stored with the session.
type unitCache struct {
	mu    sync.Mutex
	size  int
	order *list.List
	items map[string]*list.Element
}

type unitEntry struct {
	id  string
	reg *tool.Registry
}

func newUnitCache(size int) *unitCache {
	if size <= 0 {
		size = defaultUnitCacheSize
	}
	return &unitCache{
		size:  size,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *unitCache) get(id string) (*tool.Registry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*unitEntry).reg, true
}

func (c *unitCache) put(id string, reg *tool.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		el.Value.(*unitEntry).reg = reg
		c.order.MoveToFront(el)
		return
	}
	c.items[id] = c.order.PushFront(&unitEntry{id: id, reg: reg})
	for c.order.Len() > c.size {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(*unitEntry).id)
	}
}

func (c *unitCache) drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
	}
}

func (c *unitCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// buildRegistry returns the callable registry for a session: the compiled-in
// tool set for static sessions, otherwise a unit synthesized from the stored
// descriptors.
func buildRegistry(sess *session.Session) (*tool.Registry, error) {
	if sess.Static {
		set, ok := tool.LookupSet(sess.Environment, sess.Interface)
		if !ok {
			return nil, fmt.Errorf("%w: no tool set for %s/%s", tool.ErrToolNotFound, sess.Environment, sess.Interface)
		}
		return tool.NewRegistryFromSet(set)
	}
	unit, err := synth.Synthesize(sess.Tools)
	if err != nil {
		return nil, err
	}
	return unit.Registry, nil
}

// retain drops every entry whose id is not in keep.
func (c *unitCache) retain(keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, el := range c.items {
		if !keep[id] {
			c.order.Remove(el)
			delete(c.items, id)
		}
	}
}
