package basestore

import "container/list"

// lruCapacity is the hot in-memory window size per §4.3: "an in-memory LRU
// of the 100 most-recently used (path -> content) entries".
const lruCapacity = 100

type lruEntry struct {
	path    string
	content string
}

// lru is a textbook container/list + map LRU cache. No third-party LRU
// package appears anywhere in the retrieval pack, so this stays
// hand-written rather than reaching for an ecosystem dependency that was
// never demonstrated.
type lru struct {
	capacity int
	ll       *list.List
	index    map[string]*list.Element
}

func newLRU(capacity int) *lru {
	return &lru{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *lru) get(path string) (string, bool) {
	el, ok := c.index[path]
	if !ok {
		return "", false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).content, true
}

func (c *lru) add(path, content string) {
	if el, ok := c.index[path]; ok {
		el.Value.(*lruEntry).content = content
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&lruEntry{path: path, content: content})
	c.index[path] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*lruEntry).path)
	}
}

func (c *lru) remove(path string) {
	if el, ok := c.index[path]; ok {
		c.ll.Remove(el)
		delete(c.index, path)
	}
}

func (c *lru) clear() {
	c.ll.Init()
	c.index = make(map[string]*list.Element)
}
