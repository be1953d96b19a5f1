package chat

// DefaultMaxElements bounds the cache size when no explicit limit is given.
const DefaultMaxElements = 500

// Cache is an ordered, deduplicated store of conversation elements.
//
// Ordering is append order; history pages are explicitly prepended. A seen-id
// set backs deduplication, and trimming removes entries from the ordered
// slice and the set together so a trimmed id can be admitted again.
//
// Cache is not goroutine-safe; it is owned by the client's serialized
// dispatch queue.
type Cache struct {
	max      int
	elements []Element
	seen     map[string]struct{}
}

// NewCache creates a Cache bounded to max elements. max <= 0 selects
// DefaultMaxElements.
func NewCache(max int) *Cache {
	if max <= 0 {
		max = DefaultMaxElements
	}
	return &Cache{
		max:  max,
		seen: make(map[string]struct{}),
	}
}

// Add appends one element. It reports false without mutating when the
// element's id is already present.
func (c *Cache) Add(el Element) bool {
	if _, dup := c.seen[el.ID]; dup {
		return false
	}
	c.seen[el.ID] = struct{}{}
	c.elements = append(c.elements, el)
	c.trim()
	return true
}

// AddBatch appends elements in order, skipping duplicates. It returns the
// number admitted.
func (c *Cache) AddBatch(els []Element) int {
	added := 0
	for _, el := range els {
		if _, dup := c.seen[el.ID]; dup {
			continue
		}
		c.seen[el.ID] = struct{}{}
		c.elements = append(c.elements, el)
		added++
	}
	c.trim()
	return added
}

// Prepend inserts elements at the front of the ordered sequence, preserving
// their relative order and skipping ids already present anywhere in the
// cache. Used for older history pages.
func (c *Cache) Prepend(els []Element) int {
	fresh := make([]Element, 0, len(els))
	for _, el := range els {
		if _, dup := c.seen[el.ID]; dup {
			continue
		}
		c.seen[el.ID] = struct{}{}
		fresh = append(fresh, el)
	}
	if len(fresh) == 0 {
		return 0
	}
	c.elements = append(fresh, c.elements...)
	c.trim()
	return len(fresh)
}

// All returns the ordered elements. The returned slice is a copy.
func (c *Cache) All() []Element {
	out := make([]Element, len(c.elements))
	copy(out, c.elements)
	return out
}

// Len returns the number of stored elements.
func (c *Cache) Len() int { return len(c.elements) }

// Contains reports whether an id has been admitted and not trimmed.
func (c *Cache) Contains(id string) bool {
	_, ok := c.seen[id]
	return ok
}

// Clear drops all elements and the seen-id set.
func (c *Cache) Clear() {
	c.elements = nil
	c.seen = make(map[string]struct{})
}

// RemoveIf deletes every element matching the predicate, keeping the seen-id
// set consistent. It returns the number removed.
func (c *Cache) RemoveIf(match func(Element) bool) int {
	kept := c.elements[:0]
	removed := 0
	for _, el := range c.elements {
		if match(el) {
			delete(c.seen, el.ID)
			removed++
			continue
		}
		kept = append(kept, el)
	}
	c.elements = kept
	return removed
}

// trim drops the oldest elements beyond the configured bound, removing their
// ids from the seen set in the same pass.
func (c *Cache) trim() {
	excess := len(c.elements) - c.max
	if excess <= 0 {
		return
	}
	for _, el := range c.elements[:excess] {
		delete(c.seen, el.ID)
	}
	c.elements = append([]Element(nil), c.elements[excess:]...)
}
