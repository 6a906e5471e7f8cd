package layout

import (
	"cabi/internal/target"
	"cabi/internal/types"
)

type cacheKey struct {
	Type   types.TypeID
	Target target.ID
}

type cache struct {
	byKey map[cacheKey]TypeLayout
}

func newCache() *cache {
	return &cache{byKey: make(map[cacheKey]TypeLayout, 256)}
}

func (c *cache) get(key cacheKey) (TypeLayout, bool) {
	if c == nil {
		return TypeLayout{}, false
	}
	l, ok := c.byKey[key]
	return l, ok
}

func (c *cache) put(key cacheKey, l TypeLayout) {
	if c == nil {
		return
	}
	c.byKey[key] = l
}

func (c *cache) len() int {
	if c == nil {
		return 0
	}
	return len(c.byKey)
}
