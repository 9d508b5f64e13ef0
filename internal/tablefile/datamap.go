package tablefile

import (
	"container/list"
	"sync"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// defaultCacheBudget is the DataMap cache's total byte budget (spec.md
// §4.4: "an LRU bounded by a 1 GiB total budget").
const defaultCacheBudget = 1 << 30

// DataMap is a reference-counted window over a table file, sized to
// one block. Base is only valid while the caller holds a reference
// (i.e. between GetDataMap and Release).
type DataMap struct {
	Base []byte    // window contents
	Off  types.Off // file offset of Base[0]

	cache   *dataMapCache
	elem    *list.Element
	refs    int
}

// Release decrements the window's reference count; at zero it becomes
// eligible for LRU eviction (not necessarily evicted immediately).
func (m *DataMap) Release() {
	m.cache.release(m)
}

// dataMapCache owns the set of live windows for one TableFile.
type dataMapCache struct {
	mu     sync.Mutex
	tf     *TableFile
	budget int
	used   int
	lru    *list.List // most-recently-used at front
	byOff  map[types.Off]*DataMap
}

func newDataMapCache(tf *TableFile, budget int) *dataMapCache {
	return &dataMapCache{tf: tf, budget: budget, lru: list.New(), byOff: make(map[types.Off]*DataMap)}
}

// get returns the window covering off, mapping a new one on a miss and
// evicting unreferenced windows if the cache is over budget.
func (c *dataMapCache) get(off types.Off) (*DataMap, error) {
	bs := types.Off(c.tf.hdr.BlockSize)
	winOff := (off / bs) * bs

	c.mu.Lock()
	if m, ok := c.byOff[winOff]; ok {
		m.refs++
		c.lru.MoveToFront(m.elem)
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	buf, err := c.tf.ReadAt(winOff, int(bs))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.byOff[winOff]; ok {
		// Lost a race with another goroutine mapping the same window.
		m.refs++
		c.lru.MoveToFront(m.elem)
		return m, nil
	}
	m := &DataMap{Base: buf, Off: winOff, cache: c, refs: 1}
	m.elem = c.lru.PushFront(m)
	c.byOff[winOff] = m
	c.used += len(buf)
	c.evictLocked()
	return m, nil
}

func (c *dataMapCache) release(m *DataMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.refs--
	c.evictLocked()
}

// evictLocked drops least-recently-used, unreferenced windows until
// the cache is back within budget. Caller holds c.mu.
func (c *dataMapCache) evictLocked() {
	for c.used > c.budget {
		e := c.lru.Back()
		evicted := false
		for e != nil {
			m := e.Value.(*DataMap)
			if m.refs == 0 {
				prev := e.Prev()
				c.lru.Remove(e)
				delete(c.byOff, m.Off)
				c.used -= len(m.Base)
				evicted = true
				e = prev
				break
			}
			e = e.Prev()
		}
		if !evicted {
			return // everything still referenced; over budget until released
		}
	}
}

func (c *dataMapCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Init()
	c.byOff = make(map[types.Off]*DataMap)
	c.used = 0
}

// errWindowGone is returned if a caller tries to use a DataMap after
// its cache has been closed; reserved for future use by callers that
// hold a window across a Close race.
var errWindowGone = dberr.New(dberr.ErrMapFailure)
