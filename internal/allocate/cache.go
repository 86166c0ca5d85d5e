package allocate

import (
	"sync"
	"time"

	"github.com/christopherklint97/allocr/internal/staffing"
)

type cachedPosition struct {
	position  staffing.Position
	fetchedAt time.Time
}

// PositionCache keeps fetched positions for a TTL. A zero TTL disables it.
type PositionCache struct {
	mu        sync.RWMutex
	positions map[int64]cachedPosition
	ttl       time.Duration
	now       func() time.Time
}

func NewPositionCache(ttl time.Duration) *PositionCache {
	return &PositionCache{
		positions: make(map[int64]cachedPosition),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (c *PositionCache) Get(id int64) (*staffing.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.positions[id]
	if !ok || c.now().Sub(entry.fetchedAt) > c.ttl {
		return nil, false
	}

	p := entry.position
	p.Skills = append([]string(nil), entry.position.Skills...)
	if p.EndDate != nil {
		end := *p.EndDate
		p.EndDate = &end
	}
	return &p, true
}

func (c *PositionCache) Set(p staffing.Position) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p.Skills = append([]string(nil), p.Skills...)
	c.positions[p.ID] = cachedPosition{position: p, fetchedAt: c.now()}
}

func (c *PositionCache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.positions, id)
}
