package template

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/flowd/internal/db"
)

const (
	popularCacheTTL = 30 * time.Second
	popularLimit    = 20
)

// popularCache provides a TTL-based cache for the popular-templates list,
// with singleflight coalescing to prevent redundant concurrent loads.
type popularCache struct {
	mu        sync.RWMutex
	templates []*db.Template
	loadedAt  time.Time
	ttl       time.Duration
	group     singleflight.Group
	db        *db.DB
}

func newPopularCache(database *db.DB, ttl time.Duration) *popularCache {
	return &popularCache{db: database, ttl: ttl}
}

// Templates returns the cached list or loads it. Concurrent callers share
// a single database query via singleflight.
func (c *popularCache) Templates() ([]*db.Template, error) {
	c.mu.RLock()
	if c.templates != nil && time.Since(c.loadedAt) < c.ttl {
		templates := c.templates
		c.mu.RUnlock()
		return templates, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do("load", func() (any, error) {
		// Double-check after acquiring the singleflight slot.
		c.mu.RLock()
		if c.templates != nil && time.Since(c.loadedAt) < c.ttl {
			templates := c.templates
			c.mu.RUnlock()
			return templates, nil
		}
		c.mu.RUnlock()

		templates, err := c.db.ListTemplates("", "")
		if err != nil {
			return nil, err
		}
		sort.SliceStable(templates, func(i, j int) bool {
			if templates[i].Stars != templates[j].Stars {
				return templates[i].Stars > templates[j].Stars
			}
			return templates[i].Views > templates[j].Views
		})
		if len(templates) > popularLimit {
			templates = templates[:popularLimit]
		}

		c.mu.Lock()
		c.templates = templates
		c.loadedAt = time.Now()
		c.mu.Unlock()

		return templates, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*db.Template), nil
}

// Invalidate clears the cache, forcing the next Templates() call to reload.
func (c *popularCache) Invalidate() {
	c.mu.Lock()
	c.templates = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}
