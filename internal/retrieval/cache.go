package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lamim/quizforge/pkg/models"
)

// Cached memoizes another Retriever per group and category
type Cached struct {
	next  Retriever
	cache *cache.Cache
}

// NewCached wraps next with an in-memory cache. Entries expire after ttl.
func NewCached(next Retriever, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{
		next:  next,
		cache: cache.New(ttl, 10*time.Minute),
	}
}

// Retrieve returns the cached content or asks the wrapped retriever.
// Errors are not cached.
func (c *Cached) Retrieve(ctx context.Context, group models.ScopeGroup, category models.Category) (string, error) {
	key := fmt.Sprintf("%s|%d", category, group.ID)
	if x, found := c.cache.Get(key); found {
		return x.(string), nil
	}

	content, err := c.next.Retrieve(ctx, group, category)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, content, cache.DefaultExpiration)
	return content, nil
}

// Flush drops all cached content
func (c *Cached) Flush() {
	c.cache.Flush()
}
