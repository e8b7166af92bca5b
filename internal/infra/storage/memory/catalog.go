package memory

import (
	"context"
	"strings"
	"sync"
)

// ListingCatalog is a local projection of listing ids known to exist.
type ListingCatalog struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewListingCatalog(ids ...string) *ListingCatalog {
	c := &ListingCatalog{ids: make(map[string]struct{})}
	for _, id := range ids {
		c.Add(id)
	}
	return c
}

func (c *ListingCatalog) ListingExists(ctx context.Context, listingID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[strings.TrimSpace(listingID)]
	return ok, nil
}

func (c *ListingCatalog) Add(listingID string) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[listingID] = struct{}{}
}

func (c *ListingCatalog) Remove(listingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, strings.TrimSpace(listingID))
}

func (c *ListingCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}
