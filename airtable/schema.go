package airtable

import (
	"context"
	"sync"
	"time"

	"github.com/mbolis/airform-sync/model"
)

// SchemaProvider returns the field catalog of an external table.
type SchemaProvider interface {
	Fields(ctx context.Context, baseID, tableID string) (model.Catalog, error)
}

type cachedCatalog struct {
	catalog model.Catalog
	expires time.Time
}

// SchemaCache reuses the catalogs returned by a provider for ttl. Errors are
// not cached.
type SchemaCache struct {
	provider SchemaProvider
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]cachedCatalog
}

func NewSchemaCache(provider SchemaProvider, ttl time.Duration) *SchemaCache {
	return &SchemaCache{
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		entries:  map[string]cachedCatalog{},
	}
}

func (c *SchemaCache) Fields(ctx context.Context, baseID, tableID string) (model.Catalog, error) {
	key := baseID + "/" + tableID

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.catalog, nil
	}

	catalog, err := c.provider.Fields(ctx, baseID, tableID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cachedCatalog{catalog, c.now().Add(c.ttl)}
	c.mu.Unlock()
	return catalog, nil
}

// Invalidate drops the cached catalog of a table.
func (c *SchemaCache) Invalidate(baseID, tableID string) {
	c.mu.Lock()
	delete(c.entries, baseID+"/"+tableID)
	c.mu.Unlock()
}
