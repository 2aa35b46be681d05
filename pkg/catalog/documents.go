package catalog

import (
	"context"

	"github.com/nimburion/storefront/pkg/repository/document"
)

// Get fetches one record of the collection named by collectionName.
func (c *Catalog) Get(ctx context.Context, collectionName, id string) (document.Record, error) {
	col, err := document.ParseCollection(collectionName)
	if err != nil {
		return document.Record{}, err
	}
	r, err := c.store.Get(ctx, col, id)
	if err != nil {
		return document.Record{}, err
	}
	return publicRecord(col, r), nil
}

// Search returns records of collectionName whose keyword set contains term.
// A limit <= 0 selects the configured search limit.
func (c *Catalog) Search(ctx context.Context, collectionName, term string, limit int) ([]document.Record, error) {
	col, err := document.ParseCollection(collectionName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.cfg.SearchLimit
	}
	records, err := c.index.Search(ctx, col, term, limit)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i] = publicRecord(col, records[i])
	}
	return records, nil
}
