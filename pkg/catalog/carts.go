package catalog

import (
	"context"

	"github.com/nimburion/storefront/pkg/repository/document"
)

var cartPatch = patchSpec{
	"items":     itemsRule(),
	"offer":     objectRule(),
	"totalCost": numberRule("gte=0"),
	"discount":  numberRule("gte=0"),
}

var savedPatch = patchSpec{
	"items": itemsRule(),
}

// UpdateCart merges items, offer and totals into cart id.
func (c *Catalog) UpdateCart(ctx context.Context, id string, body map[string]any) (document.Record, error) {
	return c.updateList(ctx, "update cart", document.Carts, id, body, cartPatch)
}

// UpdateSaved replaces the items of saved list id.
func (c *Catalog) UpdateSaved(ctx context.Context, id string, body map[string]any) (document.Record, error) {
	return c.updateList(ctx, "update saved", document.Saved, id, body, savedPatch)
}

func (c *Catalog) updateList(ctx context.Context, op string, col document.Collection, id string, body map[string]any, spec patchSpec) (document.Record, error) {
	patch, err := applyPatch(op, body, spec)
	if err != nil {
		return document.Record{}, err
	}
	current, err := c.store.Get(ctx, col, id)
	if err != nil {
		return document.Record{}, err
	}
	patch[FieldLastUpdated] = c.now()
	if err := c.store.Merge(ctx, col, id, patch); err != nil {
		return document.Record{}, err
	}
	return mergedRecord(current, patch), nil
}
