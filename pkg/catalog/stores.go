package catalog

import (
	"context"
	"strings"

	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
)

// NewStore is the store creation request.
type NewStore struct {
	Name         string `json:"name" validate:"required"`
	Location     any    `json:"location" validate:"required"`
	Products     []any  `json:"products" validate:"required"`
	StoreManager Ref    `json:"storeManager" validate:"required"`
	Employees    []Ref  `json:"employees,omitempty" validate:"omitempty,dive"`
	Rating       any    `json:"rating,omitempty"`
}

var storePatch = patchSpec{
	FieldName:      stringRule("min=1"),
	"location":     nil,
	"products":     listRule(),
	"storeManager": objectRule(),
	"employees":    listRule(),
}

var storeIndexed = []string{FieldName}

// CreateStore creates a store with zeroed stock and sales totals. Store names
// are unique.
func (c *Catalog) CreateStore(ctx context.Context, in NewStore) (document.Record, error) {
	const op = "create store"
	if err := Validate(op, in); err != nil {
		return document.Record{}, err
	}
	taken, err := c.exists(ctx, document.Stores, document.Equal(FieldName, in.Name))
	if err != nil {
		return document.Record{}, err
	}
	if taken {
		return document.Record{}, document.Errorf(document.Conflict, op, "store %q already exists", in.Name)
	}

	employees := make([]any, len(in.Employees))
	for i, e := range in.Employees {
		employees[i] = e.fields()
	}
	fields := document.Fields{
		FieldName:      in.Name,
		"code":         strings.ToUpper(in.Name),
		"products":     in.Products,
		"location":     in.Location,
		"rating":       in.Rating,
		"storeManager": in.StoreManager.fields(),
		"employees":    employees,
		"inStock":      0,
		"stock":        []any{},
		"keywords":     keywordsOf(in.Name),
		FieldStatus:    StatusActive,
		"totalRefunds": 0,
		"totalSales":   0,
		"onDuty":       false,
		FieldCreatedAt: c.now(),
	}
	id, err := c.store.Create(ctx, document.Stores, fields)
	if err != nil {
		return document.Record{}, err
	}
	c.log.WithContext(ctx).Info("store created", "store_id", id)
	return document.Record{ID: id, Fields: fields}, nil
}

// ListStores pages stores by name.
func (c *Catalog) ListStores(ctx context.Context, opts ListOptions) (pagination.Page, error) {
	return c.list(ctx, document.Stores, nil, opts)
}

// UpdateStore merges the whitelisted fields of body into store id.
func (c *Catalog) UpdateStore(ctx context.Context, id string, body map[string]any) (document.Record, error) {
	const op = "update store"
	patch, err := applyPatch(op, body, storePatch)
	if err != nil {
		return document.Record{}, err
	}
	current, err := c.store.Get(ctx, document.Stores, id)
	if err != nil {
		return document.Record{}, err
	}
	if name, ok := patch[FieldName].(string); ok {
		patch["code"] = strings.ToUpper(name)
	}
	refreshKeywords(patch, current.Fields, storeIndexed)
	patch[FieldLastUpdated] = c.now()

	if err := c.store.Merge(ctx, document.Stores, id, patch); err != nil {
		return document.Record{}, err
	}
	return mergedRecord(current, patch), nil
}
