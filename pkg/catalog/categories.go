package catalog

import (
	"context"
	"strings"

	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
)

// NewCategory creates a category, subcategory or subcategory item. Sub kinds
// need the id of their parent.
type NewCategory struct {
	Name   string `json:"name" validate:"required"`
	Parent string `json:"parent,omitempty"`
}

// CreateCategory creates a category of the kind named by kindKey. Names are
// unique within a kind and the parent of a sub kind must exist.
func (c *Catalog) CreateCategory(ctx context.Context, kindKey string, in NewCategory) (document.Record, error) {
	const op = "create category"
	kind, err := document.ParseCategoryKind(kindKey)
	if err != nil {
		return document.Record{}, err
	}
	if err := Validate(op, in); err != nil {
		return document.Record{}, err
	}
	parent := strings.TrimSpace(in.Parent)
	if parentCol, ok := kind.Parent(); ok {
		if parent == "" {
			return document.Record{}, &ValidationError{Op: op, Fields: map[string]string{"parent": "required"}}
		}
		if _, err := c.store.Get(ctx, parentCol, parent); err != nil {
			return document.Record{}, err
		}
	}

	col := kind.Collection()
	taken, err := c.exists(ctx, col, document.Equal(FieldName, in.Name))
	if err != nil {
		return document.Record{}, err
	}
	if taken {
		return document.Record{}, document.Errorf(document.Conflict, op, "%s %q already exists", col, in.Name)
	}

	fields := document.Fields{
		FieldName:      in.Name,
		"keywords":     keywordsOf(in.Name),
		FieldCreatedAt: c.now(),
	}
	if parent != "" {
		fields[FieldParent] = parent
	}
	id, err := c.store.Create(ctx, col, fields)
	if err != nil {
		return document.Record{}, err
	}
	return document.Record{ID: id, Fields: fields}, nil
}

// ListCategories pages the categories of kindKey by name, restricted to the
// children of parent when one is given for a sub kind.
func (c *Catalog) ListCategories(ctx context.Context, kindKey, parent string, opts ListOptions) (pagination.Page, error) {
	kind, err := document.ParseCategoryKind(kindKey)
	if err != nil {
		return pagination.Page{}, err
	}
	var where []document.Condition
	if _, ok := kind.Parent(); ok && strings.TrimSpace(parent) != "" {
		where = append(where, document.Equal(FieldParent, strings.TrimSpace(parent)))
	}
	return c.list(ctx, kind.Collection(), where, opts)
}

// DeleteCategory hard deletes category id of kindKey.
func (c *Catalog) DeleteCategory(ctx context.Context, kindKey, id string) error {
	kind, err := document.ParseCategoryKind(kindKey)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, kind.Collection(), id)
}
