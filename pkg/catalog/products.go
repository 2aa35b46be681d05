package catalog

import (
	"context"
	"strings"

	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/variant"
)

// NewProduct describes a product and its variants. Every variant becomes its
// own product record sharing the descriptive fields.
type NewProduct struct {
	Name            string       `json:"name" validate:"required"`
	Manufacturer    string       `json:"manufacturer" validate:"required"`
	Category        string       `json:"category" validate:"required"`
	Description     string       `json:"description" validate:"required"`
	Features        string       `json:"features" validate:"required"`
	OtherNames      any          `json:"otherNames,omitempty"`
	SubCategories   any          `json:"subCategories" validate:"required"`
	SubCategoryItem any          `json:"subCategoryItem" validate:"required"`
	Life            string       `json:"life" validate:"required"`
	Rating          *float64     `json:"rating" validate:"required,gte=0,lte=5"`
	Taxable         *bool        `json:"taxable" validate:"required"`
	Variants        []NewVariant `json:"variants" validate:"required,min=1,dive"`
}

// NewVariant holds the fields that differ between siblings.
type NewVariant struct {
	Images   any      `json:"images,omitempty"`
	Price    *float64 `json:"price" validate:"required,gte=0"`
	Quantity any      `json:"quantity" validate:"required"`
	Stock    string   `json:"stock" validate:"required"`
	Status   string   `json:"status" validate:"required,oneof=AVAILABLE NOTAVAILABLE"`
}

type productCreated struct {
	GroupID      string   `json:"groupId"`
	IDs          []string `json:"ids"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

type variantsLinked struct {
	GroupID string   `json:"groupId"`
	IDs     []string `json:"ids"`
}

var productPatch = patchSpec{
	FieldName:     stringRule("min=1"),
	"images":      nil,
	"price":       numberRule("gte=0"),
	"offer":       objectRule(),
	"quantity":    nil,
	"description": textRule(),
	"features":    textRule(),
	"life":        textRule(),
	"otherNames":  nil,
	"rating":      nil,
	FieldStatus:   oneOfRule(StatusAvailable, StatusNotAvailable),
	"stock":       nil,
	"sales":       numberRule("gte=0"),
}

var productIndexed = []string{FieldName, "manufacturer"}

// CreateProduct creates one linked product record per variant. A product
// with the same name and manufacturer must not exist. Failures after some
// variants were written are reported as a *variant.GroupError.
func (c *Catalog) CreateProduct(ctx context.Context, in NewProduct) (variant.Group, error) {
	const op = "create product"
	if len(in.Variants) == 0 {
		return variant.Group{}, &ValidationError{Op: op, Fields: map[string]string{"variants": "required"}}
	}
	if err := Validate(op, in); err != nil {
		return variant.Group{}, err
	}
	taken, err := c.exists(ctx, document.Products,
		document.Equal(FieldName, in.Name),
		document.Equal("manufacturer", in.Manufacturer),
	)
	if err != nil {
		return variant.Group{}, err
	}
	if taken {
		return variant.Group{}, document.Errorf(document.Conflict, op, "product %q by %q already exists", in.Name, in.Manufacturer)
	}

	shared := document.Fields{
		FieldName:         in.Name,
		"code":            strings.ToUpper(in.Name),
		"manufacturer":    in.Manufacturer,
		"category":        in.Category,
		"description":     sanitizeText(in.Description),
		"features":        sanitizeText(in.Features),
		"otherNames":      in.OtherNames,
		"subCategories":   in.SubCategories,
		"subCategoryItem": in.SubCategoryItem,
		"life":            sanitizeText(in.Life),
		"rating":          *in.Rating,
		"taxable":         *in.Taxable,
		"sales":           0,
		"keywords":        keywordsOf(in.Name, in.Manufacturer),
		FieldCreatedAt:    c.now(),
	}
	specs := make([]variant.Spec, len(in.Variants))
	for i, v := range in.Variants {
		specs[i] = variant.Spec{Fields: document.Fields{
			"images":    v.Images,
			"price":     *v.Price,
			"quantity":  v.Quantity,
			"stock":     v.Stock,
			FieldStatus: v.Status,
		}}
	}

	group, err := c.linker.CreateGroup(ctx, shared, specs)
	if err != nil {
		return group, err
	}
	c.log.WithContext(ctx).Info("product created", "group_id", group.ID, "variants", len(group.IDs))
	c.emit(ctx, eventbus.TopicProductCreated, document.Products, group.ID, productCreated{
		GroupID:      group.ID,
		IDs:          group.IDs,
		Name:         in.Name,
		Manufacturer: in.Manufacturer,
	})
	c.emit(ctx, eventbus.TopicVariantsLinked, document.Products, group.ID, variantsLinked{GroupID: group.ID, IDs: group.IDs})
	return group, nil
}

// ListProducts pages products by name.
func (c *Catalog) ListProducts(ctx context.Context, opts ListOptions) (pagination.Page, error) {
	return c.list(ctx, document.Products, nil, opts)
}

// UpdateProduct merges the whitelisted fields of body into product id. A new
// name also refreshes the product code and keyword set.
func (c *Catalog) UpdateProduct(ctx context.Context, id string, body map[string]any) (document.Record, error) {
	const op = "update product"
	patch, err := applyPatch(op, body, productPatch)
	if err != nil {
		return document.Record{}, err
	}
	current, err := c.store.Get(ctx, document.Products, id)
	if err != nil {
		return document.Record{}, err
	}
	if name, ok := patch[FieldName].(string); ok {
		patch["code"] = strings.ToUpper(name)
	}
	refreshKeywords(patch, current.Fields, productIndexed)
	patch[FieldLastUpdated] = c.now()

	if err := c.store.Merge(ctx, document.Products, id, patch); err != nil {
		return document.Record{}, err
	}
	return mergedRecord(current, patch), nil
}
