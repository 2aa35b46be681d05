package catalog

import (
	"context"

	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
)

// NewOffer is a discount customers can apply.
type NewOffer struct {
	Name     string   `json:"name" validate:"required"`
	Code     string   `json:"code" validate:"required"`
	Discount *float64 `json:"discount" validate:"required,gte=0"`
	Unit     string   `json:"unit" validate:"required"`
}

type offerChanged struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Code   string `json:"code,omitempty"`
	Status string `json:"status"`
}

// CreateOffer creates an active offer. The name and code pair is unique.
func (c *Catalog) CreateOffer(ctx context.Context, in NewOffer) (document.Record, error) {
	const op = "create offer"
	if err := Validate(op, in); err != nil {
		return document.Record{}, err
	}
	taken, err := c.exists(ctx, document.Offers,
		document.Equal(FieldName, in.Name),
		document.Equal("code", in.Code),
	)
	if err != nil {
		return document.Record{}, err
	}
	if taken {
		return document.Record{}, document.Errorf(document.Conflict, op, "offer %q with code %q already exists", in.Name, in.Code)
	}
	fields := document.Fields{
		FieldName:      in.Name,
		"code":         in.Code,
		"discount":     *in.Discount,
		"unit":         in.Unit,
		FieldStatus:    StatusActive,
		FieldCreatedAt: c.now(),
	}
	id, err := c.store.Create(ctx, document.Offers, fields)
	if err != nil {
		return document.Record{}, err
	}
	c.emit(ctx, eventbus.TopicOfferCreated, document.Offers, id, offerChanged{
		ID:     id,
		Name:   in.Name,
		Code:   in.Code,
		Status: StatusActive,
	})
	return document.Record{ID: id, Fields: fields}, nil
}

// ListOffers pages offers by name, retired ones included.
func (c *Catalog) ListOffers(ctx context.Context, opts ListOptions) (pagination.Page, error) {
	return c.list(ctx, document.Offers, nil, opts)
}

// RetireOffer marks offer id retired. The record is kept for the orders that
// reference it.
func (c *Catalog) RetireOffer(ctx context.Context, id string) error {
	now := c.now()
	err := c.store.Merge(ctx, document.Offers, id, document.Fields{
		FieldStatus:      StatusRetired,
		"retiredAt":      now,
		FieldLastUpdated: now,
	})
	if err != nil {
		return err
	}
	c.emit(ctx, eventbus.TopicOfferRetired, document.Offers, id, offerChanged{ID: id, Status: StatusRetired})
	return nil
}
