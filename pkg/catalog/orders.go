package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
)

// Item is one line of an order, cart or saved list.
type Item struct {
	ID    string  `json:"id" validate:"required"`
	Qty   float64 `json:"qty" validate:"gt=0"`
	Price float64 `json:"price" validate:"gte=0"`
	Name  string  `json:"name" validate:"required"`
	Unit  string  `json:"unit" validate:"required"`
}

func (i Item) fields() map[string]any {
	return map[string]any{"id": i.ID, "qty": i.Qty, "price": i.Price, "name": i.Name, "unit": i.Unit}
}

// NewOrder is the order placement request.
type NewOrder struct {
	CustomerName  string    `json:"customerName" validate:"required"`
	Contact       string    `json:"contact" validate:"required"`
	Email         string    `json:"email" validate:"required,min=5,email"`
	CustomerID    string    `json:"cid" validate:"required"`
	Location      any       `json:"location,omitempty"`
	VendorID      string    `json:"vid,omitempty"`
	Items         []Item    `json:"items" validate:"required,dive"`
	TotalCost     *float64  `json:"totalCost" validate:"required,gte=0"`
	Offer         *Ref      `json:"offer,omitempty"`
	Discount      *float64  `json:"discount" validate:"required,gte=0"`
	FinalCost     *float64  `json:"finalCost" validate:"required,gte=0"`
	OrderType     string    `json:"orderType" validate:"required"`
	PaymentStatus string    `json:"paymentStatus" validate:"required"`
	PaymentType   string    `json:"paymentType" validate:"required"`
	TimeAssigned  time.Time `json:"timeAssigned" validate:"required"`
}

type orderPlaced struct {
	ID         string  `json:"id"`
	CustomerID string  `json:"cid"`
	FinalCost  float64 `json:"finalCost"`
	Items      int     `json:"items"`
}

type orderUpdated struct {
	ID     string   `json:"id"`
	Fields []string `json:"fields"`
}

var orderPatch = patchSpec{
	"customerName":   stringRule("min=1"),
	"contact":        stringRule("min=1"),
	"email":          emailRule(),
	"cid":            stringRule("min=1"),
	"location":       objectRule(),
	"vid":            stringRule(""),
	"items":          itemsRule(),
	"totalCost":      numberRule("gte=0"),
	"offer":          objectRule(),
	"discount":       numberRule("gte=0"),
	"finalCost":      numberRule("gte=0"),
	"orderRating":    numberRule("gte=0"),
	"deliveryRating": numberRule("gte=0"),
	"vendorRating":   numberRule("gte=0"),
	FieldStatus:      stringRule("min=1"),
	"comment":        stringRule(""),
	"paymentStatus":  stringRule("min=1"),
	"paymentType":    stringRule("min=1"),
	"timeAssigned":   timeRule(),
	"timeDelivered":  timeRule(),
	"deliveryBoy":    nil,
	"did":            stringRule(""),
	"vendor":         objectRule(),
	"vendorName":     stringRule(""),
}

var orderIndexed = []string{"customerName", "contact", "email"}

// CreateOrder places an order for an existing customer.
func (c *Catalog) CreateOrder(ctx context.Context, in NewOrder) (document.Record, error) {
	const op = "create order"
	if err := Validate(op, in); err != nil {
		return document.Record{}, err
	}
	if _, err := c.store.Get(ctx, document.Users, in.CustomerID); err != nil {
		return document.Record{}, err
	}

	items := make([]any, len(in.Items))
	for i, item := range in.Items {
		items[i] = item.fields()
	}
	email := normalizeEmail(in.Email)
	fields := document.Fields{
		"customerName":   in.CustomerName,
		"contact":        in.Contact,
		"email":          email,
		"cid":            in.CustomerID,
		"items":          items,
		"totalCost":      *in.TotalCost,
		"discount":       *in.Discount,
		"finalCost":      *in.FinalCost,
		"orderRating":    0,
		"deliveryRating": 0,
		FieldStatus:      StatusPlaced,
		"orderType":      in.OrderType,
		"paymentStatus":  in.PaymentStatus,
		"paymentType":    in.PaymentType,
		"timeAssigned":   in.TimeAssigned.UTC(),
		"keywords":       keywordsOf(in.CustomerName, in.Contact, email),
		FieldCreatedAt:   c.now(),
	}
	if in.Location != nil {
		fields["location"] = in.Location
	}
	if in.VendorID != "" {
		fields["vid"] = in.VendorID
	}
	if in.Offer != nil {
		fields["offer"] = in.Offer.fields()
	}

	id, err := c.store.Create(ctx, document.Orders, fields)
	if err != nil {
		return document.Record{}, err
	}
	c.log.WithContext(ctx).Info("order placed", "order_id", id, "customer_id", in.CustomerID)
	c.emit(ctx, eventbus.TopicOrderPlaced, document.Orders, id, orderPlaced{
		ID:         id,
		CustomerID: in.CustomerID,
		FinalCost:  *in.FinalCost,
		Items:      len(items),
	})
	return document.Record{ID: id, Fields: fields}, nil
}

// ListOrders pages orders by creation time.
func (c *Catalog) ListOrders(ctx context.Context, opts ListOptions) (pagination.Page, error) {
	return c.list(ctx, document.Orders, nil, opts)
}

// UpdateOrder merges the whitelisted fields of body into order id.
func (c *Catalog) UpdateOrder(ctx context.Context, id string, body map[string]any) (document.Record, error) {
	const op = "update order"
	patch, err := applyPatch(op, body, orderPatch)
	if err != nil {
		return document.Record{}, err
	}
	current, err := c.store.Get(ctx, document.Orders, id)
	if err != nil {
		return document.Record{}, err
	}
	refreshKeywords(patch, current.Fields, orderIndexed)
	patch[FieldLastUpdated] = c.now()

	if err := c.store.Merge(ctx, document.Orders, id, patch); err != nil {
		return document.Record{}, err
	}
	changed := make([]string, 0, len(patch))
	for key := range body {
		if _, ok := patch[key]; ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	c.emit(ctx, eventbus.TopicOrderUpdated, document.Orders, id, orderUpdated{ID: id, Fields: changed})
	return mergedRecord(current, patch), nil
}
