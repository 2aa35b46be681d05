package catalog

import (
	"strings"

	"github.com/nimburion/storefront/pkg/repository/document"
)

// Role names as stored on user records and carried in tokens.
const (
	RoleCustomer     = "CUSTOMER"
	RoleStoreManager = "STOREMANAGER"
	RoleDelivery     = "DELIVERY"
)

// Role is the closed set of user roles. Each variant owns the fields it adds
// to a new user record.
type Role interface {
	Name() string
	fields() document.Fields
}

// Ref points at another record by id and name.
type Ref struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

func (s Ref) fields() map[string]any {
	return map[string]any{"id": s.ID, "name": s.Name}
}

// Customer shops and owns a cart and a saved list.
type Customer struct {
	Location any
	Wallet   string
}

func (Customer) Name() string { return RoleCustomer }

func (r Customer) fields() document.Fields {
	f := document.Fields{"location": r.Location}
	if r.Wallet != "" {
		f["wallet"] = r.Wallet
	}
	return f
}

// StoreManager runs one store.
type StoreManager struct {
	Store Ref
}

func (StoreManager) Name() string { return RoleStoreManager }

func (r StoreManager) fields() document.Fields {
	return document.Fields{"store": r.Store.fields(), "onDuty": false}
}

// Delivery delivers orders, optionally for one store.
type Delivery struct {
	Store *Ref
}

func (Delivery) Name() string { return RoleDelivery }

func (r Delivery) fields() document.Fields {
	store := map[string]any{}
	if r.Store != nil {
		store = r.Store.fields()
	}
	return document.Fields{"store": store, "onDuty": false, "rating": 4}
}

// ParseRoleName normalises a role name, rejecting unknown ones.
func ParseRoleName(name string) (string, error) {
	switch n := strings.ToUpper(strings.TrimSpace(name)); n {
	case RoleCustomer, RoleStoreManager, RoleDelivery:
		return n, nil
	default:
		return "", document.Errorf(document.InvalidArgument, "parse role", "unknown role %q", name)
	}
}
