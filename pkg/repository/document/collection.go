package document

import (
	"strings"
)

// Collection names a document collection. The set is closed: values outside the
// constants below are rejected by ParseCollection.
type Collection string

const (
	Users            Collection = "users"
	Products         Collection = "products"
	Stores           Collection = "stores"
	Orders           Collection = "orders"
	Offers           Collection = "offers"
	Carts            Collection = "carts"
	Saved            Collection = "saved"
	Categories       Collection = "categories"
	SubCategories    Collection = "subCategories"
	SubCategoryItems Collection = "subCategoryItems"
)

var collections = []Collection{
	Users, Products, Stores, Orders, Offers, Carts, Saved, Categories, SubCategories, SubCategoryItems,
}

// searchable lists collections whose records carry a keywords field.
var searchable = map[Collection]bool{
	Users:            true,
	Products:         true,
	Stores:           true,
	Orders:           true,
	Categories:       true,
	SubCategories:    true,
	SubCategoryItems: true,
}

// Collections returns every known collection in declaration order.
func Collections() []Collection {
	out := make([]Collection, len(collections))
	copy(out, collections)
	return out
}

// ParseCollection resolves a caller supplied name to a Collection.
func ParseCollection(name string) (Collection, error) {
	trimmed := strings.TrimSpace(name)
	for _, c := range collections {
		if string(c) == trimmed {
			return c, nil
		}
	}
	return "", Errorf(InvalidArgument, "parse collection", "unknown collection %q", name)
}

// Searchable reports whether records of c carry a keyword set.
func (c Collection) Searchable() bool {
	return searchable[c]
}

func (c Collection) String() string {
	return string(c)
}

// CategoryKind selects one of the three category-like collections.
type CategoryKind string

const (
	CategoryKindCategory    CategoryKind = "category"
	CategoryKindSubCategory CategoryKind = "subcategory"
	CategoryKindItem        CategoryKind = "item"
)

var categoryKinds = map[string]CategoryKind{
	"category":         CategoryKindCategory,
	"categories":       CategoryKindCategory,
	"subcategory":      CategoryKindSubCategory,
	"subcategories":    CategoryKindSubCategory,
	"item":             CategoryKindItem,
	"subcategoryitem":  CategoryKindItem,
	"subcategoryitems": CategoryKindItem,
}

// ParseCategoryKind maps a caller key onto a category kind. Matching is case
// insensitive; anything else is an InvalidArgument error.
func ParseCategoryKind(key string) (CategoryKind, error) {
	kind, ok := categoryKinds[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return "", Errorf(InvalidArgument, "parse category kind", "unknown category kind %q", key)
	}
	return kind, nil
}

// Collection returns the collection backing the kind.
func (k CategoryKind) Collection() Collection {
	switch k {
	case CategoryKindSubCategory:
		return SubCategories
	case CategoryKindItem:
		return SubCategoryItems
	default:
		return Categories
	}
}

// Parent returns the collection holding parents of this kind. Top level
// categories have none.
func (k CategoryKind) Parent() (Collection, bool) {
	switch k {
	case CategoryKindSubCategory:
		return Categories, true
	case CategoryKindItem:
		return SubCategories, true
	default:
		return "", false
	}
}
