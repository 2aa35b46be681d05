// Package api exposes the catalog over HTTP under /v1.
//
// Handlers are thin: they bind the request, call the catalog and let the
// error writer map failures to their status. Role checks are attached per
// route and skipped entirely when authentication is disabled.
package api

import (
	"strconv"
	"strings"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/catalog"
	"github.com/nimburion/storefront/pkg/middleware/authz"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/realtime/sse"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
)

// Prefix is the path every catalog route lives under.
const Prefix = "/v1"

// Options configures route protection.
type Options struct {
	// AuthEnabled turns on bearer token checks. Validator is required then.
	AuthEnabled bool
	Validator   auth.JWTValidator
	// Feed serves /v1/feed/<channel>; nil leaves the feed unrouted.
	Feed *sse.Handler
}

// publicCollections can be read, searched and streamed without a token.
var publicCollections = map[document.Collection]bool{
	document.Products:         true,
	document.Stores:           true,
	document.Offers:           true,
	document.Categories:       true,
	document.SubCategories:    true,
	document.SubCategoryItems: true,
}

// ownedCollections are keyed by the id of the user they belong to.
var ownedCollections = map[document.Collection]bool{
	document.Users: true,
	document.Carts: true,
	document.Saved: true,
}

// FeedPrefix is the path prefix of the change feed.
const FeedPrefix = Prefix + "/feed"

// Handler serves the catalog routes.
type Handler struct {
	catalog *catalog.Catalog
	opts    Options
	log     logger.Logger
}

// Cosa fa: registra sotto /v1 le rotte di utenti, prodotti, negozi, categorie, offerte,
// ordini, carrelli, ricerca e lettura documenti.
// Cosa NON fa: non applica i middleware globali; vanno installati prima sul router.
// Esempio minimo: api.Register(r, cat, api.Options{AuthEnabled: true, Validator: tokens}, log)
func Register(r router.Router, cat *catalog.Catalog, opts Options, log logger.Logger) *Handler {
	h := &Handler{catalog: cat, opts: opts, log: logger.OrNop(log)}
	if opts.AuthEnabled && opts.Validator == nil {
		h.log.Warn("auth enabled without a token validator, protected routes will reject every request")
	}
	v1 := r.Group(Prefix)

	v1.POST("/auth/login", h.login)

	v1.POST("/users", h.createUser)
	v1.GET("/users", h.listUsers, h.roles(catalog.RoleStoreManager)...)
	v1.PATCH("/users/:id", h.updateUser, h.selfOr("id", catalog.RoleStoreManager)...)
	v1.POST("/users/:id/password", h.resetPassword, h.selfOr("id")...)

	v1.POST("/products", h.createProduct, h.roles(catalog.RoleStoreManager)...)
	v1.GET("/products", h.listProducts)
	v1.PATCH("/products/:id", h.updateProduct, h.roles(catalog.RoleStoreManager)...)

	v1.POST("/stores", h.createStore, h.roles(catalog.RoleStoreManager)...)
	v1.GET("/stores", h.listStores)
	v1.PATCH("/stores/:id", h.updateStore, h.roles(catalog.RoleStoreManager)...)

	v1.GET("/categories/:kind", h.listCategories)
	v1.POST("/categories/:kind", h.createCategory, h.roles(catalog.RoleStoreManager)...)
	v1.DELETE("/categories/:kind/:id", h.deleteCategory, h.roles(catalog.RoleStoreManager)...)

	v1.POST("/offers", h.createOffer, h.roles(catalog.RoleStoreManager)...)
	v1.GET("/offers", h.listOffers)
	v1.POST("/offers/:id/retire", h.retireOffer, h.roles(catalog.RoleStoreManager)...)

	v1.POST("/orders", h.createOrder, h.roles(catalog.RoleCustomer, catalog.RoleStoreManager)...)
	v1.GET("/orders", h.listOrders, h.roles(catalog.RoleStoreManager, catalog.RoleDelivery)...)
	v1.PATCH("/orders/:id", h.updateOrder, h.roles(catalog.RoleStoreManager, catalog.RoleDelivery)...)

	v1.PATCH("/carts/:id", h.updateCart, h.authenticated()...)
	v1.PATCH("/saved/:id", h.updateSaved, h.authenticated()...)

	v1.GET("/search/:collection", h.search, h.collectionGuard("")...)
	v1.GET("/documents/:collection/:id", h.getDocument, h.collectionGuard("id")...)

	if opts.Feed != nil {
		for _, channel := range opts.Feed.Channels() {
			r.GET(FeedPrefix+"/"+channel, h.feed(opts.Feed, channel), h.feedGuard(channel)...)
		}
	}
	return h
}

func (h *Handler) feedGuard(channel string) []router.MiddlewareFunc {
	col, err := document.ParseCollection(channel)
	if err != nil {
		return h.roles(catalog.RoleStoreManager)
	}
	return h.collectionAccess(col, "")
}

// collectionAccess returns the checks for reading col. Orders go to the
// staff that handle them. Per-user collections admit the user named by
// selfParam when it is set; everything else is for store managers.
func (h *Handler) collectionAccess(col document.Collection, selfParam string) []router.MiddlewareFunc {
	switch {
	case publicCollections[col]:
		return nil
	case col == document.Orders:
		return h.roles(catalog.RoleStoreManager, catalog.RoleDelivery)
	case selfParam != "" && ownedCollections[col]:
		return h.selfOr(selfParam, catalog.RoleStoreManager)
	default:
		return h.roles(catalog.RoleStoreManager)
	}
}

// collectionGuard applies collectionAccess for the collection named by the
// :collection parameter. Unknown names fail before any token check.
func (h *Handler) collectionGuard(selfParam string) []router.MiddlewareFunc {
	if !h.opts.AuthEnabled {
		return nil
	}
	guard := func(next router.HandlerFunc) router.HandlerFunc {
		chains := make(map[document.Collection]router.HandlerFunc)
		for _, col := range document.Collections() {
			chains[col] = router.Chain(next, nil, h.collectionAccess(col, selfParam))
		}
		return func(c router.Context) error {
			col, err := document.ParseCollection(c.Param("collection"))
			if err != nil {
				return err
			}
			return chains[col](c)
		}
	}
	return []router.MiddlewareFunc{guard}
}

func (h *Handler) authenticated() []router.MiddlewareFunc {
	if !h.opts.AuthEnabled {
		return nil
	}
	return []router.MiddlewareFunc{authz.Authenticate(h.validator())}
}

func (h *Handler) roles(roles ...string) []router.MiddlewareFunc {
	if !h.opts.AuthEnabled {
		return nil
	}
	return append(h.authenticated(), authz.RequireRoles(roles...))
}

func (h *Handler) selfOr(param string, roles ...string) []router.MiddlewareFunc {
	if !h.opts.AuthEnabled {
		return nil
	}
	return append(h.authenticated(), authz.RequireSelfOrRole(param, roles...))
}

func (h *Handler) validator() auth.JWTValidator {
	if h.opts.Validator == nil {
		return rejectAll{}
	}
	return h.opts.Validator
}

// listOptions reads cursor, direction and page_size from the query string.
func listOptions(c router.Context) (catalog.ListOptions, error) {
	dir, err := pagination.ParseDirection(c.Query("direction"))
	if err != nil {
		return catalog.ListOptions{}, err
	}
	size, err := intQuery(c, "page_size")
	if err != nil {
		return catalog.ListOptions{}, err
	}
	return catalog.ListOptions{
		Cursor:    strings.TrimSpace(c.Query("cursor")),
		Direction: dir,
		PageSize:  size,
	}, nil
}

func intQuery(c router.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, document.Errorf(document.InvalidArgument, "query", "%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}
