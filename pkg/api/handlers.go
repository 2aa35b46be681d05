package api

import (
	"context"
	"errors"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/catalog"
	"github.com/nimburion/storefront/pkg/controller"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/realtime/sse"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
	"github.com/nimburion/storefront/pkg/variant"
)

// rejectAll stands in when auth is on but no validator was configured.
type rejectAll struct{}

func (rejectAll) Validate(context.Context, string) (*auth.Claims, error) {
	return nil, auth.ErrInvalidToken
}

// groupResponse is the body returned for a created product group.
type groupResponse struct {
	GroupID string   `json:"groupId"`
	IDs     []string `json:"ids"`
	State   string   `json:"state"`
}

func newGroupResponse(g variant.Group) groupResponse {
	ids := g.IDs
	if ids == nil {
		ids = []string{}
	}
	return groupResponse{GroupID: g.ID, IDs: ids, State: string(g.State)}
}

func (h *Handler) login(c router.Context) error {
	var in catalog.Credentials
	if err := controller.BindJSON(c, &in); err != nil {
		return err
	}
	session, err := h.catalog.Authenticate(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return controller.Success(c, session)
}

func (h *Handler) createUser(c router.Context) error {
	var in catalog.NewUser
	if err := controller.BindJSON(c, &in); err != nil {
		return err
	}
	r, err := h.catalog.CreateUser(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return controller.Created(c, controller.Record(r))
}

func (h *Handler) listUsers(c router.Context) error {
	return h.page(c, h.catalog.ListUsers)
}

func (h *Handler) updateUser(c router.Context) error {
	return h.patch(c, h.catalog.UpdateUser)
}

func (h *Handler) resetPassword(c router.Context) error {
	var in catalog.PasswordReset
	if err := c.Bind(&in); err != nil {
		return err
	}
	in.ID = c.Param("id")
	if err := h.catalog.ResetPassword(c.Request().Context(), in); err != nil {
		return err
	}
	return controller.NoContent(c)
}

func (h *Handler) createProduct(c router.Context) error {
	var in catalog.NewProduct
	if err := controller.BindJSON(c, &in); err != nil {
		return err
	}
	group, err := h.catalog.CreateProduct(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return controller.Created(c, newGroupResponse(group))
}

func (h *Handler) listProducts(c router.Context) error {
	return h.page(c, h.catalog.ListProducts)
}

func (h *Handler) updateProduct(c router.Context) error {
	return h.patch(c, h.catalog.UpdateProduct)
}

func (h *Handler) createStore(c router.Context) error {
	var in catalog.NewStore
	if err := controller.BindJSON(c, &in); err != nil {
		return err
	}
	r, err := h.catalog.CreateStore(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return controller.Created(c, controller.Record(r))
}

func (h *Handler) listStores(c router.Context) error {
	return h.page(c, h.catalog.ListStores)
}

func (h *Handler) updateStore(c router.Context) error {
	return h.patch(c, h.catalog.UpdateStore)
}

func (h *Handler) listCategories(c router.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return err
	}
	page, err := h.catalog.ListCategories(c.Request().Context(), c.Param("kind"), c.Query("parent"), opts)
	if err != nil {
		return err
	}
	return controller.Page(c, page)
}

func (h *Handler) createCategory(c router.Context) error {
	var in catalog.NewCategory
	if err := controller.BindJSON(c, &in); err != nil {
		return err
	}
	r, err := h.catalog.CreateCategory(c.Request().Context(), c.Param("kind"), in)
	if err != nil {
		return err
	}
	return controller.Created(c, controller.Record(r))
}

func (h *Handler) deleteCategory(c router.Context) error {
	if err := h.catalog.DeleteCategory(c.Request().Context(), c.Param("kind"), c.Param("id")); err != nil {
		return err
	}
	return controller.NoContent(c)
}

func (h *Handler) createOffer(c router.Context) error {
	var in catalog.NewOffer
	if err := controller.BindJSON(c, &in); err != nil {
		return err
	}
	r, err := h.catalog.CreateOffer(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return controller.Created(c, controller.Record(r))
}

func (h *Handler) listOffers(c router.Context) error {
	return h.page(c, h.catalog.ListOffers)
}

func (h *Handler) retireOffer(c router.Context) error {
	if err := h.catalog.RetireOffer(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return controller.NoContent(c)
}

func (h *Handler) createOrder(c router.Context) error {
	var in catalog.NewOrder
	if err := controller.BindJSON(c, &in); err != nil {
		return err
	}
	r, err := h.catalog.CreateOrder(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return controller.Created(c, controller.Record(r))
}

func (h *Handler) listOrders(c router.Context) error {
	return h.page(c, h.catalog.ListOrders)
}

func (h *Handler) updateOrder(c router.Context) error {
	return h.patch(c, h.catalog.UpdateOrder)
}

func (h *Handler) updateCart(c router.Context) error {
	return h.patch(c, h.catalog.UpdateCart)
}

func (h *Handler) updateSaved(c router.Context) error {
	return h.patch(c, h.catalog.UpdateSaved)
}

func (h *Handler) search(c router.Context) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	records, err := h.catalog.Search(c.Request().Context(), c.Param("collection"), c.Query("q"), limit)
	if err != nil {
		return err
	}
	return controller.Success(c, controller.Records(records))
}

func (h *Handler) getDocument(c router.Context) error {
	r, err := h.catalog.Get(c.Request().Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		return err
	}
	return controller.Success(c, controller.Record(r))
}

func (h *Handler) feed(stream *sse.Handler, channel string) router.HandlerFunc {
	return func(c router.Context) error {
		const op = "stream feed"
		err := stream.Stream(c, channel)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, sse.ErrUnknownChannel):
			return document.Errorf(document.NotFound, op, "feed channel %q not found", channel)
		case errors.Is(err, sse.ErrTooManyConnections), errors.Is(err, sse.ErrClosed):
			return document.Wrap(document.BackendUnavailable, op, err)
		}
		return err
	}
}

type listFunc func(ctx context.Context, opts catalog.ListOptions) (pagination.Page, error)

func (h *Handler) page(c router.Context, list listFunc) error {
	opts, err := listOptions(c)
	if err != nil {
		return err
	}
	page, err := list(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return controller.Page(c, page)
}

type patchFunc func(ctx context.Context, id string, body map[string]any) (document.Record, error)

func (h *Handler) patch(c router.Context, update patchFunc) error {
	body, err := controller.BindPatch(c)
	if err != nil {
		return err
	}
	r, err := update(c.Request().Context(), c.Param("id"), body)
	if err != nil {
		return err
	}
	return controller.Success(c, controller.Record(r))
}
