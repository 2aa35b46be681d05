package controller

import (
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
)

// Validator is implemented by request bodies that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// BindJSON decodes the request body into dto and runs its Validate method
// when it has one. Decoding failures are returned as router.BindError,
// which MapError turns into 400.
func BindJSON(c router.Context, dto interface{}) error {
	if dto == nil {
		return document.Errorf(document.Internal, "bind", "nil destination")
	}
	if err := c.Bind(dto); err != nil {
		return err
	}
	if v, ok := dto.(Validator); ok {
		if err := v.Validate(); err != nil {
			if document.KindOf(err) == document.Internal {
				return document.Wrap(document.InvalidArgument, "validate", err)
			}
			return err
		}
	}
	return nil
}

// BindPatch decodes a partial update body. Only JSON objects are accepted.
func BindPatch(c router.Context) (map[string]any, error) {
	body := map[string]any{}
	if err := c.Bind(&body); err != nil {
		return nil, err
	}
	return body, nil
}
