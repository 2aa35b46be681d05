// Package authz provides authentication and role checks for API routes.
package authz

import (
	"strings"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
)

// Authenticate creates middleware that validates Bearer tokens.
// Valid claims are stored on the router context under middleware.ClaimsKey and
// in the request context. Missing or invalid tokens fail with an Unauthorized
// error, which the error writer renders as 401.
func Authenticate(validator auth.JWTValidator) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			token, err := bearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return err
			}
			claims, err := validator.Validate(c.Request().Context(), token)
			if err != nil {
				return document.Wrap(document.Unauthorized, "authenticate", err)
			}

			c.Set(string(middleware.ClaimsKey), claims)
			c.SetRequest(c.Request().WithContext(auth.WithClaims(c.Request().Context(), claims)))
			return next(c)
		}
	}
}

// RequireRoles lets the request through when the caller holds one of roles.
// Without claims it fails as Unauthorized, with other roles as Forbidden.
func RequireRoles(roles ...string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			claims, err := requireClaims(c)
			if err != nil {
				return err
			}
			if !claims.HasRole(roles...) {
				return document.Errorf(document.Forbidden, "authorize", "role %q may not access this resource", claims.Role)
			}
			return next(c)
		}
	}
}

// RequireSelfOrRole lets the request through when the route parameter param
// names the caller, or when the caller holds one of roles.
func RequireSelfOrRole(param string, roles ...string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			claims, err := requireClaims(c)
			if err != nil {
				return err
			}
			if claims.Subject == c.Param(param) || claims.HasRole(roles...) {
				return next(c)
			}
			return document.Errorf(document.Forbidden, "authorize", "caller may only access its own record")
		}
	}
}

// ClaimsFrom returns the claims set by Authenticate, or nil.
func ClaimsFrom(c router.Context) *auth.Claims {
	if claims, ok := c.Get(string(middleware.ClaimsKey)).(*auth.Claims); ok && claims != nil {
		return claims
	}
	return auth.GetClaims(c.Request().Context())
}

func requireClaims(c router.Context) (*auth.Claims, error) {
	claims := ClaimsFrom(c)
	if claims == nil {
		return nil, document.Errorf(document.Unauthorized, "authorize", "authentication required")
	}
	return claims, nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", document.Errorf(document.Unauthorized, "authenticate", "missing authorization header")
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", document.Errorf(document.Unauthorized, "authenticate", "invalid authorization header format")
	}
	return token, nil
}
