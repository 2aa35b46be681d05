package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
)

// NewUser is the sign up request.
type NewUser struct {
	FullName      string `json:"fullName" validate:"required"`
	ContactNumber string `json:"contactNumber" validate:"required,min=10,max=15"`
	Email         string `json:"email" validate:"required,min=5,email"`
	Password      string `json:"password" validate:"required,min=5,max=255"`
	Role          string `json:"role" validate:"required"`
	Location      any    `json:"location" validate:"required"`
	Store         *Ref   `json:"store,omitempty"`
	Wallet        string `json:"wallet,omitempty"`
}

// role builds the role variant the request describes.
func (u NewUser) role() (Role, error) {
	name, err := ParseRoleName(u.Role)
	if err != nil {
		return nil, err
	}
	switch name {
	case RoleStoreManager:
		if u.Store == nil {
			return nil, &ValidationError{Op: "create user", Fields: map[string]string{"store": "required"}}
		}
		return StoreManager{Store: *u.Store}, nil
	case RoleDelivery:
		return Delivery{Store: u.Store}, nil
	case RoleCustomer:
		return Customer{Location: u.Location, Wallet: u.Wallet}, nil
	}
	return nil, document.Errorf(document.InvalidArgument, "create user", "unsupported role %q", name)
}

// Credentials is the login request.
type Credentials struct {
	Email    string `json:"email" validate:"required,min=5,email"`
	Password string `json:"password" validate:"required,min=5,max=255"`
}

// PasswordReset changes the password of a user who knows the current one.
type PasswordReset struct {
	ID          string `json:"id" validate:"required"`
	OldPassword string `json:"oldPassword" validate:"required,min=5,max=255"`
	Password    string `json:"password" validate:"required,min=5,max=255"`
}

// Session is the outcome of a successful login. Token is empty when token
// issuing is disabled.
type Session struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

type userCreated struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

var userPatch = patchSpec{
	"fullName":      stringRule("min=1"),
	"contactNumber": stringRule("min=10,max=15"),
	"email":         emailRule(),
	"location":      nil,
	"profilePic":    stringRule(""),
	"wallet":        nil,
	"status":        stringRule("min=1"),
	"serviceType":   stringRule(""),
	"department":    stringRule(""),
	"store":         objectRule(),
	"rating":        nil,
	FieldPassword:   stringRule("min=5,max=255"),
}

// userIndexed lists the user fields the keyword set is built from.
var userIndexed = []string{"fullName", "contactNumber", "email"}

// CreateUser registers a user. The email must be unused. Customers also get
// an empty cart and saved list.
func (c *Catalog) CreateUser(ctx context.Context, in NewUser) (document.Record, error) {
	const op = "create user"
	if err := Validate(op, in); err != nil {
		return document.Record{}, err
	}
	role, err := in.role()
	if err != nil {
		return document.Record{}, err
	}
	email := normalizeEmail(in.Email)

	taken, err := c.exists(ctx, document.Users, document.Equal("email", email))
	if err != nil {
		return document.Record{}, err
	}
	if taken {
		return document.Record{}, document.Errorf(document.Conflict, op, "email already registered")
	}

	hash, err := c.hasher.Hash(in.Password)
	if err != nil {
		return document.Record{}, document.Wrap(document.Internal, op, err)
	}

	fields := document.Fields{
		"fullName":      in.FullName,
		"contactNumber": in.ContactNumber,
		"email":         email,
		FieldPassword:   hash,
		"role":          role.Name(),
		FieldStatus:     StatusActive,
		"keywords":      keywordsOf(in.FullName, in.ContactNumber, email),
		FieldCreatedAt:  c.now(),
	}
	for k, v := range role.fields() {
		fields[k] = v
	}

	id, err := c.store.Create(ctx, document.Users, fields)
	if err != nil {
		return document.Record{}, err
	}
	if _, ok := role.(Customer); ok {
		if err := c.createCustomerLists(ctx, id); err != nil {
			c.log.WithContext(ctx).Error("customer lists not created", "user_id", id, "error", err)
			return document.Record{}, err
		}
	}

	c.log.WithContext(ctx).Info("user created", "user_id", id, "role", role.Name())
	c.emit(ctx, eventbus.TopicUserCreated, document.Users, id, userCreated{ID: id, Email: email, Role: role.Name()})
	return publicRecord(document.Users, document.Record{ID: id, Fields: fields}), nil
}

func (c *Catalog) createCustomerLists(ctx context.Context, userID string) error {
	now := c.now()
	if _, err := c.store.Create(ctx, document.Carts, document.Fields{
		"cid":          userID,
		"items":        []any{},
		"totalCost":    0,
		"offer":        "NA",
		"discount":     0,
		FieldCreatedAt: now,
	}); err != nil {
		return err
	}
	_, err := c.store.Create(ctx, document.Saved, document.Fields{
		"cid":          userID,
		"items":        []any{},
		FieldCreatedAt: now,
	})
	return err
}

// Authenticate checks credentials and issues a token. Unknown emails and
// wrong passwords are both Unauthorized.
func (c *Catalog) Authenticate(ctx context.Context, in Credentials) (Session, error) {
	const op = "authenticate"
	if err := Validate(op, in); err != nil {
		return Session{}, err
	}
	found, err := c.store.Find(ctx, document.Users, document.Query{
		Where: []document.Condition{document.Equal("email", normalizeEmail(in.Email))},
		Limit: 1,
	})
	if err != nil {
		return Session{}, err
	}
	if len(found) == 0 {
		return Session{}, document.Errorf(document.Unauthorized, op, "invalid email or password")
	}
	user := found[0]
	if err := c.checkPassword(op, user, in.Password); err != nil {
		return Session{}, err
	}

	session := Session{UserID: user.ID, Role: user.Fields.String("role")}
	if c.tokens == nil {
		return session, nil
	}
	token, expiresAt, err := c.tokens.Issue(user.ID, user.Fields.String("email"), session.Role)
	if err != nil {
		return Session{}, document.Wrap(document.Internal, op, err)
	}
	session.Token = token
	session.ExpiresAt = expiresAt
	return session, nil
}

func (c *Catalog) checkPassword(op string, user document.Record, password string) error {
	err := c.hasher.Compare(user.Fields.String(FieldPassword), password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrPasswordMismatch):
		return document.Errorf(document.Unauthorized, op, "invalid email or password")
	default:
		return document.Wrap(document.Internal, op, err)
	}
}

// ResetPassword replaces the password of in.ID after checking the current one.
func (c *Catalog) ResetPassword(ctx context.Context, in PasswordReset) error {
	const op = "reset password"
	if err := Validate(op, in); err != nil {
		return err
	}
	user, err := c.store.Get(ctx, document.Users, in.ID)
	if err != nil {
		return err
	}
	if err := c.checkPassword(op, user, in.OldPassword); err != nil {
		return err
	}
	hash, err := c.hasher.Hash(in.Password)
	if err != nil {
		return document.Wrap(document.Internal, op, err)
	}
	return c.store.Merge(ctx, document.Users, in.ID, document.Fields{
		FieldPassword:    hash,
		FieldLastUpdated: c.now(),
	})
}

// ListUsers pages users by creation time.
func (c *Catalog) ListUsers(ctx context.Context, opts ListOptions) (pagination.Page, error) {
	return c.list(ctx, document.Users, nil, opts)
}

// UpdateUser merges the whitelisted fields of body into user id. A new
// password is hashed, a new email must be unused, and the keyword set is
// rebuilt when an indexed field changes.
func (c *Catalog) UpdateUser(ctx context.Context, id string, body map[string]any) (document.Record, error) {
	const op = "update user"
	patch, err := applyPatch(op, body, userPatch)
	if err != nil {
		return document.Record{}, err
	}
	current, err := c.store.Get(ctx, document.Users, id)
	if err != nil {
		return document.Record{}, err
	}

	if email, ok := patch["email"].(string); ok && email != current.Fields.String("email") {
		found, err := c.store.Find(ctx, document.Users, document.Query{
			Where: []document.Condition{document.Equal("email", email)},
			Limit: 1,
		})
		if err != nil {
			return document.Record{}, err
		}
		if len(found) > 0 && found[0].ID != id {
			return document.Record{}, document.Errorf(document.Conflict, op, "email already registered")
		}
	}
	if pw, ok := patch[FieldPassword].(string); ok {
		hash, err := c.hasher.Hash(pw)
		if err != nil {
			return document.Record{}, document.Wrap(document.Internal, op, err)
		}
		patch[FieldPassword] = hash
	}
	refreshKeywords(patch, current.Fields, userIndexed)
	patch[FieldLastUpdated] = c.now()

	if err := c.store.Merge(ctx, document.Users, id, patch); err != nil {
		return document.Record{}, err
	}
	return publicRecord(document.Users, mergedRecord(current, patch)), nil
}

// refreshKeywords rebuilds the keyword set into patch when it touches one of
// the indexed fields.
func refreshKeywords(patch, current document.Fields, indexed []string) {
	touched := false
	for _, f := range indexed {
		if patch.Has(f) {
			touched = true
			break
		}
	}
	if !touched {
		return
	}
	texts := make([]string, len(indexed))
	for i, f := range indexed {
		if patch.Has(f) {
			texts[i] = patch.String(f)
		} else {
			texts[i] = current.String(f)
		}
	}
	patch["keywords"] = keywordsOf(texts...)
}

func mergedRecord(current document.Record, patch document.Fields) document.Record {
	fields := current.Fields.Clone()
	if fields == nil {
		fields = document.Fields{}
	}
	for k, v := range patch {
		fields[k] = v
	}
	return document.Record{ID: current.ID, Fields: fields}
}
