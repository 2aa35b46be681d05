package catalog

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
)

func johnDoe() NewUser {
	return NewUser{
		FullName:      "John Doe",
		ContactNumber: "5550001111",
		Email:         "John@Example.com",
		Password:      "hunter22",
		Role:          "customer",
		Location:      "12 Main Street",
	}
}

func TestCreateUser_Customer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.cat.CreateUser(ctx, johnDoe())
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.Fields.Has(FieldPassword) {
		t.Fatal("password must not be returned")
	}
	if user.Fields.String("role") != RoleCustomer || user.Fields.String("email") != "john@example.com" {
		t.Fatalf("unexpected fields %v", user.Fields)
	}

	stored, err := f.store.Get(ctx, document.Users, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Fields.String(FieldPassword) == "hunter22" {
		t.Fatal("password stored in clear")
	}

	for _, col := range []document.Collection{document.Carts, document.Saved} {
		lists, err := f.store.Find(ctx, col, document.Query{Where: []document.Condition{document.Equal("cid", user.ID)}})
		if err != nil || len(lists) != 1 {
			t.Fatalf("%s for customer: %v, %v", col, lists, err)
		}
	}
	if got := f.events.published(); !reflect.DeepEqual(got, []string{eventbus.TopicUserCreated}) {
		t.Fatalf("published %v", got)
	}
}

func TestCreateUser_Roles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := johnDoe()
	manager.Email = "manager@example.com"
	manager.Role = "STOREMANAGER"
	if _, err := f.cat.CreateUser(ctx, manager); !document.IsKind(err, document.InvalidArgument) {
		t.Fatalf("manager without store error = %v", err)
	}
	manager.Store = &Ref{ID: "s1", Name: "Central"}
	rec, err := f.cat.CreateUser(ctx, manager)
	if err != nil {
		t.Fatalf("CreateUser(manager) error = %v", err)
	}
	if rec.Fields["onDuty"] != false || !reflect.DeepEqual(rec.Fields["store"], map[string]any{"id": "s1", "name": "Central"}) {
		t.Fatalf("manager fields %v", rec.Fields)
	}
	if rec.Fields.Has("location") {
		t.Fatal("only customers keep a location")
	}

	rider := johnDoe()
	rider.Email = "rider@example.com"
	rider.Role = "delivery"
	rec, err = f.cat.CreateUser(ctx, rider)
	if err != nil {
		t.Fatalf("CreateUser(delivery) error = %v", err)
	}
	if rec.Fields["rating"] != 4 || !reflect.DeepEqual(rec.Fields["store"], map[string]any{}) {
		t.Fatalf("delivery fields %v", rec.Fields)
	}

	carts, _ := f.store.Find(ctx, document.Carts, document.Query{})
	if len(carts) != 0 {
		t.Fatalf("non customers got %d carts", len(carts))
	}

	unknown := johnDoe()
	unknown.Role = "admin"
	if _, err := f.cat.CreateUser(ctx, unknown); !document.IsKind(err, document.InvalidArgument) {
		t.Fatalf("unknown role error = %v", err)
	}
}

func TestCreateUser_ValidationAndConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := johnDoe()
	bad.Email = "not-an-email"
	bad.ContactNumber = "123"
	_, err := f.cat.CreateUser(ctx, bad)
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if verr.Fields["email"] != "email" || verr.Fields["contactNumber"] != "min" {
		t.Fatalf("fields = %v", verr.Fields)
	}

	if _, err := f.cat.CreateUser(ctx, johnDoe()); err != nil {
		t.Fatal(err)
	}
	dup := johnDoe()
	dup.Email = "  JOHN@example.com"
	if _, err := f.cat.CreateUser(ctx, dup); !document.IsKind(err, document.Conflict) {
		t.Fatalf("duplicate email error = %v", err)
	}
}

// The search scenario: a user named John Doe is found by any prefix of
// either name, whatever the case, and not by an infix.
func TestUserSearch_JohnDoe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.cat.CreateUser(ctx, johnDoe())
	if err != nil {
		t.Fatal(err)
	}

	for _, term := range []string{"jo", "JOHN", "d", "doe", "555", "exam"} {
		found, err := f.cat.Search(ctx, "users", term, 0)
		if err != nil {
			t.Fatalf("Search(%q) error = %v", term, err)
		}
		if !reflect.DeepEqual(ids(found), []string{user.ID}) {
			t.Fatalf("Search(%q) = %v", term, ids(found))
		}
		if found[0].Fields.Has(FieldPassword) {
			t.Fatal("search leaked password")
		}
	}
	found, err := f.cat.Search(ctx, "users", "ohn", 0)
	if err != nil || len(found) != 0 {
		t.Fatalf("infix search = %v, %v", found, err)
	}
}

func TestAuthenticate(t *testing.T) {
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: "0123456789abcdef0123456789abcdef",
		Issuer: "storefront",
		TTL:    time.Hour,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, WithTokens(tokens))
	ctx := context.Background()
	user, err := f.cat.CreateUser(ctx, johnDoe())
	if err != nil {
		t.Fatal(err)
	}

	session, err := f.cat.Authenticate(ctx, Credentials{Email: "john@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	claims, err := tokens.Validate(ctx, session.Token)
	if err != nil {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.Subject != user.ID || claims.Role != RoleCustomer || session.UserID != user.ID {
		t.Fatalf("claims %+v session %+v", claims, session)
	}

	tests := []Credentials{
		{Email: "john@example.com", Password: "wrong-pass"},
		{Email: "jane@example.com", Password: "hunter22"},
	}
	for _, in := range tests {
		if _, err := f.cat.Authenticate(ctx, in); !document.IsKind(err, document.Unauthorized) {
			t.Fatalf("Authenticate(%s) error = %v, want unauthorized", in.Email, err)
		}
	}
}

func TestAuthenticate_WithoutTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.cat.CreateUser(ctx, johnDoe()); err != nil {
		t.Fatal(err)
	}
	session, err := f.cat.Authenticate(ctx, Credentials{Email: "john@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if session.Token != "" || session.Role != RoleCustomer {
		t.Fatalf("session = %+v", session)
	}
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.cat.CreateUser(ctx, johnDoe())
	if err != nil {
		t.Fatal(err)
	}

	err = f.cat.ResetPassword(ctx, PasswordReset{ID: user.ID, OldPassword: "not-it", Password: "newpass1"})
	if !document.IsKind(err, document.Unauthorized) {
		t.Fatalf("wrong old password error = %v", err)
	}
	err = f.cat.ResetPassword(ctx, PasswordReset{ID: "missing", OldPassword: "hunter22", Password: "newpass1"})
	if !document.IsKind(err, document.NotFound) {
		t.Fatalf("missing user error = %v", err)
	}
	if err := f.cat.ResetPassword(ctx, PasswordReset{ID: user.ID, OldPassword: "hunter22", Password: "newpass1"}); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if _, err := f.cat.Authenticate(ctx, Credentials{Email: "john@example.com", Password: "newpass1"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.cat.CreateUser(ctx, johnDoe())
	if err != nil {
		t.Fatal(err)
	}

	updated, err := f.cat.UpdateUser(ctx, user.ID, map[string]any{
		"fullName": "Johnny Walker",
		"wallet":   "",
		"role":     "STOREMANAGER",
	})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.Fields.String("role") != RoleCustomer {
		t.Fatal("role is not updatable")
	}
	if v, ok := updated.Fields["wallet"]; !ok || v != "" {
		t.Fatalf("present empty wallet must be written, got %v", updated.Fields["wallet"])
	}
	if !updated.Fields.Has(FieldLastUpdated) {
		t.Fatal("lastUpdated not stamped")
	}

	found, err := f.cat.Search(ctx, "users", "walk", 0)
	if err != nil || len(found) != 1 {
		t.Fatalf("new name not indexed: %v, %v", found, err)
	}
	found, err = f.cat.Search(ctx, "users", "doe", 0)
	if err != nil || len(found) != 0 {
		t.Fatalf("old name still indexed: %v, %v", found, err)
	}
	found, err = f.cat.Search(ctx, "users", "exam", 0)
	if err != nil || len(found) != 1 {
		t.Fatalf("unchanged email lost from index: %v, %v", found, err)
	}

	if _, err := f.cat.UpdateUser(ctx, "missing", map[string]any{"status": "INACTIVE"}); !document.IsKind(err, document.NotFound) {
		t.Fatalf("missing user error = %v", err)
	}

	other := johnDoe()
	other.Email = "other@example.com"
	if _, err := f.cat.CreateUser(ctx, other); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cat.UpdateUser(ctx, user.ID, map[string]any{"email": "OTHER@example.com"}); !document.IsKind(err, document.Conflict) {
		t.Fatalf("email conflict error = %v", err)
	}

	if _, err := f.cat.UpdateUser(ctx, user.ID, map[string]any{"password": "changed1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cat.Authenticate(ctx, Credentials{Email: "john@example.com", Password: "changed1"}); err != nil {
		t.Fatalf("updated password rejected: %v", err)
	}
}

func TestListUsers_Pages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var created []string
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		in := johnDoe()
		in.Email = email
		u, err := f.cat.CreateUser(ctx, in)
		if err != nil {
			t.Fatal(err)
		}
		created = append(created, u.ID)
	}

	first, err := f.cat.ListUsers(ctx, ListOptions{PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids(first.Records), created[:2]) {
		t.Fatalf("first page = %v", ids(first.Records))
	}
	for _, r := range first.Records {
		if r.Fields.Has(FieldPassword) {
			t.Fatal("listing leaked password")
		}
	}

	next, err := f.cat.ListUsers(ctx, ListOptions{Cursor: first.Last, Direction: pagination.Forward, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids(next.Records), created[1:]) {
		t.Fatalf("next page = %v", ids(next.Records))
	}

	if _, err := f.cat.ListUsers(ctx, ListOptions{Cursor: "gone", Direction: pagination.Forward}); !document.IsKind(err, document.NotFound) {
		t.Fatalf("unknown cursor error = %v", err)
	}
}

func TestNewUser_RoleVariants(t *testing.T) {
	store := &Ref{ID: "s1", Name: "Central"}
	tests := []struct {
		role string
		want Role
	}{
		{role: "customer", want: Customer{Location: "12 Main Street"}},
		{role: "STOREMANAGER", want: StoreManager{Store: *store}},
		{role: "Delivery", want: Delivery{Store: store}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got, err := NewUser{Role: tt.role, Location: "12 Main Street", Store: store}.role()
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("role() = %#v, want %#v", got, tt.want)
			}
		})
	}

	for _, name := range []string{"", "admin", "customers"} {
		if _, err := (NewUser{Role: name}).role(); !document.IsKind(err, document.InvalidArgument) {
			t.Fatalf("role(%q) error = %v", name, err)
		}
	}
}
