package auth_test

import (
	"context"
	"fmt"
	"time"

	"github.com/nimburion/storefront/pkg/auth"
)

// This example issues a token for a user and validates it back.
func ExampleTokenService() {
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: "change-me-change-me-change-me-32b",
		Issuer: "storefront",
		TTL:    time.Hour,
	}, nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	token, _, err := tokens.Issue("user-42", "jane@example.com", "storeManager")
	if err != nil {
		fmt.Println(err)
		return
	}

	claims, err := tokens.Validate(context.Background(), token)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(claims.Subject, claims.Role)
	// Output: user-42 storeManager
}
