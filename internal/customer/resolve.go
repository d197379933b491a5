// Package customer decides who an order belongs to: an authenticated user, or a
// freshly recorded guest.
package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrMissingEmail = errors.New("an email address is required for guest checkout")

// Resolve attaches the order to userID when set. Otherwise it records a new
// guest from the address contact fields, even if the same email checked out
// before.
func Resolve(ctx context.Context, repo Repository, userID, userEmail string, addr Address) (Ref, error) {
	addr = addr.Normalize()
	if userID != "" {
		email := addr.Email
		if email == "" {
			email = strings.ToLower(strings.TrimSpace(userEmail))
		}
		id := userID
		return Ref{UserID: &id, Email: email}, nil
	}

	if addr.Email == "" {
		return Ref{}, ErrMissingEmail
	}
	g := &Guest{
		ID:              uuid.NewString(),
		Email:           addr.Email,
		FirstName:       addr.FirstName,
		LastName:        addr.LastName,
		Phone:           addr.Phone,
		ShippingAddress: addr,
	}
	if err := repo.CreateGuest(ctx, g); err != nil {
		return Ref{}, fmt.Errorf("create guest customer: %w", err)
	}
	return Ref{GuestID: &g.ID, Email: g.Email}, nil
}
