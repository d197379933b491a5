package customer

import (
	"strings"
	"time"
)

// Address is the shipping block submitted at checkout. Email and phone double
// as the contact details for guest orders.
// swagger:model Address
type Address struct {
	FirstName  string `json:"firstName"  binding:"required,max=100" example:"Thandi"`
	LastName   string `json:"lastName"   binding:"required,max=100" example:"Mokoena"`
	Address1   string `json:"address1"   binding:"required,max=200" example:"12 Long Street"`
	Address2   string `json:"address2,omitempty" binding:"max=200"`
	City       string `json:"city"       binding:"required,max=100" example:"Cape Town"`
	State      string `json:"state,omitempty" binding:"max=100"`
	PostalCode string `json:"postalCode" binding:"required,max=20" example:"8001"`
	Country    string `json:"country"    binding:"required,max=60" example:"ZA"`
	Phone      string `json:"phone,omitempty" binding:"omitempty,phone"`
	Email      string `json:"email,omitempty" binding:"omitempty,email" example:"thandi@example.com"`
}

// Normalize trims every field and lower-cases the email.
func (a Address) Normalize() Address {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Address1 = strings.TrimSpace(a.Address1)
	a.Address2 = strings.TrimSpace(a.Address2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	return a
}

// Guest is a contact record for a checkout without an account. One row is
// written per guest checkout; rows are never merged.
type Guest struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Phone           string    `json:"phone,omitempty"`
	ShippingAddress Address   `json:"shipping_address"`
	CreatedAt       time.Time `json:"created_at"`
}

// Ref is what an order records about its customer: exactly one of UserID or
// GuestID is set.
type Ref struct {
	UserID  *string
	GuestID *string
	Email   string
}
