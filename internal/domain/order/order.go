package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/voucher"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusProcessing          Status = "processing"
	StatusShipping            Status = "shipping"
	StatusDelivered           Status = "delivered"
	StatusCancelled           Status = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Role is the capacity in which an actor touches an order.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Actor identifies who performs an operation.
type Actor struct {
	UserID string
	Role   Role
}

// Sentinel errors for order placement and transitions.
var (
	ErrMissingAddress    = errors.New("shipping address required")
	ErrMissingUser       = errors.New("user required")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrOrderNotFound     = errors.New("order not found")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Address is the shipping destination of an order.
type Address struct {
	RecipientName string `json:"recipientName"`
	Phone         string `json:"phone"`
	Detail        string `json:"detail"`
}

// Complete reports whether the address can be shipped to.
func (a *Address) Complete() bool {
	return a != nil && strings.TrimSpace(a.Detail) != ""
}

// StatusChange records one applied transition.
type StatusChange struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	Role Role      `json:"role"`
	At   time.Time `json:"at"`
}

// Order is a placed order. Items are a snapshot taken at purchase time.
type Order struct {
	ID             string             `json:"id"`
	UserID         string             `json:"userId"`
	Items          []pricing.LineItem `json:"items"`
	Address        Address            `json:"address"`
	Voucher        *voucher.Voucher   `json:"voucher,omitempty"`
	Subtotal       int64              `json:"subtotal"`
	DiscountAmount int64              `json:"discountAmount"`
	TotalPrice     int64              `json:"totalPrice"`
	Status         Status             `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	History        []StatusChange     `json:"history,omitempty"`
}

// HasSeller reports whether any line item belongs to sellerID.
func (o *Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// VisibleTo reports whether the actor may see the order: buyers their own
// orders, sellers orders containing their products.
func (o *Order) VisibleTo(a Actor) bool {
	switch a.Role {
	case RoleBuyer:
		return o.UserID == a.UserID
	case RoleSeller:
		return o.HasSeller(a.UserID)
	default:
		return false
	}
}

// Repository persists the full order collection.
type Repository interface {
	LoadAll(ctx context.Context) ([]Order, error)
	SaveAll(ctx context.Context, orders []Order) error
	Upsert(ctx context.Context, o Order) error
}
