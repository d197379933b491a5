package order

import (
	"errors"
	"fmt"
	"strings"
)

// Status is closed: the only values are the constants below.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var ErrUnknownStatus = errors.New("unknown order status")

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	case "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// Actor identifies who requested a transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
	ActorPayment  Actor = "payment_provider"
	ActorSystem   Actor = "system"
)

// Notification names the email a transition triggers.
type Notification string

const (
	NotifyNone      Notification = ""
	NotifyConfirmed Notification = "order_confirmation"
	NotifyShipped   Notification = "shipping_notification"
	NotifyDelivered Notification = "delivery_confirmation"
)

// Effects are the side effects the caller must carry out for a transition.
type Effects struct {
	ReleaseStock bool
	Notify       Notification
}

type rule struct {
	actors  []Actor
	effects Effects
}

var transitions = map[Status]map[Status]rule{
	StatusPending: {
		StatusPaid:      {actors: []Actor{ActorPayment, ActorAdmin}, effects: Effects{Notify: NotifyConfirmed}},
		StatusCancelled: {actors: []Actor{ActorCustomer, ActorPayment, ActorAdmin, ActorSystem}, effects: Effects{ReleaseStock: true}},
	},
	StatusPaid: {
		StatusShipped:   {actors: []Actor{ActorAdmin}, effects: Effects{Notify: NotifyShipped}},
		StatusCancelled: {actors: []Actor{ActorAdmin}, effects: Effects{ReleaseStock: true}},
	},
	StatusShipped: {
		StatusDelivered: {actors: []Actor{ActorAdmin}, effects: Effects{Notify: NotifyDelivered}},
	},
}

// InvalidTransitionError is a logic error: retrying will not help.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}

// ErrForbiddenTransition means the edge exists but not for this actor.
var ErrForbiddenTransition = errors.New("transition not permitted for actor")

// CanTransition reports whether the edge exists for any actor.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// Transition validates from -> to for actor and returns the effects to apply.
func Transition(from, to Status, actor Actor) (Effects, error) {
	r, ok := transitions[from][to]
	if !ok {
		return Effects{}, &InvalidTransitionError{From: from, To: to}
	}
	for _, a := range r.actors {
		if a == actor {
			return r.effects, nil
		}
	}
	return Effects{}, fmt.Errorf("%w: %s cannot move order %s -> %s", ErrForbiddenTransition, actor, from, to)
}
