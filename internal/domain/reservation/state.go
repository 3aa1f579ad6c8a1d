package reservation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTransition = errors.New("reservation: invalid state transition")

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPaid    PaymentStatus = "paid"
	PaymentExpired PaymentStatus = "expired"
)

// ParseStatus maps a stored status onto the enum.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("reservation: unknown status %q", raw)
}

// ParsePaymentStatus maps a stored payment status onto the enum. Legacy rows
// carry an empty or "pending" value; both mean nothing was paid yet.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch p := PaymentStatus(strings.ToLower(strings.TrimSpace(raw))); p {
	case PaymentUnpaid, PaymentPaid, PaymentExpired:
		return p, nil
	case "", "pending":
		return PaymentUnpaid, nil
	}
	return "", fmt.Errorf("reservation: unknown payment status %q", raw)
}

// State is the (status, payment status) pair. Only pairs listed in the
// transition table are reachable.
type State struct {
	Status  Status
	Payment PaymentStatus
}

func (s State) String() string {
	return string(s.Status) + "/" + string(s.Payment)
}

type Transition string

const (
	TransitionConfirm Transition = "confirm"
	TransitionExpire  Transition = "expire"
)

var (
	StateHeld      = State{Status: StatusPending, Payment: PaymentUnpaid}
	StateConfirmed = State{Status: StatusConfirmed, Payment: PaymentPaid}
	StateExpired   = State{Status: StatusCancelled, Payment: PaymentExpired}
)

// Terminal states have no outgoing edges, so nothing returns to pending.
var transitions = map[State]map[Transition]State{
	StateHeld: {
		TransitionConfirm: StateConfirmed,
		TransitionExpire:  StateExpired,
	},
}

// Next returns the state reached by applying t, or ErrInvalidTransition.
func (s State) Next(t Transition) (State, error) {
	edges, ok := transitions[s]
	if !ok {
		return State{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, s)
	}
	next, ok := edges[t]
	if !ok {
		return State{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, s)
	}
	return next, nil
}

func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}
