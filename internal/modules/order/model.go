// README: Order and Payment aggregates, status definitions and the transition table.
package order

import (
	"time"

	"towline/internal/types"
)

type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAssigned        Status = "ASSIGNED"
	StatusInProgress      Status = "IN_PROGRESS"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusCompleted       Status = "COMPLETED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
)

// AllowedTransitions represents the dispatch state flow as code. Statuses
// absent from the map are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:         {StatusAssigned, StatusCancelled},
	StatusAssigned:        {StatusInProgress, StatusRejected, StatusCancelled},
	StatusInProgress:      {StatusAwaitingPayment, StatusCancelled},
	StatusAwaitingPayment: {StatusCompleted, StatusCancelled},
}

func (s Status) Terminal() bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Order is a single tow request. Version backs optimistic concurrency:
// every status write bumps it and is conditional on the value read.
type Order struct {
	ID          types.ID
	RequesterID types.ID
	DriverID    *types.ID
	Status      Status
	Version     int
	Pickup      types.Waypoint
	Dropoff     types.Waypoint
	DistanceKm  *float64
	Fare        *float64
	CreatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Payment is one-to-one with an order once the fare is known. Amount equals
// the order fare at creation and is frozen once status reaches SUCCESS.
type Payment struct {
	ID        types.ID
	OrderID   types.ID
	Amount    float64
	Status    PaymentStatus
	Method    string
	Reference string
	CreatedAt time.Time
	UpdatedAt time.Time
}
