// README: In-memory order store; honors the same conditional-write contract as Postgres.
package order

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"towline/internal/types"
)

// MemStore backs tests and single-node development runs. All writes go
// through the same (id, status, version) check the SQL store applies.
type MemStore struct {
	mu       sync.Mutex
	orders   map[types.ID]*Order
	payments map[types.ID]*Payment // keyed by order ID
}

func NewMemStore() *MemStore {
	return &MemStore{
		orders:   make(map[types.ID]*Order),
		payments: make(map[types.ID]*Payment),
	}
}

func (s *MemStore) CreateOrder(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *MemStore) GetOrder(_ context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (s *MemStore) ListOrders(_ context.Context, f Filter) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.DriverID != nil && (o.DriverID == nil || *o.DriverID != *f.DriverID) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) UpdateStatus(_ context.Context, u StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[u.OrderID]
	if !ok || o.Status != u.From || o.Version != u.Version {
		return false, nil
	}
	o.Status = u.To
	o.Version++
	if u.ClearDriver {
		o.DriverID = nil
	} else if u.DriverID != nil {
		id := *u.DriverID
		o.DriverID = &id
	}
	if u.CancelledAt != nil {
		t := *u.CancelledAt
		o.CancelledAt = &t
	}
	return true, nil
}

func (s *MemStore) CompleteOrder(_ context.Context, u CompleteUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[u.OrderID]
	if !ok || o.Status != u.From || o.Version != u.Version {
		return false, nil
	}
	o.Status = StatusAwaitingPayment
	o.Version++
	km, fare := u.DistanceKm, u.Fare
	o.DistanceKm = &km
	o.Fare = &fare

	if p, ok := s.payments[u.OrderID]; ok {
		if p.Status != PaymentSuccess {
			p.Amount = fare
			p.UpdatedAt = u.Now
		}
		return true, nil
	}
	s.payments[u.OrderID] = &Payment{
		ID:        u.PaymentID,
		OrderID:   u.OrderID,
		Amount:    fare,
		Status:    PaymentPending,
		CreatedAt: u.Now,
		UpdatedAt: u.Now,
	}
	return true, nil
}

func (s *MemStore) MarkPaid(_ context.Context, u PaidUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[u.OrderID]
	if !ok || o.Status != u.From || o.Version != u.Version {
		return false, nil
	}
	p, ok := s.payments[u.OrderID]
	if !ok || p.Status == PaymentSuccess {
		return false, nil
	}
	o.Status = StatusCompleted
	o.Version++
	t := u.Now
	o.CompletedAt = &t
	p.Status = PaymentSuccess
	p.Method = u.Method
	p.Reference = u.Reference
	p.UpdatedAt = u.Now
	return true, nil
}

func (s *MemStore) GetPayment(_ context.Context, orderID types.ID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: payment for order %s", ErrNotFound, orderID)
	}
	clone := *p
	return &clone, nil
}

func (s *MemStore) ListPayments(_ context.Context) ([]*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Payment
	for _, p := range s.payments {
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneOrder(o *Order) *Order {
	clone := *o
	if o.DriverID != nil {
		id := *o.DriverID
		clone.DriverID = &id
	}
	if o.DistanceKm != nil {
		v := *o.DistanceKm
		clone.DistanceKm = &v
	}
	if o.Fare != nil {
		v := *o.Fare
		clone.Fare = &v
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		clone.CompletedAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		clone.CancelledAt = &t
	}
	return &clone
}
