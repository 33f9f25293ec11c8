// README: Dispatch coordinator; validates transitions, persists them and fans out events.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"towline/internal/fanout"
	"towline/internal/modules/driver"
	"towline/internal/types"
)

var (
	ErrValidation        = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("order state conflict")
	ErrUpstream          = errors.New("upstream unavailable")
)

type Filter struct {
	Status   *Status
	DriverID *types.ID
}

// StatusUpdate is a conditional write: it applies only while the row still
// matches (OrderID, From, Version).
type StatusUpdate struct {
	OrderID     types.ID
	From        Status
	To          Status
	Version     int
	DriverID    *types.ID
	ClearDriver bool
	CancelledAt *time.Time
}

type CompleteUpdate struct {
	OrderID    types.ID
	From       Status
	Version    int
	DistanceKm float64
	Fare       float64
	PaymentID  types.ID
	Now        time.Time
}

type PaidUpdate struct {
	OrderID   types.ID
	From      Status
	Version   int
	Method    string
	Reference string
	Now       time.Time
}

// Store is the persistence boundary for orders and payments.
type Store interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id types.ID) (*Order, error)
	// GetPayment returns ErrNotFound while the order has no payment.
	GetPayment(ctx context.Context, orderID types.ID) (*Payment, error)
	// ListOrders returns matching orders newest first.
	ListOrders(ctx context.Context, f Filter) ([]*Order, error)
	ListPayments(ctx context.Context) ([]*Payment, error)
	// UpdateStatus reports false when the conditional check failed.
	UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error)
	// CompleteOrder transitions to AWAITING_PAYMENT, records distance and
	// fare and upserts a PENDING payment, all in one transaction.
	CompleteOrder(ctx context.Context, u CompleteUpdate) (bool, error)
	// MarkPaid flips the payment to SUCCESS and the order to COMPLETED in
	// one transaction.
	MarkPaid(ctx context.Context, u PaidUpdate) (bool, error)
}

type Pricing interface {
	Quote(ctx context.Context, pickup, dropoff types.Waypoint) (distanceKm, fare float64, err error)
}

type Drivers interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

type Service struct {
	store   Store
	pricing Pricing
	drivers Drivers
	bus     fanout.Bus
	log     *zap.Logger
}

func NewService(store Store, pricing Pricing, drivers Drivers, bus fanout.Bus, log *zap.Logger) *Service {
	return &Service{store: store, pricing: pricing, drivers: drivers, bus: bus, log: log}
}

type CreateCommand struct {
	RequesterID types.ID
	Pickup      types.Waypoint
	Dropoff     types.Waypoint
	DriverID    *types.ID
}

// Create constructs a new order: ASSIGNED when a driver was chosen up
// front, PENDING otherwise.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.RequesterID == "" || cmd.Pickup.IsZero() || cmd.Dropoff.IsZero() {
		return nil, fmt.Errorf("%w: requester and both waypoints are required", ErrValidation)
	}

	status := StatusPending
	if cmd.DriverID != nil {
		if err := s.checkDriver(ctx, *cmd.DriverID); err != nil {
			return nil, err
		}
		status = StatusAssigned
	}

	o := &Order{
		ID:          types.ID(uuid.NewString()),
		RequesterID: cmd.RequesterID,
		DriverID:    cmd.DriverID,
		Status:      status,
		Pickup:      cmd.Pickup,
		Dropoff:     cmd.Dropoff,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, upstream("create order", err)
	}

	s.log.Info("order created",
		zap.String("order_id", string(o.ID)),
		zap.String("status", string(o.Status)))
	s.publish(ctx, o)
	return o, nil
}

// Assign moves a PENDING order to ASSIGNED on behalf of an operator.
func (s *Service) Assign(ctx context.Context, orderID, driverID types.ID) (*Order, error) {
	if err := s.checkDriver(ctx, driverID); err != nil {
		return nil, err
	}

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusAssigned) {
		return nil, ErrInvalidTransition
	}

	ok, err := s.store.UpdateStatus(ctx, StatusUpdate{
		OrderID:  o.ID,
		From:     o.Status,
		To:       StatusAssigned,
		Version:  o.Version,
		DriverID: &driverID,
	})
	if err != nil {
		return nil, upstream("assign order", err)
	}
	if !ok {
		return nil, ErrConflict
	}

	o.Status = StatusAssigned
	o.DriverID = &driverID
	o.Version++
	s.logTransition(o, "assigned")
	s.publish(ctx, o)
	return o, nil
}

// Accept is the assigned driver taking the job. The precondition check and
// the write race against concurrent accept/reject/cancel calls; a lost
// version check is retried once against fresh state, then reported as a
// conflict.
func (s *Service) Accept(ctx context.Context, orderID, driverID types.ID) (*Order, error) {
	for attempt := 0; ; attempt++ {
		o, err := s.load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status.Terminal() {
			return nil, ErrInvalidTransition
		}
		if o.Status != StatusAssigned || o.DriverID == nil || *o.DriverID != driverID {
			return nil, ErrConflict
		}

		ok, err := s.store.UpdateStatus(ctx, StatusUpdate{
			OrderID:  o.ID,
			From:     StatusAssigned,
			To:       StatusInProgress,
			Version:  o.Version,
			DriverID: o.DriverID,
		})
		if err != nil {
			return nil, upstream("accept order", err)
		}
		if ok {
			o.Status = StatusInProgress
			o.Version++
			s.logTransition(o, "accepted")
			s.publish(ctx, o)
			return o, nil
		}
		if attempt == 1 {
			return nil, ErrConflict
		}
	}
}

// Reject is the assigned driver declining the job; the driver is released
// and the order terminates.
func (s *Service) Reject(ctx context.Context, orderID types.ID) (*Order, error) {
	for attempt := 0; ; attempt++ {
		o, err := s.load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !CanTransition(o.Status, StatusRejected) {
			return nil, ErrInvalidTransition
		}

		ok, err := s.store.UpdateStatus(ctx, StatusUpdate{
			OrderID:     o.ID,
			From:        o.Status,
			To:          StatusRejected,
			Version:     o.Version,
			ClearDriver: true,
		})
		if err != nil {
			return nil, upstream("reject order", err)
		}
		if ok {
			o.Status = StatusRejected
			o.DriverID = nil
			o.Version++
			s.logTransition(o, "rejected")
			s.publish(ctx, o)
			return o, nil
		}
		if attempt == 1 {
			return nil, ErrConflict
		}
	}
}

// Complete is the driver marking the ride done: distance and fare are
// computed, a PENDING payment is opened and the order awaits payment.
func (s *Service) Complete(ctx context.Context, orderID types.ID) (*Order, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusAwaitingPayment) {
		return nil, ErrInvalidTransition
	}

	km, fare, err := s.pricing.Quote(ctx, o.Pickup, o.Dropoff)
	if err != nil {
		return nil, upstream("quote fare", err)
	}

	ok, err := s.store.CompleteOrder(ctx, CompleteUpdate{
		OrderID:    o.ID,
		From:       o.Status,
		Version:    o.Version,
		DistanceKm: km,
		Fare:       fare,
		PaymentID:  types.ID(uuid.NewString()),
		Now:        time.Now().UTC(),
	})
	if err != nil {
		return nil, upstream("complete order", err)
	}
	if !ok {
		return nil, ErrConflict
	}

	o.Status = StatusAwaitingPayment
	o.DistanceKm = &km
	o.Fare = &fare
	o.Version++
	s.logTransition(o, "completed ride")
	s.publish(ctx, o)
	return o, nil
}

// Pay confirms payment. Idempotent: a payment already marked SUCCESS
// returns the current pair unchanged and publishes nothing.
func (s *Service) Pay(ctx context.Context, orderID types.ID, method string) (*Order, *Payment, error) {
	if method == "" {
		return nil, nil, fmt.Errorf("%w: payment method is required", ErrValidation)
	}

	for attempt := 0; ; attempt++ {
		o, err := s.load(ctx, orderID)
		if err != nil {
			return nil, nil, err
		}

		p, err := s.store.GetPayment(ctx, orderID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, nil, upstream("load payment", err)
		}
		if p != nil && p.Status == PaymentSuccess {
			return o, p, nil
		}
		if !CanTransition(o.Status, StatusCompleted) {
			return nil, nil, ErrInvalidTransition
		}

		now := time.Now().UTC()
		ok, err := s.store.MarkPaid(ctx, PaidUpdate{
			OrderID:   o.ID,
			From:      o.Status,
			Version:   o.Version,
			Method:    method,
			Reference: uuid.NewString(),
			Now:       now,
		})
		if err != nil {
			return nil, nil, upstream("mark paid", err)
		}
		if ok {
			o.Status = StatusCompleted
			o.CompletedAt = &now
			o.Version++
			paid, err := s.store.GetPayment(ctx, orderID)
			if err != nil {
				return nil, nil, upstream("load payment", err)
			}
			s.logTransition(o, "paid")
			s.publish(ctx, o)
			return o, paid, nil
		}
		if attempt == 1 {
			return nil, nil, ErrConflict
		}
	}
}

// Cancel terminates any non-terminal order on behalf of the requester or an
// operator.
func (s *Service) Cancel(ctx context.Context, orderID types.ID) (*Order, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	ok, err := s.store.UpdateStatus(ctx, StatusUpdate{
		OrderID:     o.ID,
		From:        o.Status,
		To:          StatusCancelled,
		Version:     o.Version,
		ClearDriver: true,
		CancelledAt: &now,
	})
	if err != nil {
		return nil, upstream("cancel order", err)
	}
	if !ok {
		return nil, ErrConflict
	}

	o.Status = StatusCancelled
	o.DriverID = nil
	o.CancelledAt = &now
	o.Version++
	s.logTransition(o, "cancelled")
	s.publish(ctx, o)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.load(ctx, id)
}

// GetWithPayment loads an order and, explicitly, its payment. The payment
// is nil while none exists.
func (s *Service) GetWithPayment(ctx context.Context, id types.ID) (*Order, *Payment, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.store.GetPayment(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return o, nil, nil
	}
	if err != nil {
		return nil, nil, upstream("load payment", err)
	}
	return o, p, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Order, error) {
	orders, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, upstream("list orders", err)
	}
	return orders, nil
}

func (s *Service) ListPayments(ctx context.Context) ([]*Payment, error) {
	payments, err := s.store.ListPayments(ctx)
	if err != nil {
		return nil, upstream("list payments", err)
	}
	return payments, nil
}

func (s *Service) load(ctx context.Context, id types.ID) (*Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, upstream("load order", err)
	}
	return o, nil
}

func (s *Service) checkDriver(ctx context.Context, id types.ID) error {
	d, err := s.drivers.Get(ctx, id)
	if errors.Is(err, driver.ErrNotFound) {
		return fmt.Errorf("%w: driver %s", ErrNotFound, id)
	}
	if err != nil {
		return upstream("load driver", err)
	}
	if !d.Approved {
		return fmt.Errorf("%w: driver %s is not approved", ErrValidation, id)
	}
	return nil
}

// publish runs strictly after the store commit. Subscribers treat events as
// hints and reconcile against stored state, so a failed publish is logged
// rather than failing the already-committed transition.
func (s *Service) publish(ctx context.Context, o *Order) {
	ev := fanout.Event{OrderID: o.ID, Status: string(o.Status), DriverID: o.DriverID}
	if err := s.bus.Publish(ctx, fanout.TopicOperators, ev); err != nil {
		s.log.Warn("fanout publish failed",
			zap.String("topic", fanout.TopicOperators), zap.Error(err))
	}
	if o.DriverID != nil {
		topic := fanout.DriverTopic(*o.DriverID)
		if err := s.bus.Publish(ctx, topic, ev); err != nil {
			s.log.Warn("fanout publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func (s *Service) logTransition(o *Order, action string) {
	fields := []zap.Field{
		zap.String("order_id", string(o.ID)),
		zap.String("status", string(o.Status)),
	}
	if o.DriverID != nil {
		fields = append(fields, zap.String("driver_id", string(*o.DriverID)))
	}
	s.log.Info("order "+action, fields...)
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
