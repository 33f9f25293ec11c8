package order

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"towline/internal/fanout"
	"towline/internal/modules/driver"
	"towline/internal/modules/pricing"
	"towline/internal/types"
)

type fakeDrivers struct {
	byID map[types.ID]driver.Driver
}

func (f *fakeDrivers) Get(_ context.Context, id types.ID) (*driver.Driver, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return &d, nil
}

type recordBus struct {
	mu     sync.Mutex
	topics []string
	events []fanout.Event
}

func (b *recordBus) Publish(_ context.Context, topic string, ev fanout.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.events = append(b.events, ev)
	return nil
}

func (b *recordBus) Subscribe(context.Context, string) (<-chan fanout.Event, func()) {
	ch := make(chan fanout.Event)
	close(ch)
	return ch, func() {}
}

func (b *recordBus) countStatus(status string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Status == status {
			n++
		}
	}
	return n
}

func newTestService() (*Service, *MemStore, *recordBus) {
	store := NewMemStore()
	bus := &recordBus{}
	drivers := &fakeDrivers{byID: map[types.ID]driver.Driver{
		"d7":      {ID: "d7", Name: "Merdan", Rating: 4.9, Approved: true},
		"d8":      {ID: "d8", Name: "Aman", Rating: 4.1, Approved: true},
		"pending": {ID: "pending", Name: "Newbie", Approved: false},
	}}
	svc := NewService(store, pricing.NewService(nil, 10), drivers, bus, zap.NewNop())
	return svc, store, bus
}

// checkInvariants verifies the two cross-field invariants that must hold
// after every transition.
func checkInvariants(t *testing.T, o *Order) {
	t.Helper()
	driverStates := map[Status]bool{
		StatusAssigned: true, StatusInProgress: true,
		StatusAwaitingPayment: true, StatusCompleted: true,
	}
	if driverStates[o.Status] != (o.DriverID != nil) {
		t.Fatalf("driver invariant broken: status=%s driver=%v", o.Status, o.DriverID)
	}
	fareStates := map[Status]bool{StatusAwaitingPayment: true, StatusCompleted: true}
	if fareStates[o.Status] != (o.Fare != nil && o.DistanceKm != nil) {
		t.Fatalf("fare invariant broken: status=%s fare=%v distance=%v", o.Status, o.Fare, o.DistanceKm)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	tests := []struct {
		name string
		cmd  CreateCommand
	}{
		{name: "missing requester", cmd: CreateCommand{
			Pickup: types.CoordWaypoint(1, 1), Dropoff: types.CoordWaypoint(2, 2),
		}},
		{name: "missing pickup", cmd: CreateCommand{
			RequesterID: "u1", Dropoff: types.CoordWaypoint(2, 2),
		}},
		{name: "missing dropoff", cmd: CreateCommand{
			RequesterID: "u1", Pickup: types.CoordWaypoint(1, 1),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.cmd); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateDriverChecks(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	unknown := types.ID("ghost")
	cmd := CreateCommand{
		RequesterID: "u1",
		Pickup:      types.CoordWaypoint(1, 1),
		Dropoff:     types.CoordWaypoint(2, 2),
		DriverID:    &unknown,
	}
	if _, err := svc.Create(ctx, cmd); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown driver, got %v", err)
	}

	unapproved := types.ID("pending")
	cmd.DriverID = &unapproved
	if _, err := svc.Create(ctx, cmd); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unapproved driver, got %v", err)
	}
}

func TestDispatchLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, bus := newTestService()

	o, err := svc.Create(ctx, CreateCommand{
		RequesterID: "u1",
		Pickup:      types.CoordWaypoint(55.75, 37.61),
		Dropoff:     types.CoordWaypoint(55.76, 37.62),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", o.Status)
	}
	checkInvariants(t, o)

	o, err = svc.Assign(ctx, o.ID, "d7")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if o.Status != StatusAssigned || o.DriverID == nil || *o.DriverID != "d7" {
		t.Fatalf("unexpected order after assign: %+v", o)
	}
	checkInvariants(t, o)

	o, err = svc.Accept(ctx, o.ID, "d7")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if o.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", o.Status)
	}
	checkInvariants(t, o)

	o, err = svc.Complete(ctx, o.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if o.Status != StatusAwaitingPayment {
		t.Fatalf("expected AWAITING_PAYMENT, got %s", o.Status)
	}
	if o.Fare == nil || *o.Fare <= 0 {
		t.Fatalf("expected positive fare, got %v", o.Fare)
	}
	if *o.Fare != pricing.Fare(*o.DistanceKm, 10) {
		t.Fatalf("fare %f does not match distance %f at rate 10", *o.Fare, *o.DistanceKm)
	}
	checkInvariants(t, o)

	o, p, err := svc.Pay(ctx, o.ID, "CASH")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if o.Status != StatusCompleted || o.CompletedAt == nil {
		t.Fatalf("unexpected order after pay: %+v", o)
	}
	if p.Status != PaymentSuccess || p.Method != "CASH" || p.Amount != *o.Fare {
		t.Fatalf("unexpected payment after pay: %+v", p)
	}
	checkInvariants(t, o)

	// One operator event per transition, plus driver-topic copies from
	// ASSIGNED onwards.
	wantOperator := []string{"PENDING", "ASSIGNED", "IN_PROGRESS", "AWAITING_PAYMENT", "COMPLETED"}
	var gotOperator []string
	for i, topic := range bus.topics {
		if topic == fanout.TopicOperators {
			gotOperator = append(gotOperator, bus.events[i].Status)
		}
	}
	if !reflect.DeepEqual(gotOperator, wantOperator) {
		t.Fatalf("operator events = %v, want %v", gotOperator, wantOperator)
	}
	driverEvents := 0
	for _, topic := range bus.topics {
		if topic == fanout.DriverTopic("d7") {
			driverEvents++
		}
	}
	if driverEvents != 4 {
		t.Fatalf("expected 4 driver-topic events, got %d", driverEvents)
	}
}

func TestAddressOnlyWaypointYieldsZeroFare(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	d := types.ID("d7")
	o, err := svc.Create(ctx, CreateCommand{
		RequesterID: "u1",
		Pickup:      types.AddressWaypoint("broken down near the old bridge"),
		Dropoff:     types.CoordWaypoint(55.76, 37.62),
		DriverID:    &d,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Accept(ctx, o.ID, "d7"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	o, err = svc.Complete(ctx, o.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if *o.DistanceKm != 0 || *o.Fare != 0 {
		t.Fatalf("address-only waypoint must price at zero, got km=%v fare=%v", *o.DistanceKm, *o.Fare)
	}
}

func TestInvalidTransitionsLeaveOrderUntouched(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	d := types.ID("d7")
	o, err := svc.Create(ctx, CreateCommand{
		RequesterID: "u1",
		Pickup:      types.CoordWaypoint(55.75, 37.61),
		Dropoff:     types.CoordWaypoint(55.76, 37.62),
		DriverID:    &d,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Accept(ctx, o.ID, "d7"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Complete(ctx, o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, _, err := svc.Pay(ctx, o.ID, "CASH"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	before, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	attempts := []struct {
		name string
		call func() error
	}{
		{"reject completed", func() error { _, err := svc.Reject(ctx, o.ID); return err }},
		{"cancel completed", func() error { _, err := svc.Cancel(ctx, o.ID); return err }},
		{"accept completed", func() error { _, err := svc.Accept(ctx, o.ID, "d7"); return err }},
		{"complete completed", func() error { _, err := svc.Complete(ctx, o.ID); return err }},
		{"assign completed", func() error { _, err := svc.Assign(ctx, o.ID, "d8"); return err }},
	}
	for _, tt := range attempts {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			after, err := svc.Get(ctx, o.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !reflect.DeepEqual(before, after) {
				t.Fatalf("order changed by failed transition:\nbefore %+v\nafter  %+v", before, after)
			}
		})
	}
}

func TestAcceptPreconditions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	o, err := svc.Create(ctx, CreateCommand{
		RequesterID: "u1",
		Pickup:      types.CoordWaypoint(1, 1),
		Dropoff:     types.CoordWaypoint(2, 2),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Not assigned yet.
	if _, err := svc.Accept(ctx, o.ID, "d7"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on unassigned order, got %v", err)
	}

	if _, err := svc.Assign(ctx, o.ID, "d7"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Wrong driver.
	if _, err := svc.Accept(ctx, o.ID, "d8"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for wrong driver, got %v", err)
	}
}

func TestRejectClearsDriver(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	d := types.ID("d7")
	o, err := svc.Create(ctx, CreateCommand{
		RequesterID: "u1",
		Pickup:      types.CoordWaypoint(1, 1),
		Dropoff:     types.CoordWaypoint(2, 2),
		DriverID:    &d,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	o, err = svc.Reject(ctx, o.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if o.Status != StatusRejected || o.DriverID != nil {
		t.Fatalf("expected REJECTED with no driver, got %+v", o)
	}
	checkInvariants(t, o)
}

func TestCancelFromEveryLiveState(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	d := types.ID("d7")
	setups := []struct {
		name  string
		setup func() types.ID
	}{
		{"pending", func() types.ID {
			o, _ := svc.Create(ctx, CreateCommand{
				RequesterID: "u1",
				Pickup:      types.CoordWaypoint(1, 1), Dropoff: types.CoordWaypoint(2, 2),
			})
			return o.ID
		}},
		{"assigned", func() types.ID {
			o, _ := svc.Create(ctx, CreateCommand{
				RequesterID: "u1",
				Pickup:      types.CoordWaypoint(1, 1), Dropoff: types.CoordWaypoint(2, 2),
				DriverID:    &d,
			})
			return o.ID
		}},
		{"in progress", func() types.ID {
			o, _ := svc.Create(ctx, CreateCommand{
				RequesterID: "u1",
				Pickup:      types.CoordWaypoint(1, 1), Dropoff: types.CoordWaypoint(2, 2),
				DriverID:    &d,
			})
			_, _ = svc.Accept(ctx, o.ID, d)
			return o.ID
		}},
		{"awaiting payment", func() types.ID {
			o, _ := svc.Create(ctx, CreateCommand{
				RequesterID: "u1",
				Pickup:      types.CoordWaypoint(1, 1), Dropoff: types.CoordWaypoint(2, 2),
				DriverID:    &d,
			})
			_, _ = svc.Accept(ctx, o.ID, d)
			_, _ = svc.Complete(ctx, o.ID)
			return o.ID
		}},
	}
	for _, tt := range setups {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.setup()
			o, err := svc.Cancel(ctx, id)
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if o.Status != StatusCancelled || o.DriverID != nil {
				t.Fatalf("expected CANCELLED with no driver, got %+v", o)
			}
		})
	}
}

func TestPayIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, bus := newTestService()

	d := types.ID("d7")
	o, err := svc.Create(ctx, CreateCommand{
		RequesterID: "u1",
		Pickup:      types.CoordWaypoint(55.75, 37.61),
		Dropoff:     types.CoordWaypoint(55.76, 37.62),
		DriverID:    &d,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Accept(ctx, o.ID, d); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Complete(ctx, o.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, first, err := svc.Pay(ctx, o.ID, "CASH")
	if err != nil {
		t.Fatalf("first pay: %v", err)
	}
	_, second, err := svc.Pay(ctx, o.ID, "CARD")
	if err != nil {
		t.Fatalf("second pay: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second pay changed the payment:\nfirst  %+v\nsecond %+v", first, second)
	}
	if second.Method != "CASH" {
		t.Fatalf("second pay must not overwrite method, got %s", second.Method)
	}
	if n := bus.countStatus("COMPLETED"); n != 2 {
		// operators + driver topic for the single committed transition
		t.Fatalf("expected exactly 2 COMPLETED events (one per topic), got %d", n)
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	d := types.ID("d7")
	o, err := svc.Create(ctx, CreateCommand{
		RequesterID: "u1",
		Pickup:      types.CoordWaypoint(55.75, 37.61),
		Dropoff:     types.CoordWaypoint(55.76, 37.62),
		DriverID:    &d,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Accept(ctx, o.ID, d)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful accept, got %d", success)
	}

	final, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != StatusInProgress || final.DriverID == nil || *final.DriverID != d {
		t.Fatalf("unexpected final order: %+v", final)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, CreateCommand{
			RequesterID: types.ID(fmt.Sprintf("u%d", i)),
			Pickup:      types.CoordWaypoint(1, 1),
			Dropoff:     types.CoordWaypoint(2, 2),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	orders, err := svc.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	for i := 0; i+1 < len(orders); i++ {
		if orders[i].CreatedAt.Before(orders[i+1].CreatedAt) {
			t.Fatalf("orders not newest first at %d", i)
		}
	}

	st := StatusPending
	filtered, err := svc.List(ctx, Filter{Status: &st})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 3 {
		t.Fatalf("expected 3 pending orders, got %d", len(filtered))
	}
}
