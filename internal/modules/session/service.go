// README: Chat wizard that walks a requester through placing an order.
// Sessions are held in memory only; a process restart drops in-flight
// wizards and users start over with /order.
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"towline/internal/modules/driver"
	"towline/internal/modules/order"
	"towline/internal/types"
)

const (
	CommandStart  = "/order"
	CommandCancel = "/cancel"
)

type Roster interface {
	ListApproved(ctx context.Context) ([]driver.Driver, error)
}

type Dispatcher interface {
	Create(ctx context.Context, cmd order.CreateCommand) (*order.Order, error)
}

type Service struct {
	roster     Roster
	dispatcher Dispatcher
	idle       time.Duration
	log        *zap.Logger

	now func() time.Time

	mu       sync.Mutex
	sessions map[types.ID]*Session
}

func NewService(roster Roster, dispatcher Dispatcher, idle time.Duration, log *zap.Logger) *Service {
	return &Service{
		roster:     roster,
		dispatcher: dispatcher,
		idle:       idle,
		log:        log,
		now:        time.Now,
		sessions:   make(map[types.ID]*Session),
	}
}

// Handle processes one inbound chat update and returns the reply to send
// back on the same channel. Commands work at any point in the wizard.
func (s *Service) Handle(ctx context.Context, u Update) (string, error) {
	if u.UserID == "" {
		return "", fmt.Errorf("handle update: empty user id")
	}
	text := strings.TrimSpace(u.Text)

	switch {
	case strings.EqualFold(text, CommandStart):
		return s.start(ctx, u.UserID)
	case strings.EqualFold(text, CommandCancel):
		s.drop(u.UserID)
		return "Order cancelled. Send /order to start again.", nil
	}

	sess, ok := s.take(u.UserID)
	if !ok {
		return "Send /order to request a tow truck.", nil
	}
	if sess == nil {
		return "Your session has expired. Send /order to start again.", nil
	}

	switch sess.Step {
	case StepChooseDriver:
		return s.chooseDriver(sess, text), nil
	case StepPickup:
		return s.capturePickup(sess, text, u.Location), nil
	case StepDropoff:
		return s.captureDropoff(sess, text, u.Location), nil
	case StepConfirm:
		return s.confirm(ctx, sess, text)
	default:
		s.drop(u.UserID)
		return "Send /order to request a tow truck.", nil
	}
}

func (s *Service) start(ctx context.Context, userID types.ID) (string, error) {
	drivers, err := s.roster.ListApproved(ctx)
	if err != nil {
		return "", fmt.Errorf("list approved drivers: %w", err)
	}
	if len(drivers) == 0 {
		s.drop(userID)
		return "No drivers are available right now. Please try again later.", nil
	}

	candidates := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		candidates = append(candidates, Candidate{ID: d.ID, Name: d.Name, Rating: d.Rating})
	}

	s.mu.Lock()
	s.sessions[userID] = &Session{
		UserID:     userID,
		Step:       StepChooseDriver,
		Candidates: candidates,
		UpdatedAt:  s.now(),
	}
	s.mu.Unlock()

	return driverListPrompt(candidates), nil
}

func (s *Service) chooseDriver(sess *Session, text string) string {
	idx, err := strconv.Atoi(text)
	if err != nil || idx < 1 || idx > len(sess.Candidates) {
		return "Please pick a driver by number.\n" + driverListPrompt(sess.Candidates)
	}
	chosen := sess.Candidates[idx-1]
	sess.DriverID = &chosen.ID
	sess.Step = StepPickup
	return fmt.Sprintf("Driver %s selected. Where should the truck pick you up? Send a location or type an address.", chosen.Name)
}

func (s *Service) capturePickup(sess *Session, text string, loc *types.Waypoint) string {
	wp, ok := waypointFromUpdate(text, loc)
	if !ok {
		return "I need a pickup point. Send a location or type an address."
	}
	sess.Pickup = wp
	sess.Step = StepDropoff
	return "Got it. Where should the vehicle be towed to? Send a location or type an address."
}

func (s *Service) captureDropoff(sess *Session, text string, loc *types.Waypoint) string {
	wp, ok := waypointFromUpdate(text, loc)
	if !ok {
		return "I need a drop-off point. Send a location or type an address."
	}
	sess.Dropoff = wp
	sess.Step = StepConfirm
	return fmt.Sprintf(
		"Please confirm your order:\nDriver: %s\nPickup: %s\nDrop-off: %s\nReply \"confirm\" to submit or /cancel to abort.",
		driverName(sess), sess.Pickup.String(), sess.Dropoff.String(),
	)
}

func (s *Service) confirm(ctx context.Context, sess *Session, text string) (string, error) {
	if !strings.EqualFold(text, "confirm") {
		return "Reply \"confirm\" to submit the order or /cancel to abort.", nil
	}

	// The wizard is done regardless of how the create call goes; a failed
	// submit should not leave the user stuck on the confirm step.
	s.drop(sess.UserID)

	o, err := s.dispatcher.Create(ctx, order.CreateCommand{
		RequesterID: sess.UserID,
		Pickup:      sess.Pickup,
		Dropoff:     sess.Dropoff,
		DriverID:    sess.DriverID,
	})
	if err != nil {
		s.log.Warn("wizard order create failed", zap.String("user_id", string(sess.UserID)), zap.Error(err))
		return "Sorry, the order could not be created. Send /order to try again.", nil
	}
	return fmt.Sprintf("Order %s created. Driver %s has been notified.", o.ID, driverName(sess)), nil
}

// take returns the caller's live session. The second return is false when
// no session exists; a nil session with ok=true means it had expired and
// has been removed.
func (s *Service) take(userID types.ID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.Sub(sess.UpdatedAt) > s.idle {
		delete(s.sessions, userID)
		return nil, true
	}
	sess.UpdatedAt = now
	return sess, true
}

func (s *Service) drop(userID types.ID) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// RunJanitor sweeps idle sessions until ctx is done.
func (s *Service) RunJanitor(ctx context.Context) {
	interval := s.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(s.now()); n > 0 {
				s.log.Info("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *Service) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt) > s.idle {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func waypointFromUpdate(text string, loc *types.Waypoint) (types.Waypoint, bool) {
	if loc != nil && loc.HasCoords() {
		return *loc, true
	}
	if text != "" {
		return types.AddressWaypoint(text), true
	}
	return types.Waypoint{}, false
}

func driverName(sess *Session) string {
	if sess.DriverID == nil {
		return "?"
	}
	for _, c := range sess.Candidates {
		if c.ID == *sess.DriverID {
			return c.Name
		}
	}
	return string(*sess.DriverID)
}

func driverListPrompt(candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("Available drivers:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s (%.1f)\n", i+1, c.Name, c.Rating)
	}
	b.WriteString("Reply with the driver's number.")
	return b.String()
}
