// README: Conversation session model for the order-placement wizard.
package session

import (
	"time"

	"towline/internal/types"
)

type Step string

const (
	StepChooseDriver Step = "CHOOSE_DRIVER"
	StepPickup       Step = "PICKUP"
	StepDropoff      Step = "DROPOFF"
	StepConfirm      Step = "CONFIRM"
)

// Candidate is a snapshot of an approved driver taken when the wizard
// starts. The numbered list shown to the user indexes into this slice,
// so later roster changes cannot shift the user's selection.
type Candidate struct {
	ID     types.ID
	Name   string
	Rating float64
}

type Session struct {
	UserID     types.ID
	Step       Step
	Candidates []Candidate
	DriverID   *types.ID
	Pickup     types.Waypoint
	Dropoff    types.Waypoint
	UpdatedAt  time.Time
}

// Update is a single inbound message from the user's chat channel.
// Location is set when the channel delivered a geo attachment.
type Update struct {
	UserID   types.ID
	Text     string
	Location *types.Waypoint
}
