// README: Realtime fanout bus; publishes order transition hints to connected clients.
package fanout

import (
	"context"

	"towline/internal/types"
)

// TopicOperators is the global topic every operator dashboard subscribes to.
const TopicOperators = "operators"

// DriverTopic names the per-driver topic the driver app subscribes to.
func DriverTopic(id types.ID) string {
	return "driver:" + string(id)
}

// Event mirrors what web and mobile clients receive on every committed
// order transition.
type Event struct {
	OrderID  types.ID  `json:"order_id"`
	Status   string    `json:"status"`
	DriverID *types.ID `json:"driver_id"`
}

// Bus delivers events at-least-once to subscribers connected at publish
// time. There is no replay: a client that connects after an event was
// published reconciles by re-reading current order state.
type Bus interface {
	Publish(ctx context.Context, topic string, ev Event) error
	// Subscribe returns a channel of events for topic and a cancel func
	// that detaches the subscriber and closes the channel.
	Subscribe(ctx context.Context, topic string) (<-chan Event, func())
}
