// README: SSE bridge from the fanout bus to operator and driver clients.
package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"towline/internal/fanout"
)

type EventsHandler struct {
	bus fanout.Bus
}

func NewEventsHandler(bus fanout.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

func validTopic(topic string) bool {
	if topic == fanout.TopicOperators {
		return true
	}
	return strings.HasPrefix(topic, "driver:") && len(topic) > len("driver:")
}

// Stream subscribes the client to one topic and relays events until the
// client disconnects. Delivery is at-least-once from subscription onward;
// there is no replay of earlier events.
func (h *EventsHandler) Stream(c *gin.Context) {
	topic := c.Query("topic")
	if !validTopic(topic) {
		writeError(c, http.StatusBadRequest, "unknown topic")
		return
	}

	events, cancel := h.bus.Subscribe(c.Request.Context(), topic)
	defer cancel()

	// Flush headers right away so clients know the subscription is live
	// before the first event arrives.
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("order", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
