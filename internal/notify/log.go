package notify

import (
	"context"
	"log"
)

// LogNotifier writes notifications to the process log. It is the delivery
// implementation shipped with the server; real-time channels (websocket,
// email) plug in behind the same interface.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Deliver(_ context.Context, msg Message) {
	log.Printf("notify user=%s event=%s reservation=%s book=%s: %s",
		msg.UserID, msg.Event, msg.ReservationID, msg.BookID, msg.Body)
}
