package rabbitmq

import "fmt"

const (
	// BroadcastExchange is a topic exchange; the routing key is the private
	// channel name, e.g. customer.7.orders.
	BroadcastExchange = "order_broadcasts"
	// BroadcastDLX receives broadcasts a subscriber could not handle.
	BroadcastDLX = "order_broadcasts_dlx"

	NotificationsExchange = "notifications_fanout"

	HoldsExchange   = "inventory_holds"
	HoldsReleaseKey = "holds.release"
)

type exchange struct {
	name string
	kind string
}

var exchanges = []exchange{
	{BroadcastExchange, "topic"},
	{BroadcastDLX, "fanout"},
	{NotificationsExchange, "fanout"},
	{HoldsExchange, "direct"},
}

// declareExchanges is idempotent, so publishers and consumers both call it
// on every new channel.
func declareExchanges(ch Channel) error {
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}
