package rabbitmq

import (
	"fmt"

	"school-bus/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

type binding struct {
	queue      string
	exchange   string
	routingKey string
}

// topology lists every queue of the trip exchange with the routing patterns it receives.
var topology = []binding{
	{contracts.QueueTripPositions, contracts.ExchangeTripTopic, contracts.RouteTripPositionPrefix + "*"},
	{contracts.QueueTripStatus, contracts.ExchangeTripTopic, contracts.RouteTripStatusPrefix + "*"},
	{contracts.QueueTripStatus, contracts.ExchangeTripTopic, contracts.RouteTripSupervisionPrefix + "*"},
	{contracts.QueuePassengerStatus, contracts.ExchangeTripTopic, contracts.RoutePassengerStatusPrefix + "*"},
	{contracts.QueuePassengerStatus, contracts.ExchangeTripTopic, contracts.RouteBulkBatchPrefix + "*"},
}

func declareTopology(ch *amqp.Channel) error {
	// 1. Exchange
	if err := ch.ExchangeDeclare(contracts.ExchangeTripTopic, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", contracts.ExchangeTripTopic, err)
	}

	// 2. Queues, each declared once
	declared := make(map[string]bool, len(topology))
	for _, b := range topology {
		if declared[b.queue] {
			continue
		}
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		declared[b.queue] = true
	}

	// 3. Bindings
	for _, b := range topology {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s (%s): %w", b.queue, b.exchange, b.routingKey, err)
		}
	}

	return nil
}
