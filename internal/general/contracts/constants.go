package contracts

// Exchanges
const (
	ExchangeTripTopic = "trip_topic"
)

// Queues
const (
	QueueTripPositions   = "trip_position_updates"
	QueueTripStatus      = "trip_status"
	QueuePassengerStatus = "passenger_status"
)

// Routing patterns
const (
	RouteTripStatusPrefix      = "trip.status."      // {status}
	RouteTripSupervisionPrefix = "trip.supervision." // {trip_id}
	RouteTripPositionPrefix    = "trip.position."    // {trip_id}
	RoutePassengerStatusPrefix = "passenger.status." // {status}
	RouteBulkBatchPrefix       = "bulk.batch."       // {trip_id}
)

// Producers
const (
	ProducerTripService    = "trip-service"
	ProducerTrackerService = "tracker-service"
)
