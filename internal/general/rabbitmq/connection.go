package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"school-bus/internal/general/config"
	"school-bus/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	heartbeat   = 10 * time.Second
	dialTimeout = 30 * time.Second
	maxBackoff  = 30 * time.Second
)

// Client owns one AMQP connection plus a confirming publish channel, and redials both
// with backoff whenever either closes. Consumers open their own channels on conn.
type Client struct {
	url    string
	name   string // shown in the broker's connection list
	logger *logger.Logger
	logCtx context.Context

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	pubMu       sync.Mutex
	pubConfirms chan amqp.Confirmation

	closed    chan struct{}
	reconnect chan struct{}
}

// ConnectRabbitMQ dials once, declares the trip topology, and keeps the link alive in the background.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Client, error) {
	client := &Client{
		url:       amqpURL(cfg),
		name:      "school-bus/" + logger.Service(),
		logger:    logger,
		logCtx:    context.WithoutCancel(ctx),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	if err := client.connect(); err != nil {
		return nil, err
	}
	go client.watch()

	return client, nil
}

// Close stops reconnecting and releases the connection. Safe to call twice.
func (client *Client) Close() {
	select {
	case <-client.closed:
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()

	// wake publishers still waiting on a confirm
	client.pubMu.Lock()
	if client.pubConfirms != nil {
		close(client.pubConfirms)
		client.pubConfirms = nil
	}
	client.pubMu.Unlock()
}

// Ready reports whether the connection and publishing channel are currently open.
func (client *Client) Ready() bool {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.conn != nil && !client.conn.IsClosed() && client.pubChan != nil && !client.pubChan.IsClosed()
}

// amqpURL builds the broker URL with escaped credentials.
func amqpURL(cfg *config.Config) string {
	u := &url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.RabbitMQ.User, cfg.RabbitMQ.Password),
		Host:   net.JoinHostPort(cfg.RabbitMQ.Host, strconv.Itoa(cfg.RabbitMQ.Port)),
		Path:   "/",
	}
	return u.String()
}

// connect dials, prepares the publish channel and swaps both in. Nothing is installed on failure.
func (client *Client) connect() error {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(client.name)

	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(dialTimeout),
		Properties: props,
	})
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, step, err := openPublisher(conn)
	if err != nil {
		_ = conn.Close()
		client.logger.Error(client.logCtx, "rabbitmq_"+step+"_failed", "Failed to prepare RabbitMQ publish channel", err, nil)
		return fmt.Errorf("rabbitmq %s: %w", step, err)
	}

	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	go client.logReturns(ch.NotifyReturn(make(chan amqp.Return, 1)))

	client.install(conn, ch, confirms)
	go client.awaitClose(conn, ch)

	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established", map[string]any{
		"connection_name": client.name,
	})
	return nil
}

// openPublisher opens a channel, declares the topology on it and turns on confirms.
// step names the part that failed.
func openPublisher(conn *amqp.Connection) (*amqp.Channel, string, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, "open_channel", err
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, "declare_topology", err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, "enable_confirms", err
	}
	return ch, "", nil
}

// install swaps in a fresh connection and publish channel, closing what they replace.
func (client *Client) install(conn *amqp.Connection, ch *amqp.Channel, confirms chan amqp.Confirmation) {
	client.pubMu.Lock()
	stale := client.pubConfirms
	client.pubConfirms = confirms
	client.pubMu.Unlock()
	if stale != nil {
		close(stale)
	}

	client.mu.Lock()
	if client.pubChan != nil && !client.pubChan.IsClosed() {
		_ = client.pubChan.Close()
	}
	client.conn = conn
	client.pubChan = ch
	client.mu.Unlock()
}

// awaitClose asks the watcher for a redial once conn or ch goes away.
func (client *Client) awaitClose(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	var cause *amqp.Error
	select {
	case <-client.closed:
		return
	case cause = <-connClosed:
	case cause = <-chClosed:
	}
	if cause != nil {
		client.logger.Error(client.logCtx, "rabbitmq_link_lost", "RabbitMQ connection or publish channel closed", cause, nil)
	}

	select {
	case client.reconnect <- struct{}{}:
	default:
	}
}

// logReturns reports mandatory publishes the broker could not route, tagged with the
// school and trip found in the message body.
func (client *Client) logReturns(returns <-chan amqp.Return) {
	for r := range returns {
		schoolID, tripID := returnScope(r.Body)
		ctx := client.logger.WithTripID(client.logger.WithSchoolID(client.logCtx, schoolID), tripID)
		client.logger.Error(ctx, "rabbitmq_returned", "Message was returned as unroutable",
			fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
			map[string]any{"exchange": r.Exchange, "routing_key": r.RoutingKey, "size": len(r.Body)},
		)
	}
}

// returnScope reads the school_id and trip_id every trip message carries.
func returnScope(body []byte) (schoolID, tripID string) {
	var scope struct {
		SchoolID string `json:"school_id"`
		TripID   string `json:"trip_id"`
	}
	if json.Unmarshal(body, &scope) != nil {
		return "", ""
	}
	return scope.SchoolID, scope.TripID
}

// watch redials after every reconnect signal until Close.
func (client *Client) watch() {
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
			if !client.redial() {
				return
			}
		}
	}
}

// redial retries connect with exponential backoff. It returns false when the client was closed first.
func (client *Client) redial() bool {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		select {
		case <-client.closed:
			return false
		default:
		}

		err := client.connect()
		if err == nil {
			client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ and re-declared the trip topology",
				map[string]any{"attempts": attempt})
			return true
		}
		client.logger.Error(client.logCtx, "rabbitmq_reconnect_failed", "Failed to reconnect to RabbitMQ", err,
			map[string]any{"attempt": attempt, "backoff_ms": backoff.Milliseconds()})

		timer := time.NewTimer(backoff)
		select {
		case <-client.closed:
			timer.Stop()
			return false
		case <-timer.C:
		}
		backoff = nextBackoff(backoff)
	}
}

// nextBackoff doubles d up to maxBackoff.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
