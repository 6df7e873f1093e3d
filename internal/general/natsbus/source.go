// Package natsbus receives live driver positions from NATS.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"school-bus/internal/domain/geo"
	"school-bus/internal/general/config"
	"school-bus/internal/general/contracts"
	"school-bus/internal/general/logger"
	"school-bus/internal/general/metrics"
	"school-bus/internal/ports"

	"github.com/nats-io/nats.go"
)

var ErrSubjectMismatch = errors.New("payload ids do not match subject")

// Source subscribes to "{prefix}.{school_id}.{trip_id}".
type Source struct {
	nc      *nats.Conn
	prefix  string
	logger  *logger.Logger
	metrics *metrics.Collector
}

var _ ports.PositionSource = (*Source)(nil)

// Connect dials NATS and keeps the connected gauge in step with reconnects.
func Connect(cfg *config.Config, log *logger.Logger, m *metrics.Collector) (*Source, error) {
	ctx := context.Background()
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("school-bus-tracker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.SetNATSConnected(false)
			log.Error(ctx, "nats_disconnected", "NATS connection lost", err, nil)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			m.SetNATSConnected(true)
			log.Info(ctx, "nats_reconnected", "NATS connection restored", map[string]any{"url": c.ConnectedUrl()})
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			m.SetNATSConnected(false)
			log.Info(ctx, "nats_closed", "NATS connection closed", nil)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.NATS.URL, err)
	}
	m.SetNATSConnected(true)

	return &Source{nc: nc, prefix: cfg.NATS.SubjectPrefix, logger: log, metrics: m}, nil
}

func (s *Source) Close() {
	if s.nc != nil {
		_ = s.nc.Drain()
	}
}

// Subscribe hands each decodable fix to handle, one at a time, until ctx is done.
// Undecodable messages and handler errors are logged and skipped.
func (s *Source) Subscribe(ctx context.Context, handle func(ctx context.Context, fix geo.Fix) error) error {
	ch := make(chan *nats.Msg, 256)
	subject := s.prefix + ".*.*"
	sub, err := s.nc.ChanSubscribe(subject, ch)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.logger.Info(ctx, "nats_subscribed", "Listening for driver positions", map[string]any{"subject": subject})

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			fix, err := DecodeFix(msg.Subject, msg.Data)
			if err != nil {
				s.metrics.PositionFix("rejected")
				s.logger.Error(ctx, "position_decode_failed", "Dropping undecodable position", err, map[string]any{
					"subject": msg.Subject,
				})
				continue
			}
			if err := handle(s.logger.WithTripID(ctx, fix.TripID), *fix); err != nil {
				s.logger.Error(ctx, "position_handle_failed", "Failed to process position", err, map[string]any{
					"subject": msg.Subject,
				})
			}
		}
	}
}

// DecodeFix parses a contracts.PositionFix. Missing school or trip ids are taken from the subject.
func DecodeFix(subject string, data []byte) (*geo.Fix, error) {
	var in contracts.PositionFix
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}

	parts := strings.Split(subject, ".")
	if len(parts) >= 3 {
		schoolTok, tripTok := parts[len(parts)-2], parts[len(parts)-1]
		if in.SchoolID == "" {
			in.SchoolID = schoolTok
		}
		if in.TripID == "" {
			in.TripID = tripTok
		}
		if in.SchoolID != schoolTok || in.TripID != tripTok {
			return nil, ErrSubjectMismatch
		}
	}

	fix, err := geo.NewFix(in.SchoolID, in.TripID, in.DriverID, in.Latitude, in.Longitude,
		in.AccuracyMeters, in.SpeedKMH, in.HeadingDegrees, in.RecordedAt.UTC())
	if err != nil {
		return nil, err
	}
	if in.Foreground != nil {
		fix.Foreground = *in.Foreground
	}
	fix.BackgroundTracking = in.BackgroundTracking
	return fix, nil
}
