package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

const DefaultSubjectPrefix = "clinic.events"

// publisher is the part of *nats.Conn the sink needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on <prefix>.<kind>.
type NATSSink struct {
	conn   publisher
	prefix string
}

func NewNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	return newNATSSink(conn, prefix)
}

func newNATSSink(conn publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Subject(kind appointment.EventKind) string {
	return s.prefix + "." + string(kind)
}

func (s *NATSSink) Deliver(_ context.Context, ev appointment.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.conn.Publish(s.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// ConnectNATS dials the server with reconnects enabled. Connection state changes are logged.
func ConnectNATS(url string, log *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("clinic-booking"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}
