package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/nodewarden/warden/internal/logger"
)

// Source bridges a NATS subject tree onto the bus, so panel components that
// already speak NATS can reach the engine without going through HTTP.
// Event names map onto subjects under the prefix: publishing to
// "<prefix>.violation.detected" raises the violation.detected event with the
// message body as JSON payload.
type Source struct {
	url    string
	prefix string
	bus    *Bus

	conn *nats.Conn
	sub  *nats.Subscription
}

// NewSource prepares a bridge for the given server URL and subject prefix.
// Nothing connects until Connect is called.
func NewSource(url, prefix string, bus *Bus) *Source {
	return &Source{url: url, prefix: prefix, bus: bus}
}

// Connect dials the server and subscribes to "<prefix>.>". Reconnects are
// retried forever; missed messages during an outage are not replayed.
func (s *Source) Connect() error {
	conn, err := nats.Connect(s.url,
		nats.PingInterval(10*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log().WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log().WithError(err).Warn("NATS disconnected")
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", s.url, err)
	}

	sub, err := conn.Subscribe(s.prefix+".>", s.handleMessage)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to %s.>: %w", s.prefix, err)
	}

	s.conn = conn
	s.sub = sub
	logger.WithFields(logrus.Fields{
		"url":     s.url,
		"subject": s.prefix + ".>",
	}).Info("NATS event source connected")
	return nil
}

func (s *Source) handleMessage(m *nats.Msg) {
	name := strings.TrimPrefix(m.Subject, s.prefix+".")
	if !Known(name) {
		logger.Log().WithField("subject", m.Subject).Debug("Ignoring unknown event subject")
		return
	}

	payload := map[string]any{}
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			logger.Log().WithError(err).WithField("subject", m.Subject).Warn("Dropping event with malformed payload")
			return
		}
	}

	s.bus.Publish(Event{Name: name, Payload: payload})
}

// Close drains the subscription and closes the connection.
func (s *Source) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
