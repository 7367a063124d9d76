package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher is the part of *nats.Conn the sink needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes every entry as JSON on a subject
type NATSSink struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
}

// ConnectNATS connects to url and publishes entries on subject
func ConnectNATS(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("ai-service-manager-audit"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("audit NATS connection lost")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("audit NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{pub: conn, conn: conn, subject: subject}, nil
}

// NewNATSSink publishes through an existing publisher
func NewNATSSink(pub Publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject}
}

// Close drains the connection opened by ConnectNATS
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

func (s *NATSSink) Record(ctx context.Context, e models.RequestLogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode request log: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish request log: %w", err)
	}
	return nil
}
