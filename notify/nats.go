package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/xraph/referral/attribution"
)

// DefaultSubject is the subject attributions are published on.
const DefaultSubject = "referral.attributed"

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Subject       string        `mapstructure:"subject"`
	Name          string        `mapstructure:"name"`
	Token         string        `mapstructure:"token"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// NATS publishes each new attribution as a JSON message.
type NATS struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
}

// NewNATS publishes on subject through pub.
func NewNATS(pub Publisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	n := &NATS{pub: pub, subject: subject}
	if conn, ok := pub.(*nats.Conn); ok {
		n.conn = conn
	}
	return n
}

// ConnectNATS dials the server in cfg.
func ConnectNATS(cfg NATSConfig, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "referral"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to nats: %w", err)
	}
	return NewNATS(conn, cfg.Subject), nil
}

// Attributed publishes a.
func (n *NATS) Attributed(ctx context.Context, a *attribution.Attribution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewMessage(a))
	if err != nil {
		return fmt.Errorf("notify: marshal message: %w", err)
	}

	msg := nats.NewMsg(n.subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	// JetStream consumers dedupe on this header.
	msg.Header.Set(nats.MsgIdHdr, a.ID.String())

	if err := n.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("notify: publish %s: %w", n.subject, err)
	}
	return nil
}

// Close drains the connection when the notifier owns one.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
