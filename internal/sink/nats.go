package sink

import (
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes envelopes on core NATS, one subject per event kind:
// <prefix>.<kind>.
type NATS struct {
	conn   publisher
	closer func()
	prefix string
	logger *zap.Logger
}

func NewNATS(cfg NATSConfig, logger *zap.Logger) (*NATS, error) {
	logger = logger.Named("nats")
	opts := []natsgo.Option{
		natsgo.Timeout(10 * time.Second),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.MaxReconnects(60),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, natsgo.Name(cfg.Name))
	}
	nc, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &NATS{conn: nc, closer: nc.Close, prefix: prefixOrDefault(cfg.SubjectPrefix), logger: logger}, nil
}

func prefixOrDefault(p string) string {
	if p == "" {
		return "kwatch"
	}
	return p
}

func (n *NATS) Subject(kind domain.EventKind) string {
	return n.prefix + "." + string(kind)
}

func (n *NATS) Publish(ev domain.Event, ts time.Time, attrs map[string]string) {
	env := NewEnvelope(ev, ts, attrs)
	b, err := env.Marshal()
	if err != nil {
		n.logger.Error("Failed to encode event", zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}
	if err := n.conn.Publish(n.Subject(env.Kind), b); err != nil {
		n.logger.Warn("NATS publish failed", zap.String("kind", string(env.Kind)), zap.Error(err))
	}
}

func (n *NATS) Close() error {
	if n.closer != nil {
		n.closer()
	}
	return nil
}
