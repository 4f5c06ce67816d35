package sink

import (
	"time"

	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// Log writes every event to a zap logger. It is the default sink.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("sink")}
}

func (l *Log) Publish(ev domain.Event, ts time.Time, attrs map[string]string) {
	l.logger.Info("Event",
		zap.String("kind", string(ev.EventKind())),
		zap.String("uid", ev.ResourceUID()),
		zap.Time("ts", ts),
		zap.Any("attributes", attrs),
		zap.Any("payload", ev))
}
