package sink

import (
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
)

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Kafka publishes JSON envelopes through a sarama AsyncProducer. Delivery
// errors are logged by a background drain; Publish never waits for acks and
// drops the message when the producer's input buffer is full.
type Kafka struct {
	producer sarama.AsyncProducer
	topic    string
	dropped  prometheus.Counter
	logger   *zap.Logger
	wg       sync.WaitGroup
	once     sync.Once
}

func NewKafka(cfg KafkaConfig, m *metrics.Metrics, logger *zap.Logger) (*Kafka, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	// idempotent producers need a single in-flight request
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Idempotent = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	sc.Producer.Compression = sarama.CompressionZSTD
	sc.ClientID = cfg.ClientID

	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}
	return NewKafkaWithProducer(p, cfg.Topic, m, logger), nil
}

func NewKafkaWithProducer(p sarama.AsyncProducer, topic string, m *metrics.Metrics, logger *zap.Logger) *Kafka {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	k := &Kafka{
		producer: p,
		topic:    topic,
		dropped:  m.EventsDropped.WithLabelValues("kafka"),
		logger:   logger.Named("kafka"),
	}
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for err := range p.Errors() {
			k.logger.Warn("Kafka delivery failed", zap.String("topic", err.Msg.Topic), zap.Error(err.Err))
		}
	}()
	return k
}

func (k *Kafka) Publish(ev domain.Event, ts time.Time, attrs map[string]string) {
	env := NewEnvelope(ev, ts, attrs)
	b, err := env.Marshal()
	if err != nil {
		k.logger.Error("Failed to encode event", zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(env.Key()),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(env.Kind)},
		},
	}
	select {
	case k.producer.Input() <- msg:
	default:
		k.dropped.Inc()
		k.logger.Warn("Kafka producer busy, dropping event",
			zap.String("kind", string(env.Kind)), zap.String("key", env.Key()))
	}
}

// Close flushes buffered messages and stops the error drain.
func (k *Kafka) Close() error {
	var err error
	k.once.Do(func() {
		err = k.producer.Close()
		k.wg.Wait()
	})
	return err
}
