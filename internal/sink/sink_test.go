package sink

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
)

var (
	cluster = domain.ClusterIdentity{CloudProviderID: "aws:123", ClusterID: "c-1"}
	ts      = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

func podEvent(uid string) domain.PodEvent {
	return domain.PodEvent{ClusterIdentity: cluster, PodUID: uid, Type: domain.PodScheduled, Timestamp: ts}
}

func TestEnvelope(t *testing.T) {
	env := NewEnvelope(podEvent("p1"), ts, map[string]string{"watch_id": "w1"})
	assert.Equal(t, "c-1|p1", env.Key())

	b, err := env.Marshal()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "pod_event", got["kind"])
	assert.Equal(t, "c-1", got["clusterId"])
	assert.Equal(t, "p1", got["resourceUid"])
	assert.Equal(t, "2024-05-01T10:00:00Z", got["timestamp"])
	payload := got["payload"].(map[string]any)
	assert.Equal(t, "Scheduled", payload["type"])
	assert.Equal(t, "aws:123", payload["cloudProviderId"])

	assert.Equal(t, "p1", Envelope{ResourceUID: "p1"}.Key())
}

func TestKafkaPublish(t *testing.T) {
	cfg := mocks.NewTestConfig()
	producer := mocks.NewAsyncProducer(t, cfg)
	var got *sarama.ProducerMessage
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		got = m
		return nil
	})

	k := NewKafkaWithProducer(producer, "kwatch.events", nil, zaptest.NewLogger(t))
	k.Publish(podEvent("p1"), ts, nil)
	require.NoError(t, k.Close())

	require.NotNil(t, got)
	assert.Equal(t, "kwatch.events", got.Topic)
	key, err := got.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "c-1|p1", string(key))
	require.Len(t, got.Headers, 1)
	assert.Equal(t, "pod_event", string(got.Headers[0].Value))
}

func TestKafkaDeliveryErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	producer := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	producer.ExpectInputAndFail(errors.New("leader not available"))

	k := NewKafkaWithProducer(producer, "kwatch.events", nil, zap.New(core))
	k.Publish(podEvent("p1"), ts, nil)
	require.NoError(t, k.Close())

	entries := logs.FilterMessage("Kafka delivery failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kwatch.events", entries[0].ContextMap()["topic"])
}

// stalledProducer never drains its input, as with every broker down and
// sarama's buffer full.
type stalledProducer struct {
	sarama.AsyncProducer
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func (p *stalledProducer) Input() chan<- *sarama.ProducerMessage { return p.input }
func (p *stalledProducer) Errors() <-chan *sarama.ProducerError  { return p.errors }
func (p *stalledProducer) Close() error {
	close(p.errors)
	return nil
}

func TestKafkaPublishDropsWhenProducerIsFull(t *testing.T) {
	producer := &stalledProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError),
	}
	m := metrics.NewUnregistered()
	core, logs := observer.New(zap.WarnLevel)
	k := NewKafkaWithProducer(producer, "kwatch.events", m, zap.New(core))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			k.Publish(podEvent("p1"), ts, nil)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full producer")
	}
	require.NoError(t, k.Close())

	assert.Len(t, producer.input, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("kafka")))
	assert.Equal(t, 2, logs.FilterMessage("Kafka producer busy, dropping event").Len())
}

type fakeConn struct {
	mu   sync.Mutex
	msgs map[string][][]byte
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.msgs == nil {
		f.msgs = make(map[string][][]byte)
	}
	f.msgs[subject] = append(f.msgs[subject], data)
	return nil
}

func TestNATSPublish(t *testing.T) {
	conn := &fakeConn{}
	n := &NATS{conn: conn, prefix: prefixOrDefault(""), logger: zaptest.NewLogger(t)}

	n.Publish(podEvent("p1"), ts, nil)
	n.Publish(domain.NodeEvent{ClusterIdentity: cluster, NodeUID: "n1", Type: domain.NodeStarted}, ts, nil)

	assert.Equal(t, "kwatch.pod_event", n.Subject(domain.KindPodEvent))
	require.Len(t, conn.msgs["kwatch.pod_event"], 1)
	require.Len(t, conn.msgs["kwatch.node_event"], 1)
	var env map[string]any
	require.NoError(t, json.Unmarshal(conn.msgs["kwatch.pod_event"][0], &env))
	assert.Equal(t, "p1", env["resourceUid"])
	require.NoError(t, n.Close())
}

func TestNATSPublishErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := &NATS{conn: &fakeConn{err: errors.New("nats: connection closed")}, prefix: "agents.kwatch", logger: zap.New(core)}

	n.Publish(podEvent("p1"), ts, nil)
	assert.Equal(t, 1, logs.FilterMessage("NATS publish failed").Len())
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewLog(zap.New(core)).Publish(podEvent("p1"), ts, map[string]string{"watch_id": "w1"})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "pod_event", fields["kind"])
	assert.Equal(t, "p1", fields["uid"])
}

func TestRecorderLimitAndCounts(t *testing.T) {
	r := NewRecorder(2)
	r.Publish(podEvent("p1"), ts, nil)
	r.Publish(podEvent("p2"), ts, nil)
	r.Publish(domain.NodeEvent{NodeUID: "n1"}, ts, nil)

	recs := r.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "p2", recs[0].Event.ResourceUID())
	assert.Equal(t, 2, r.Count(domain.KindPodEvent))
	assert.Len(t, r.Events(domain.KindPodEvent), 1)
	assert.Len(t, r.Events(domain.KindNodeEvent), 1)
}

func TestMultiFansOutAndCounts(t *testing.T) {
	m := metrics.NewUnregistered()
	a, b := NewRecorder(0), NewRecorder(0)
	multi := NewMulti(m, a, b)

	multi.Publish(podEvent("p1"), ts, nil)
	multi.Publish(podEvent("p2"), ts, nil)

	assert.Equal(t, 2, a.Count(domain.KindPodEvent))
	assert.Equal(t, 2, b.Count(domain.KindPodEvent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("pod_event")))
}
