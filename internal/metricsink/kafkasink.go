package metricsink

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ebwi11/patterncache/internal/logging"
	"github.com/ebwi11/patterncache/internal/metrics"
)

// KafkaConfig configures the Kafka metrics-snapshot sink, the publisher half
// of the teacher's KafkaProducer (src/common/kafka.go) stripped of the
// input-channel plumbing that producer needs for arbitrary record streams —
// this sink only ever produces one kind of record, the snapshot document,
// on a timer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	Interval time.Duration
}

// KafkaSink publishes the metrics snapshot document to a Kafka topic via
// franz-go, serializing with sonic the way every other JSON surface in this
// module does.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink builds the franz-go client with the teacher's own producer
// tuning (round-robin partitioning, linger for batching effect even though
// this sink's own send rate is slow), then verifies the destination topic
// exists, creating it with a single partition if it does not — the same
// "validate the destination before the first write" shape the SLS sink's
// CheckLogstoreExist call takes, done here via franz-go's admin client
// instead of a connectivity probe.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RecordPartitioner(kgo.RoundRobinPartitioner()),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	if err := ensureTopic(cl, cfg.Topic); err != nil {
		cl.Close()
		return nil, err
	}

	return &KafkaSink{client: cl, topic: cfg.Topic}, nil
}

// ensureTopic creates cfg.Topic with a single partition and the broker's
// default replication factor if it does not already exist. Topic creation
// races harmlessly: a concurrent creator's "already exists" error is not
// treated as fatal.
func ensureTopic(cl *kgo.Client, topic string) error {
	adm := kadm.NewClient(cl)
	defer adm.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	details, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to list kafka topics: %w", err)
	}
	if details.Has(topic) {
		return nil
	}

	resp, err := adm.CreateTopics(ctx, 1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic, err)
	}
	if r, ok := resp[topic]; ok && r.Err != nil && !kerr.Is(r.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic, r.Err)
	}
	return nil
}

// Run starts the periodic publish loop; returns when ctx is cancelled.
func (s *KafkaSink) Run(ctx context.Context, interval time.Duration, snap SnapshotFunc) {
	runLoop(ctx, interval, snap, s.publish, "kafka")
}

func (s *KafkaSink) publish(doc metrics.Snapshot) error {
	value, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	rec := &kgo.Record{Topic: s.topic, Value: value}
	errCh := make(chan error, 1)
	s.client.Produce(context.Background(), rec, func(_ *kgo.Record, err error) {
		errCh <- err
	})
	if err := <-errCh; err != nil {
		return fmt.Errorf("failed to produce snapshot to topic %s: %w", s.topic, err)
	}
	logging.Debug("metrics snapshot published", "sink", "kafka", "topic", s.topic)
	return nil
}

// Close releases the underlying Kafka client.
func (s *KafkaSink) Close() { s.client.Close() }
