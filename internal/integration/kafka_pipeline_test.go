//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/disaster-feed-service/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-feed-service/internal/adapter/replay"
	"github.com/couchcryptid/disaster-feed-service/internal/adapter/synthetic"
	"github.com/couchcryptid/disaster-feed-service/internal/cache"
	"github.com/couchcryptid/disaster-feed-service/internal/config"
	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/fallback"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
	"github.com/couchcryptid/disaster-feed-service/internal/pipeline"
)

const testAlertTopic = "test-alerts"

// publishedMessage holds a deserialized message read from the alert topic.
type publishedMessage struct {
	Alert   domain.ScoredAlert
	Key     string
	Headers map[string]string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("disaster-feed-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "find controller")

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}), "create topic %s", topic)
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     "test-consumer-" + strconv.FormatInt(time.Now().UnixNano(), 36),
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// readPublished reads one message from the alert topic and deserializes it.
func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alert topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var alert domain.ScoredAlert
	require.NoError(t, json.Unmarshal(msg.Value, &alert), "unmarshal alert message")

	return publishedMessage{Alert: alert, Key: string(msg.Key), Headers: headers}
}

func newPublisher(t *testing.T, broker string, metrics *observability.Metrics) *kafka.Publisher {
	t.Helper()
	cfg := &config.Config{
		KafkaEnabled:    true,
		KafkaBrokers:    []string{broker},
		KafkaAlertTopic: testAlertTopic,
	}
	p := kafka.NewPublisher(cfg, discardLogger(), metrics)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// TestPublisherRoundTrip verifies that a published alert arrives keyed by id
// with its provenance headers.
func TestPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	publisher := newPublisher(t, broker, observability.NewMetricsForTesting())
	received := time.Date(2024, time.August, 14, 18, 5, 0, 0, time.UTC)
	alert := domain.ScoredAlert{
		ID:                   "official:1823456789012345678",
		Text:                 "Earthquake in San Francisco, buildings shaking",
		Relevant:             true,
		Confidence:           0.8,
		Method:               "keyword_matching",
		Priority:             0.83,
		Coordinate:           &domain.Coordinate{Lat: 37.7749, Lon: -122.4194},
		CoordinateConfidence: 0.95,
		ReceivedAt:           received,
		Source:               "official",
	}
	require.NoError(t, publisher.Publish(ctx, []domain.ScoredAlert{alert}))

	msg := readPublished(ctx, t, newConsumer(t, broker))
	assert.Equal(t, alert.ID, msg.Key)
	assert.Equal(t, "official", msg.Headers["source"])
	assert.Equal(t, "false", msg.Headers["synthetic"])
	assert.Equal(t, received.Format(time.RFC3339), msg.Headers["received_at"])
	assert.Equal(t, alert.Text, msg.Alert.Text)
	assert.InDelta(t, 0.83, msg.Alert.Priority, 1e-9)
	require.NotNil(t, msg.Alert.Coordinate)
	assert.InDelta(t, 37.7749, msg.Alert.Coordinate.Lat, 1e-9)
}

// TestIngestPublishesNewAlerts drives a replay-backed chain through the
// ingestor and checks that only relevant, newly cached alerts reach Kafka.
func TestIngestPublishesNewAlerts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	tables := config.DefaultTables()

	fixture, err := replay.Load("../pipeline/testdata/items.json")
	require.NoError(t, err)

	chain := fallback.New([]domain.Provider{fixture},
		synthetic.New(7, clockwork.NewRealClock()), fallback.Options{}, logger, metrics)
	store := cache.NewDedup(100)
	ingestor := pipeline.NewIngestor(chain,
		domain.NewKeywordClassifier(tables.Classifier.Keywords),
		domain.NewResolver(tables.ResolverPolicy(), tables.Places()),
		domain.NewScorer(tables.ScoringPolicy()),
		store, logger, metrics,
		pipeline.WithPublisher(newPublisher(t, broker, metrics)))

	report, err := ingestor.Ingest(ctx, "earthquake", fixture.Len())
	require.NoError(t, err)
	assert.Equal(t, replay.Name, report.Provider)
	assert.False(t, report.Synthetic)
	require.Equal(t, 5, report.Inserted)

	consumer := newConsumer(t, broker)
	keys := make(map[string]bool, report.Inserted)
	for range report.Inserted {
		msg := readPublished(ctx, t, consumer)
		assert.True(t, msg.Alert.Relevant)
		assert.Equal(t, replay.Name, msg.Headers["source"])
		keys[msg.Key] = true
	}
	assert.Len(t, keys, report.Inserted)
	for _, a := range store.Snapshot(0) {
		assert.True(t, keys[a.ID], "cached alert %s was not published", a.ID)
	}

	// A second pass over the same items only updates cached alerts, so
	// nothing new is published.
	report, err = ingestor.Ingest(ctx, "earthquake", fixture.Len())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 5, report.Updated)
}
