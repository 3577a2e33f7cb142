package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/observability"
)

func newTestKafkaConsumer(reader MessageReader, dlt MessageWriter, grants GrantConsumer, redeliveries int) *KafkaConsumer {
	return NewKafkaConsumer(reader, dlt, grants, zap.NewNop(), observability.NewMetrics(prometheus.NewRegistry()), KafkaConsumerConfig{
		MaxRedeliveries:   redeliveries,
		RedeliveryBackoff: time.Millisecond,
	})
}

func runUntilCommitted(t *testing.T, c *KafkaConsumer, reader *mockReader, n int) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for reader.committedCount() < n {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("timed out waiting for %d commits, got %d", n, reader.committedCount())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("consumer returned error: %v", err)
	}
}

func TestKafkaMessageID(t *testing.T) {
	withHeader := kafka.Message{
		Topic: "grants", Partition: 2, Offset: 7,
		Headers: []kafka.Header{{Key: HeaderMessageID, Value: []byte("abc")}},
	}
	if id := kafkaMessageID(withHeader); id != "abc" {
		t.Errorf("expected header id, got %s", id)
	}

	withoutHeader := kafka.Message{Topic: "grants", Partition: 2, Offset: 7}
	if id := kafkaMessageID(withoutHeader); id != "grants/2/7" {
		t.Errorf("expected position id, got %s", id)
	}
}

func TestKafkaConsumer_AppliesAndCommits(t *testing.T) {
	reader := &mockReader{messages: []kafka.Message{
		{Topic: "grants", Offset: 1, Value: []byte(grantBody), Headers: []kafka.Header{{Key: HeaderMessageID, Value: []byte("M1")}}},
	}}
	dlt := &mockWriter{}
	grants := &mockGrants{}

	runUntilCommitted(t, newTestKafkaConsumer(reader, dlt, grants, 3), reader, 1)

	if len(grants.calls) != 1 || grants.calls[0].MessageID != "M1" {
		t.Errorf("unexpected calls: %+v", grants.calls)
	}
	if len(dlt.written()) != 0 {
		t.Error("nothing should be dead-lettered")
	}
}

func TestKafkaConsumer_RedeliversTransientFailures(t *testing.T) {
	reader := &mockReader{messages: []kafka.Message{{Topic: "grants", Offset: 1, Value: []byte(grantBody)}}}
	dlt := &mockWriter{}
	grants := &mockGrants{results: []mockResult{
		{err: domain.ErrPublishFailure},
		{err: domain.ErrPublishFailure},
		{outcome: domain.GrantOutcome{Result: domain.ResultDuplicate}},
	}}

	runUntilCommitted(t, newTestKafkaConsumer(reader, dlt, grants, 3), reader, 1)

	if len(grants.calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(grants.calls))
	}
	for _, c := range grants.calls {
		if c.MessageID != "grants/0/1" {
			t.Errorf("message id must be stable across redeliveries, got %s", c.MessageID)
		}
	}
	if len(dlt.written()) != 0 {
		t.Error("recovered message must not be dead-lettered")
	}
}

func TestKafkaConsumer_DeadLettersAfterRedeliveries(t *testing.T) {
	reader := &mockReader{messages: []kafka.Message{{Topic: "grants", Partition: 1, Offset: 9, Key: []byte("U1"), Value: []byte(grantBody)}}}
	dlt := &mockWriter{}
	grants := &mockGrants{results: []mockResult{{err: domain.ErrConcurrentModification}}}

	runUntilCommitted(t, newTestKafkaConsumer(reader, dlt, grants, 2), reader, 1)

	if len(grants.calls) != 3 {
		t.Errorf("expected 1 delivery + 2 redeliveries, got %d", len(grants.calls))
	}
	written := dlt.written()
	if len(written) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(written))
	}
	if headerValue(written[0].Headers, HeaderOriginalTopic) != "grants" ||
		headerValue(written[0].Headers, HeaderOriginalPartition) != "1" ||
		headerValue(written[0].Headers, HeaderOriginalOffset) != "9" {
		t.Errorf("unexpected dead-letter headers: %+v", written[0].Headers)
	}
	if headerValue(written[0].Headers, HeaderExceptionMessage) == "" {
		t.Error("expected exception message header")
	}
}

func TestKafkaConsumer_DeadLettersUnknownItemImmediately(t *testing.T) {
	reader := &mockReader{messages: []kafka.Message{{Topic: "grants", Value: []byte(grantBody)}}}
	dlt := &mockWriter{}
	grants := &mockGrants{results: []mockResult{{outcome: domain.GrantOutcome{Result: domain.ResultItemUnknown}}}}

	runUntilCommitted(t, newTestKafkaConsumer(reader, dlt, grants, 5), reader, 1)

	if len(grants.calls) != 1 {
		t.Errorf("unknown item must not be redelivered, got %d attempts", len(grants.calls))
	}
	if len(dlt.written()) != 1 {
		t.Errorf("expected 1 dead letter, got %d", len(dlt.written()))
	}
}

func TestKafkaConsumer_DeadLetterFailureStops(t *testing.T) {
	reader := &mockReader{messages: []kafka.Message{{Topic: "grants", Value: []byte(`not json`)}}}
	dlt := &mockWriter{fail: true}

	c := newTestKafkaConsumer(reader, dlt, &mockGrants{}, 0)
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when the dead-letter topic is unavailable")
	}
	if reader.committedCount() != 0 {
		t.Error("offset must not be committed when the message was not parked")
	}
	if !errors.Is(err, domain.ErrInvalidCommand) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &mockWriter{}
	pub := NewKafkaPublisher(writer)

	event := domain.InventoryUpdated{UserID: "U1", CatalogItemID: "I1", NewQuantity: 8}
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	written := writer.written()
	if len(written) != 1 {
		t.Fatalf("expected 1 message, got %d", len(written))
	}
	msg := written[0]
	if string(msg.Key) != "U1" {
		t.Errorf("expected key U1, got %s", msg.Key)
	}
	if headerValue(msg.Headers, HeaderEventType) != domain.EventInventoryUpdated {
		t.Errorf("unexpected event type header: %+v", msg.Headers)
	}
	if headerValue(msg.Headers, HeaderMessageID) == "" {
		t.Error("expected message id header")
	}

	var decoded domain.InventoryUpdated
	if err := json.Unmarshal(msg.Value, &decoded); err != nil || decoded != event {
		t.Errorf("unexpected payload %s (%v)", msg.Value, err)
	}
}

func TestKafkaPublisher_Failure(t *testing.T) {
	pub := NewKafkaPublisher(&mockWriter{fail: true})
	if err := pub.Publish(context.Background(), domain.GrantsAcknowledged{CorrelationID: "C1"}); err == nil {
		t.Error("expected error")
	}
}
