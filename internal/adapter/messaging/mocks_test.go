package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

// Mock GrantConsumer
type mockGrants struct {
	mu      sync.Mutex
	calls   []domain.GrantItems
	results []mockResult // consumed in order, the last one repeats
}

type mockResult struct {
	outcome domain.GrantOutcome
	err     error
}

func (m *mockGrants) Consume(ctx context.Context, cmd domain.GrantItems) (domain.GrantOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, cmd)
	if len(m.results) == 0 {
		return domain.GrantOutcome{Result: domain.ResultApplied}, nil
	}
	r := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return r.outcome, r.err
}

var applied = mockResult{outcome: domain.GrantOutcome{Result: domain.ResultApplied}}

// Mock kafka reader
type mockReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
}

func (m *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.messages) > 0 {
		msg := m.messages[0]
		m.messages = m.messages[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockReader) Close() error { return nil }

func (m *mockReader) committedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}

// Mock kafka writer
type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	fail     bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errors.New("broker unavailable")
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

func (m *mockWriter) written() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.messages...)
}

// Mock amqp.Acknowledger
type mockAcknowledger struct {
	acks    int
	requeue int
	dropped int
}

func (m *mockAcknowledger) Ack(tag uint64, multiple bool) error {
	m.acks++
	return nil
}

func (m *mockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	if requeue {
		m.requeue++
	} else {
		m.dropped++
	}
	return nil
}

func (m *mockAcknowledger) Reject(tag uint64, requeue bool) error {
	return m.Nack(tag, false, requeue)
}
