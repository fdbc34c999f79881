package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BizAtlas/internal/application/agents"
	"github.com/turtacn/BizAtlas/internal/config"
	pkgerrors "github.com/turtacn/BizAtlas/pkg/errors"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	written   []kafka.Message
	closed    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed++
	return nil
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, nil, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))

	_, err = NewProducer(config.KafkaConfig{Brokers: []string{"b:9092"}, MaxRetries: -1}, nil, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))

	p, err := NewProducer(config.KafkaConfig{Brokers: []string{"b:9092"}}, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestPublish(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, nil, nil)

	err := p.Publish(context.Background(), &ProducerMessage{
		Topic:   "t",
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: map[string]string{"h": "1"},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, "t", w.written[0].Topic)
	assert.Equal(t, []kafka.Header{{Key: "h", Value: []byte("1")}}, w.written[0].Headers)
	assert.False(t, w.written[0].Time.IsZero())
}

func TestPublish_Rejects(t *testing.T) {
	p := NewProducerWithWriter(&mockKafkaWriter{}, nil, nil)
	ctx := context.Background()

	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, &ProducerMessage{Value: []byte("v")}), pkgerrors.ErrCodeValidation))
	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, &ProducerMessage{Topic: "t"}), pkgerrors.ErrCodeValidation))
	big := make([]byte, maxMessageBytes+1)
	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, &ProducerMessage{Topic: "t", Value: big}), pkgerrors.ErrCodeValidation))
}

func TestPublish_WriteError(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error { return errors.New("leader not available") }}
	p := NewProducerWithWriter(w, nil, nil)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMessagingError))
}

func TestProducer_CloseOnce(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, nil, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")}), ErrProducerClosed)
}

func TestAuditPublisher(t *testing.T) {
	w := &mockKafkaWriter{}
	pub := NewAuditPublisher(NewProducerWithWriter(w, nil, nil), "agents.completed")

	ev := agents.AuditEvent{RunID: "r1", Agent: "grants", Action: "match", Status: agents.StatusOK, LatencyMs: 12, At: time.Now().UTC()}
	require.NoError(t, pub.PublishAgentCompleted(context.Background(), ev))
	require.Len(t, w.written, 1)

	m := w.written[0]
	assert.Equal(t, "agents.completed", m.Topic)
	assert.Equal(t, []byte("grants"), m.Key)

	env, err := MessageToEventEnvelope(&Message{Value: m.Value})
	require.NoError(t, err)
	assert.Equal(t, EventAgentCompleted, env.EventType)
	assert.Equal(t, "v1", env.SchemaVersion)

	var got agents.AuditEvent
	require.NoError(t, env.DecodePayload(&got))
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, int64(12), got.LatencyMs)
}

func TestEnvelope_Errors(t *testing.T) {
	_, err := MessageToEventEnvelope(&Message{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))

	_, err = MessageToEventEnvelope(&Message{Value: []byte("nope")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))

	env := &EventEnvelope{Payload: json.RawMessage(`{"operation":1}`)}
	var p CompanyChangedPayload
	assert.True(t, pkgerrors.IsCode(env.DecodePayload(&p), pkgerrors.ErrCodeSerialization))

	_, err = NewEventEnvelope(EventCompanyChanged, make(chan int))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

//Personal.AI order the ending
