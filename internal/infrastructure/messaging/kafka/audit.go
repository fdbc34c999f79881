package kafka

import (
	"context"

	"github.com/turtacn/BizAtlas/internal/application/agents"
)

// AuditPublisher ships agent.completed events keyed by agent name.
type AuditPublisher struct {
	producer *Producer
	topic    string
}

var _ agents.AuditPublisher = (*AuditPublisher)(nil)

func NewAuditPublisher(p *Producer, topic string) *AuditPublisher {
	return &AuditPublisher{producer: p, topic: topic}
}

func (a *AuditPublisher) PublishAgentCompleted(ctx context.Context, ev agents.AuditEvent) error {
	env, err := NewEventEnvelope(EventAgentCompleted, ev)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(a.topic, ev.Agent)
	if err != nil {
		return err
	}
	return a.producer.Publish(ctx, msg)
}

//Personal.AI order the ending
