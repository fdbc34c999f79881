package kafka

import (
	"context"
	stderrors "errors"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	Close() error
}

// TopicManager creates the topics the worker and API depend on.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "failed to dial kafka")
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

// Topics returns the change and audit topic specs from cfg.
func Topics(cfg config.KafkaConfig) []kafka.TopicConfig {
	spec := func(name string) kafka.TopicConfig {
		return kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     cfg.Partitions,
			ReplicationFactor: cfg.ReplicationFactor,
		}
	}
	return []kafka.TopicConfig{spec(cfg.ChangeTopic), spec(cfg.AuditTopic)}
}

// EnsureTopics creates topics, treating "already exists" as success.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []kafka.TopicConfig) error {
	for _, t := range topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.Topic == "" || t.NumPartitions <= 0 || t.ReplicationFactor <= 0 {
			return errors.Newf(errors.ErrCodeValidation, "invalid topic spec %q", t.Topic)
		}
		err := m.conn.CreateTopics(t)
		if err != nil && !stderrors.Is(err, kafka.TopicAlreadyExists) {
			return errors.Wrap(err, errors.ErrCodeMessagingError, "failed to create topic "+t.Topic)
		}
		m.logger.Info("Topic ready", logging.String("topic", t.Topic))
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

//Personal.AI order the ending
