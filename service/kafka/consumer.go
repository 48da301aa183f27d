package kafka

import (
	"context"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"

	"TStream/logger"
)

// MessageHandler 单条消息处理。返回错误只记日志，不重投：
// 消费端按 at-least-once 语义设计，处理必须幂等。
type MessageHandler func(topic string, key, value []byte) error

type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]MessageHandler)}
}

func (r *HandlerRegistry) Register(topic string, h MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = h
}

func (r *HandlerRegistry) RegisterAll(topics []string, h MessageHandler) {
	for _, t := range topics {
		r.Register(t, h)
	}
}

func (r *HandlerRegistry) Get(topic string) (MessageHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[topic]; ok {
		return h, nil
	}
	return nil, errors.Errorf("no handler registered for topic: %s", topic)
}

type groupHandler struct {
	registry *HandlerRegistry
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Info("consumer group setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("consumer group cleanup")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	// 分区内严格按提交序处理；跨分区无序（计数是幂等快照，无需全序）
	for msg := range claim.Messages() {
		handler, err := h.registry.Get(msg.Topic)
		if err != nil {
			logger.Warnf("no handler for topic %s: %v", msg.Topic, err)
		} else if err := handler(msg.Topic, msg.Key, msg.Value); err != nil {
			logger.Errorf("handler error topic=%s partition=%d offset=%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// StartConsumerGroup 拉起消费组，直到 ctx 取消
func StartConsumerGroup(ctx context.Context, c Config, topics []string, registry *HandlerRegistry) error {
	group, err := sarama.NewConsumerGroup(c.Brokers, c.GroupID, BuildBaseConfig(c))
	if err != nil {
		return errors.Wrap(err, "consumer group")
	}

	go func() {
		for err := range group.Errors() {
			logger.Errorf("consumer group error: %v", err)
		}
	}()

	go func() {
		defer func() { _ = group.Close() }()
		handler := &groupHandler{registry: registry}
		for {
			if ctx.Err() != nil {
				return
			}
			if err := group.Consume(ctx, topics, handler); err != nil {
				logger.Errorf("consume error: %v", err)
			}
		}
	}()
	return nil
}
