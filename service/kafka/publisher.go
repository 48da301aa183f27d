package kafka

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"

	"TStream/logger"
	"TStream/module/event"
)

// Sink 发布落点。生产走 sarama；无 broker 的本地模式用 Loopback 直连路由。
type Sink interface {
	Send(topic string, key, value []byte) error
}

type SaramaSink struct {
	producer sarama.SyncProducer
}

func NewSaramaSink(client sarama.Client) (*SaramaSink, error) {
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		return nil, errors.Wrap(err, "sync producer")
	}
	return &SaramaSink{producer: p}, nil
}

func (s *SaramaSink) Send(topic string, key, value []byte) error {
	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (s *SaramaSink) Close() error { return s.producer.Close() }

// LoopbackSink 进程内直连：消息直接交给已注册的 topic handler
type LoopbackSink struct {
	Registry *HandlerRegistry
}

func (s *LoopbackSink) Send(topic string, key, value []byte) error {
	h, err := s.Registry.Get(topic)
	if err != nil {
		return err
	}
	return h(topic, key, value)
}

// Publisher 异步事件发布器：请求路径只入队，从不等网络。
// 队列满 => 丢弃并计数（变更本体已提交，实时通道是尽力而为的次级通道）。
type Publisher struct {
	sink    Sink
	queue   chan event.Event
	retries int
	backoff time.Duration

	dropped   atomic.Int64
	failed    atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewPublisher(sink Sink, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &Publisher{
		sink:    sink,
		queue:   make(chan event.Event, queueSize),
		retries: 3,
		backoff: 200 * time.Millisecond,
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Publish 非阻塞入队。绝不能反向阻塞提交路径。
func (p *Publisher) Publish(ev event.Event) {
	select {
	case p.queue <- ev:
	default:
		n := p.dropped.Add(1)
		logger.Warnf("[publisher] queue full, drop event type=%s id=%d (dropped=%d)", ev.Payload.Kind(), ev.ID, n)
	}
}

func (p *Publisher) Dropped() int64 { return p.dropped.Load() }
func (p *Publisher) Failed() int64  { return p.failed.Load() }

// Close 排空队列后退出
func (p *Publisher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.queue:
			p.send(ev)
		case <-p.done:
			// 收尾：把剩余事件发完
			for {
				select {
				case ev := <-p.queue:
					p.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) send(ev event.Event) {
	key, value, err := ev.Encode()
	if err != nil {
		logger.Errorf("[publisher] encode event id=%d: %v", ev.ID, err)
		return
	}
	topic := ev.Payload.Topic()

	var lastErr error
	for i := 0; i <= p.retries; i++ {
		if i > 0 {
			time.Sleep(p.backoff * time.Duration(i)) // 线性退避，有界
		}
		if lastErr = p.sink.Send(topic, key, value); lastErr == nil {
			return
		}
	}
	// 发布失败只记日志和计数，绝不回滚/重入请求路径
	p.failed.Add(1)
	logger.Errorf("[publisher] give up event id=%d topic=%s: %v", ev.ID, topic, lastErr)
}
