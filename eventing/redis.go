package eventing

import (
	"context"
	"sync"

	"github.com/agentuity/go-resource/logger"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrClosed is returned by a closed client.
var ErrClosed = errors.New("eventing: client closed")

type redisMessage struct {
	InternalData    []byte  `msgpack:"data"`
	InternalHeaders Headers `msgpack:"headers"`
	subject         string
}

func (m *redisMessage) Subject() string  { return m.subject }
func (m *redisMessage) Data() []byte     { return m.InternalData }
func (m *redisMessage) Headers() Headers { return m.InternalHeaders }

type redisSubscriber struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *redisSubscriber) Close() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}

type redisClient struct {
	rdb    redis.UniversalClient
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger
	wg     sync.WaitGroup
}

var _ Client = (*redisClient)(nil)

// NewRedisClient returns a Client on Redis pub/sub. Messages are msgpack
// envelopes carrying the payload and the headers. The caller owns rdb.
func NewRedisClient(ctx context.Context, log logger.Logger, rdb redis.UniversalClient) Client {
	ctx, cancel := context.WithCancel(ctx)
	return &redisClient{
		rdb:    rdb,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(map[string]interface{}{"component": "eventing"}),
	}
}

func (c *redisClient) Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	options := &publishOptions{headers: make(Headers)}
	for _, opt := range opts {
		opt(options)
	}
	msg := redisMessage{InternalData: data, InternalHeaders: options.headers}
	// the trace context travels in the headers
	propagator.Inject(ctx, msg.InternalHeaders)

	ctx, span := tracer.Start(ctx, "eventing.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messaging.destination", subject)),
	)
	defer span.End()

	payload, err := msgpack.Marshal(&msg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "eventing: encoding message")
	}
	if err := c.rdb.Publish(ctx, subject, payload).Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrapf(err, "eventing: publishing to %s", subject)
	}
	span.SetStatus(codes.Ok, "message published")
	return nil
}

func (c *redisClient) Subscribe(ctx context.Context, subject string, cb MessageCallback) (Subscriber, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}
	pubsub := c.rdb.Subscribe(ctx, subject)
	// wait for the confirmation so nothing published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrapf(err, "eventing: subscribing to %s", subject)
	}

	sub := &redisSubscriber{pubsub: pubsub, done: make(chan struct{})}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(sub.done)
		ch := pubsub.Channel()
		for {
			select {
			case <-c.ctx.Done():
				pubsub.Close()
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				c.dispatch(m.Channel, []byte(m.Payload), cb)
			}
		}
	}()
	return sub, nil
}

func (c *redisClient) dispatch(subject string, payload []byte, cb MessageCallback) {
	msg := &redisMessage{subject: subject}
	if err := msgpack.Unmarshal(payload, msg); err != nil {
		c.logger.Error("failed to decode message on %s: %s", subject, err)
		return
	}
	if msg.InternalHeaders == nil {
		msg.InternalHeaders = make(Headers)
	}
	ctx, span := tracer.Start(
		propagator.Extract(c.ctx, msg.InternalHeaders),
		"eventing.receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", subject)),
	)
	defer span.End()
	cb(ctx, msg)
}

// Close stops every subscription of the client.
func (c *redisClient) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}
