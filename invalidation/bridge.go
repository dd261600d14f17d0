// Package invalidation propagates explicit invalidations of a map resource
// between processes over an eventing subject.
package invalidation

import (
	"context"
	"sync"

	"github.com/agentuity/go-resource/eventing"
	"github.com/agentuity/go-resource/executor"
	"github.com/agentuity/go-resource/logger"
	"github.com/agentuity/go-resource/resource"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const originHeader = "origin"

// Event is the payload published for every invalidation.
type Event[K comparable] struct {
	Keys []K `msgpack:"keys"`
	All  bool `msgpack:"all"`
}

type remoteKey struct{}

func fromRemote(ctx context.Context) bool {
	remote, _ := ctx.Value(remoteKey{}).(bool)
	return remote
}

// Bridge publishes keys marked outdated on a local resource and marks keys
// outdated when peers publish them. Loads do not publish, and applied remote
// events are not published back.
type Bridge[K comparable, V any] struct {
	resource *resource.MapResource[K, V]
	client   eventing.Client
	subject  string
	origin   string
	logger   logger.Logger

	handle executor.Handle
	sub    eventing.Subscriber
	once   sync.Once
}

// New binds r to subject and starts listening.
func New[K comparable, V any](ctx context.Context, log logger.Logger, client eventing.Client, subject string, r *resource.MapResource[K, V]) (*Bridge[K, V], error) {
	b := &Bridge[K, V]{
		resource: r,
		client:   client,
		subject:  subject,
		origin:   uuid.NewString(),
	}
	b.logger = log.With(map[string]interface{}{"component": "invalidation", "subject": subject, "origin": b.origin})

	sub, err := client.Subscribe(ctx, subject, b.receive)
	if err != nil {
		return nil, err
	}
	b.sub = sub
	b.handle = r.OnDataOutdated().AddHandler(b.outdated)
	return b, nil
}

// Origin identifies this bridge in published events.
func (b *Bridge[K, V]) Origin() string { return b.origin }

// InvalidateAll marks every entry of the local resource outdated and asks
// peers to do the same.
func (b *Bridge[K, V]) InvalidateAll(ctx context.Context) error {
	err := b.resource.MarkAllOutdated(context.WithValue(ctx, remoteKey{}, true))
	return errors.CombineErrors(err, b.publish(ctx, Event[K]{All: true}))
}

// Close stops publishing and listening. The resource is left as is.
func (b *Bridge[K, V]) Close() error {
	var err error
	b.once.Do(func() {
		b.resource.OnDataOutdated().RemoveHandler(b.handle)
		err = b.sub.Close()
	})
	return err
}

func (b *Bridge[K, V]) outdated(ctx context.Context, key resource.Key[K], _ *executor.Contexts) error {
	if resource.InLoad(ctx) || fromRemote(ctx) || key.Len() == 0 {
		return nil
	}
	if err := b.publish(ctx, Event[K]{Keys: key.Keys()}); err != nil {
		b.logger.Warn("failed to publish invalidation of %v: %s", key, err)
	}
	return nil
}

func (b *Bridge[K, V]) publish(ctx context.Context, event Event[K]) error {
	data, err := msgpack.Marshal(&event)
	if err != nil {
		return errors.Wrap(err, "invalidation: encoding event")
	}
	return b.client.Publish(ctx, b.subject, data, eventing.WithHeader(originHeader, b.origin))
}

func (b *Bridge[K, V]) receive(ctx context.Context, msg eventing.Message) {
	if msg.Headers().Get(originHeader) == b.origin {
		return
	}
	var event Event[K]
	if err := msgpack.Unmarshal(msg.Data(), &event); err != nil {
		b.logger.Error("failed to decode invalidation: %s", err)
		return
	}
	ctx = context.WithValue(ctx, remoteKey{}, true)
	var err error
	if event.All {
		err = b.resource.MarkAllOutdated(ctx)
	} else if len(event.Keys) > 0 {
		err = b.resource.MarkOutdated(ctx, resource.List(event.Keys...))
	}
	if err != nil {
		b.logger.Warn("outdated handler failed for remote invalidation: %s", err)
		return
	}
	b.logger.Debug("applied remote invalidation from %s", msg.Headers().Get(originHeader))
}
