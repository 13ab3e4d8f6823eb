package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrPermanent marks a publish failure that will not succeed on retry, such
// as a payload rejected by the broker. Adapters wrap rejections with it so
// the dispatcher can classify them.
var ErrPermanent = errors.New("permanent publish failure")

// ErrUnknownScheme is returned when a destination scheme has no registered publisher.
var ErrUnknownScheme = errors.New("no publisher registered for destination scheme")

// Publisher is the outbound port: deliver one payload to one destination.
// Implementations must pass the idempotency key to the transport so that
// duplicate delivery attempts can be deduplicated downstream.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload []byte, metadata map[string]string, idempotencyKey string) error
}

// IsPermanent reports whether a publish error is a permanent rejection.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Router dispatches by destination scheme ("kafka:orders", "amqp:events/created")
// and falls back to a default publisher for bare destinations.
type Router struct {
	byScheme map[string]Publisher
	fallback Publisher
}

// NewRouter creates a destination router with the given default publisher.
func NewRouter(fallback Publisher) *Router {
	return &Router{
		byScheme: map[string]Publisher{},
		fallback: fallback,
	}
}

// Register binds a scheme prefix to a publisher.
func (r *Router) Register(scheme string, pub Publisher) {
	r.byScheme[scheme] = pub
}

// Publish routes to the publisher registered for the destination scheme.
func (r *Router) Publish(
	ctx context.Context,
	destination string,
	payload []byte,
	metadata map[string]string,
	idempotencyKey string,
) error {
	scheme, rest, found := strings.Cut(destination, ":")
	if found {
		if pub, ok := r.byScheme[scheme]; ok {
			return pub.Publish(ctx, rest, payload, metadata, idempotencyKey)
		}
		if r.fallback == nil {
			return fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
		}
	}
	if r.fallback == nil {
		return fmt.Errorf("%w: %q", ErrUnknownScheme, destination)
	}

	return r.fallback.Publish(ctx, destination, payload, metadata, idempotencyKey)
}
