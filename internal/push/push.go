// Package push delivers notifications to subscribers. Two transports are
// supported: browser Web Push (VAPID) and Telegram. The dispatch engine only
// sees the Sender interface and the PermanentError classification.
package push

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"kittylog/internal/store"
)

// Message is one notification payload.
type Message struct {
	Title    string
	Body     string
	ClickURL string
}

// Sender delivers one message to one subscriber.
type Sender interface {
	Send(ctx context.Context, sub store.Subscription, m Message) error
}

// PermanentError marks a delivery failure that will never succeed again for
// this subscriber (endpoint gone, bot blocked). The dispatcher deactivates
// the subscriber on it.
type PermanentError struct {
	Status int // transport status, e.g. HTTP 404/410
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscription gone (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("subscription gone (status %d)", e.Status)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err (or anything it wraps) marks the
// subscriber as permanently unreachable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Router picks the transport adapter by the subscription's transport field.
type Router struct {
	senders map[string]Sender
}

func NewRouter() *Router {
	return &Router{senders: make(map[string]Sender)}
}

func (r *Router) Register(transport string, s Sender) {
	r.senders[transport] = s
}

func (r *Router) Send(ctx context.Context, sub store.Subscription, m Message) error {
	s, ok := r.senders[sub.Transport]
	if !ok {
		return fmt.Errorf("no sender for transport %q", sub.Transport)
	}
	return s.Send(ctx, sub, m)
}

// RateLimited wraps a Sender with a per-process send rate limit so a large
// subscriber list cannot overwhelm the delivery endpoint.
func RateLimited(s Sender, perSec int) Sender {
	if perSec <= 0 {
		return s
	}
	return &limitedSender{inner: s, lim: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

type limitedSender struct {
	inner Sender
	lim   *rate.Limiter
}

func (l *limitedSender) Send(ctx context.Context, sub store.Subscription, m Message) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.inner.Send(ctx, sub, m)
}
