// Package membus is an in-process bus with the delivery contract of the
// JetStream adapter: at-least-once, delayed retries, dead letters after the
// last attempt. Every subscription group gets its own copy of each message.
package membus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bidledger/internal/bus"

	"go.uber.org/zap"
)

type delivery struct {
	msg     bus.Message
	attempt int
}

type group struct {
	sub   bus.Subscription
	queue chan delivery
	// retry and dead-letter sends still in flight
	wg sync.WaitGroup
}

type Bus struct {
	mu     sync.RWMutex
	groups map[string]*group
	// msgID -> first publish, pruned once older than window
	seen   map[string]time.Time
	pruned time.Time
	window time.Duration
	// buffered messages per group
	depth int
	now   func() time.Time
}

var (
	_ bus.Publisher  = (*Bus)(nil)
	_ bus.Subscriber = (*Bus)(nil)
)

type Option func(*Bus)

// WithDuplicateWindow sets how long a msgID is remembered. Zero disables
// duplicate detection.
func WithDuplicateWindow(d time.Duration) Option {
	return func(b *Bus) { b.window = d }
}

// WithDepth sets how many messages each group buffers before Publish blocks.
func WithDepth(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.depth = n
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		groups: make(map[string]*group),
		seen:   make(map[string]time.Time),
		window: 2 * time.Minute,
		depth:  1024,
		now:    time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish hands the message to every matching group, waiting for queue room
// until ctx is done. A msgID seen within the duplicate window is dropped
// with bus.ErrDuplicate, like the JetStream duplicate window.
func (b *Bus) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if msgID != "" && b.window > 0 {
		now := b.now()
		b.prune(now)
		if at, dup := b.seen[msgID]; dup && now.Sub(at) < b.window {
			b.mu.Unlock()
			return bus.ErrDuplicate
		}
		b.seen[msgID] = now
	}
	targets := b.matching(subject)
	b.mu.Unlock()

	msg := bus.Message{Subject: subject, Data: append([]byte(nil), data...), ID: msgID}
	for _, g := range targets {
		if err := enqueue(ctx, g, delivery{msg: msg, attempt: 1}); err != nil {
			// not accepted, so a retry with the same msgID must go through
			b.forget(msgID)
			return fmt.Errorf("membus publish %s: %w", subject, err)
		}
	}
	return nil
}

// prune drops expired msgIDs at most once per window. Callers hold b.mu.
func (b *Bus) prune(now time.Time) {
	if now.Sub(b.pruned) < b.window {
		return
	}
	for id, at := range b.seen {
		if now.Sub(at) >= b.window {
			delete(b.seen, id)
		}
	}
	b.pruned = now
}

func (b *Bus) forget(msgID string) {
	if msgID == "" {
		return
	}
	b.mu.Lock()
	delete(b.seen, msgID)
	b.mu.Unlock()
}

// matching lists the groups subscribed to subject. Callers hold b.mu.
func (b *Bus) matching(subject string) []*group {
	targets := make([]*group, 0, len(b.groups))
	for _, g := range b.groups {
		if Match(g.sub.Subject, subject) {
			targets = append(targets, g)
		}
	}
	return targets
}

func (b *Bus) publishDeadLetter(ctx context.Context, g *group, d delivery, reason error) error {
	dl := bus.Message{
		Subject: g.sub.DeadLetterSubject,
		Data:    d.msg.Data,
		ID:      d.msg.ID,
		Header: map[string]string{
			bus.HeaderOriginalSubject: d.msg.Subject,
			bus.HeaderConsumer:        g.sub.Name,
			bus.HeaderReason:          reason.Error(),
		},
	}
	b.mu.RLock()
	targets := b.matching(dl.Subject)
	b.mu.RUnlock()
	for _, t := range targets {
		if err := enqueue(ctx, t, delivery{msg: dl, attempt: 1}); err != nil {
			return err
		}
	}
	return nil
}

func enqueue(ctx context.Context, g *group, d delivery) error {
	select {
	case g.queue <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers the group and runs its handler loop until ctx is done.
// A second Subscribe with the same name shares the group's queue.
func (b *Bus) Subscribe(ctx context.Context, sub bus.Subscription, h bus.Handler) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	g, ok := b.groups[sub.Name]
	if !ok {
		g = &group{sub: sub, queue: make(chan delivery, b.depth)}
		b.groups[sub.Name] = g
	}
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			g.wg.Wait()
			return nil
		case d := <-g.queue:
			b.handle(ctx, g, h, d)
		}
	}
}

// Subscribed reports whether a group named name exists. Messages published
// before the first Subscribe of a group are not delivered to it.
func (b *Bus) Subscribed(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.groups[name]
	return ok
}

func (b *Bus) handle(ctx context.Context, g *group, h bus.Handler, d delivery) {
	msg := d.msg
	msg.Attempt = d.attempt

	hctx := ctx
	if g.sub.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, g.sub.HandlerTimeout)
		defer cancel()
	}
	err := h(hctx, msg)
	if err == nil {
		return
	}

	// Follow-up sends run off the handler loop; they may wait on a full queue.
	if bus.IsPermanent(err) || d.attempt >= g.sub.MaxAttempts {
		zap.L().Warn("membus.dead_letter",
			zap.String("consumer", g.sub.Name),
			zap.String("subject", msg.Subject),
			zap.Int("attempt", d.attempt),
			zap.Error(err))
		if g.sub.DeadLetterSubject == "" {
			return
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			if dlErr := b.publishDeadLetter(ctx, g, d, err); dlErr != nil {
				zap.L().Error("membus.dead_letter_failed", zap.String("consumer", g.sub.Name), zap.Error(dlErr))
			}
		}()
		return
	}

	next := delivery{msg: d.msg, attempt: d.attempt + 1}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		t := time.NewTimer(g.sub.RetryInterval)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			_ = enqueue(ctx, g, next)
		}
	}()
}

// Match reports whether subject matches pattern using NATS wildcard rules:
// "*" matches one token and a trailing ">" matches one or more.
func Match(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
