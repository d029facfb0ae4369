// Package natsbus implements the bus on NATS JetStream: one stream holding
// every subject, durable pull consumers with explicit acks.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidledger/internal/bus"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

type Options struct {
	Stream          string
	Subjects        []string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
	PublishRetries  int
	PublishWait     time.Duration
}

type Bus struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	opts Options
	// publishMsg sends dead letters; js.PublishMsg outside tests
	publishMsg func(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

var (
	_ bus.Publisher  = (*Bus)(nil)
	_ bus.Subscriber = (*Bus)(nil)
)

// Connect dials url and makes sure the stream exists with the given subjects.
func Connect(ctx context.Context, url string, opts Options) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("bidledger"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zap.L().Warn("nats.disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			zap.L().Info("nats.reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       opts.Stream,
		Subjects:   opts.Subjects,
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     opts.MaxAge,
		Duplicates: opts.DuplicateWindow,
		Replicas:   1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create or update stream %s: %w", opts.Stream, err)
	}
	zap.L().Info("jetstream.stream_ready", zap.String("stream", opts.Stream), zap.Strings("subjects", opts.Subjects))

	return &Bus{nc: nc, js: js, opts: opts, publishMsg: js.PublishMsg}, nil
}

func (b *Bus) Close() error {
	return b.nc.Drain()
}

// Publish waits for the stream's ack. msgID is sent as Nats-Msg-Id; a
// republish within the duplicate window is dropped by the stream and
// reported as bus.ErrDuplicate.
func (b *Bus) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	opts := []jetstream.PublishOpt{
		jetstream.WithRetryAttempts(b.opts.PublishRetries),
		jetstream.WithRetryWait(b.opts.PublishWait),
	}
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	ack, err := b.js.Publish(ctx, subject, data, opts...)
	if err != nil {
		return err
	}
	if ack.Duplicate {
		zap.L().Debug("jetstream.duplicate_publish", zap.String("subject", subject), zap.String("msg_id", msgID))
		return bus.ErrDuplicate
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, sub bus.Subscription, h bus.Handler) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	cons, err := b.js.CreateOrUpdateConsumer(ctx, b.opts.Stream, consumerConfig(sub))
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", sub.Name, err)
	}

	cc, err := cons.Consume(func(m jetstream.Msg) {
		b.handle(ctx, sub, h, m)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", sub.Name, err)
	}
	zap.L().Info("jetstream.consumer_started", zap.String("consumer", sub.Name), zap.String("subject", sub.Subject))

	<-ctx.Done()
	cc.Stop()
	return nil
}

// consumerConfig leaves MaxDeliver unlimited. The attempt limit is enforced
// by next, and a delivery is only terminated once its dead letter is stored.
func consumerConfig(sub bus.Subscription) jetstream.ConsumerConfig {
	ackWait := 30 * time.Second
	if sub.HandlerTimeout > 0 {
		ackWait = sub.HandlerTimeout + 5*time.Second
	}
	return jetstream.ConsumerConfig{
		Durable:       sub.Name,
		FilterSubject: sub.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       ackWait,
		MaxDeliver:    -1,
	}
}

func (b *Bus) handle(ctx context.Context, sub bus.Subscription, h bus.Handler, m jetstream.Msg) {
	attempt := 1
	if md, err := m.Metadata(); err == nil {
		attempt = int(md.NumDelivered)
	}
	msg := bus.Message{
		Subject: m.Subject(),
		Data:    m.Data(),
		ID:      m.Headers().Get(jetstream.MsgIDHeader),
		Attempt: attempt,
	}
	if hdr := m.Headers(); len(hdr) > 0 {
		msg.Header = make(map[string]string, len(hdr))
		for k := range hdr {
			msg.Header[k] = hdr.Get(k)
		}
	}

	hctx := ctx
	if sub.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, sub.HandlerTimeout)
		defer cancel()
	}
	herr := h(hctx, msg)

	switch next(sub, attempt, herr) {
	case ack:
		if err := m.Ack(); err != nil {
			zap.L().Warn("jetstream.ack_failed", zap.String("consumer", sub.Name), zap.Error(err))
		}
	case retry:
		zap.L().Debug("jetstream.retry",
			zap.String("consumer", sub.Name),
			zap.String("subject", msg.Subject),
			zap.Int("attempt", attempt),
			zap.Error(herr))
		if err := m.NakWithDelay(sub.RetryInterval); err != nil {
			zap.L().Warn("jetstream.nak_failed", zap.String("consumer", sub.Name), zap.Error(err))
		}
	case deadLetter:
		zap.L().Warn("jetstream.dead_letter",
			zap.String("consumer", sub.Name),
			zap.String("subject", msg.Subject),
			zap.Int("attempt", attempt),
			zap.Error(herr))
		if err := b.deadLetter(ctx, sub, msg, herr); err != nil {
			zap.L().Error("jetstream.dead_letter_failed", zap.String("consumer", sub.Name), zap.Error(err))
			// redelivered and dead-lettered again on the next attempt
			if err := m.NakWithDelay(sub.RetryInterval); err != nil {
				zap.L().Warn("jetstream.nak_failed", zap.String("consumer", sub.Name), zap.Error(err))
			}
			return
		}
		if err := m.TermWithReason(herr.Error()); err != nil {
			zap.L().Warn("jetstream.term_failed", zap.String("consumer", sub.Name), zap.Error(err))
		}
	}
}

func (b *Bus) deadLetter(ctx context.Context, sub bus.Subscription, msg bus.Message, reason error) error {
	if sub.DeadLetterSubject == "" {
		return nil
	}
	out := nats.NewMsg(sub.DeadLetterSubject)
	out.Data = msg.Data
	out.Header.Set(bus.HeaderOriginalSubject, msg.Subject)
	out.Header.Set(bus.HeaderConsumer, sub.Name)
	out.Header.Set(bus.HeaderReason, reason.Error())

	var opts []jetstream.PublishOpt
	if msg.ID != "" {
		opts = append(opts, jetstream.WithMsgID("dlq-"+sub.Name+"-"+msg.ID))
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_, err := b.publishMsg(pctx, out, opts...)
	return err
}

type action int

const (
	ack action = iota
	retry
	deadLetter
)

// next decides what happens to a delivery after its handler returned err.
func next(sub bus.Subscription, attempt int, err error) action {
	switch {
	case err == nil:
		return ack
	case errors.Is(err, bus.ErrPermanent), attempt >= sub.MaxAttempts:
		return deadLetter
	default:
		return retry
	}
}
