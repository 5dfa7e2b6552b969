// Package events carries media jobs over NATS JetStream so association work
// survives restarts and can be shared by several instances.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/backend/internal/service"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/blogmedia/blogmedia/shared/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "blog-media/events"

var natsMessagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "media_nats_messages_total",
		Help: "Media job messages consumed from NATS by outcome (acked, retried, terminated)",
	},
	[]string{"outcome"},
)

var natsPublishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "media_nats_publish_total",
		Help: "Media job publish acknowledgements by outcome (acked, failed, timeout)",
	},
	[]string{"outcome"},
)

const (
	publishAckTimeout = 10 * time.Second
	maxPendingAcks    = 1024
)

type Options struct {
	URL         string
	Stream      string
	Subject     string
	Durable     string
	MaxAttempts int
	JobTimeout  time.Duration
	RetryDelay  time.Duration
}

// Broker owns the connection and makes sure the stream exists.
type Broker struct {
	nc        *nats.Conn
	js        jetstream.JetStream
	opts      Options
	publisher *NatsPublisher
}

func Connect(ctx context.Context, opts Options) (*Broker, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}

	nc, err := nats.Connect(opts.URL, nats.Name("blog-media"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc, jetstream.WithPublishAsyncMaxPending(maxPendingAcks))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:     opts.Stream,
		Subjects: []string{opts.Subject},
		Storage:  jetstream.FileStorage,
		Replicas: 1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	logger.Log.Info("connected to NATS JetStream",
		"component", "events", "stream", opts.Stream, "subject", opts.Subject)
	return &Broker{
		nc:        nc,
		js:        js,
		opts:      opts,
		publisher: NewNatsPublisher(js, opts.Subject, publishAckTimeout),
	}, nil
}

func (b *Broker) Publisher() *NatsPublisher {
	return b.publisher
}

func (b *Broker) Consumer() *NatsConsumer {
	return &NatsConsumer{js: b.js, opts: b.opts}
}

// Ping reports whether the connection is up and JetStream answers.
func (b *Broker) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats connection is %s", b.nc.Status())
	}
	if _, err := b.js.AccountInfo(ctx); err != nil {
		return fmt.Errorf("jetstream account info: %w", err)
	}
	return nil
}

// Close waits briefly for outstanding publish acks, then drains the connection.
func (b *Broker) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.publisher.Wait(ctx); err != nil {
		logger.Log.Warn("closing with unacknowledged media jobs", "component", "events", "error", err)
	}
	if err := b.nc.Drain(); err != nil {
		logger.Log.Warn("nats drain failed", "component", "events", "error", err)
		b.nc.Close()
	}
}

type jetStreamPublisher interface {
	PublishMsgAsync(msg *nats.Msg, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// NatsPublisher hands jobs to JetStream without waiting for the server.
// Acknowledgements are collected in the background; a lost job is recovered
// by the next save of the post or by the scheduled sweep.
type NatsPublisher struct {
	js         jetStreamPublisher
	subject    string
	ackTimeout time.Duration
	pending    sync.WaitGroup
}

var _ service.MediaPublisher = (*NatsPublisher)(nil)

func NewNatsPublisher(js jetStreamPublisher, subject string, ackTimeout time.Duration) *NatsPublisher {
	return &NatsPublisher{js: js, subject: subject, ackTimeout: ackTimeout}
}

// Publish queues the job and returns once it is buffered for sending. It
// fails only when the client cannot take more unacknowledged messages or
// the connection is closed.
func (p *NatsPublisher) Publish(ctx context.Context, job domain.MediaJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal media job: %w", err)
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	future, err := p.js.PublishMsgAsync(msg)
	if err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		p.awaitAck(future, job.PostId)
	}()
	return nil
}

// Wait blocks until every published job is acknowledged or given up on.
func (p *NatsPublisher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *NatsPublisher) awaitAck(future jetstream.PubAckFuture, postId domain.PostId) {
	timer := time.NewTimer(p.ackTimeout)
	defer timer.Stop()

	select {
	case ack := <-future.Ok():
		natsPublishTotal.WithLabelValues("acked").Inc()
		logger.Log.Debug("published media job",
			"component", "events", "post_id", postId, "seq", ack.Sequence)
	case err := <-future.Err():
		natsPublishTotal.WithLabelValues("failed").Inc()
		logger.Log.Warn("media job not persisted",
			"component", "events", "post_id", postId, "error", err)
	case <-timer.C:
		natsPublishTotal.WithLabelValues("timeout").Inc()
		logger.Log.Warn("no acknowledgement for media job",
			"component", "events", "post_id", postId, "timeout", p.ackTimeout)
	}
}

// jobMessage is the part of jetstream.Msg the consumer relies on.
type jobMessage interface {
	Data() []byte
	Headers() nats.Header
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

type NatsConsumer struct {
	js   jetstream.JetStream
	opts Options
	cc   jetstream.ConsumeContext
}

// Start creates the durable consumer and begins handing jobs to handler.
func (c *NatsConsumer) Start(ctx context.Context, handler service.MediaJobHandler) error {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.opts.Stream, jetstream.ConsumerConfig{
		Durable:       c.opts.Durable,
		FilterSubject: c.opts.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.opts.JobTimeout + 5*time.Second,
		MaxDeliver:    c.opts.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		handleMessage(ctx, msg, handler, c.opts)
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.cc = cc
	logger.Log.Info("consuming media jobs",
		"component", "events", "durable", c.opts.Durable, "max_deliver", c.opts.MaxAttempts)
	return nil
}

func (c *NatsConsumer) Stop() {
	if c.cc != nil {
		c.cc.Stop()
	}
}

func handleMessage(ctx context.Context, msg jobMessage, handler service.MediaJobHandler, opts Options) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Headers()))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "process_media_job", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var job domain.MediaJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "undecodable payload")
		logger.Log.Error("invalid media job payload, terminating", "component", "events", "error", err)
		settle(msg.Term(), "terminated")
		return
	}

	delivered := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		delivered = meta.NumDelivered
	}

	jobCtx, cancel := context.WithTimeout(ctx, opts.JobTimeout)
	err := handler.HandleMediaJob(jobCtx, job)
	cancel()

	if err == nil {
		settle(msg.Ack(), "acked")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "media job failed")

	if delivered >= uint64(opts.MaxAttempts) {
		logger.Log.Error("media job failed, giving up",
			"component", "events", "post_id", job.PostId, "attempts", delivered, "error", err)
		settle(msg.Term(), "terminated")
		return
	}

	delay := retryDelay(err, delivered, opts.RetryDelay)
	logger.Log.Warn("media job failed, retrying",
		"component", "events", "post_id", job.PostId, "attempt", delivered, "retry_in", delay, "error", err)
	settle(msg.NakWithDelay(delay), "retried")
}

// retryDelay backs off linearly. A post that is not visible yet usually means
// the publishing transaction has not committed, so it waits at least a second.
func retryDelay(err error, delivered uint64, base time.Duration) time.Duration {
	delay := base * time.Duration(delivered)
	if internal_errors.Is[*internal_errors.PostNotFoundError](err) && delay < time.Second {
		delay = time.Second
	}
	return delay
}

func settle(err error, outcome string) {
	if err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			logger.Log.Debug("connection closed before settling message", "component", "events", "outcome", outcome)
			return
		}
		logger.Log.Warn("failed to settle message", "component", "events", "outcome", outcome, "error", err)
		return
	}
	natsMessagesTotal.WithLabelValues(outcome).Inc()
}
