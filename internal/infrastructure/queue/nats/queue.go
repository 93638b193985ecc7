package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/docuflow/docuflow/internal/core/domain"
	"github.com/docuflow/docuflow/internal/infrastructure/resilience"
)

// redeliveryWait is the broker-side delay before a failed delivery is
// retried. Scheduled retries carry their own delay in the event itself.
const redeliveryWait = 5 * time.Second

// Queue is the NATS-backed message queue. Ingestion events go through a
// JetStream work queue so deliveries survive process crashes and are
// retried until explicitly acknowledged; handlers must be idempotent.
// Terminal notifications stay on core NATS, where a missed delivery only
// loses a notification.
type Queue struct {
	conn              *nats.Conn
	js                nats.JetStreamContext
	streamName        string
	ingestSubject     string
	processedSubject  string
	deadLetterSubject string
	executor          *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	StreamName           string
	ResilienceExecutor   *resilience.Executor
}

type Subjects struct {
	Ingest     string
	Processed  string
	DeadLetter string
}

func New(url string, subjects Subjects) (*Queue, error) {
	return NewWithOptions(url, subjects, Options{})
}

func NewWithOptions(url string, subjects Subjects, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	streamName := options.StreamName
	if streamName == "" {
		streamName = "DOCUFLOW"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docuflow"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	q := &Queue{
		conn:              conn,
		js:                js,
		streamName:        streamName,
		ingestSubject:     subjects.Ingest,
		processedSubject:  subjects.Processed,
		deadLetterSubject: subjects.DeadLetter,
		executor:          options.ResilienceExecutor,
	}
	if err := q.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// ensureStream creates the ingestion work queue if it does not exist yet.
// Both api and worker call this at startup, so creation must be tolerant
// of the stream already being there.
func (q *Queue) ensureStream() error {
	_, err := q.js.StreamInfo(q.streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	_, err = q.js.AddStream(&nats.StreamConfig{
		Name:      q.streamName,
		Subjects:  []string{q.ingestSubject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("create stream: %w", err)
	}
	return nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) publish(ctx context.Context, subject string, payload any, durable bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	call := func(_ context.Context) error {
		if durable {
			if _, err := q.js.Publish(subject, data); err != nil {
				return fmt.Errorf("jetstream publish: %w", err)
			}
			return nil
		}
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) PublishIngestion(ctx context.Context, event domain.IngestionEvent) error {
	return q.publish(ctx, q.ingestSubject, event, true)
}

// PublishIngestionAfter persists a retried event immediately with a
// not-before timestamp. The consumer negatively acknowledges early
// deliveries with the remaining wait, so the broker holds the retry
// through worker crashes instead of an in-process timer.
func (q *Queue) PublishIngestionAfter(ctx context.Context, event domain.IngestionEvent, delay time.Duration) error {
	if delay > 0 {
		event.NotBefore = time.Now().UTC().Add(delay)
	}
	return q.publish(ctx, q.ingestSubject, event, true)
}

func (q *Queue) PublishProcessed(ctx context.Context, event domain.ProcessedEvent) error {
	return q.publish(ctx, q.processedSubject, event, false)
}

func (q *Queue) PublishDeadLetter(ctx context.Context, entry domain.DeadLetterEntry) error {
	return q.publish(ctx, q.deadLetterSubject, entry, false)
}

// retryDelay reports how long a delivery must still wait before its event
// is due. Zero means the event is ready to process.
func retryDelay(event domain.IngestionEvent, now time.Time) time.Duration {
	if event.NotBefore.IsZero() {
		return 0
	}
	wait := event.NotBefore.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// SubscribeIngestion consumes ingestion events from the JetStream work
// queue until the context is cancelled. Acknowledgement is explicit: a
// handler error leaves the message in the stream for redelivery, and
// malformed payloads are terminated so they cannot poison the queue. At
// most `workers` handlers run at once; further deliveries block in the
// subscription callback, which pushes the backpressure into the pending
// buffer.
func (q *Queue) SubscribeIngestion(ctx context.Context, workers int, handler func(context.Context, domain.IngestionEvent) error) error {
	if workers <= 0 {
		workers = 1
	}
	slots := make(chan struct{}, workers)

	sub, err := q.js.QueueSubscribe(q.ingestSubject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-slots }()

		var event domain.IngestionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("terminating malformed ingestion event: %v", err)
			if err := msg.Term(); err != nil {
				log.Printf("term malformed event failed: %v", err)
			}
			return
		}

		if wait := retryDelay(event, time.Now().UTC()); wait > 0 {
			if err := msg.NakWithDelay(wait); err != nil {
				log.Printf("nak scheduled event failed for doc=%s: %v", event.DocumentID, err)
			}
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			log.Printf("worker handler error for doc=%s: %v", event.DocumentID, err)
			if err := msg.NakWithDelay(redeliveryWait); err != nil {
				log.Printf("nak failed for doc=%s: %v", event.DocumentID, err)
			}
			return
		}
		if err := msg.Ack(); err != nil {
			log.Printf("ack failed for doc=%s: %v", event.DocumentID, err)
		}
	}, nats.ManualAck(), nats.AckExplicit(), nats.AckWait(2*time.Minute), nats.DeliverAll())
	if err != nil {
		return fmt.Errorf("jetstream subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
