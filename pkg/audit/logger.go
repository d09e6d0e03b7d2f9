// Package audit persists decision records without delaying the response
// path. Records flow through a bounded queue to a background worker;
// persistence is best-effort and failures are reported operationally, never
// to the client.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Options tunes the logger.
type Options struct {
	// QueueSize bounds the number of records waiting for the worker.
	QueueSize int
	// Failures counts records that could not be persisted.
	Failures prometheus.Counter
	// Dropped counts records rejected because the queue was full.
	Dropped prometheus.Counter
}

// Logger writes audit records asynchronously.
type Logger struct {
	store  domain.AuditStore
	queue  chan domain.AuditRecord
	logger *slog.Logger
	opts   Options

	wg       sync.WaitGroup
	closing  chan struct{}
	closeOne sync.Once
}

// New creates a Logger and starts its worker.
func New(store domain.AuditStore, logger *slog.Logger, opts Options) *Logger {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Logger{
		store:   store,
		queue:   make(chan domain.AuditRecord, opts.QueueSize),
		logger:  logger,
		opts:    opts,
		closing: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Record enqueues one audit record and returns immediately. When the queue
// is full the record is dropped and the drop is reported; audit never blocks
// or fails a mediated request.
func (l *Logger) Record(rec domain.AuditRecord) {
	select {
	case <-l.closing:
		l.persist(rec) // shutdown path writes synchronously
		return
	default:
	}

	select {
	case l.queue <- rec:
	default:
		l.logger.Error("audit queue full, dropping record", "action", rec.Action)
		if l.opts.Dropped != nil {
			l.opts.Dropped.Inc()
		}
	}
}

func (l *Logger) run() {
	defer l.wg.Done()
	for {
		select {
		case rec := <-l.queue:
			l.persist(rec)
		case <-l.closing:
			// Drain whatever is already queued.
			for {
				select {
				case rec := <-l.queue:
					l.persist(rec)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) persist(rec domain.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.store.Insert(ctx, &rec); err != nil {
		l.logger.Error("failed to persist audit record",
			"error", err,
			"action", rec.Action,
		)
		if l.opts.Failures != nil {
			l.opts.Failures.Inc()
		}
	}
}

// Close drains the queue and stops the worker.
func (l *Logger) Close() {
	l.closeOne.Do(func() { close(l.closing) })
	l.wg.Wait()
}
