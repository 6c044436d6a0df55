package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/herald-mq/herald"
	"github.com/herald-mq/herald/pkg/slogx"
)

// delivery is one unit of dispatch work: a batch of content bound for
// one user's notifier. The batch is either a topic backlog or a single
// freshly published item.
type delivery struct {
	user   herald.UserID
	notify herald.Notifier
	batch  []herald.Content
}

// dispatcher delivers batches to subscriber callbacks without blocking
// the operation that triggered them. A fixed pool of workers drains a
// buffered queue; when the queue is full the delivery runs on its own
// goroutine instead, so enqueue never blocks and nothing is dropped.
//
// Failures are contained here: an error returned by a notifier is
// logged, a panic raised by one is recovered and logged. Neither is
// retried or surfaced to the triggering operation. Dispatch has no
// cancellation; a hung notifier ties up one worker until it returns.
type dispatcher struct {
	tasks    chan delivery
	workers  sync.WaitGroup
	inflight sync.WaitGroup
	log      *slog.Logger

	closeOnce sync.Once
}

func newDispatcher(workers, queue int, log *slog.Logger) *dispatcher {
	d := &dispatcher{
		tasks: make(chan delivery, queue),
		log:   log.With(slogx.LoggerName("dispatcher")),
	}
	d.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer d.workers.Done()
			for t := range d.tasks {
				d.deliver(t)
			}
		}()
	}
	return d
}

// enqueue hands a delivery to the pool. Empty batches are skipped. The
// caller must not hold the state lock.
func (d *dispatcher) enqueue(t delivery) {
	if len(t.batch) == 0 || t.notify == nil {
		return
	}
	d.inflight.Add(1)
	select {
	case d.tasks <- t:
	default:
		// Queue is full: keep fire-and-forget semantics on a dedicated
		// goroutine rather than blocking the caller or dropping.
		go d.deliver(t)
	}
}

func (d *dispatcher) deliver(t delivery) {
	defer d.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notifier panicked",
				slog.Any("panic", r),
				slog.String("user", string(t.user)),
			)
		}
	}()
	if err := t.notify.Notify(context.Background(), t.batch); err != nil {
		d.log.Warn("notification delivery failed",
			slogx.Error(err),
			slog.String("user", string(t.user)),
			slog.Int("batch", len(t.batch)),
		)
	}
}

// close stops intake and waits for queued and in-flight deliveries.
// Enqueueing after close is a programming error.
func (d *dispatcher) close() {
	d.closeOnce.Do(func() {
		close(d.tasks)
		d.workers.Wait()
		d.inflight.Wait()
	})
}
