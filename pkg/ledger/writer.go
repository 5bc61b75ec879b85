//
//  Copyright © Trustline Inc. All rights reserved.
//

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/common"
)

var logger = logging.GetLogger("authguard.ledger")

const agent = "ledger"

// OverflowPolicy selects the behavior when the bounded queue stays full
// past the submission timeout.
type OverflowPolicy string

// Overflow policies.
const (
	// OverflowSync writes the entry synchronously on the caller.
	OverflowSync OverflowPolicy = "sync"
	// OverflowDrop discards the entry and increments the drop counter.
	OverflowDrop OverflowPolicy = "drop"
)

// Observer receives writer telemetry. Implementations must be cheap; the
// writer calls them on the hot path.
type Observer interface {
	QueueDepth(depth int)
	SyncFallback()
	Dropped()
	WriteFailed()
}

// nopObserver is used when no observer is configured.
type nopObserver struct{}

func (nopObserver) QueueDepth(int) {}
func (nopObserver) SyncFallback()  {}
func (nopObserver) Dropped()       {}
func (nopObserver) WriteFailed()   {}

// Options configures the ledger writer.
type Options struct {
	// QueueSize is the capacity of the bounded submission queue.
	QueueSize int
	// SubmitTimeout bounds how long Submit blocks on a full queue before
	// the overflow policy applies.
	SubmitTimeout time.Duration
	// Overflow selects the queue-full behavior.
	Overflow OverflowPolicy
	// Observer receives telemetry; nil disables it.
	Observer Observer
}

// DefaultOptions returns the production writer defaults.
func DefaultOptions() Options {
	return Options{
		QueueSize:     1000,
		SubmitTimeout: 250 * time.Millisecond,
		Overflow:      OverflowSync,
	}
}

// Writer is the asynchronous ledger front-end: a bounded queue drained by
// a single background worker that appends to the store. Queue-submission
// delay is the system's sole backpressure signal to upstream.
type Writer struct {
	store    *Store
	queue    chan *Entry
	opts     Options
	observer Observer

	// mu spans the closed check and the queue send in Submit; Shutdown
	// takes it exclusively before closing the queue, so the channel never
	// closes under a live sender.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewWriter creates and starts a ledger writer over the store.
func NewWriter(store *Store, opts Options) *Writer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = DefaultOptions().SubmitTimeout
	}
	if opts.Overflow == "" {
		opts.Overflow = OverflowSync
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	w := &Writer{
		store:    store,
		queue:    make(chan *Entry, opts.QueueSize),
		opts:     opts,
		observer: observer,
	}

	w.wg.Add(1)
	go w.run()

	return w
}

// Store exposes the underlying store for verification and reads.
func (w *Writer) Store() *Store {
	return w.store
}

// run drains the queue in enqueue order; a single worker preserves the
// total order of entries within each partition.
func (w *Writer) run() {
	defer w.wg.Done()

	for e := range w.queue {
		w.append(e)
		w.observer.QueueDepth(len(w.queue))
	}
}

func (w *Writer) append(e *Entry) {
	if err := w.store.Append(e); err != nil {
		w.observer.WriteFailed()
		logger.Errorf(agent, "append", "audit write failed for entry %s: %+v", e.EntryID, err)
	}
}

// Submit hands an entry off to the writer and returns its identifier. The
// caller may block for up to the submission timeout when the queue is
// full; after that the overflow policy applies. Submit never fails the
// caller for a downstream write error — those are logged and counted.
//
// After Shutdown, submissions write synchronously inline.
func (w *Writer) Submit(e *Entry) (string, error) {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.appendSync(e)
	}

	select {
	case w.queue <- e:
		w.observer.QueueDepth(len(w.queue))
		w.mu.RUnlock()
		return e.EntryID, nil
	default:
	}

	// Queue full: block up to the timeout before applying overflow policy.
	timer := time.NewTimer(w.opts.SubmitTimeout)
	defer timer.Stop()

	select {
	case w.queue <- e:
		w.observer.QueueDepth(len(w.queue))
		w.mu.RUnlock()
		return e.EntryID, nil
	case <-timer.C:
	}
	w.mu.RUnlock()

	switch w.opts.Overflow {
	case OverflowDrop:
		w.observer.Dropped()
		return "", common.NewError(common.CodeAudit, "audit queue full, entry dropped")
	default:
		w.observer.SyncFallback()
		return w.appendSync(e)
	}
}

func (w *Writer) appendSync(e *Entry) (string, error) {
	if err := w.store.Append(e); err != nil {
		return "", common.WrapError(common.CodeAudit, "audit write failed", err)
	}
	return e.EntryID, nil
}

// QueueDepth returns the current queue occupancy.
func (w *Writer) QueueDepth() int {
	return len(w.queue)
}

// Shutdown drains the queue within the context deadline, flushes whatever
// remains synchronously, and stops the worker. Subsequent submissions
// write synchronously inline. Shutdown never aborts a write already in
// progress.
func (w *Writer) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	// Acquiring the write lock waited out every in-flight sender, and new
	// submissions now take the synchronous path, so closing is safe.
	close(w.queue)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Deadline expired while the worker drains; the worker keeps the
		// remaining entries safe because it owns the closed channel until
		// empty. Wait for it regardless so no entry is abandoned.
		<-done
		return ctx.Err()
	}
}
