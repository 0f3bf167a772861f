// Package governor serializes outbound calls to a rate-limited endpoint.
//
// A Governor owns a FIFO queue drained by at most one goroutine. Consecutive
// dispatches start no closer together than MinInterval, and every dispatch is
// followed by a short CourtesyDelay before the next item is considered. The
// delay follows failed dispatches as well as successful ones, so a rejected
// call still holds the queue for CourtesyDelay. The governor only delays; it
// never fails or retries a request on its own.
//
// Requests cannot be cancelled once enqueued. A caller may stop waiting, but
// the operation is still dispatched in turn, so a stuck backend raises the
// latency of every request queued behind it.
package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/civicbot/internal/clock"
)

const (
	DefaultMinInterval   = 2000 * time.Millisecond
	DefaultCourtesyDelay = 500 * time.Millisecond
)

// Operation performs one external call. The context is the governor's
// lifetime context, not the enqueuing caller's.
type Operation func(ctx context.Context) (string, error)

// Options configures a Governor. A zero MinInterval selects
// DefaultMinInterval; a zero CourtesyDelay disables the courtesy pause.
type Options struct {
	MinInterval   time.Duration
	CourtesyDelay time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Stats is a point-in-time snapshot of the governor state.
type Stats struct {
	Pending    int
	Draining   bool
	LastStart  time.Time
	Dispatched uint64
}

// Governor is the single dispatcher for outbound AI calls.
type Governor struct {
	ctx           context.Context
	minInterval   time.Duration
	courtesyDelay time.Duration
	clock         clock.Clock
	logger        *slog.Logger

	mu         sync.Mutex
	queue      []*Request
	draining   bool
	lastStart  time.Time
	dispatched uint64
}

// New creates a Governor whose operations run under ctx. Cancelling ctx
// cancels in-flight and future operations but does not drop queued requests:
// they are still dispatched and settle with the operation's error.
func New(ctx context.Context, opts Options) *Governor {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.CourtesyDelay < 0 {
		opts.CourtesyDelay = 0
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Governor{
		ctx:           ctx,
		minInterval:   opts.MinInterval,
		courtesyDelay: opts.CourtesyDelay,
		clock:         opts.Clock,
		logger:        opts.Logger,
	}
}

// Enqueue appends op to the queue and returns its pending result. It never
// blocks on the network and never fails.
func (g *Governor) Enqueue(op Operation) *Request {
	req := &Request{op: op, done: make(chan struct{})}

	g.mu.Lock()
	g.queue = append(g.queue, req)
	start := !g.draining
	if start {
		g.draining = true
	}
	pending := len(g.queue)
	g.mu.Unlock()

	g.logger.Debug("request enqueued", "pending", pending, "start_drain", start)
	if start {
		go g.drain()
	}
	return req
}

// Do enqueues op and waits for its outcome.
func (g *Governor) Do(ctx context.Context, op Operation) (string, error) {
	return g.Enqueue(op).Wait(ctx)
}

// Stats returns a snapshot of the queue.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Pending:    len(g.queue),
		Draining:   g.draining,
		LastStart:  g.lastStart,
		Dispatched: g.dispatched,
	}
}

// drain is the single worker. It exits, clearing draining, only while
// holding the lock with an empty queue, so Enqueue can never observe a
// draining flag for a loop that will not pick its request up.
func (g *Governor) drain() {
	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.draining = false
			g.mu.Unlock()
			return
		}
		last := g.lastStart
		g.mu.Unlock()

		if !last.IsZero() {
			if elapsed := g.clock.Now().Sub(last); elapsed < g.minInterval {
				// Spacing only delays; a cancelled lifetime context
				// surfaces through the operation itself.
				_ = g.clock.Sleep(g.ctx, g.minInterval-elapsed)
			}
		}

		g.mu.Lock()
		g.lastStart = g.clock.Now()
		req := g.queue[0]
		g.queue[0] = nil
		g.queue = g.queue[1:]
		g.dispatched++
		g.mu.Unlock()

		req.settle(req.op(g.ctx))

		if g.courtesyDelay > 0 {
			_ = g.clock.Sleep(g.ctx, g.courtesyDelay)
		}
	}
}

// Request is the pending result slot of an enqueued operation.
type Request struct {
	op   Operation
	done chan struct{}
	val  string
	err  error
}

func (r *Request) settle(val string, err error) {
	r.val, r.err = val, err
	close(r.done)
}

// Done is closed once the operation has settled.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the operation settles or ctx is done. Giving up on the
// wait does not remove the request from the queue.
func (r *Request) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
