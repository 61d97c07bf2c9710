package dispatch

import (
	"sync"

	"github.com/mercator-hq/warden/pkg/streamfilter"
	"github.com/mercator-hq/warden/pkg/transaction"
)

// Logger is the minimal logging capability the dispatcher needs.
type Logger interface {
	Errorf(format string, args ...any)
}

// Item is one queued notification: Run performs the actual engine call.
// TxnID is empty for connection-scope items, which are always eligible
// regardless of any transaction's mailbox state.
type Item struct {
	TxnID string
	Run   func() error
}

// Dispatcher is a FIFO notification queue drained by a fixed pool of
// worker goroutines, with a per-transaction mailbox ensuring at most one
// notification runs for a given transaction at a time.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Item
	tokens map[string]chan struct{}
	ctxs   map[string]*transaction.Context
	logger Logger
	closed bool
	wg     sync.WaitGroup
}

// New starts a dispatcher with the given worker count (clamped to at
// least 1).
func New(workers int, logger Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		tokens: make(map[string]chan struct{}),
		ctxs:   make(map[string]*transaction.Context),
		logger: logger,
	}
	d.cond = sync.NewCond(&d.mu)
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.workerLoop()
	}
	return d
}

// RegisterTransaction opens ctx's mailbox. Call when the transaction is
// created, before any notification for it can be enqueued.
func (d *Dispatcher) RegisterTransaction(ctx *transaction.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tokens[ctx.ID]; ok {
		return
	}
	token := make(chan struct{}, 1)
	token <- struct{}{}
	d.tokens[ctx.ID] = token
	d.ctxs[ctx.ID] = ctx
}

// UnregisterTransaction closes ctx's mailbox. Call only after the
// transaction's terminal notifications have all been drained (the
// transaction-close path does not enqueue through this dispatcher, so
// there is no race with in-flight items for this id).
func (d *Dispatcher) UnregisterTransaction(txnID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tokens, txnID)
	delete(d.ctxs, txnID)
}

// Idle reports whether no notification for the given transaction is
// queued or currently running. Used as the rendezvous predicate when a
// producer must wait for in-flight engine notifications to finish
// before committing (e.g. the terminal body flush).
func (d *Dispatcher) Idle(txnID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range d.queue {
		if item.TxnID == txnID {
			return false
		}
	}
	token, ok := d.tokens[txnID]
	if !ok {
		return true
	}
	select {
	case <-token:
		token <- struct{}{}
		return true
	default:
		return false
	}
}

// Enqueue appends item to the queue and wakes a worker.
func (d *Dispatcher) Enqueue(item Item) {
	d.mu.Lock()
	d.queue = append(d.queue, item)
	d.cond.Signal()
	d.mu.Unlock()
}

// EnqueueConn enqueues a connection-scope item, always eligible
// regardless of any transaction's busy state.
func (d *Dispatcher) EnqueueConn(run func() error) {
	d.Enqueue(Item{Run: run})
}

// Close stops accepting new progress, lets queued items already eligible
// drain, and waits for every worker to exit. Items that can never become
// eligible (their transaction's mailbox was removed without draining)
// are simply never run; callers are expected to drain synchronously
// before unregistering, as transaction.Context.Close does.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()
	for {
		item, token, ok := d.next()
		if !ok {
			return
		}
		if err := item.Run(); err != nil && d.logger != nil {
			d.logger.Errorf("dispatch: notification failed: %v", err)
		}
		if token != nil {
			token <- struct{}{}
			d.mu.Lock()
			d.cond.Broadcast()
			ctx := d.ctxs[item.TxnID]
			d.mu.Unlock()
			// Wake rendezvous waiters parked on this transaction: the
			// notification they were gating on has completed.
			if ctx != nil {
				ctx.Signal()
			}
		}
	}
}

func (d *Dispatcher) next() (Item, chan struct{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if item, token, found := d.findAndClaimLocked(); found {
			return item, token, true
		}
		if d.closed && len(d.queue) == 0 {
			return Item{}, nil, false
		}
		d.cond.Wait()
	}
}

// findAndClaimLocked scans the queue for the first eligible item —
// connection-scope, or a transaction whose mailbox token is currently
// available — removes it from the queue, and claims its token. Callers
// must hold d.mu.
func (d *Dispatcher) findAndClaimLocked() (Item, chan struct{}, bool) {
	for i, item := range d.queue {
		if item.TxnID == "" {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return item, nil, true
		}
		token, ok := d.tokens[item.TxnID]
		if !ok {
			// Mailbox already closed: the transaction was destroyed
			// without this item ever becoming eligible. Drop it.
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			continue
		}
		select {
		case <-token:
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return item, token, true
		default:
			continue
		}
	}
	return Item{}, nil, false
}

// NotifyBodyData implements transaction.Dispatcher. It copies data (the
// filter does not block waiting for delivery, so the chunk must not
// alias a buffer the filter may reuse) and enqueues the engine call.
func (d *Dispatcher) NotifyBodyData(txnID string, dir streamfilter.Direction, data []byte) error {
	d.mu.Lock()
	ctx := d.ctxs[txnID]
	d.mu.Unlock()
	if ctx == nil {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	d.Enqueue(Item{TxnID: txnID, Run: func() error {
		tx := ctx.EngineTransaction()
		if tx == nil {
			return nil
		}
		if dir == streamfilter.Response {
			return tx.ResponseBodyData(cp)
		}
		return tx.RequestBodyData(cp)
	}})
	return nil
}

// NotifyBodyFinished implements transaction.Dispatcher. For the request
// direction this fires request_finished. For the response direction,
// since nothing else occurs between them in the normal flow, it fires
// response_finished, postprocess, and logging back to back in the same
// dispatch item, then signals the transaction's rendezvous.
func (d *Dispatcher) NotifyBodyFinished(txnID string, dir streamfilter.Direction) error {
	d.mu.Lock()
	ctx := d.ctxs[txnID]
	d.mu.Unlock()
	if ctx == nil {
		return nil
	}

	d.Enqueue(Item{TxnID: txnID, Run: func() error {
		tx := ctx.EngineTransaction()

		if dir == streamfilter.Request {
			var err error
			if tx != nil {
				err = tx.RequestFinished()
			}
			ctx.MarkRequestFinished()
			ctx.Signal()
			return err
		}

		var firstErr error
		if tx != nil {
			if err := tx.ResponseFinished(); err != nil {
				firstErr = err
			}
		}
		ctx.MarkResponseFinished()
		ctx.Signal()

		if tx != nil {
			if err := tx.Postprocess(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		ctx.MarkPostprocess()

		if tx != nil {
			if err := tx.Logging(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		ctx.MarkLogging()
		ctx.Signal()

		return firstErr
	}})
	return nil
}
