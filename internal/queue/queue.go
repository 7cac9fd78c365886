// Package queue implements the four bounded FIFO stream queues between the
// blockchain controller's callback thread (producer) and the pipeline's
// single consumer goroutine, with shared-lock backpressure and an atomic
// drain-all-four-queues wakeup protocol.
package queue

import (
	"sync"
	"time"

	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/internal/metrics"
	"github.com/eosplugins/chainindex/pkg/chain"
)

// Stream names, also used as metrics labels. Order matches the fixed
// per-drain processing priority: traces first, then accepted transactions,
// then accepted blocks, then irreversible blocks.
const (
	StreamAppliedTransaction  = "applied_transaction"
	StreamAcceptedTransaction = "accepted_transaction"
	StreamAcceptedBlock       = "accepted_block"
	StreamIrreversibleBlock   = "irreversible_block"
)

const (
	sleepStep = 10 * time.Millisecond
	sleepCap  = 1000 * time.Millisecond
)

// Batch is one drain's worth of events, in fixed processing order.
type Batch struct {
	AppliedTransactions  []chain.TransactionTraceEvent
	AcceptedTransactions []chain.TransactionMetadataEvent
	AcceptedBlocks       []chain.BlockStateEvent
	IrreversibleBlocks   []chain.BlockStateEvent
}

// Empty reports whether the batch carries no events at all.
func (b Batch) Empty() bool {
	return len(b.AppliedTransactions) == 0 &&
		len(b.AcceptedTransactions) == 0 &&
		len(b.AcceptedBlocks) == 0 &&
		len(b.IrreversibleBlocks) == 0
}

// Queues holds the four stream buffers behind one mutex and condition
// variable, matching the producer/consumer contract: any producer call
// that finds a queue over capacity backs off with an adaptive sleep
// shared across all four streams, and the consumer wakes once and drains
// every non-empty queue atomically.
type Queues struct {
	mu   sync.Mutex
	cond *sync.Cond

	appliedTransactions  []chain.TransactionTraceEvent
	acceptedTransactions []chain.TransactionMetadataEvent
	acceptedBlocks       []chain.BlockStateEvent
	irreversibleBlocks   []chain.BlockStateEvent

	maxQueueSize int
	sleep        time.Duration
	done         bool

	log *logger.Logger
}

// New creates a set of stream queues, each bounded at maxQueueSize entries
// before the adaptive producer backpressure engages.
func New(maxQueueSize int, log *logger.Logger) *Queues {
	q := &Queues{maxQueueSize: maxQueueSize, log: log}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queues) depthsLocked() (applied, accepted, blocks, irreversible int) {
	return len(q.appliedTransactions), len(q.acceptedTransactions), len(q.acceptedBlocks), len(q.irreversibleBlocks)
}

func (q *Queues) overCapacityLocked() bool {
	a, b, c, d := q.depthsLocked()
	return a > q.maxQueueSize || b > q.maxQueueSize || c > q.maxQueueSize || d > q.maxQueueSize
}

// enqueue applies the shared backpressure protocol, then runs push while
// holding the lock, then signals the consumer.
func (q *Queues) enqueue(push func()) {
	q.mu.Lock()
	for q.overCapacityLocked() && !q.done {
		q.mu.Unlock()
		q.cond.Broadcast()

		q.sleep += sleepStep
		if q.sleep > sleepCap {
			q.log.Warnw("producer backpressure sleep exceeded cap", "sleep_ms", q.sleep.Milliseconds())
			q.sleep = sleepCap
		}
		metrics.ProducerSleepSet(q.sleep)
		time.Sleep(q.sleep)

		q.mu.Lock()
	}

	if q.sleep > 0 {
		q.sleep -= sleepStep
		if q.sleep < 0 {
			q.sleep = 0
		}
		metrics.ProducerSleepSet(q.sleep)
	}

	push()
	q.recordDepthsLocked()
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *Queues) recordDepthsLocked() {
	a, b, c, d := q.depthsLocked()
	metrics.QueueDepthSet(StreamAppliedTransaction, a)
	metrics.QueueDepthSet(StreamAcceptedTransaction, b)
	metrics.QueueDepthSet(StreamAcceptedBlock, c)
	metrics.QueueDepthSet(StreamIrreversibleBlock, d)
}

// EnqueueAppliedTransaction pushes a transaction trace event.
func (q *Queues) EnqueueAppliedTransaction(ev chain.TransactionTraceEvent) {
	q.enqueue(func() { q.appliedTransactions = append(q.appliedTransactions, ev) })
}

// EnqueueAcceptedTransaction pushes a transaction metadata event.
func (q *Queues) EnqueueAcceptedTransaction(ev chain.TransactionMetadataEvent) {
	q.enqueue(func() { q.acceptedTransactions = append(q.acceptedTransactions, ev) })
}

// EnqueueAcceptedBlock pushes an accepted block state event.
func (q *Queues) EnqueueAcceptedBlock(ev chain.BlockStateEvent) {
	q.enqueue(func() { q.acceptedBlocks = append(q.acceptedBlocks, ev) })
}

// EnqueueIrreversibleBlock pushes an irreversible block state event.
func (q *Queues) EnqueueIrreversibleBlock(ev chain.BlockStateEvent) {
	q.enqueue(func() { q.irreversibleBlocks = append(q.irreversibleBlocks, ev) })
}

// Drain blocks until at least one queue is non-empty or Shutdown has been
// called, then atomically swaps out and returns the contents of all four
// queues in one step. A Batch returned after Shutdown may still carry
// events enqueued just before the shutdown signal; callers should keep
// draining until Drain returns an empty batch with ok=false.
func (q *Queues) Drain() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.done {
		a, b, c, d := q.depthsLocked()
		if a+b+c+d > 0 {
			break
		}
		q.cond.Wait()
	}

	batch := Batch{
		AppliedTransactions:  q.appliedTransactions,
		AcceptedTransactions: q.acceptedTransactions,
		AcceptedBlocks:       q.acceptedBlocks,
		IrreversibleBlocks:   q.irreversibleBlocks,
	}
	q.appliedTransactions = nil
	q.acceptedTransactions = nil
	q.acceptedBlocks = nil
	q.irreversibleBlocks = nil
	q.recordDepthsLocked()

	if batch.Empty() && q.done {
		return batch, false
	}
	return batch, true
}

// Shutdown marks the queues done and wakes the consumer so a blocked
// Drain call can observe it and return.
func (q *Queues) Shutdown() {
	q.mu.Lock()
	q.done = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
