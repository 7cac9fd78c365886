// Package pipeline wires the blockchain controller's four signals into the
// bounded stream queues and drives the consumer loop that drains them in
// fixed priority order, carrying the orchestrator through its lifecycle
// states: uninitialized, initialized, started, draining, stopped.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/eosplugins/chainindex/internal/abicache"
	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/internal/processor"
	"github.com/eosplugins/chainindex/internal/queue"
	"github.com/eosplugins/chainindex/pkg/chain"
	"github.com/eosplugins/chainindex/pkg/config"
	"github.com/eosplugins/chainindex/pkg/docstore"
)

// State is a lifecycle stage of the Orchestrator.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateStarted
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const slowDrainThreshold = 500 * time.Millisecond

// Orchestrator owns the pipeline's subscriptions to the controller, the
// bounded stream queues, and the consumer goroutine that drains them.
type Orchestrator struct {
	mu    sync.Mutex
	state State

	controller chain.Controller
	store      *docstore.Client
	cache      *abicache.Cache
	processor  *processor.Processor
	queues     *queue.Queues
	cfg        config.IndexerConfig
	log        *logger.Logger

	subs       []chain.Subscription
	startBlock uint64
	gateOpen   bool

	consumerDone chan struct{}
}

// New constructs an Orchestrator in the uninitialized state.
func New(controller chain.Controller, store *docstore.Client, cfg config.IndexerConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		controller: controller,
		store:      store,
		cfg:        cfg,
		log:        log,
		startBlock: cfg.StartBlock,
	}
}

// Init bootstraps the index: optionally drops it, creates it with the
// configured mapping, and seeds the system account document if the
// accounts kind is empty. Moves the orchestrator to StateInitialized.
func (o *Orchestrator) Init(ctx context.Context, mapping []byte, dropExisting bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateUninitialized {
		return fmt.Errorf("pipeline: Init called from state %s", o.state)
	}

	if dropExisting {
		if err := o.store.DeleteIndex(ctx); err != nil {
			return fmt.Errorf("drop existing index: %w", err)
		}
	}

	var mappingReader io.Reader
	if len(mapping) > 0 {
		mappingReader = bytes.NewReader(mapping)
	}
	if err := o.store.CreateIndex(ctx, mappingReader); err != nil {
		o.log.Warnw("create_index failed, assuming index already exists", "error", err)
	}

	count, err := o.store.Count(ctx, processor.KindAccounts, nil)
	if err != nil {
		o.log.Warnw("could not count accounts documents, seeding system account anyway", "error", err)
		count = 0
	}
	if count == 0 {
		seed := map[string]any{"name": chain.SystemAccount, "abi": nil, "createAt": time.Now().UnixMilli()}
		if err := o.store.Index(ctx, processor.KindAccounts, seed, string(chain.SystemAccount)); err != nil {
			return fmt.Errorf("seed system account document: %w", err)
		}
	}

	o.cache = abicache.New(o.store, processor.KindAccounts, o.cfg.ABICacheSize, o.log)
	o.processor = processor.New(o.store, o.cache, o.cfg, o.log)
	o.queues = queue.New(maxQueueEntries(o.cfg), o.log)

	o.state = StateInitialized
	return nil
}

func maxQueueEntries(cfg config.IndexerConfig) int {
	bound := cfg.AcceptedBlockQueueSize
	if cfg.AppliedTransactionQueueSize > bound {
		bound = cfg.AppliedTransactionQueueSize
	}
	return bound
}

// Start registers the four subscriptions on the controller and launches
// the consumer loop. Moves the orchestrator to StateStarted.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateInitialized {
		return fmt.Errorf("pipeline: Start called from state %s", o.state)
	}

	o.gateOpen = o.startBlock == 0
	o.consumerDone = make(chan struct{})

	o.subs = append(o.subs, o.controller.OnAcceptedBlock(o.onAcceptedBlock))
	o.subs = append(o.subs, o.controller.OnIrreversibleBlock(o.onIrreversibleBlock))
	o.subs = append(o.subs, o.controller.OnAcceptedTransaction(o.onAcceptedTransaction))
	o.subs = append(o.subs, o.controller.OnAppliedTransaction(o.onAppliedTransaction))

	go o.consume(ctx)

	o.state = StateStarted
	return nil
}

// gate reports whether block processing should begin yet: once a block at
// or beyond startBlock is observed, the gate opens and stays open for the
// life of the orchestrator.
func (o *Orchestrator) gate(blockNum uint32) bool {
	if o.gateOpen {
		return true
	}
	if uint64(blockNum) >= o.startBlock {
		o.gateOpen = true
	}
	return o.gateOpen
}

func (o *Orchestrator) onAcceptedBlock(ev chain.BlockStateEvent) {
	if !o.gate(ev.BlockNum) {
		return
	}
	o.queues.EnqueueAcceptedBlock(ev)
}

func (o *Orchestrator) onIrreversibleBlock(ev chain.BlockStateEvent) {
	if !o.gate(ev.BlockNum) {
		return
	}
	o.queues.EnqueueIrreversibleBlock(ev)
}

func (o *Orchestrator) onAcceptedTransaction(ev chain.TransactionMetadataEvent) {
	o.queues.EnqueueAcceptedTransaction(ev)
}

func (o *Orchestrator) onAppliedTransaction(ev chain.TransactionTraceEvent) {
	o.queues.EnqueueAppliedTransaction(ev)
}

// consume is the pipeline's single consumer goroutine. It drains all four
// queues atomically and processes each stream's batch in the fixed
// priority order: applied transactions, accepted transactions, accepted
// blocks, irreversible blocks.
func (o *Orchestrator) consume(ctx context.Context) {
	defer close(o.consumerDone)

	for {
		batch, ok := o.queues.Drain()
		if !ok {
			return
		}
		o.processBatch(ctx, batch)
	}
}

// processBatch builds the bulk writes for every event in the batch, in the
// fixed stream priority order, then flushes them to the store in a single
// bulk request per drain cycle.
func (o *Orchestrator) processBatch(ctx context.Context, batch queue.Batch) {
	var ops []docstore.BulkOp

	o.drainStream(queue.StreamAppliedTransaction, len(batch.AppliedTransactions), func() {
		for _, ev := range batch.AppliedTransactions {
			built, err := o.processor.BuildAppliedTransactionOps(ev)
			if err != nil {
				o.log.Errorw("build applied transaction ops failed", "tx_id", ev.TxID, "error", err)
				continue
			}
			ops = append(ops, built...)
		}
	})

	o.drainStream(queue.StreamAcceptedTransaction, len(batch.AcceptedTransactions), func() {
		for _, ev := range batch.AcceptedTransactions {
			built, err := o.processor.BuildAcceptedTransactionOps(ev)
			if err != nil {
				o.log.Errorw("build accepted transaction ops failed", "tx_id", ev.TxID, "error", err)
				continue
			}
			ops = append(ops, built...)
		}
	})

	o.drainStream(queue.StreamAcceptedBlock, len(batch.AcceptedBlocks), func() {
		for _, ev := range batch.AcceptedBlocks {
			built, err := o.processor.BuildAcceptedBlockOps(ev)
			if err != nil {
				o.log.Errorw("build accepted block ops failed", "block_id", ev.BlockID, "error", err)
				continue
			}
			ops = append(ops, built...)
		}
	})

	o.drainStream(queue.StreamIrreversibleBlock, len(batch.IrreversibleBlocks), func() {
		for _, ev := range batch.IrreversibleBlocks {
			built, err := o.processor.BuildIrreversibleBlockOps(ev)
			if err != nil {
				o.log.Errorw("build irreversible block ops failed", "block_id", ev.BlockID, "error", err)
				continue
			}
			ops = append(ops, built...)
		}
	})

	if len(ops) == 0 {
		return
	}

	ndjson, err := docstore.BulkBody(o.store.IndexName(), ops)
	if err != nil {
		o.log.Errorw("encode bulk body failed", "op_count", len(ops), "error", err)
		return
	}
	if failed, err := o.store.Bulk(ctx, ndjson); err != nil {
		o.log.Errorw("bulk write failed", "op_count", len(ops), "failed_count", failed, "error", err)
	}
}

func (o *Orchestrator) drainStream(stream string, count int, run func()) {
	if count == 0 {
		return
	}
	start := time.Now()
	run()
	elapsed := time.Since(start)

	if elapsed > slowDrainThreshold {
		o.log.Infow("slow drain",
			"stream", stream,
			"count", count,
			"total", elapsed,
			"per_item", elapsed/time.Duration(count),
		)
	}
}

// Stop transitions through draining to stopped: signals the consumer to
// finish, waits for it to exit, and releases the controller subscriptions.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state != StateStarted {
		o.mu.Unlock()
		return
	}
	o.state = StateDraining
	o.mu.Unlock()

	o.queues.Shutdown()
	<-o.consumerDone

	for _, sub := range o.subs {
		sub.Unsubscribe()
	}
	o.subs = nil

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
