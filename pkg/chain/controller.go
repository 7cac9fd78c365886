package chain

import "context"

// Subscription represents a live registration on one of the Controller's
// signals. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Controller is the read and notify surface the indexing pipeline and the
// blacklist reconciler need from the running blockchain node. The node
// itself — block production, fork choice, net plugin, RPC — is out of
// scope here; Controller is the seam the rest of this module is built
// against.
type Controller interface {
	// OnAcceptedBlock registers fn to be called synchronously, on the
	// node's own thread, for every block accepted into the current
	// chain (including blocks later superseded by a fork switch).
	OnAcceptedBlock(fn func(BlockStateEvent)) Subscription

	// OnIrreversibleBlock registers fn to be called once a block has
	// passed the last-irreversible-block watermark.
	OnIrreversibleBlock(fn func(BlockStateEvent)) Subscription

	// OnAcceptedTransaction registers fn to be called when a
	// transaction has been accepted into the block currently being
	// produced, before execution.
	OnAcceptedTransaction(fn func(TransactionMetadataEvent)) Subscription

	// OnAppliedTransaction registers fn to be called after a
	// transaction has executed, successfully or not.
	OnAppliedTransaction(fn func(TransactionTraceEvent)) Subscription

	// ReadTableRows performs a read-only, point-in-time scan of an
	// on-chain multi-index table and decodes each row through the
	// account's current ABI. limit caps the number of rows returned;
	// a limit of 0 returns every row.
	ReadTableRows(ctx context.Context, code, scope, table Name, limit int) ([]map[string]any, error)

	// HeadBlockNum returns the block number at the current chain head.
	HeadBlockNum(ctx context.Context) (uint32, error)
}
