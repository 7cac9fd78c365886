// Package processor turns queued chain events into document store writes,
// one builder per stream, run by the pipeline's consumer loop in the fixed
// per-drain order: applied transactions, accepted transactions, accepted
// blocks, irreversible blocks.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eosplugins/chainindex/internal/abicache"
	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/pkg/chain"
	"github.com/eosplugins/chainindex/pkg/config"
	"github.com/eosplugins/chainindex/pkg/docstore"
	"github.com/eosplugins/chainindex/pkg/variant"
)

// Document kinds written to the store.
const (
	KindBlocks       = "blocks"
	KindBlockStates  = "block_states"
	KindTransactions = "transactions"
	KindTxTraces     = "transaction_traces"
	KindActions      = "actions"
	KindAccounts     = "accounts"
)

// Processor builds the document writes for each of the four streams; the
// caller submits them to the store.
type Processor struct {
	store   *docstore.Client
	cache   *abicache.Cache
	encoder *variant.Encoder
	cfg     config.IndexerConfig
	log     *logger.Logger
}

// New builds a Processor. The encoder resolves ABI-dependent fields through cache.
func New(store *docstore.Client, cache *abicache.Cache, cfg config.IndexerConfig, log *logger.Logger) *Processor {
	p := &Processor{store: store, cache: cache, cfg: cfg, log: log}
	p.encoder = variant.NewEncoder(p.resolve)
	return p
}

func (p *Processor) resolve(account chain.Name) (*chain.ABIDescriptor, bool) {
	desc, found, err := p.cache.Get(context.Background(), account)
	if err != nil {
		p.log.Warnw("abi resolve failed", "account", account, "error", err)
		return nil, false
	}
	return desc, found
}

// BuildAcceptedBlockOps returns the bulk write for a block_states document,
// plus a distinct blocks document when the indexer is configured to store
// block bodies.
func (p *Processor) BuildAcceptedBlockOps(ev chain.BlockStateEvent) ([]docstore.BulkOp, error) {
	ops := []docstore.BulkOp{
		{Kind: KindBlockStates, ID: string(ev.BlockID), Doc: p.encoder.EncodeBlockState(ev)},
	}
	if !p.cfg.StoreBlocks {
		return ops, nil
	}
	ops = append(ops, docstore.BulkOp{Kind: KindBlocks, ID: string(ev.BlockID), Doc: p.encoder.EncodeBlock(ev)})
	return ops, nil
}

// BuildIrreversibleBlockOps returns the bulk write that marks a previously
// stored block_states document irreversible. Nodes may deliver an
// irreversible signal for a block this indexer never saw as accepted (e.g.
// after a restart mid-sync); the store reindexes that id fresh rather than
// rejecting the write.
func (p *Processor) BuildIrreversibleBlockOps(ev chain.BlockStateEvent) ([]docstore.BulkOp, error) {
	doc := p.encoder.EncodeBlockState(ev)
	doc["irreversible"] = true
	return []docstore.BulkOp{{Kind: KindBlockStates, ID: string(ev.BlockID), Doc: doc}}, nil
}

// BuildAcceptedTransactionOps returns the bulk write for a transactions
// document recording that the transaction was accepted, ahead of its trace
// arriving through BuildAppliedTransactionOps.
func (p *Processor) BuildAcceptedTransactionOps(ev chain.TransactionMetadataEvent) ([]docstore.BulkOp, error) {
	if !p.cfg.StoreTransactions {
		return nil, nil
	}
	doc := map[string]any{
		"id":       ev.TxID,
		"trx":      json.RawMessage(ev.Transaction),
		"createAt": time.Now().UnixMilli(),
	}
	return []docstore.BulkOp{{Kind: KindTransactions, ID: ev.TxID, Doc: doc}}, nil
}

// BuildAppliedTransactionOps returns the bulk writes for the transaction's
// trace and, when action-level storage is enabled, each action trace it
// carries as its own document. A setabi action also refreshes the ABI
// cache and queues the accounts document it backs.
func (p *Processor) BuildAppliedTransactionOps(ev chain.TransactionTraceEvent) ([]docstore.BulkOp, error) {
	if !p.cfg.StoreTransactions {
		return nil, nil
	}

	doc, err := p.encoder.EncodeTransactionTrace(ev)
	if err != nil {
		return nil, fmt.Errorf("encode transaction trace %s: %w", ev.TxID, err)
	}
	ops := []docstore.BulkOp{{Kind: KindTxTraces, ID: ev.TxID, Doc: doc}}

	if p.updatesAbi(ev) {
		ops = append(ops, p.applyAbiUpdates(ev)...)
	}

	if !p.cfg.StoreActions {
		return ops, nil
	}
	for i, at := range ev.ActionTraces {
		if !p.passesAccountFilter(at.Receiver) {
			continue
		}
		encoded, err := p.encoder.EncodeActionTrace(at)
		if err != nil {
			return nil, fmt.Errorf("encode action trace %s[%d]: %w", ev.TxID, i, err)
		}
		id := fmt.Sprintf("%s-%d", ev.TxID, at.ActionOrdinal)
		ops = append(ops, docstore.BulkOp{Kind: KindActions, ID: id, Doc: encoded})
	}
	return ops, nil
}

func (p *Processor) passesAccountFilter(account chain.Name) bool {
	if len(p.cfg.FilterOnAccounts) == 0 {
		return true
	}
	for _, a := range p.cfg.FilterOnAccounts {
		if a == string(account) {
			return true
		}
	}
	return false
}

func (p *Processor) updatesAbi(ev chain.TransactionTraceEvent) bool {
	for _, at := range ev.ActionTraces {
		if at.Action.Name == chain.SetAbiActionName {
			return true
		}
	}
	return false
}

// applyAbiUpdates refreshes the ABI cache for every setabi action in the
// trace, so subsequent lookups see the new ABI without waiting for a cold
// document-store round trip, and returns the accounts document writes that
// back those lookups once the batch is flushed.
func (p *Processor) applyAbiUpdates(ev chain.TransactionTraceEvent) []docstore.BulkOp {
	var ops []docstore.BulkOp
	for _, at := range ev.ActionTraces {
		if at.Action.Name != chain.SetAbiActionName {
			continue
		}
		var payload chain.SetAbiData
		if err := json.Unmarshal(at.Action.Data, &payload); err != nil {
			p.log.Warnw("failed to decode setabi payload", "tx_id", ev.TxID, "error", err)
			continue
		}

		desc := &chain.ABIDescriptor{Account: payload.Account}
		if err := json.Unmarshal(payload.Abi, desc); err != nil {
			p.log.Debugw("setabi payload not structured, leaving account unresolved", "account", payload.Account)
			continue
		}
		p.cache.Put(payload.Account, desc)

		accountDoc := map[string]any{"name": payload.Account, "abi": desc, "createAt": time.Now().UnixMilli()}
		ops = append(ops, docstore.BulkOp{Kind: KindAccounts, ID: string(payload.Account), Doc: accountDoc})
	}
	return ops
}

