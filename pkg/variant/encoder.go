// Package variant turns native chain objects into JSON-friendly documents,
// resolving ABI-dependent byte fields through a caller-supplied resolver
// rather than a fixed binary ABI decoder. A field whose account has no
// resolvable ABI is left in its opaque byte form; that is expected, not an
// error.
package variant

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/eosplugins/chainindex/pkg/chain"
)

// Resolver looks up the current ABI descriptor for an account. The second
// return value is false when no descriptor is available yet.
type Resolver func(account chain.Name) (*chain.ABIDescriptor, bool)

// Encoder converts native chain objects into structured values suitable
// for document store ingestion.
type Encoder struct {
	resolve Resolver
}

// NewEncoder builds an Encoder that resolves ABI-dependent fields through resolve.
func NewEncoder(resolve Resolver) *Encoder {
	return &Encoder{resolve: resolve}
}

// EncodeAction renders a single action as a structured map. setabi actions
// for the system account get their abi field rewritten from raw bytes to a
// decoded descriptor when one is available (see resolveAbiBytes); otherwise
// the abi field is hex-encoded. Every other field is passed through
// unchanged.
func (e *Encoder) EncodeAction(act chain.Action) (map[string]any, error) {
	out := map[string]any{
		"account":       act.Account,
		"name":          act.Name,
		"authorization": act.Authorization,
	}

	if act.Name != chain.SetAbiActionName {
		out["data"] = json.RawMessage(act.Data)
		return out, nil
	}

	var payload chain.SetAbiData
	if err := json.Unmarshal(act.Data, &payload); err != nil {
		// Not decodable as setabi data; fall back to opaque passthrough.
		out["data"] = json.RawMessage(act.Data)
		return out, nil
	}

	data := map[string]any{"account": payload.Account}
	if desc, ok := e.resolveAbiBytes(payload.Account, payload.Abi); ok {
		data["abi"] = desc
	} else {
		data["abi"] = hex.EncodeToString(payload.Abi)
	}
	out["data"] = data
	return out, nil
}

// resolveAbiBytes yields a descriptor only for the system account (the only
// account whose setabi receives the structured rewrite): the bytes are
// decoded when they parse as a JSON-encoded descriptor with a version,
// otherwise the resolver's descriptor is used if it has one. Abi bytes for
// any other account are left opaque.
func (e *Encoder) resolveAbiBytes(account chain.Name, raw []byte) (*chain.ABIDescriptor, bool) {
	if account != chain.SystemAccount {
		return nil, false
	}

	var desc chain.ABIDescriptor
	if err := json.Unmarshal(raw, &desc); err == nil && desc.Version != "" {
		desc.Account = account
		return &desc, true
	}

	if e.resolve != nil {
		if cached, ok := e.resolve(account); ok {
			return cached, true
		}
	}
	return nil, false
}

// EncodeActionTrace renders an action trace, recursively structuring its action.
func (e *Encoder) EncodeActionTrace(trace chain.ActionTrace) (map[string]any, error) {
	act, err := e.EncodeAction(trace.Action)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"action_ordinal": trace.ActionOrdinal,
		"receiver":       trace.Receiver,
		"act":            act,
		"console":        trace.Console,
		"createAt":       nowMillis(),
	}, nil
}

// EncodeTransactionTrace renders a transaction trace event, structuring
// every action trace it carries.
func (e *Encoder) EncodeTransactionTrace(ev chain.TransactionTraceEvent) (map[string]any, error) {
	actions := make([]map[string]any, 0, len(ev.ActionTraces))
	for _, at := range ev.ActionTraces {
		encoded, err := e.EncodeActionTrace(at)
		if err != nil {
			return nil, err
		}
		actions = append(actions, encoded)
	}

	return map[string]any{
		"id":            ev.TxID,
		"block_num":     ev.BlockNum,
		"block_id":      ev.BlockID,
		"status":        ev.Status,
		"action_traces": actions,
		"createAt":      nowMillis(),
	}, nil
}

// EncodeBlockState renders an accepted or irreversible block state event as
// a block_states document. The header state payload is a node-native
// opaque blob; it passes through as raw JSON since no resolver-dependent
// field lives inside it at this level.
func (e *Encoder) EncodeBlockState(ev chain.BlockStateEvent) map[string]any {
	return map[string]any{
		"block_num":          ev.BlockNum,
		"id":                 ev.BlockID,
		"validated":          ev.Validated,
		"in_current_chain":   ev.InCurrentChain,
		"block_header_state": json.RawMessage(ev.HeaderState.Raw),
		"createAt":           nowMillis(),
	}
}

// EncodeBlock renders an accepted block's body as a blocks document. The
// block payload is a node-native opaque blob; it passes through as raw
// JSON for the same reason the header state does.
func (e *Encoder) EncodeBlock(ev chain.BlockStateEvent) map[string]any {
	return map[string]any{
		"block_num":    ev.BlockNum,
		"block_id":     ev.BlockID,
		"irreversible": false,
		"block":        json.RawMessage(ev.Block.Raw),
		"createAt":     nowMillis(),
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
