// Package chain defines the data types exchanged between a blockchain node's
// controller and the indexing pipeline: account names, the four signal
// payloads the pipeline subscribes to, and ABI descriptors.
package chain

import "encoding/json"

// Name is an EOSIO-style account, permission, or action name.
type Name string

// String returns the name as a plain string.
func (n Name) String() string { return string(n) }

// BlockID is the hex-encoded id of a block.
type BlockID string

// PermissionLevel pairs an actor with the permission it is acting under.
type PermissionLevel struct {
	Actor      Name `json:"actor"`
	Permission Name `json:"permission"`
}

// Action is a single action within a transaction. Data carries the
// action's ABI-encoded payload; until resolved through an ABI descriptor it
// is kept as an opaque byte string.
type Action struct {
	Account       Name              `json:"account"`
	Name          Name              `json:"name"`
	Authorization []PermissionLevel `json:"authorization"`
	Data          json.RawMessage   `json:"data"`
	HexData       string            `json:"hex_data,omitempty"`
}

// ActionTrace is the execution record of a single action within a
// transaction trace.
type ActionTrace struct {
	ActionOrdinal uint32          `json:"action_ordinal"`
	Receiver      Name            `json:"receiver"`
	Action        Action          `json:"act"`
	Console       string          `json:"console,omitempty"`
	Except        json.RawMessage `json:"except,omitempty"`
}

// BlockHeaderState is the opaque, node-native representation of a block's
// header and validation state. The pipeline never inspects it directly; it
// is passed through to the Variant Encoder for structuring.
type BlockHeaderState struct {
	Raw json.RawMessage `json:"-"`
}

// Block carries a block's header plus the IDs of the transactions it
// contains, in the native wire shape produced by the controller.
type Block struct {
	Raw json.RawMessage `json:"-"`
}

// BlockStateEvent is the payload delivered on the accepted-block and
// irreversible-block signals.
type BlockStateEvent struct {
	BlockNum       uint32           `json:"block_num"`
	BlockID        BlockID          `json:"id"`
	Validated      bool             `json:"validated"`
	InCurrentChain bool             `json:"in_current_chain"`
	HeaderState    BlockHeaderState `json:"block_header_state"`
	Block          Block            `json:"block"`
}

// TransactionMetadataEvent is the payload delivered on the
// accepted-transaction signal, before the transaction has been applied.
type TransactionMetadataEvent struct {
	TxID        string          `json:"id"`
	Transaction json.RawMessage `json:"trx"`
}

// TransactionTraceEvent is the payload delivered on the
// applied-transaction signal, after execution.
type TransactionTraceEvent struct {
	TxID         string          `json:"id"`
	BlockNum     uint32          `json:"block_num"`
	BlockID      BlockID         `json:"block_id"`
	Status       string          `json:"status"`
	ActionTraces []ActionTrace   `json:"action_traces"`
	Receipt      json.RawMessage `json:"receipt,omitempty"`
}

// ABIDescriptor is a decoded ABI for a single account, as produced by the
// ABI cache once an account's setabi action has been resolved.
type ABIDescriptor struct {
	Account Name            `json:"account"`
	Version string          `json:"version"`
	Structs json.RawMessage `json:"structs,omitempty"`
	Actions json.RawMessage `json:"actions,omitempty"`
	Tables  json.RawMessage `json:"tables,omitempty"`
}

// SystemAccount is the well-known account whose setabi actions receive
// the structured-abi rewrite rule.
const SystemAccount Name = "eosio"

// SetAbiActionName is the action name the ABI cache and the variant encoder
// special-case when deciding whether to rewrite a raw abi byte field.
const SetAbiActionName Name = "setabi"

// SetAbiData is the decoded payload of a setabi action: the account whose
// ABI is being installed and the raw binary ABI bytes.
type SetAbiData struct {
	Account Name   `json:"account"`
	Abi     []byte `json:"abi"`
}
