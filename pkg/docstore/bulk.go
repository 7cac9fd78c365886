package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BulkOp is a single document write queued for a bulk request.
type BulkOp struct {
	Kind string
	ID   string // optional; empty lets the store assign one
	Doc  any
}

// BulkBody encodes ops as the newline-delimited action/document pairs the
// store's /_bulk endpoint expects.
func BulkBody(index string, ops []BulkOp) ([]byte, error) {
	var buf bytes.Buffer

	for _, op := range ops {
		meta := map[string]any{
			"index": map[string]any{
				"_index": index,
				"_type":  op.Kind,
			},
		}
		if op.ID != "" {
			meta["index"].(map[string]any)["_id"] = op.ID
		}

		metaLine, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("marshal bulk action line: %w", err)
		}
		docLine, err := json.Marshal(op.Doc)
		if err != nil {
			return nil, fmt.Errorf("marshal bulk document line: %w", err)
		}

		buf.Write(metaLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}
