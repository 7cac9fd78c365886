package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testController(t *testing.T, head, lib *uint32, blocks map[uint32]getBlockResponse) (*HTTPController, *httptest.Server) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chain/get_info":
			_ = json.NewEncoder(w).Encode(getInfoResponse{HeadBlockNum: *head, LastIrreversibleBlockNum: *lib})
		case "/v1/chain/get_block":
			var req struct {
				BlockNumOrID uint32 `json:"block_num_or_id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(blocks[req.BlockNumOrID])
		case "/v1/chain/get_table_rows":
			_ = json.NewEncoder(w).Encode(getTableRowsResponse{Rows: []map[string]any{{"actor": "bob"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	c := NewHTTPController(HTTPControllerConfig{NodeURL: srv.URL, PollInterval: time.Millisecond, RequestTimeout: time.Second}, nil)
	t.Cleanup(srv.Close)
	return c, srv
}

func TestHTTPController_HeadBlockNum(t *testing.T) {
	t.Parallel()

	head, lib := uint32(42), uint32(40)
	c, _ := testController(t, &head, &lib, nil)
	got, err := c.HeadBlockNum(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(42), got)
}

func TestHTTPController_ReadTableRows(t *testing.T) {
	t.Parallel()

	head, lib := uint32(1), uint32(1)
	c, _ := testController(t, &head, &lib, nil)
	rows, err := c.ReadTableRows(context.Background(), "eosio", "eosio", "blacklist", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "bob", rows[0]["actor"])
}

func TestHTTPController_PollEmitsAcceptedAndIrreversibleBlocks(t *testing.T) {
	t.Parallel()

	blocks := map[uint32]getBlockResponse{
		1: {ID: "blockid1", BlockNum: 1},
		2: {ID: "blockid2", BlockNum: 2, Transactions: []blockTransaction{{Status: "executed", Trx: transactionT{ID: "tx1"}}}},
	}
	head, lib := uint32(0), uint32(0)
	c, _ := testController(t, &head, &lib, blocks)

	var mu sync.Mutex
	var accepted, irreversible []BlockStateEvent
	var appliedTx []TransactionTraceEvent
	c.OnAcceptedBlock(func(ev BlockStateEvent) { mu.Lock(); accepted = append(accepted, ev); mu.Unlock() })
	c.OnIrreversibleBlock(func(ev BlockStateEvent) { mu.Lock(); irreversible = append(irreversible, ev); mu.Unlock() })
	c.OnAppliedTransaction(func(ev TransactionTraceEvent) { mu.Lock(); appliedTx = append(appliedTx, ev); mu.Unlock() })

	// First poll only establishes the starting watermark.
	require.NoError(t, c.poll(context.Background()))

	head, lib = 2, 1
	require.NoError(t, c.poll(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, accepted, 2)
	require.Len(t, irreversible, 1)
	require.Equal(t, BlockID("blockid1"), irreversible[0].BlockID)
	require.Len(t, appliedTx, 1)
	require.Equal(t, "tx1", appliedTx[0].TxID)
}

func TestHTTPController_Unsubscribe(t *testing.T) {
	t.Parallel()

	head, lib := uint32(0), uint32(0)
	c, _ := testController(t, &head, &lib, map[uint32]getBlockResponse{1: {ID: "b1", BlockNum: 1}})
	var calls int
	sub := c.OnAcceptedBlock(func(ev BlockStateEvent) { calls++ })
	sub.Unsubscribe()

	require.NoError(t, c.poll(context.Background()))
	head = 1
	require.NoError(t, c.poll(context.Background()))
	require.Equal(t, 0, calls)
}
