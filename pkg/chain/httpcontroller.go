package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eosplugins/chainindex/internal/logger"
)

// blockFetchConcurrency bounds how many get_block requests fetchBlockRange
// issues in parallel when catching up across a multi-block gap.
const blockFetchConcurrency = 8

// HTTPControllerConfig configures an HTTPController.
type HTTPControllerConfig struct {
	// NodeURL is the node's chain API base URL, e.g. http://localhost:8888
	NodeURL string

	// PollInterval is how often Run polls get_info for new blocks
	PollInterval time.Duration

	// RequestTimeout bounds a single HTTP request to the node
	RequestTimeout time.Duration
}

// HTTPController is a Controller implementation that polls a node's chain
// API over HTTP rather than receiving signals pushed from the node's own
// thread. It has no knowledge of forks: every polled block is reported as
// both accepted and, once past the node's last-irreversible-block-num,
// irreversible. A transaction's accepted and applied signals are raised
// back to back immediately after the containing block is observed, since
// get_block only returns a transaction once it is already final within
// that block.
type HTTPController struct {
	cfg        HTTPControllerConfig
	httpClient *http.Client
	log        *logger.Logger

	mu      sync.Mutex
	nextID  int
	onBlock map[int]func(BlockStateEvent)
	onIrr   map[int]func(BlockStateEvent)
	onAccTx map[int]func(TransactionMetadataEvent)
	onAppTx map[int]func(TransactionTraceEvent)

	started  bool
	lastHead uint32
	lastLIB  uint32
}

// NewHTTPController creates an HTTPController. It does not start polling;
// call Run in its own goroutine once subscriptions have been registered.
func NewHTTPController(cfg HTTPControllerConfig, log *logger.Logger) *HTTPController {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &HTTPController{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		log:        log,
		onBlock:    make(map[int]func(BlockStateEvent)),
		onIrr:      make(map[int]func(BlockStateEvent)),
		onAccTx:    make(map[int]func(TransactionMetadataEvent)),
		onAppTx:    make(map[int]func(TransactionTraceEvent)),
	}
}

type unsubFunc func()

func (f unsubFunc) Unsubscribe() { f() }

func (c *HTTPController) OnAcceptedBlock(fn func(BlockStateEvent)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onBlock[id] = fn
	return unsubFunc(func() { c.mu.Lock(); delete(c.onBlock, id); c.mu.Unlock() })
}

func (c *HTTPController) OnIrreversibleBlock(fn func(BlockStateEvent)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onIrr[id] = fn
	return unsubFunc(func() { c.mu.Lock(); delete(c.onIrr, id); c.mu.Unlock() })
}

func (c *HTTPController) OnAcceptedTransaction(fn func(TransactionMetadataEvent)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onAccTx[id] = fn
	return unsubFunc(func() { c.mu.Lock(); delete(c.onAccTx, id); c.mu.Unlock() })
}

func (c *HTTPController) OnAppliedTransaction(fn func(TransactionTraceEvent)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onAppTx[id] = fn
	return unsubFunc(func() { c.mu.Lock(); delete(c.onAppTx, id); c.mu.Unlock() })
}

// Run polls get_info on cfg.PollInterval and fires the registered signal
// callbacks for every newly observed block. It blocks until ctx is
// cancelled.
func (c *HTTPController) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.poll(ctx); err != nil {
				c.log.Warnf("poll failed: %v", err)
			}
		}
	}
}

func (c *HTTPController) poll(ctx context.Context) error {
	info, err := c.getInfo(ctx)
	if err != nil {
		return fmt.Errorf("get_info: %w", err)
	}

	if !c.started {
		c.started = true
		c.lastHead = info.HeadBlockNum
		c.lastLIB = info.LastIrreversibleBlockNum
		return nil
	}

	highWatermark := info.HeadBlockNum
	if info.LastIrreversibleBlockNum > highWatermark {
		highWatermark = info.LastIrreversibleBlockNum
	}

	blocks, err := c.fetchBlockRange(ctx, c.lastHead+1, highWatermark)
	if err != nil {
		return err
	}

	for n := c.lastHead + 1; n <= info.HeadBlockNum; n++ {
		c.emitBlock(blocks[n].payload(n), n <= info.LastIrreversibleBlockNum)
		c.lastHead = n
	}

	for n := c.lastLIB + 1; n <= info.LastIrreversibleBlockNum; n++ {
		c.emitIrreversible(blocks[n].payload(n))
		c.lastLIB = n
	}

	return nil
}

// fetchBlockRange fetches every block in [from, to] concurrently, bounded to
// avoid overwhelming the node when catching up after a long pause.
func (c *HTTPController) fetchBlockRange(ctx context.Context, from, to uint32) (map[uint32]getBlockResponse, error) {
	results := make(map[uint32]getBlockResponse, int(to)-int(from)+1)
	if from > to {
		return results, nil
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(blockFetchConcurrency)

	for n := from; n <= to; n++ {
		num := n
		group.Go(func() error {
			block, err := c.getBlock(groupCtx, num)
			if err != nil {
				return fmt.Errorf("get_block %d: %w", num, err)
			}
			mu.Lock()
			results[num] = block
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// blockPayload is a fetched block paired with the event metadata derived
// from it when it is fetched once and emitted on up to two signals.
type blockPayload struct {
	num uint32
	id  string
	raw getBlockResponse
}

func (r getBlockResponse) payload(num uint32) blockPayload {
	return blockPayload{num: num, id: r.ID, raw: r}
}

func (c *HTTPController) emitBlock(p blockPayload, irreversible bool) {
	ev := p.toEvent(irreversible)

	c.mu.Lock()
	blockSubs := make([]func(BlockStateEvent), 0, len(c.onBlock))
	for _, fn := range c.onBlock {
		blockSubs = append(blockSubs, fn)
	}
	accSubs := make([]func(TransactionMetadataEvent), 0, len(c.onAccTx))
	for _, fn := range c.onAccTx {
		accSubs = append(accSubs, fn)
	}
	appSubs := make([]func(TransactionTraceEvent), 0, len(c.onAppTx))
	for _, fn := range c.onAppTx {
		appSubs = append(appSubs, fn)
	}
	c.mu.Unlock()

	for _, fn := range blockSubs {
		fn(ev)
	}

	for _, tx := range p.raw.Transactions {
		meta := TransactionMetadataEvent{TxID: tx.Trx.ID, Transaction: tx.Trx.Raw()}
		for _, fn := range accSubs {
			fn(meta)
		}
		trace := TransactionTraceEvent{
			TxID:     tx.Trx.ID,
			BlockNum: p.num,
			BlockID:  BlockID(p.id),
			Status:   tx.Status,
		}
		for _, fn := range appSubs {
			fn(trace)
		}
	}
}

func (c *HTTPController) emitIrreversible(p blockPayload) {
	ev := p.toEvent(true)

	c.mu.Lock()
	subs := make([]func(BlockStateEvent), 0, len(c.onIrr))
	for _, fn := range c.onIrr {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (p blockPayload) toEvent(irreversible bool) BlockStateEvent {
	raw, _ := json.Marshal(p.raw)
	return BlockStateEvent{
		BlockNum:       p.num,
		BlockID:        BlockID(p.id),
		Validated:      true,
		InCurrentChain: !irreversible,
		Block:          Block{Raw: json.RawMessage(raw)},
	}
}

// HeadBlockNum returns the block number at the current chain head.
func (c *HTTPController) HeadBlockNum(ctx context.Context) (uint32, error) {
	info, err := c.getInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.HeadBlockNum, nil
}

// ReadTableRows performs a read-only scan of an on-chain table via
// get_table_rows with json:true, paging through more-than-one-page results
// up to limit (0 meaning unbounded).
func (c *HTTPController) ReadTableRows(
	ctx context.Context, code, scope, table Name, limit int,
) ([]map[string]any, error) {
	const pageSize = 1000

	rows := make([]map[string]any, 0)
	lowerBound := ""
	for {
		remaining := pageSize
		if limit > 0 {
			remaining = limit - len(rows)
			if remaining <= 0 {
				break
			}
			if remaining > pageSize {
				remaining = pageSize
			}
		}

		reqBody := map[string]any{
			"code":        code,
			"scope":       scope,
			"table":       table,
			"json":        true,
			"limit":       remaining,
			"lower_bound": lowerBound,
		}

		var resp getTableRowsResponse
		if err := c.post(ctx, "/v1/chain/get_table_rows", reqBody, &resp); err != nil {
			return nil, err
		}

		rows = append(rows, resp.Rows...)
		if !resp.More || resp.NextKey == "" {
			break
		}
		lowerBound = resp.NextKey
	}

	return rows, nil
}

type getInfoResponse struct {
	HeadBlockNum             uint32 `json:"head_block_num"`
	LastIrreversibleBlockNum uint32 `json:"last_irreversible_block_num"`
}

type getBlockResponse struct {
	ID           string             `json:"id"`
	BlockNum     uint32             `json:"block_num"`
	Transactions []blockTransaction `json:"transactions"`
}

type blockTransaction struct {
	Status string       `json:"status"`
	Trx    transactionT `json:"trx"`
}

type transactionT struct {
	ID         string          `json:"id"`
	Compressed json.RawMessage `json:"transaction,omitempty"`
}

func (t transactionT) Raw() json.RawMessage {
	if len(t.Compressed) > 0 {
		return t.Compressed
	}
	return json.RawMessage(`{}`)
}

type getTableRowsResponse struct {
	Rows    []map[string]any `json:"rows"`
	More    bool             `json:"more"`
	NextKey string           `json:"next_key"`
}

func (c *HTTPController) getInfo(ctx context.Context) (getInfoResponse, error) {
	var resp getInfoResponse
	err := c.get(ctx, "/v1/chain/get_info", &resp)
	return resp, err
}

func (c *HTTPController) getBlock(ctx context.Context, num uint32) (getBlockResponse, error) {
	var resp getBlockResponse
	err := c.post(ctx, "/v1/chain/get_block", map[string]any{"block_num_or_id": num}, &resp)
	return resp, err
}

func (c *HTTPController) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.NodeURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPController) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.NodeURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPController) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("node responded %d: %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}
