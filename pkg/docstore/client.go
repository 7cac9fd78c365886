// Package docstore implements the HTTP client the indexing pipeline and
// the ABI cache use to talk to an Elasticsearch-compatible document store:
// index lifecycle, single-document writes, counts, searches, and bulk
// ingestion.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"

	"github.com/eosplugins/chainindex/internal/common"
	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/internal/metrics"
	"github.com/eosplugins/chainindex/pkg/config"
)

// Client talks to the document store over HTTP using go-elasticsearch's
// transport (connection pooling, node round robin, retries) but builds
// requests against the plugin's own URL scheme rather than esapi's typed
// request helpers, since the store is addressed as /<index>/<kind>[/<id>]
// rather than the typeless /<index>/_doc/<id> scheme esapi assumes.
type Client struct {
	transport esapi.Transport
	index     string
	log       *logger.Logger
}

// NewClient builds a document store client for the single index named
// cfg.IndexNamePrefix.
func NewClient(cfg config.DocStoreConfig, log *logger.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.URLs,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConnection, err)
	}

	return &Client{
		transport: es,
		index:     cfg.IndexNamePrefix,
		log:       log,
	}, nil
}

// IndexName returns the single index this client addresses, for callers
// building bulk request bodies with BulkBody.
func (c *Client) IndexName() string { return c.index }

// WaitReady polls the document store until it accepts a request or ctx is
// done, backing off exponentially between attempts.
func (c *Client) WaitReady(ctx context.Context) error {
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
		if err != nil {
			return err
		}
		resp, err := c.transport.Perform(req)
		if err != nil {
			c.log.Warnw("document store not ready", "error", err)
			return fmt.Errorf("%w: %v", common.ErrConnection, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", common.ErrResponseCode, resp.StatusCode)
		}
		return nil
	}, b)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.transport.Perform(req)
	metrics.DocStoreRequestObserve(method, time.Since(start))
	if err != nil {
		metrics.DocStoreErrorInc(method, "connection")
		return nil, fmt.Errorf("%w: %v", common.ErrConnection, err)
	}
	return resp, nil
}

func drain(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// CreateIndex issues PUT /<index> with the given mapping/settings body.
func (c *Client) CreateIndex(ctx context.Context, mapping io.Reader) error {
	resp, err := c.do(ctx, http.MethodPut, "/"+c.index, mapping)
	if err != nil {
		return err
	}
	body, err := drain(resp)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		metrics.DocStoreErrorInc("create_index", "response_code")
		return fmt.Errorf("%w: create_index status %d: %s", common.ErrResponseCode, resp.StatusCode, body)
	}
	return nil
}

// DeleteIndex issues DELETE /<index>. A 404 response is treated as success:
// the index is already gone.
func (c *Client) DeleteIndex(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/"+c.index, nil)
	if err != nil {
		return err
	}
	body, err := drain(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if !isSuccess(resp.StatusCode) {
		metrics.DocStoreErrorInc("delete_index", "response_code")
		return fmt.Errorf("%w: delete_index status %d: %s", common.ErrResponseCode, resp.StatusCode, body)
	}
	return nil
}

// Index writes a document of the given kind. If id is empty, the store
// assigns one. Issues POST /<index>/<kind>[/<id>].
func (c *Client) Index(ctx context.Context, kind string, doc any, id string) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	path := fmt.Sprintf("/%s/%s", c.index, kind)
	if id != "" {
		path = fmt.Sprintf("%s/%s", path, id)
	}

	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	body, err := drain(resp)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		metrics.DocStoreErrorInc("index", "response_code")
		return fmt.Errorf("%w: index status %d: %s", common.ErrResponseCode, resp.StatusCode, body)
	}
	return nil
}

// Count issues GET /<index>/<kind>/_count with an optional query body and
// returns the matched document count.
func (c *Client) Count(ctx context.Context, kind string, query io.Reader) (uint64, error) {
	path := fmt.Sprintf("/%s/%s/_count", c.index, kind)
	resp, err := c.do(ctx, http.MethodGet, path, query)
	if err != nil {
		return 0, err
	}
	body, err := drain(resp)
	if err != nil {
		return 0, err
	}
	if !isSuccess(resp.StatusCode) {
		metrics.DocStoreErrorInc("count", "response_code")
		return 0, fmt.Errorf("%w: count status %d: %s", common.ErrResponseCode, resp.StatusCode, body)
	}

	var parsed struct {
		Count uint64 `json:"count"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return parsed.Count, nil
}

// Search issues POST /<index>/<kind>/_search with the given query body and
// returns the raw response for the caller to decode.
func (c *Client) Search(ctx context.Context, kind string, query io.Reader) (json.RawMessage, error) {
	path := fmt.Sprintf("/%s/%s/_search", c.index, kind)
	resp, err := c.do(ctx, http.MethodPost, path, query)
	if err != nil {
		return nil, err
	}
	body, err := drain(resp)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		metrics.DocStoreErrorInc("search", "response_code")
		return nil, fmt.Errorf("%w: search status %d: %s", common.ErrResponseCode, resp.StatusCode, body)
	}
	return body, nil
}

// Bulk issues POST /_bulk with a newline-delimited body built by BulkBody
// and returns the number of items the store reports as failed.
func (c *Client) Bulk(ctx context.Context, ndjson []byte) (int, error) {
	resp, err := c.do(ctx, http.MethodPost, "/_bulk", bytes.NewReader(ndjson))
	if err != nil {
		return 0, err
	}
	body, err := drain(resp)
	if err != nil {
		return 0, err
	}
	if !isSuccess(resp.StatusCode) {
		metrics.DocStoreErrorInc("bulk", "response_code")
		return 0, fmt.Errorf("%w: bulk status %d: %s", common.ErrResponseCode, resp.StatusCode, body)
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return 0, nil
	}

	failed := 0
	for _, item := range parsed.Items {
		for _, action := range item {
			if !isSuccess(action.Status) {
				failed++
			}
		}
	}
	if failed > 0 {
		metrics.DocStoreErrorInc("bulk", "bulk_fail")
		return failed, fmt.Errorf("%w: %d item(s) failed", common.ErrBulkFail, failed)
	}
	return 0, nil
}
