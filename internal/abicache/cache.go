// Package abicache implements the bounded, least-recently-used cache of
// per-account ABI descriptors the variant encoder resolves fields against.
// It is owned exclusively by the pipeline's single consumer thread and does
// no internal locking.
package abicache

import (
	"bytes"
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/eosplugins/chainindex/internal/common"
	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/internal/metrics"
	"github.com/eosplugins/chainindex/pkg/chain"
)

// AccountsLookup is the document store surface the cache needs for a
// cold lookup: a search against the accounts document kind for a row
// whose name term matches the requested account.
type AccountsLookup interface {
	Search(ctx context.Context, kind string, query io.Reader) (json.RawMessage, error)
}

type entry struct {
	account    chain.Name
	descriptor *chain.ABIDescriptor
	elem       *list.Element
}

// Cache is a bounded LRU of account -> ABI descriptor. A container/list +
// map pairing gives O(1) touch/evict: the list tracks recency order, the
// map gives O(1) lookup from account to its list element.
type Cache struct {
	store    AccountsLookup
	indexFmt string // kind name queried for account documents, e.g. "accounts"
	log      *logger.Logger

	maxSize int
	order   *list.List // front = most recently used, back = least
	entries map[chain.Name]*entry
}

// New creates a cache bounded at maxSize entries, backed by store for cold
// lookups against the accounts document kind.
func New(store AccountsLookup, accountsKind string, maxSize int, log *logger.Logger) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache{
		store:    store,
		indexFmt: accountsKind,
		log:      log,
		maxSize:  maxSize,
		order:    list.New(),
		entries:  make(map[chain.Name]*entry),
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// Get returns the ABI descriptor for account, consulting the document
// store on a cache miss. A false return without error means the store
// holds no usable ABI for this account (none set, or one that is null or
// does not decode): callers should leave the dependent field unresolved
// rather than treat this as a failure.
func (c *Cache) Get(ctx context.Context, account chain.Name) (*chain.ABIDescriptor, bool, error) {
	if e, ok := c.entries[account]; ok {
		c.order.MoveToFront(e.elem)
		metrics.ABICacheHit()
		return e.descriptor, true, nil
	}

	metrics.ABICacheSize.Set(float64(c.Len()))

	desc, found, err := c.lookup(ctx, account)
	if err != nil {
		return nil, false, err
	}
	if !found {
		metrics.ABICacheUnresolved()
		return nil, false, nil
	}

	c.put(account, desc)
	metrics.ABICacheMiss()
	return desc, true, nil
}

// Put installs desc for account directly, as happens when the consumer
// observes a fresh setabi action and doesn't need a round trip to the
// document store to learn the new ABI.
func (c *Cache) Put(account chain.Name, desc *chain.ABIDescriptor) {
	c.put(account, desc)
}

func (c *Cache) put(account chain.Name, desc *chain.ABIDescriptor) {
	if e, ok := c.entries[account]; ok {
		e.descriptor = desc
		c.order.MoveToFront(e.elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	e := &entry{account: account, descriptor: desc}
	e.elem = c.order.PushFront(e)
	c.entries[account] = e
	metrics.ABICacheSize.Set(float64(c.Len()))
}

func (c *Cache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	e := oldest.Value.(*entry)
	c.order.Remove(oldest)
	delete(c.entries, e.account)
}

// lookup queries the accounts document kind for the account's most recent
// setabi-derived descriptor. The system account's setabi abi field is
// stored already decoded, per the rewrite rule applied at index time; all
// other accounts are stored the same way once resolved.
func (c *Cache) lookup(ctx context.Context, account chain.Name) (*chain.ABIDescriptor, bool, error) {
	query := fmt.Sprintf(`{"query":{"term":{"name":%q}},"size":1}`, account)
	raw, err := c.store.Search(ctx, c.indexFmt, bytes.NewReader([]byte(query)))
	if err != nil {
		return nil, false, fmt.Errorf("%w: abi lookup for %s: %v", common.ErrConnection, account, err)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source struct {
					Name string          `json:"name"`
					Abi  json.RawMessage `json:"abi"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false, fmt.Errorf("decode accounts search response: %w", err)
	}
	if parsed.Hits.Total.Value != 1 {
		return nil, false, nil
	}

	hit := parsed.Hits.Hits[0].Source
	if len(hit.Abi) == 0 || string(hit.Abi) == "null" {
		return nil, false, nil
	}

	desc := &chain.ABIDescriptor{Account: account}
	if err := json.Unmarshal(hit.Abi, desc); err != nil {
		// Abi was stored opaque (never successfully decoded); leave it unresolved.
		c.log.Debugw("stored abi not structured, leaving unresolved", "account", account)
		return nil, false, nil
	}
	return desc, true, nil
}
