package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/pkg/chain"
)

func TestQueues_EnqueueDequeueOrder(t *testing.T) {
	t.Parallel()

	q := New(100, logger.NewNopLogger())
	q.EnqueueAcceptedBlock(chain.BlockStateEvent{BlockNum: 1})
	q.EnqueueIrreversibleBlock(chain.BlockStateEvent{BlockNum: 1})
	q.EnqueueAcceptedTransaction(chain.TransactionMetadataEvent{TxID: "a"})
	q.EnqueueAppliedTransaction(chain.TransactionTraceEvent{TxID: "a"})

	batch, ok := q.Drain()
	require.True(t, ok)
	require.Len(t, batch.AppliedTransactions, 1)
	require.Len(t, batch.AcceptedTransactions, 1)
	require.Len(t, batch.AcceptedBlocks, 1)
	require.Len(t, batch.IrreversibleBlocks, 1)
}

func TestQueues_DrainBlocksUntilNonEmpty(t *testing.T) {
	t.Parallel()

	q := New(100, logger.NewNopLogger())

	var got atomic.Bool
	done := make(chan struct{})
	go func() {
		batch, ok := q.Drain()
		got.Store(ok && len(batch.AcceptedBlocks) == 1)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.EnqueueAcceptedBlock(chain.BlockStateEvent{BlockNum: 5})

	select {
	case <-done:
		require.True(t, got.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not wake on enqueue")
	}
}

func TestQueues_ShutdownUnblocksDrain(t *testing.T) {
	t.Parallel()

	q := New(100, logger.NewNopLogger())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Drain()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not unblock on shutdown")
	}
}

// TestQueues_BackpressureNeverExceedsBound reproduces the 2048-event,
// max_queue_size-1024 backpressure scenario: a fast producer pushed far
// beyond the bound must still observe every queue settle back to within one
// entry of the configured max once the slower consumer catches up, without
// any event being dropped.
func TestQueues_BackpressureNeverExceedsBound(t *testing.T) {
	t.Parallel()

	const maxSize = 1024
	const totalEvents = 2048

	q := New(maxSize, logger.NewNopLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < totalEvents; i++ {
			q.EnqueueAcceptedBlock(chain.BlockStateEvent{BlockNum: uint32(i)})
		}
	}()

	consumed := 0
	for consumed < totalEvents {
		batch, ok := q.Drain()
		if !ok {
			break
		}
		consumed += len(batch.AcceptedBlocks)

		q.mu.Lock()
		depth := len(q.acceptedBlocks)
		q.mu.Unlock()
		require.LessOrEqual(t, depth, maxSize+1, "queue depth must stay within one transient slot of the bound")
	}

	wg.Wait()
	require.Equal(t, totalEvents, consumed)
}

func TestQueues_EmptyBatch(t *testing.T) {
	t.Parallel()

	var b Batch
	require.True(t, b.Empty())

	b.AcceptedBlocks = []chain.BlockStateEvent{{}}
	require.False(t, b.Empty())
}
