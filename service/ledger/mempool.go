package ledger

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// mempoolShardCount partitions the pool by transaction id so unrelated
// admissions and lookups do not serialize on one lock.
const mempoolShardCount = 16

// Mempool is the bounded holding area for admitted-but-not-finalized
// transactions, keyed by transaction id. Add fails when the pool is full;
// the overflow policy (expiring the oldest admitted entry to make room)
// belongs to the caller, which knows how to release the evictee's nonce
// reservation.
type Mempool struct {
	capacity int
	size     atomic.Int64
	seq      atomic.Uint64
	shards   [mempoolShardCount]mempoolShard
}

type mempoolShard struct {
	mu      sync.RWMutex
	entries map[string]*PendingTransaction
}

// NewMempool creates a pool that holds at most capacity entries.
func NewMempool(capacity int) *Mempool {
	if capacity <= 0 {
		panic(fmt.Sprintf("ledger: mempool capacity must be positive, got %d", capacity))
	}
	m := &Mempool{capacity: capacity}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*PendingTransaction)
	}
	return m
}

func (m *Mempool) shard(id string) *mempoolShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.shards[h.Sum32()%mempoolShardCount]
}

// NextSeq hands out the admission sequence number for a new entry. The
// sequence totally orders admissions and drives oldest-first eviction.
func (m *Mempool) NextSeq() uint64 {
	return m.seq.Add(1)
}

// Add admits p into the pool, failing with ErrMempoolFull at capacity. A
// slot is claimed with a CAS before the insert so two concurrent admissions
// to different shards can never both squeeze past the capacity check.
func (m *Mempool) Add(p *PendingTransaction) error {
	sh := m.shard(p.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, p.ID)
	}

	for {
		n := m.size.Load()
		if int(n) >= m.capacity {
			return fmt.Errorf("%w: %d entries", ErrMempoolFull, m.capacity)
		}
		if m.size.CompareAndSwap(n, n+1) {
			break
		}
	}
	sh.entries[p.ID] = p
	return nil
}

// OldestAdmitted returns the still-Admitted entry with the smallest
// admission sequence that is strictly older than beforeSeq, or nil. Entries
// that progressed past Admitted (quorum reached, possibly parked behind a
// storage failure awaiting a retry vote) are never offered for eviction.
func (m *Mempool) OldestAdmitted(beforeSeq uint64) *PendingTransaction {
	var oldest *PendingTransaction
	m.Range(func(p *PendingTransaction) bool {
		if p.seq < beforeSeq && (oldest == nil || p.seq < oldest.seq) && p.Status() == StatusAdmitted {
			oldest = p
		}
		return true
	})
	return oldest
}

// Get returns the pending transaction with the given id, or nil.
func (m *Mempool) Get(id string) *PendingTransaction {
	sh := m.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.entries[id]
}

// Remove deletes the entry with the given id and reports whether it was
// present.
func (m *Mempool) Remove(id string) bool {
	sh := m.shard(id)
	sh.mu.Lock()
	_, ok := sh.entries[id]
	if ok {
		delete(sh.entries, id)
	}
	sh.mu.Unlock()
	if ok {
		m.size.Add(-1)
	}
	return ok
}

// Len returns the current number of pooled entries.
func (m *Mempool) Len() int {
	return int(m.size.Load())
}

// Capacity returns the configured bound.
func (m *Mempool) Capacity() int {
	return m.capacity
}

// Range calls fn for each pooled entry until fn returns false. Iteration
// holds only one shard's read lock at a time; entries added or removed
// concurrently may or may not be visited.
func (m *Mempool) Range(fn func(*PendingTransaction) bool) {
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.RLock()
		snapshot := make([]*PendingTransaction, 0, len(sh.entries))
		for _, p := range sh.entries {
			snapshot = append(snapshot, p)
		}
		sh.mu.RUnlock()
		for _, p := range snapshot {
			if !fn(p) {
				return
			}
		}
	}
}
