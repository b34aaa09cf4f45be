package store

import (
	"context"
	"sync"
	"time"

	"otserver/internal/collab"
)

// MemoryStore 是 collab.Store 的内存实现，单进程部署与测试用。
// 原子性要求靠每文档一把互斥锁兑现：Transact 持锁期间
// 读最大序号→追加→回写 之间不可能有并发追加插队。
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*docState
}

type docState struct {
	mu  sync.Mutex
	doc collab.Document
	log []collab.LogEntry // 按 sequence 升序，追加写
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*docState)}
}

// 惰性建档：首次访问某 docID 时从 version 0 开始。
func (s *MemoryStore) getOrCreateDoc(docID string) *docState {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds != nil {
		return ds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds = s.docs[docID]; ds == nil {
		ds = &docState{}
		s.docs[docID] = ds
	}
	return ds
}

// Transact 持有该文档的锁执行 fn；fn 报错时恢复改动前的状态，
// 对外表现为整个事务回滚（日志是追加写的，截断长度即可）。
func (s *MemoryStore) Transact(ctx context.Context, docID string, fn func(tx collab.Store) error) error {
	ds := s.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	savedDoc := ds.doc
	savedLen := len(ds.log)
	savedTombstones := snapshotTombstones(ds.log)

	if err := fn(&memoryTx{ds: ds}); err != nil {
		ds.doc = savedDoc
		ds.log = ds.log[:savedLen]
		restoreTombstones(ds.log, savedTombstones)
		return err
	}
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, docID string) (collab.Document, error) {
	ds := s.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return (&memoryTx{ds: ds}).GetDocument(ctx, docID)
}

func (s *MemoryStore) AppendLogEntry(ctx context.Context, docID string, e collab.LogEntry) (uint64, error) {
	ds := s.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return (&memoryTx{ds: ds}).AppendLogEntry(ctx, docID, e)
}

func (s *MemoryStore) LogEntriesAfter(ctx context.Context, docID string, after uint64) ([]collab.LogEntry, error) {
	ds := s.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return (&memoryTx{ds: ds}).LogEntriesAfter(ctx, docID, after)
}

func (s *MemoryStore) PatchDocument(ctx context.Context, docID string, content string, version uint64) error {
	ds := s.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return (&memoryTx{ds: ds}).PatchDocument(ctx, docID, content, version)
}

func (s *MemoryStore) TombstoneEntriesAfter(ctx context.Context, docID string, after uint64) (int, error) {
	ds := s.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return (&memoryTx{ds: ds}).TombstoneEntriesAfter(ctx, docID, after)
}

func (s *MemoryStore) MarkRebased(ctx context.Context, docID string, at time.Time) error {
	ds := s.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return (&memoryTx{ds: ds}).MarkRebased(ctx, docID, at)
}

// memoryTx 在持锁状态下直接操作 docState，自身不再加锁。
type memoryTx struct {
	ds *docState
}

func (t *memoryTx) Transact(ctx context.Context, docID string, fn func(tx collab.Store) error) error {
	// 已在事务内，直接执行。
	return fn(t)
}

func (t *memoryTx) GetDocument(ctx context.Context, docID string) (collab.Document, error) {
	return t.ds.doc, nil
}

func (t *memoryTx) AppendLogEntry(ctx context.Context, docID string, e collab.LogEntry) (uint64, error) {
	var maxSeq uint64
	if n := len(t.ds.log); n > 0 {
		maxSeq = t.ds.log[n-1].Sequence
	}
	e.Sequence = maxSeq + 1
	t.ds.log = append(t.ds.log, e)
	return e.Sequence, nil
}

func (t *memoryTx) LogEntriesAfter(ctx context.Context, docID string, after uint64) ([]collab.LogEntry, error) {
	var out []collab.LogEntry
	for _, en := range t.ds.log {
		if en.Sequence > after && !en.Tombstoned {
			out = append(out, en)
		}
	}
	return out, nil
}

func (t *memoryTx) PatchDocument(ctx context.Context, docID string, content string, version uint64) error {
	t.ds.doc.Content = content
	t.ds.doc.Version = version
	return nil
}

func (t *memoryTx) TombstoneEntriesAfter(ctx context.Context, docID string, after uint64) (int, error) {
	n := 0
	for i := range t.ds.log {
		if t.ds.log[i].Sequence > after && !t.ds.log[i].Tombstoned {
			t.ds.log[i].Tombstoned = true
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) MarkRebased(ctx context.Context, docID string, at time.Time) error {
	t.ds.doc.LastRebasedAt = at
	return nil
}

func snapshotTombstones(log []collab.LogEntry) []bool {
	out := make([]bool, len(log))
	for i, en := range log {
		out[i] = en.Tombstoned
	}
	return out
}

func restoreTombstones(log []collab.LogEntry, saved []bool) {
	for i := range saved {
		log[i].Tombstoned = saved[i]
	}
}
