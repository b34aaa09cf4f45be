package collab

import (
	"context"
	"errors"
	"time"

	"otserver/internal/ot"
)

var (
	ErrRevisionConflict      = errors.New("REVISION_CONFLICT")
	ErrDocumentNotFound      = errors.New("DOCUMENT_NOT_FOUND")
	ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")
)

// Document 是某文档的物化状态。
// 不变式：Content 恒等于按 Sequence 升序回放全部未墓碑日志项的结果；
// Version 每次成功的 reconciliation（单操作或整批）恰好 +1。
type Document struct {
	Content       string
	Version       uint64
	LastRebasedAt time.Time
}

// LogEntry 是追加进文档日志的已提交操作，持久化后不可变，
// 只有 rollback 会把它标记成墓碑，绝不原地改写。
type LogEntry struct {
	ID              string       `json:"id"` // uuid
	Sequence        uint64       `json:"sequence"`
	AuthorID        uint64       `json:"authorId"`
	Op              ot.Operation `json:"op"`
	TransformedFrom []string     `json:"transformedFrom,omitempty"` // 变换中实际改动过本操作的日志项 id
	Tombstoned      bool         `json:"tombstoned,omitempty"`
	AppliedAt       time.Time    `json:"appliedAt"`
}

type ApplyResult struct {
	Success        bool         `json:"success"`
	ServerSequence uint64       `json:"serverSequence"`
	TransformedOp  ot.Operation `json:"transformedOperation"`
	NewVersion     uint64       `json:"newVersion"`
	Conflicts      []string     `json:"conflicts,omitempty"`
}

type BatchItem struct {
	Op             ot.Operation `json:"operation"`
	ClientSequence uint64       `json:"clientSequence"`
}

// BatchItemResult 把每项的成败都摆出来，校验/越界失败不抛出、不中断后续项。
// 这是刻意的 best-effort 策略，不是全有或全无的批处理语义；
// 存储错误例外，会让整批回滚。
type BatchItemResult struct {
	Success        bool         `json:"success"`
	Error          string       `json:"error,omitempty"`
	ServerSequence uint64       `json:"serverSequence,omitempty"`
	TransformedOp  ot.Operation `json:"transformedOperation,omitempty"`
	Conflicts      []string     `json:"conflicts,omitempty"`
}

type BatchResult struct {
	Success    bool              `json:"success"` // 至少一项成功
	Processed  int               `json:"processed"`
	Failed     int               `json:"failed"`
	Results    []BatchItemResult `json:"results"`
	NewVersion uint64            `json:"newVersion"`
}

type RebaseResult struct {
	NewVersion          uint64 `json:"newVersion"`
	OperationsProcessed int    `json:"operationsProcessed"`
	ContentLength       int    `json:"contentLength"` // rune 数
}

type RollbackResult struct {
	OperationsRemoved int    `json:"operationsRemoved"`
	NewVersion        uint64 `json:"newVersion"`
}

// Store 是存储协作方。引擎对它只有一条硬要求：
// Transact 里的 读最大序号→追加→回写 必须原子，期间不得有并发追加插队
// （内存实现靠每文档互斥锁，MySQL 实现靠 SERIALIZABLE 事务 + 行锁）。
// 只声明，实现在 store 包中。
type Store interface {
	// GetDocument 首次访问时按 version 0 惰性建档。
	GetDocument(ctx context.Context, docID string) (Document, error)
	// AppendLogEntry 由存储方分配 sequence = max(existing)+1 并返回。
	AppendLogEntry(ctx context.Context, docID string, e LogEntry) (uint64, error)
	// LogEntriesAfter 返回 sequence > after 的未墓碑日志项，升序。
	LogEntriesAfter(ctx context.Context, docID string, after uint64) ([]LogEntry, error)
	PatchDocument(ctx context.Context, docID string, content string, version uint64) error
	// TombstoneEntriesAfter 标记 sequence > after 的项为墓碑，返回条数。
	TombstoneEntriesAfter(ctx context.Context, docID string, after uint64) (int, error)
	MarkRebased(ctx context.Context, docID string, at time.Time) error
	// Transact 对单个文档执行一段原子读写；fn 返回错误则整体回滚。
	Transact(ctx context.Context, docID string, fn func(tx Store) error) error
}

// SnapshotCache 缓存物化快照（redis 实现），纯加速，不参与正确性。
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, docID string, content string, version uint64) error
	GetSnapshot(ctx context.Context, docID string) (content string, version uint64, ok bool, err error)
}

// SnapshotStore 落库快照历史（rebase/rollback 后各存一份，便于审计）。
type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error
}

// OpCommittedEvent 是提交成功后发往 Kafka 的事件载荷。
type OpCommittedEvent struct {
	EventType   string       `json:"eventType"` // 固定 "OP_COMMITTED"
	DocID       string       `json:"docId"`
	OperationID string       `json:"operationId"`
	Sequence    uint64       `json:"sequence"`
	Version     uint64       `json:"version"`
	AuthorID    uint64       `json:"authorId"`
	Op          ot.Operation `json:"op"`
	Conflicts   []string     `json:"conflicts,omitempty"`
	AppliedAt   time.Time    `json:"appliedAt"`
}
