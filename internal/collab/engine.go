package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"otserver/internal/ot"
)

// Service 是协作引擎接口。引擎本身同步、调用间无状态，
// 并发完全来自多个调用方竞争扩展同一文档的日志，
// 原子性由 Store.Transact 保证；冲突时不自动重试，由调用方拉新状态后重新提交。
type Service interface {
	ApplyOperation(ctx context.Context, docID string, authorID uint64,
		op ot.Operation, clientSeq uint64, expectedVersion *uint64) (ApplyResult, error)

	ApplyBatch(ctx context.Context, docID string, authorID uint64,
		items []BatchItem, expectedVersion *uint64) (BatchResult, error)

	Diff(oldDoc, newDoc string) []ot.Operation

	Rebase(ctx context.Context, docID string, fromSequence uint64) (RebaseResult, error)

	// Rollback 破坏性操作：墓碑 targetSequence 之后的全部日志项并重放。
	// 权限检查在 HTTP 层完成（需要 admin 角色）。
	Rollback(ctx context.Context, docID string, targetSequence uint64) (RollbackResult, error)

	GetDocument(ctx context.Context, docID string) (Document, error)
}

type Engine struct {
	store Store

	// 可选依赖，nil 时跳过
	cache      SnapshotCache
	snapshots  SnapshotStore
	dispatcher *KafkaDispatcher

	diffWindow int
}

type EngineOptions struct {
	Cache      SnapshotCache
	Snapshots  SnapshotStore
	Dispatcher *KafkaDispatcher
	DiffWindow int
}

func NewEngine(store Store, opt EngineOptions) *Engine {
	w := opt.DiffWindow
	if w <= 0 {
		w = ot.DefaultDiffWindow
	}
	return &Engine{
		store:      store,
		cache:      opt.Cache,
		snapshots:  opt.Snapshots,
		dispatcher: opt.Dispatcher,
		diffWindow: w,
	}
}

// ApplyOperation 执行五步 reconciliation：
//  1. expectedVersion 乐观并发检查（transform 之前）；
//  2. 读取 sequence > clientSeq 的全部日志项；
//  3. 按序折叠 transform，记录真正改动过操作的项的 id（非阻塞冲突）；
//  4. 校验并应用变换结果；
//  5. 追加日志、回写内容、version+1。
//
// 校验失败在进任何存储之前就返回；事务内任何失败都不留部分状态。
func (e *Engine) ApplyOperation(ctx context.Context, docID string, authorID uint64,
	op ot.Operation, clientSeq uint64, expectedVersion *uint64) (ApplyResult, error) {

	if err := ot.Validate(op); err != nil {
		return ApplyResult{}, err
	}

	var (
		res        ApplyResult
		event      OpCommittedEvent
		newContent string
	)
	err := e.store.Transact(ctx, docID, func(tx Store) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != doc.Version {
			return fmt.Errorf("%w: expected version %d, document at %d",
				ErrRevisionConflict, *expectedVersion, doc.Version)
		}

		entries, err := tx.LogEntriesAfter(ctx, docID, clientSeq)
		if err != nil {
			return err
		}

		transformed, conflicts := foldTransform(op, entries)

		content := doc.Content
		if !transformed.IsNoop() {
			if content, err = ot.Apply(doc.Content, transformed); err != nil {
				return err
			}
		}

		entry := LogEntry{
			ID:              uuid.NewString(),
			AuthorID:        authorID,
			Op:              transformed,
			TransformedFrom: conflicts,
			AppliedAt:       time.Now(),
		}
		seq, err := tx.AppendLogEntry(ctx, docID, entry)
		if err != nil {
			return err
		}
		newVersion := doc.Version + 1
		if err := tx.PatchDocument(ctx, docID, content, newVersion); err != nil {
			return err
		}

		res = ApplyResult{
			Success:        true,
			ServerSequence: seq,
			TransformedOp:  transformed,
			NewVersion:     newVersion,
			Conflicts:      conflicts,
		}
		event = OpCommittedEvent{
			EventType:   "OP_COMMITTED",
			DocID:       docID,
			OperationID: entry.ID,
			Sequence:    seq,
			Version:     newVersion,
			AuthorID:    authorID,
			Op:          transformed,
			Conflicts:   conflicts,
			AppliedAt:   entry.AppliedAt,
		}
		newContent = content
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}

	e.refreshCache(ctx, docID, newContent, res.NewVersion)
	e.publish(ctx, event)
	return res, nil
}

// ApplyBatch 在一个存储事务里按客户端顺序逐项走第 2–5 步，
// 事务内用演进中的内容/日志快照推进，不在项与项之间重读存储。
// 校验/越界的单项失败只累加失败计数，不中止后续项；
// 存储错误中止并回滚整批。整批成功恰好 version+1。
func (e *Engine) ApplyBatch(ctx context.Context, docID string, authorID uint64,
	items []BatchItem, expectedVersion *uint64) (BatchResult, error) {

	var (
		res        BatchResult
		events     []OpCommittedEvent
		newContent string
	)
	err := e.store.Transact(ctx, docID, func(tx Store) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != doc.Version {
			return fmt.Errorf("%w: expected version %d, document at %d",
				ErrRevisionConflict, *expectedVersion, doc.Version)
		}

		// 整批共享一份日志快照；本批内已提交的项也要参与后续项的 transform。
		var minSeq uint64
		for i, it := range items {
			if i == 0 || it.ClientSequence < minSeq {
				minSeq = it.ClientSequence
			}
		}
		entries, err := tx.LogEntriesAfter(ctx, docID, minSeq)
		if err != nil {
			return err
		}

		buf := NewPieceTable(doc.Content)
		newVersion := doc.Version
		results := make([]BatchItemResult, 0, len(items))
		processed, failed := 0, 0

		for _, it := range items {
			r, entry, err := e.applyBatchItem(ctx, tx, docID, authorID, it, entries, buf)
			if err != nil {
				// 只有校验/越界算单项失败；存储错误要让整批回滚，
				// 否则会提交出没有对应日志项的内容
				if !errors.Is(err, ot.ErrInvalidOperation) && !errors.Is(err, ot.ErrPositionOutOfBounds) {
					return err
				}
				failed++
				results = append(results, BatchItemResult{Success: false, Error: err.Error()})
				continue
			}
			processed++
			results = append(results, r)
			entries = append(entries, entry)
			events = append(events, OpCommittedEvent{
				EventType:   "OP_COMMITTED",
				DocID:       docID,
				OperationID: entry.ID,
				Sequence:    entry.Sequence,
				Version:     newVersion + 1,
				AuthorID:    authorID,
				Op:          entry.Op,
				Conflicts:   entry.TransformedFrom,
				AppliedAt:   entry.AppliedAt,
			})
		}

		content := doc.Content
		if processed > 0 {
			// 整批作为一次 reconciliation，version 恰好 +1。
			newVersion = doc.Version + 1
			content = buf.String()
			if err := tx.PatchDocument(ctx, docID, content, newVersion); err != nil {
				return err
			}
		}
		newContent = content

		res = BatchResult{
			Success:    processed > 0,
			Processed:  processed,
			Failed:     failed,
			Results:    results,
			NewVersion: newVersion,
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	if res.Processed > 0 {
		e.refreshCache(ctx, docID, newContent, res.NewVersion)
	}
	for _, evt := range events {
		e.publish(ctx, evt)
	}
	return res, nil
}

func (e *Engine) applyBatchItem(ctx context.Context, tx Store, docID string, authorID uint64,
	it BatchItem, entries []LogEntry, buf *PieceTable) (BatchItemResult, LogEntry, error) {

	if err := ot.Validate(it.Op); err != nil {
		return BatchItemResult{}, LogEntry{}, err
	}

	concurrent := entriesAfter(entries, it.ClientSequence)
	transformed, conflicts := foldTransform(it.Op, concurrent)

	if !transformed.IsNoop() {
		if err := buf.Apply(transformed); err != nil {
			return BatchItemResult{}, LogEntry{}, err
		}
	}

	entry := LogEntry{
		ID:              uuid.NewString(),
		AuthorID:        authorID,
		Op:              transformed,
		TransformedFrom: conflicts,
		AppliedAt:       time.Now(),
	}
	seq, err := tx.AppendLogEntry(ctx, docID, entry)
	if err != nil {
		return BatchItemResult{}, LogEntry{}, err
	}
	entry.Sequence = seq

	return BatchItemResult{
		Success:        true,
		ServerSequence: seq,
		TransformedOp:  transformed,
		Conflicts:      conflicts,
	}, entry, nil
}

func (e *Engine) Diff(oldDoc, newDoc string) []ot.Operation {
	return ot.DiffWindow(oldDoc, newDoc, e.diffWindow)
}

// Rebase 从空串按序重放 fromSequence 之后的全部未墓碑日志项，重建物化内容。
// 非零 floor 只在 floor 之前的日志已被压缩/墓碑掉时才有意义；
// rollback 内部固定用 floor 0。
func (e *Engine) Rebase(ctx context.Context, docID string, fromSequence uint64) (RebaseResult, error) {
	var (
		res        RebaseResult
		newContent string
	)
	err := e.store.Transact(ctx, docID, func(tx Store) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		entries, err := tx.LogEntriesAfter(ctx, docID, fromSequence)
		if err != nil {
			return err
		}

		buf := NewPieceTable("")
		for _, en := range entries {
			if err := buf.Apply(en.Op); err != nil {
				return fmt.Errorf("replay sequence %d: %w", en.Sequence, err)
			}
		}
		content := buf.String()
		newVersion := doc.Version + 1

		if err := tx.PatchDocument(ctx, docID, content, newVersion); err != nil {
			return err
		}
		now := time.Now()
		if err := tx.MarkRebased(ctx, docID, now); err != nil {
			return err
		}
		newContent = content

		res = RebaseResult{
			NewVersion:          newVersion,
			OperationsProcessed: len(entries),
			ContentLength:       buf.Len(),
		}
		return nil
	})
	if err != nil {
		return RebaseResult{}, err
	}
	e.refreshCache(ctx, docID, newContent, res.NewVersion)
	e.saveSnapshot(ctx, docID, res.NewVersion, newContent)
	return res, nil
}

// Rollback 墓碑掉 targetSequence 之后的全部日志项并从头重放。
// 这是唯一会使已提交日志项失效的路径。
func (e *Engine) Rollback(ctx context.Context, docID string, targetSequence uint64) (RollbackResult, error) {
	var (
		res        RollbackResult
		newContent string
	)
	err := e.store.Transact(ctx, docID, func(tx Store) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		removed, err := tx.TombstoneEntriesAfter(ctx, docID, targetSequence)
		if err != nil {
			return err
		}

		entries, err := tx.LogEntriesAfter(ctx, docID, 0)
		if err != nil {
			return err
		}
		buf := NewPieceTable("")
		for _, en := range entries {
			if err := buf.Apply(en.Op); err != nil {
				return fmt.Errorf("replay sequence %d: %w", en.Sequence, err)
			}
		}
		content := buf.String()
		newVersion := doc.Version + 1

		if err := tx.PatchDocument(ctx, docID, content, newVersion); err != nil {
			return err
		}
		now := time.Now()
		if err := tx.MarkRebased(ctx, docID, now); err != nil {
			return err
		}
		newContent = content

		res = RollbackResult{OperationsRemoved: removed, NewVersion: newVersion}
		return nil
	})
	if err != nil {
		return RollbackResult{}, err
	}
	e.refreshCache(ctx, docID, newContent, res.NewVersion)
	e.saveSnapshot(ctx, docID, res.NewVersion, newContent)
	return res, nil
}

// GetDocument 先走缓存，未命中再读存储并回填。
func (e *Engine) GetDocument(ctx context.Context, docID string) (Document, error) {
	if e.cache != nil {
		if content, version, ok, err := e.cache.GetSnapshot(ctx, docID); err == nil && ok {
			return Document{Content: content, Version: version}, nil
		}
	}
	doc, err := e.store.GetDocument(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	e.refreshCache(ctx, docID, doc.Content, doc.Version)
	return doc, nil
}

// foldTransform 把 op 依序对并发日志项折叠，
// 返回变换结果和真正改动过 position/length/content/type 的项的 id。
func foldTransform(op ot.Operation, entries []LogEntry) (ot.Operation, []string) {
	var conflicts []string
	for _, en := range entries {
		next := ot.Transform(op, en.Op)
		if next != op {
			conflicts = append(conflicts, en.ID)
		}
		op = next
	}
	return op, conflicts
}

func entriesAfter(entries []LogEntry, seq uint64) []LogEntry {
	out := make([]LogEntry, 0, len(entries))
	for _, en := range entries {
		if en.Sequence > seq {
			out = append(out, en)
		}
	}
	return out
}

// 缓存和快照都是尽力而为，失败只打日志，不影响提交结果。
func (e *Engine) refreshCache(ctx context.Context, docID, content string, version uint64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetSnapshot(ctx, docID, content, version); err != nil {
		log.Printf("snapshot cache update failed doc=%s version=%d: %v", docID, version, err)
	}
}

func (e *Engine) saveSnapshot(ctx context.Context, docID string, version uint64, content string) {
	if e.snapshots == nil {
		return
	}
	if err := e.snapshots.SaveDocumentSnapshot(ctx, docID, version, content); err != nil {
		log.Printf("snapshot persist failed doc=%s version=%d: %v", docID, version, err)
	}
}

func (e *Engine) publish(ctx context.Context, evt OpCommittedEvent) {
	if e.dispatcher == nil {
		return
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := e.dispatcher.Enqueue(enqueueCtx, evt); err != nil {
		log.Printf("kafka enqueue failed doc=%s op=%s: %v", evt.DocID, evt.OperationID, err)
	}
}
