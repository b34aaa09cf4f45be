package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"otserver/internal/collab"
	"otserver/internal/ot"
)

// DocumentStateRecord 是文档物化状态表（documents 元数据表见 registry.go）。
type DocumentStateRecord struct {
	DocID         string `gorm:"primaryKey;size:64"`
	Content       string `gorm:"type:longtext"`
	Version       uint64
	LastRebasedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (DocumentStateRecord) TableName() string { return "document_states" }

// LogEntryRecord 是追加式操作日志。(doc_id, sequence) 唯一，
// 操作本体按 {type,position,content?,length?} 扁平 JSON 存储。
type LogEntryRecord struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	DocID           string `gorm:"size:64;uniqueIndex:idx_doc_seq,priority:1"`
	Sequence        uint64 `gorm:"uniqueIndex:idx_doc_seq,priority:2"`
	OpID            string `gorm:"size:36;uniqueIndex"`
	AuthorID        uint64
	OpJSON          string `gorm:"type:json"`
	TransformedFrom string `gorm:"type:json"`
	Tombstoned      bool   `gorm:"index"`
	AppliedAt       time.Time
}

func (LogEntryRecord) TableName() string { return "document_ops" }

// InitMySQL 打开连接并建表。
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&DocumentStateRecord{}, &LogEntryRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

// GormStore 是 collab.Store 的 MySQL 实现。
// Transact 用 SERIALIZABLE 事务 + 文档行锁满足引擎的原子性要求。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transact(ctx context.Context, docID string, fn func(tx collab.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (s *GormStore) GetDocument(ctx context.Context, docID string) (collab.Document, error) {
	var rec DocumentStateRecord
	// 惰性建档：不存在就按 version 0 建一行；事务内顺带拿行锁，
	// 把同文档的并发 reconciliation 串行化，避免序号竞争直接撞唯一索引。
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(DocumentStateRecord{DocID: docID}).
		FirstOrCreate(&rec).Error
	if err != nil {
		return collab.Document{}, err
	}
	return collab.Document{
		Content:       rec.Content,
		Version:       rec.Version,
		LastRebasedAt: rec.LastRebasedAt,
	}, nil
}

func (s *GormStore) AppendLogEntry(ctx context.Context, docID string, e collab.LogEntry) (uint64, error) {
	var maxSeq sql.NullInt64
	err := s.db.WithContext(ctx).Model(&LogEntryRecord{}).
		Where("doc_id = ?", docID).
		Select("MAX(sequence)").Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	e.Sequence = uint64(maxSeq.Int64) + 1

	rec, err := toLogRecord(docID, e)
	if err != nil {
		return 0, err
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, err
	}
	return e.Sequence, nil
}

func (s *GormStore) LogEntriesAfter(ctx context.Context, docID string, after uint64) ([]collab.LogEntry, error) {
	var recs []LogEntryRecord
	err := s.db.WithContext(ctx).
		Where("doc_id = ? AND sequence > ? AND tombstoned = ?", docID, after, false).
		Order("sequence ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]collab.LogEntry, 0, len(recs))
	for _, rec := range recs {
		en, err := fromLogRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, en)
	}
	return out, nil
}

func (s *GormStore) PatchDocument(ctx context.Context, docID string, content string, version uint64) error {
	res := s.db.WithContext(ctx).Model(&DocumentStateRecord{}).
		Where("doc_id = ?", docID).
		Updates(map[string]any{"content": content, "version": version})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", collab.ErrDocumentNotFound, docID)
	}
	return nil
}

func (s *GormStore) TombstoneEntriesAfter(ctx context.Context, docID string, after uint64) (int, error) {
	res := s.db.WithContext(ctx).Model(&LogEntryRecord{}).
		Where("doc_id = ? AND sequence > ? AND tombstoned = ?", docID, after, false).
		Update("tombstoned", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) MarkRebased(ctx context.Context, docID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&DocumentStateRecord{}).
		Where("doc_id = ?", docID).
		Update("last_rebased_at", at).Error
}

func toLogRecord(docID string, e collab.LogEntry) (LogEntryRecord, error) {
	opJSON, err := json.Marshal(e.Op)
	if err != nil {
		return LogEntryRecord{}, err
	}
	from := "[]"
	if len(e.TransformedFrom) > 0 {
		b, err := json.Marshal(e.TransformedFrom)
		if err != nil {
			return LogEntryRecord{}, err
		}
		from = string(b)
	}
	return LogEntryRecord{
		DocID:           docID,
		Sequence:        e.Sequence,
		OpID:            e.ID,
		AuthorID:        e.AuthorID,
		OpJSON:          string(opJSON),
		TransformedFrom: from,
		Tombstoned:      e.Tombstoned,
		AppliedAt:       e.AppliedAt,
	}, nil
}

func fromLogRecord(rec LogEntryRecord) (collab.LogEntry, error) {
	var op ot.Operation
	if err := json.Unmarshal([]byte(rec.OpJSON), &op); err != nil {
		return collab.LogEntry{}, fmt.Errorf("decode op %s: %w", rec.OpID, err)
	}
	var from []string
	if rec.TransformedFrom != "" && rec.TransformedFrom != "[]" {
		if err := json.Unmarshal([]byte(rec.TransformedFrom), &from); err != nil {
			return collab.LogEntry{}, fmt.Errorf("decode transformedFrom %s: %w", rec.OpID, err)
		}
	}
	return collab.LogEntry{
		ID:              rec.OpID,
		Sequence:        rec.Sequence,
		AuthorID:        rec.AuthorID,
		Op:              op,
		TransformedFrom: from,
		Tombstoned:      rec.Tombstoned,
		AppliedAt:       rec.AppliedAt,
	}, nil
}
