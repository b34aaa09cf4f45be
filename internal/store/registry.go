package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"otserver/internal/collab"
)

var ErrTitleTaken = errors.New("TITLE_TAKEN")

// DocumentRegistry 管理文档元数据（id / owner / title），
// 与 OT 状态表解耦：引擎对不存在的 docID 也能惰性建档，
// 注册表只服务于“按标题找文档 / 建文档”这类入口流程。
type DocumentRegistry struct{ db *sql.DB }

func NewDocumentRegistry(db *sql.DB) *DocumentRegistry {
	return &DocumentRegistry{db: db}
}

func (s *DocumentRegistry) GetDocumentID(ctx context.Context, title string) (string, error) {
	var docID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE title = ?`,
		title,
	).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", collab.ErrDocumentNotFound
	}
	return docID, err
}

func (s *DocumentRegistry) CreateDocument(ctx context.Context, id string, ownerID uint64, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, title) VALUES (?, ?, ?)`,
		id, ownerID, title,
	)
	if err != nil {
		// 1062 = duplicate key
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrTitleTaken
		}
		return err
	}
	return nil
}

// SnapshotHistory 落库 rebase/rollback 产出的快照，满足 collab.SnapshotStore。
type SnapshotHistory struct{ db *sql.DB }

func NewSnapshotHistory(db *sql.DB) *SnapshotHistory {
	return &SnapshotHistory{db: db}
}

func (s *SnapshotHistory) SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, version, content)
		VALUES (?, ?, ?)`,
		docID, version, content,
	)
	if err != nil {
		// 同版本重复写快照视为已存在，不报错
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}
