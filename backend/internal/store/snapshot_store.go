package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// SnapshotStore 保存文档内容快照（delta JSON），按 (document_id, revision) 去重
type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const createSnapshotsTable = `CREATE TABLE IF NOT EXISTS annotation_snapshots (
	document_id VARCHAR(64) NOT NULL,
	revision    BIGINT UNSIGNED NOT NULL,
	content     LONGTEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (document_id, revision)
)`

func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createSnapshotsTable)
	return err
}

func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO annotation_snapshots (document_id, revision, content)
		VALUES (?, ?, ?)`,
		docID,
		rev,
		content,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		// 同一版本重复保存视为成功
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

// LatestSnapshot 返回最新版本；文档没有快照时 found=false
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, docID string) (content string, rev uint64, found bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT content, revision FROM annotation_snapshots
		WHERE document_id = ? ORDER BY revision DESC LIMIT 1`,
		docID,
	).Scan(&content, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return content, rev, true, nil
}
