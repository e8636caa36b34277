package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"annotation-service/backend/internal/entity"
)

// 需要 ANNOTATION_TEST_MYSQL_DSN 指向一个可写的测试库，否则跳过
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("ANNOTATION_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skip: ANNOTATION_TEST_MYSQL_DSN not set")
	}
	return dsn
}

func TestSnapshotStore_SaveIsIdempotent(t *testing.T) {
	db, err := sql.Open("mysql", testDSN(t))
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}

	ctx := context.Background()
	s := NewSnapshotStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	docID := "test-doc-" + time.Now().Format("150405.000000")
	defer db.Exec(`DELETE FROM annotation_snapshots WHERE document_id = ?`, docID)

	if _, _, found, err := s.LatestSnapshot(ctx, docID); err != nil || found {
		t.Fatalf("LatestSnapshot() on empty doc: found=%v err=%v", found, err)
	}
	if err := s.SaveDocumentSnapshot(ctx, docID, 1, `[{"kind":"insert","text":"a\n"}]`); err != nil {
		t.Fatalf("SaveDocumentSnapshot() error = %v", err)
	}
	// 重复主键（1062）按成功处理
	if err := s.SaveDocumentSnapshot(ctx, docID, 1, `[]`); err != nil {
		t.Fatalf("duplicate SaveDocumentSnapshot() error = %v", err)
	}
	if err := s.SaveDocumentSnapshot(ctx, docID, 2, `[{"kind":"insert","text":"b\n"}]`); err != nil {
		t.Fatalf("SaveDocumentSnapshot() error = %v", err)
	}
	content, rev, found, err := s.LatestSnapshot(ctx, docID)
	if err != nil || !found || rev != 2 || content != `[{"kind":"insert","text":"b\n"}]` {
		t.Fatalf("LatestSnapshot() = %q, %d, %v, %v", content, rev, found, err)
	}
}

func TestAttachmentRepo(t *testing.T) {
	db, err := InitMySQL(testDSN(t))
	if err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}

	ctx := context.Background()
	repo := NewMySQLAttachmentRepo(db)
	a := &entity.Attachment{
		ID:      "00000000-0000-0000-0000-" + time.Now().Format("150405000000"),
		DocID:   "test-doc",
		Name:    "a.png",
		MIME:    "image/png",
		Size:    4,
		BlobKey: "blob:a",
		URL:     "http://localhost/v1/uploads/a/raw",
	}
	defer db.Delete(&entity.Attachment{}, "id = ?", a.ID)

	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := repo.Get(ctx, a.ID)
	if err != nil || got == nil || got.MIME != "image/png" {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	missing, err := repo.Get(ctx, "does-not-exist")
	if err != nil || missing != nil {
		t.Fatalf("Get(missing) = %+v, %v", missing, err)
	}
	list, err := repo.ListByDoc(ctx, "test-doc")
	if err != nil || len(list) == 0 {
		t.Fatalf("ListByDoc() = %v, %v", list, err)
	}
}
