package attachment

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	pebble "github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"annotation-service/backend/internal/blob"
	"annotation-service/backend/internal/entity"
	"annotation-service/backend/internal/upload"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[string]entity.Attachment
	err  error
}

func newMemRepo() *memRepo { return &memRepo{rows: make(map[string]entity.Attachment)} }

func (r *memRepo) Create(ctx context.Context, a *entity.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rows[a.ID] = *a
	return nil
}

func (r *memRepo) Get(ctx context.Context, id string) (*entity.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memRepo) ListByDoc(ctx context.Context, docID string) ([]entity.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Attachment
	for _, a := range r.rows {
		if a.DocID == docID {
			out = append(out, a)
		}
	}
	return out, nil
}

func newBlobs(t *testing.T) *blob.Store {
	t.Helper()
	s, err := blob.Open("blobs", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		t.Fatalf("blob.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// 最小的 PNG 文件头，足够 mimetype 识别
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestService_SaveAndOpen(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(newBlobs(t), repo, "http://localhost:8080/", 0)

	a, err := svc.Save(context.Background(), "doc-1", "shot.png", pngBytes)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if a.MIME != "image/png" {
		t.Fatalf("MIME = %q, want image/png", a.MIME)
	}
	if a.URL != "http://localhost:8080/v1/uploads/"+a.ID+"/raw" {
		t.Fatalf("URL = %q", a.URL)
	}
	if a.Size != int64(len(pngBytes)) || a.DocID != "doc-1" {
		t.Fatalf("attachment = %+v", a)
	}

	meta, data, err := svc.Open(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if meta.Name != "shot.png" || !bytes.Equal(data, pngBytes) {
		t.Fatalf("Open() = %+v, %v", meta, data)
	}

	list, _ := svc.ListByDoc(context.Background(), "doc-1")
	if len(list) != 1 {
		t.Fatalf("ListByDoc() = %v", list)
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
}

func TestService_Limits(t *testing.T) {
	svc := NewService(newBlobs(t), newMemRepo(), "", 8)

	if _, err := svc.Save(context.Background(), "d", "e.png", nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Save(empty) error = %v", err)
	}
	_, err := svc.Save(context.Background(), "d", "big.png", pngBytes)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Save(big) error = %v", err)
	}
	if got := err.Error(); got != "attachment too large: 16 B exceeds 8 B" {
		t.Fatalf("error text = %q", got)
	}
}

// recordingBlobs 记录被删除的键
type recordingBlobs struct {
	BlobStore
	deleted []string
}

func (b *recordingBlobs) Delete(key string) error {
	b.deleted = append(b.deleted, key)
	return b.BlobStore.Delete(key)
}

func TestService_RepoFailureRemovesBlob(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("db down")
	blobs := &recordingBlobs{BlobStore: newBlobs(t)}
	svc := NewService(blobs, repo, "", 0)

	if _, err := svc.Save(context.Background(), "d", "a.png", pngBytes); err == nil {
		t.Fatalf("Save() should fail when metadata cannot be written")
	}
	if len(blobs.deleted) != 1 {
		t.Fatalf("deleted = %v, want the orphaned blob removed", blobs.deleted)
	}
	if _, err := blobs.Get(blobs.deleted[0]); !errors.Is(err, blob.ErrBlobNotFound) {
		t.Fatalf("Get(orphan) error = %v", err)
	}
}

func TestService_UploadFunc(t *testing.T) {
	svc := NewService(newBlobs(t), newMemRepo(), "https://cdn.example", 0)
	fn := svc.UploadFunc("doc-9")

	url, err := fn(context.Background(), upload.File{Name: "p.png", MIME: "image/png", Data: pngBytes})
	if err != nil {
		t.Fatalf("UploadFunc() error = %v", err)
	}
	if len(url) <= len("https://cdn.example/v1/uploads/") {
		t.Fatalf("url = %q", url)
	}
	if _, err := fn(context.Background(), upload.File{Name: "e.png"}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("UploadFunc(empty) error = %v", err)
	}
}
