package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	pebble "github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/gin-gonic/gin"

	"annotation-service/backend/internal/attachment"
	"annotation-service/backend/internal/blob"
	"annotation-service/backend/internal/cache"
	"annotation-service/backend/internal/entity"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[string]entity.Attachment
}

func (r *memRepo) Create(ctx context.Context, a *entity.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

type countingNotifier struct {
	mu   sync.Mutex
	docs []string
}

func (n *countingNotifier) CommentsChanged(ctx context.Context, docID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.docs = append(n.docs, docID)
	return nil
}

func newRouter(t *testing.T, maxBytes int64) (*gin.Engine, *countingNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	blobs, err := blob.Open("blobs", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		t.Fatalf("blob.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = blobs.Close() })

	svc := attachment.NewService(blobs, &memRepo{rows: make(map[string]entity.Attachment)}, "http://files.local", maxBytes)
	n := &countingNotifier{}
	r := gin.New()
	v1 := r.Group("/v1")
	NewUploadHandler(svc).Register(v1, v1)
	NewCommentHandler(cache.NewMemoryComments(), n).Register(v1)
	return r, n
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func multipartUpload(t *testing.T, docID, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if docID != "" {
		_ = mw.WriteField("docId", docID)
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")

func TestUploadHandler_RoundTrip(t *testing.T) {
	r, _ := newRouter(t, 0)

	w := serve(r, multipartUpload(t, "doc-1", "dot.gif", gifBytes))
	if w.Code != http.StatusCreated {
		t.Fatalf("POST status = %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID   string `json:"id"`
		URL  string `json:"url"`
		MIME string `json:"mime"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.MIME != "image/gif" || created.URL != "http://files.local/v1/uploads/"+created.ID+"/raw" {
		t.Fatalf("created = %+v", created)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/v1/uploads/"+created.ID+"/raw", nil))
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), gifBytes) || w.Header().Get("Content-Type") != "image/gif" {
		t.Fatalf("raw = %d %q %q", w.Code, w.Header().Get("Content-Type"), w.Body.Bytes())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/uploads", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), created.ID) {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/v1/uploads/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET missing status = %d", w.Code)
	}
}

func TestUploadHandler_Rejects(t *testing.T) {
	r, _ := newRouter(t, 4)

	if w := serve(r, multipartUpload(t, "", "a.gif", gifBytes)); w.Code != http.StatusBadRequest {
		t.Fatalf("missing docId status = %d", w.Code)
	}
	if w := serve(r, multipartUpload(t, "d", "a.gif", gifBytes)); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("too large status = %d", w.Code)
	}
	if w := serve(r, multipartUpload(t, "d", "a.gif", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("empty status = %d", w.Code)
	}
}

func TestUploadHandler_RawIsPublic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	blobs, err := blob.Open("blobs", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		t.Fatalf("blob.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = blobs.Close() })
	svc := attachment.NewService(blobs, &memRepo{rows: make(map[string]entity.Attachment)}, "http://files.local", 1024)

	r := gin.New()
	v1 := r.Group("/v1")
	authed := v1.Group("")
	authed.Use(func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) })
	NewUploadHandler(svc).Register(v1, authed)

	// 没有登录也能取图片内容，其余接口都要鉴权
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/uploads/nope/raw", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("raw status = %d, want 404", w.Code)
	}
	if w := serve(r, multipartUpload(t, "d", "a.gif", gifBytes)); w.Code != http.StatusUnauthorized {
		t.Fatalf("create status = %d, want 401", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/uploads/nope", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("get status = %d, want 401", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/documents/d/uploads", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("list status = %d, want 401", w.Code)
	}
}

func jsonReq(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCommentHandler_CRUD(t *testing.T) {
	r, n := newRouter(t, 0)

	w := serve(r, jsonReq(http.MethodPost, "/v1/documents/d1/comments", `{"range":{"index":3,"length":4},"message":{"text":"hi"}}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("POST status = %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if len(created.ID) != 9 {
		t.Fatalf("id = %q", created.ID)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/v1/documents/d1/comments", nil))
	var list struct {
		Comments map[string]struct {
			Range struct{ Index, Length int } `json:"range"`
		} `json:"comments"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if got := list.Comments[created.ID].Range; got.Index != 3 || got.Length != 4 {
		t.Fatalf("listed range = %+v", got)
	}

	if w := serve(r, jsonReq(http.MethodPut, "/v1/documents/d1/comments/"+created.ID, `{"range":{"index":5,"length":1}}`)); w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", w.Code)
	}
	if w := serve(r, jsonReq(http.MethodPut, "/v1/documents/d1/comments/missing", `{"range":{"index":5,"length":1}}`)); w.Code != http.StatusNotFound {
		t.Fatalf("PUT missing status = %d", w.Code)
	}
	if w := serve(r, jsonReq(http.MethodPost, "/v1/documents/d1/comments", `{"range":{"index":-1,"length":1}}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("POST negative status = %d", w.Code)
	}
	if w := serve(r, jsonReq(http.MethodPost, "/v1/documents/d1/comments", `{"message":"no range"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("POST without range status = %d", w.Code)
	}

	if w := serve(r, httptest.NewRequest(http.MethodDelete, "/v1/documents/d1/comments/"+created.ID, nil)); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodDelete, "/v1/documents/d1/comments/"+created.ID, nil)); w.Code != http.StatusNotFound {
		t.Fatalf("DELETE again status = %d", w.Code)
	}

	// 创建、修改、删除各通知一次
	if len(n.docs) != 3 {
		t.Fatalf("notifications = %v", n.docs)
	}
}
