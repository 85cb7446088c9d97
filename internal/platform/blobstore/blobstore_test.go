package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func seedObject(t *testing.T, store Store, key, contentType, content string) {
	t.Helper()
	if err := store.Put(context.Background(), key, []byte(content), contentType); err != nil {
		t.Fatalf("seedObject: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestInMemoryStore_PutGet(t *testing.T) {
	store := NewInMemoryStore()
	seedObject(t, store, "run/1_S_A.xml", "application/xml", "<ClinicalDocument/>")

	rc, meta, err := store.Get(context.Background(), "run/1_S_A.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "<ClinicalDocument/>" {
		t.Errorf("unexpected content %q", data)
	}
	if meta.ContentType != "application/xml" {
		t.Errorf("expected ContentType=application/xml, got %s", meta.ContentType)
	}
	if meta.Size != int64(len(data)) {
		t.Errorf("expected Size=%d, got %d", len(data), meta.Size)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestInMemoryStore_PutCopiesData(t *testing.T) {
	store := NewInMemoryStore()
	data := []byte("<p>one</p>")
	if err := store.Put(context.Background(), "k.html", data, "text/html"); err != nil {
		t.Fatal(err)
	}
	data[3] = 'X'

	rc, _, _ := store.Get(context.Background(), "k.html")
	got, _ := io.ReadAll(rc)
	if string(got) != "<p>one</p>" {
		t.Errorf("stored object changed with caller buffer: %q", got)
	}
}

func TestInMemoryStore_GetNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, _, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestInMemoryStore_PutValidation(t *testing.T) {
	store := NewInMemoryStore()
	tests := []struct {
		name        string
		key         string
		contentType string
		size        int
		want        error
	}{
		{name: "empty key", key: "", contentType: "text/html", want: ErrInvalidKey},
		{name: "absolute key", key: "/etc/passwd", contentType: "text/html", want: ErrInvalidKey},
		{name: "traversal", key: "run/../x", contentType: "text/html", want: ErrInvalidKey},
		{name: "too large", key: "big.xml", contentType: "application/xml", size: MaxObjectSize + 1, want: ErrObjectTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Put(context.Background(), tt.key, make([]byte, tt.size), tt.contentType)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := store.Put(context.Background(), "x.png", []byte("x"), "image/png"); err == nil {
		t.Error("expected error for disallowed content type")
	}
}

func TestInMemoryStore_List(t *testing.T) {
	store := NewInMemoryStore()
	seedObject(t, store, "run-b/2_S_B.xml", "application/xml", "b")
	seedObject(t, store, "run-a/summary.html", "text/html", "s")
	seedObject(t, store, "run-a/1_S_A.xml", "application/xml", "a")

	objs, err := store.List(context.Background(), "run-a/")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}
	if objs[0].Key != "run-a/1_S_A.xml" || objs[1].Key != "run-a/summary.html" {
		t.Errorf("unexpected order: %s, %s", objs[0].Key, objs[1].Key)
	}
}

func TestInMemoryStore_SHA256Hash(t *testing.T) {
	store := NewInMemoryStore()
	content := "compute-my-hash"
	seedObject(t, store, "hash.html", "text/html", content)

	_, meta, err := store.Get(context.Background(), "hash.html")
	if err != nil {
		t.Fatal(err)
	}
	h := sha256.Sum256([]byte(content))
	if expected := fmt.Sprintf("%x", h); meta.Hash != expected {
		t.Errorf("expected hash=%s, got %s", expected, meta.Hash)
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()
	var wg sync.WaitGroup
	const goroutines = 50

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("run/%d_S_T.xml", n+1)
			if err := store.Put(context.Background(), key, []byte(fmt.Sprintf("doc-%d", n)), "application/xml"); err != nil {
				t.Errorf("put goroutine %d: %v", n, err)
				return
			}
			rc, _, err := store.Get(context.Background(), key)
			if err != nil {
				t.Errorf("get goroutine %d: %v", n, err)
				return
			}
			rc.Close()
		}(i)
	}
	wg.Wait()

	objs, err := store.List(context.Background(), "run/")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(objs) != goroutines {
		t.Errorf("expected %d objects, got %d", goroutines, len(objs))
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func newTestHandler(store Store) *echo.Echo {
	e := echo.New()
	NewHandler(store).RegisterRoutes(e.Group(""))
	return e
}

func TestHandler_Download(t *testing.T) {
	store := NewInMemoryStore()
	runID := uuid.New().String()
	seedObject(t, store, runID+"/1_S_A.xml", "application/xml", "<doc/>")
	e := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/exports/"+runID+"/artifacts/1_S_A.xml", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("expected Content-Type=application/xml, got %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="1_S_A.xml"` {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if rec.Body.String() != "<doc/>" {
		t.Errorf("expected body=<doc/>, got %s", rec.Body.String())
	}
}

func TestHandler_DownloadErrors(t *testing.T) {
	e := newTestHandler(NewInMemoryStore())
	runID := uuid.New().String()

	tests := []struct {
		path string
		want int
	}{
		{"/exports/not-a-uuid/artifacts/x.xml", http.StatusBadRequest},
		{"/exports/" + runID + "/artifacts/..", http.StatusBadRequest},
		{"/exports/" + runID + "/artifacts/missing.xml", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.want, rec.Code)
		}
	}
}

func TestHandler_List(t *testing.T) {
	store := NewInMemoryStore()
	runID := uuid.New().String()
	seedObject(t, store, runID+"/1_S_A.xml", "application/xml", "a")
	seedObject(t, store, runID+"/1_S_A.html", "text/html", "a")
	seedObject(t, store, uuid.New().String()+"/summary.html", "text/html", "other run")
	e := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/exports/"+runID+"/artifacts", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error unmarshaling response: %v", err)
	}
	if resp.Total != 2 || len(resp.Items) != 2 {
		t.Errorf("expected 2 items, got total=%d items=%d", resp.Total, len(resp.Items))
	}
}

func TestHandler_ListEmpty(t *testing.T) {
	e := newTestHandler(NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/exports/"+uuid.New().String()+"/artifacts", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"items\":[],\"total\":0}\n" {
		t.Errorf("unexpected body %q", body)
	}
}
