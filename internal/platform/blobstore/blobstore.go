// Package blobstore archives generated export artifacts. It defines the
// Store interface, an in-memory implementation suitable for testing and
// development, a MinIO/S3 implementation, and Echo HTTP handlers for listing
// and downloading the artifacts of a run.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectTooLarge = errors.New("object exceeds maximum allowed size")
	ErrInvalidKey     = errors.New("object key is invalid")
)

// MaxObjectSize is the maximum allowed artifact size in bytes (100 MB).
const MaxObjectSize = 100 * 1024 * 1024

// AllowedContentTypes lists the artifact types an archive accepts.
var AllowedContentTypes = map[string]bool{
	"application/xml":  true,
	"text/html":        true,
	"application/json": true,
}

// Object describes a stored artifact.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store defines the contract for artifact storage backends.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	List(ctx context.Context, prefix string) ([]*Object, error)
}

func validatePut(key string, data []byte, contentType string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if len(data) > MaxObjectSize {
		return ErrObjectTooLarge
	}
	if !AllowedContentTypes[contentType] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedObject struct {
	object  Object
	content []byte
}

// InMemoryStore is a thread-safe, in-memory Store for testing/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
}

// NewInMemoryStore returns a ready-to-use InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		objects: make(map[string]*storedObject),
	}
}

// Put validates and stores a copy of data under key, replacing any previous
// object.
func (s *InMemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if err := validatePut(key, data, contentType); err != nil {
		return err
	}

	h := sha256.Sum256(data)
	obj := &storedObject{
		object: Object{
			Key:         key,
			ContentType: contentType,
			Size:        int64(len(data)),
			Hash:        fmt.Sprintf("%x", h),
			CreatedAt:   time.Now().UTC(),
		},
		content: append([]byte(nil), data...),
	}

	s.mu.Lock()
	s.objects[key] = obj
	s.mu.Unlock()
	return nil
}

// Get returns a reader over the object content and its metadata.
func (s *InMemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrObjectNotFound
	}

	meta := obj.object // copy
	return io.NopCloser(bytes.NewReader(obj.content)), &meta, nil
}

// List returns the objects whose key starts with prefix, ordered by key.
func (s *InMemoryStore) List(_ context.Context, prefix string) ([]*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Object
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		m := obj.object // copy
		matched = append(matched, &m)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })
	return matched, nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// listResponse is the JSON envelope returned by the list endpoint.
type listResponse struct {
	Items []*Object `json:"items"`
	Total int       `json:"total"`
}

// Handler provides Echo HTTP handlers for archived run artifacts.
type Handler struct {
	store Store
}

// NewHandler creates a new Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts artifact routes on the supplied Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/exports/:runId/artifacts", h.handleList)
	g.GET("/exports/:runId/artifacts/:name", h.handleDownload)
}

func (h *Handler) handleList(c echo.Context) error {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}

	items, err := h.store.List(c.Request().Context(), runID.String()+"/")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if items == nil {
		items = []*Object{}
	}

	return c.JSON(http.StatusOK, listResponse{Items: items, Total: len(items)})
}

func (h *Handler) handleDownload(c echo.Context) error {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid run id"})
	}
	name := c.Param("name")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid artifact name"})
	}

	rc, meta, err := h.store.Get(c.Request().Context(), runID.String()+"/"+name)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
