package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/clinforge/regdoc-api/internal/middleware"
	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type documentServiceMock struct {
	lockHeld   bool
	diffCached bool
}

func (m *documentServiceMock) CreateDocument(ctx context.Context, orgID, title string, docType models.DocumentType, subtype, createdBy string) (*models.Document, error) {
	return &models.Document{
		ID:             "doc-1",
		OrganizationID: orgID,
		Title:          title,
		Type:           docType,
		Subtype:        subtype,
		Status:         models.DocumentStatusDraft,
		CreatedBy:      createdBy,
	}, nil
}

func (m *documentServiceMock) GetDocument(ctx context.Context, orgID, docID string) (*models.Document, error) {
	if docID != "doc-1" {
		return nil, appErrors.ErrNotFound
	}
	return &models.Document{ID: "doc-1", OrganizationID: orgID, Title: "Protocol CF-101", Status: models.DocumentStatusDraft}, nil
}

func (m *documentServiceMock) ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	return []models.Document{{ID: "doc-1", OrganizationID: filter.OrganizationID, Title: "Protocol CF-101"}}, nil
}

func (m *documentServiceMock) CreateVersion(ctx context.Context, orgID, docID string, content []byte, authorID, changeSummary string) (*models.DocumentVersion, error) {
	if !m.lockHeld {
		return nil, appErrors.ErrLockRequired
	}
	return &models.DocumentVersion{
		ID: "ver-1", DocumentID: docID, VersionNumber: 1,
		Content: content, AuthorID: authorID, Status: models.VersionStatusDraft,
	}, nil
}

func (m *documentServiceMock) GetVersion(ctx context.Context, orgID, docID string, number int) (*models.DocumentVersion, error) {
	return &models.DocumentVersion{ID: "ver-1", DocumentID: docID, VersionNumber: number}, nil
}

func (m *documentServiceMock) History(ctx context.Context, orgID, docID string) ([]models.DocumentVersion, error) {
	return []models.DocumentVersion{{ID: "ver-1", DocumentID: docID, VersionNumber: 1}}, nil
}

func (m *documentServiceMock) Diff(ctx context.Context, orgID, docID string, base, compare int) (*models.VersionDiff, error) {
	return &models.VersionDiff{
		DocumentID: docID, BaseVersion: base, CompareVersion: compare,
		Entries: []models.DiffEntry{{Op: models.DiffOpAdd, Line: 1, Text: "new line"}},
		Cached:  m.diffCached,
	}, nil
}

type lockServiceMock struct{}

func (lockServiceMock) Acquire(ctx context.Context, docID, holderID string, ttl time.Duration, reason string) (*models.Lock, error) {
	return &models.Lock{
		ID: "lock-1", DocumentID: docID, HolderID: holderID,
		ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}, nil
}

func (lockServiceMock) Release(ctx context.Context, docID, holderID string) error {
	return nil
}

func buildDocumentRouter(svc *documentServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{
				UserID:         "test-user",
				OrganizationID: "org-1",
				Role:           models.UserRole(role),
			})
		}
		c.Next()
	})

	h := NewDocumentHandler(svc, lockServiceMock{})
	docs := router.Group("/documents")
	docs.GET("", h.List)
	docs.GET("/:id", h.Get)
	docs.GET("/:id/diff", h.Diff)

	write := docs.Group("")
	write.Use(middleware.RequireRoles(models.RoleAuthor, models.RoleRegulatory, models.RoleQualityAdmin))
	write.POST("", h.Create)
	write.POST("/:id/versions", h.CreateVersion)
	write.POST("/:id/lock", h.AcquireLock)
	write.DELETE("/:id/lock", h.ReleaseLock)

	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDocumentRoutes(t *testing.T) {
	svc := &documentServiceMock{lockHeld: true}
	router := buildDocumentRouter(svc)

	t.Run("create success", func(t *testing.T) {
		body := bytes.NewBufferString(`{"title":"Protocol CF-101","type":"PROTOCOL","subtype":"CSP"}`)
		req, _ := http.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAuthor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"Protocol CF-101"`)
	})

	t.Run("create forbidden for reviewer", func(t *testing.T) {
		body := bytes.NewBufferString(`{"title":"Protocol CF-101","type":"PROTOCOL","subtype":"CSP"}`)
		req, _ := http.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleReviewer))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("create unauthorized without claims", func(t *testing.T) {
		body := bytes.NewBufferString(`{"title":"Protocol CF-101","type":"PROTOCOL","subtype":"CSP"}`)
		req, _ := http.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("create rejects malformed payload", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString(`{"title":`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAuthor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("get success", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/documents/doc-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleReviewer))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"doc-1"`)
	})

	t.Run("get not found", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/documents/doc-999", nil)
		req.Header.Set("X-Test-Role", string(models.RoleReviewer))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
		require.Contains(t, resp.Body.String(), `"NOT_FOUND"`)
	})

	t.Run("diff success", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/documents/doc-1/diff?base=1&compare=2", nil)
		req.Header.Set("X-Test-Role", string(models.RoleReviewer))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"new line"`)

		var envelope struct {
			Meta map[string]interface{} `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
		require.Equal(t, false, envelope.Meta["cache_hit"])
		require.Contains(t, envelope.Meta, "processing_time_ms")
	})

	t.Run("acquire lock success", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/lock", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAuthor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"lock-1"`)
	})

	t.Run("release lock no content", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, "/documents/doc-1/lock", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAuthor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNoContent, resp.Code)
	})
}

func TestDocumentDiffReportsCacheHit(t *testing.T) {
	router := buildDocumentRouter(&documentServiceMock{diffCached: true})

	req, _ := http.NewRequest(http.MethodGet, "/documents/doc-1/diff?base=1&compare=2", nil)
	req.Header.Set("X-Test-Role", string(models.RoleReviewer))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, true, envelope.Meta["cache_hit"])
}

func TestDocumentCreateVersionRequiresLock(t *testing.T) {
	router := buildDocumentRouter(&documentServiceMock{lockHeld: false})

	body := bytes.NewBufferString(`{"content":{"blocks":[]},"changeSummary":"initial"}`)
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/versions", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleAuthor))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusPreconditionFailed, resp.Code)
	require.Contains(t, resp.Body.String(), `"LOCK_REQUIRED"`)
}
