package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"archive/internal/auth"
	models "archive/internal/domain/models/archive"
	"archive/internal/httputil"
	"archive/internal/repository/memory"
	service "archive/internal/service/archive"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	svcs := service.NewServices(service.Dependencies{
		Documents: memory.NewDocumentRepository(store),
		Controls:  memory.NewControlRepository(store),
		Trees:     memory.NewTreeRepository(store),
		Latest:    memory.NewLatestRepository(store),
		Events:    memory.NewEventRepository(store),
		Jobs:      memory.NewJobRepository(store),
		TxManager: memory.NewTransactionManager(store),
		Locker:    memory.NewIdentityLocker(store),
	}, service.Options{}, logger)

	h := NewArchiveHandler(svcs.Publication, svcs.Query, svcs.Republisher, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/identities/{identity}/latest", h.GetLatest)
	mux.HandleFunc("GET /api/identities/{identity}/revisions", h.ListRevisions)
	mux.HandleFunc("GET /api/documents/{id}", h.GetDocument)
	mux.HandleFunc("GET /api/documents/{id}/tree", h.GetTree)
	mux.HandleFunc("POST /api/documents", h.Publish)
	mux.HandleFunc("PATCH /api/documents/{id}/state", h.SetState)
	mux.HandleFunc("POST /api/republish", h.Republish)
	return mux
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

type publishResponse struct {
	Document models.Document `json:"document"`
	Latest   bool            `json:"latest"`
}

func TestPublishAndResolveLatest(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/documents", map[string]any{
		"kind":  "Module",
		"title": "Intro",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created publishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Latest)
	assert.Equal(t, models.Version{Major: 1}, created.Document.Version)

	rec = do(t, router, http.MethodGet, "/api/identities/"+created.Document.Identity.String()+"/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var latest latestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, created.Document.ID, latest.DocumentID)
	assert.Equal(t, "1", latest.RenderedVersion)
	assert.Equal(t, models.StateCurrent, latest.State)
}

func TestGetLatest_Errors(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/identities/not-a-uuid/latest", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/identities/"+uuid.NewString()+"/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestPublish_Validation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing title", body: map[string]any{"kind": "Module"}},
		{name: "subcollection kind", body: map[string]any{"kind": "SubCollection", "title": "x"}},
		{name: "module with minor", body: map[string]any{"kind": "Module", "title": "x", "version": map[string]int{"major": 1, "minor": 2}}},
		{name: "unknown field", body: map[string]any{"kind": "Module", "title": "x", "colour": "red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/documents", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestPublish_DuplicateVersion(t *testing.T) {
	router := newTestRouter(t)
	identity := uuid.New()
	body := map[string]any{
		"identity": identity,
		"kind":     "Module",
		"title":    "Intro",
		"version":  map[string]int{"major": 3},
	}

	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/documents", body).Code)
	rec := do(t, router, http.MethodPost, "/api/documents", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetState(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/documents", map[string]any{"kind": "Module", "title": "Intro"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created publishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := "/api/documents/" + itoa(created.Document.ID) + "/state"

	rec = do(t, router, http.MethodPatch, path, map[string]string{"state": "Bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPatch, path, map[string]string{"state": "Error"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the only revision left the eligible states, so the identity has no latest
	rec = do(t, router, http.MethodGet, "/api/identities/"+created.Document.Identity.String()+"/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPatch, "/api/documents/999/state", map[string]string{"state": "Current"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRepublish_RequiresAdmin(t *testing.T) {
	router := newTestRouter(t)

	claims := &auth.Claims{Role: auth.RolePublisher}
	claims.Subject = "alice"
	req := httptest.NewRequest(http.MethodPost, "/api/republish", bytes.NewReader([]byte(`{"old_document_id":1,"new_document_id":2}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httputil.WithClaims(req, claims))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRepublish_Validation(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/republish", map[string]int64{"old_document_id": 1, "new_document_id": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTree_NotFound(t *testing.T) {
	router := newTestRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/documents/42/tree", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/documents/abc/tree", nil).Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
