package handler

import (
	"log/slog"
	"net/http"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/httputil"

	"github.com/google/uuid"
)

// ArchiveHandler serves the read and write API of the archive
type ArchiveHandler struct {
	publication archiveSvc.PublicationService
	query       archiveSvc.QueryService
	republisher archiveSvc.Republisher
	logger      *slog.Logger
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(publication archiveSvc.PublicationService, query archiveSvc.QueryService, republisher archiveSvc.Republisher, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		publication: publication,
		query:       query,
		republisher: republisher,
		logger:      logger,
	}
}

// GetLatest resolves an identity to its latest revision
// GET /api/identities/{identity}/latest
func (h *ArchiveHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	identity, err := httputil.PathUUID(r, "identity")
	if err != nil {
		handleError(w, err)
		return
	}

	pointer, err := h.query.ResolveLatest(r.Context(), identity)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, latestResponse{
		Identity:        pointer.Identity.String(),
		DocumentID:      pointer.DocumentID,
		RenderedVersion: pointer.Version.String(),
		Kind:            pointer.Kind,
		State:           pointer.State,
		Title:           pointer.Title,
	})
}

type latestResponse struct {
	Identity        string       `json:"identity"`
	DocumentID      int64        `json:"document_id"`
	RenderedVersion string       `json:"rendered_version"`
	Kind            models.Kind  `json:"kind"`
	State           models.State `json:"state"`
	Title           string       `json:"title"`
}

// ListRevisions lists every revision of an identity, oldest first
// GET /api/identities/{identity}/revisions
func (h *ArchiveHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	identity, err := httputil.PathUUID(r, "identity")
	if err != nil {
		handleError(w, err)
		return
	}

	docs, err := h.query.ListRevisions(r.Context(), identity)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, docs)
}

// GetDocument returns one revision
// GET /api/documents/{id}
func (h *ArchiveHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}

	doc, err := h.query.GetDocument(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, doc)
}

// GetTree renders the table of contents of a collection revision
// GET /api/documents/{id}/tree
func (h *ArchiveHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}

	tree, err := h.query.RenderTree(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, tree)
}

// Publish creates a new revision
// POST /api/documents
// Returns 201 with the new revision, 409 when the version already exists
func (h *ArchiveHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req archiveSvc.PublishRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	if user := httputil.GetUserID(r); user != "" {
		req.Submitter = user
	}

	result, err := h.publication.Publish(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("document published",
		"document_id", result.Document.ID,
		"ident", result.Document.Ident(),
		"latest", result.Latest,
		"submitter", req.Submitter,
	)
	httputil.RespondJSON(w, http.StatusCreated, result)
}

type setStateRequest struct {
	State models.State `json:"state"`
}

// SetState changes the state of a revision
// PATCH /api/documents/{id}/state
func (h *ArchiveHandler) SetState(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		handleError(w, err)
		return
	}

	var req setStateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	state, err := models.ParseState(string(req.State))
	if err != nil {
		handleError(w, err)
		return
	}

	result, err := h.publication.SetState(r.Context(), id, state)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// Republish clones the collections containing a replaced revision
// POST /api/republish
// Partial failures return 207 with the identity map of the roots that succeeded
func (h *ArchiveHandler) Republish(w http.ResponseWriter, r *http.Request) {
	if claims := httputil.GetClaims(r); claims != nil && !claims.CanRepublish() {
		handleError(w, domain.ErrForbidden)
		return
	}

	var req archiveSvc.RepublishRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	if user := httputil.GetUserID(r); user != "" && req.Submitter == "" {
		req.Submitter = user
	}

	result, err := h.republisher.Republish(r.Context(), &req)
	if result == nil {
		handleError(w, err)
		return
	}

	body := republishResponse{
		Roots:       result.Roots,
		Skipped:     result.Skipped,
		IdentityMap: result.IdentityMap,
		Failures:    make(map[string]string, len(result.Failures)),
	}
	for identity, ferr := range result.Failures {
		body.Failures[identity.String()] = ferr.Error()
	}

	status := http.StatusOK
	if err != nil {
		h.logger.Warn("republish finished with failures", "failed", len(result.Failures), "error", err)
		status = http.StatusMultiStatus
	}
	httputil.RespondJSON(w, status, body)
}

type republishResponse struct {
	Roots       []*models.Document `json:"roots"`
	Skipped     []uuid.UUID        `json:"skipped,omitempty"`
	IdentityMap models.IdentityMap `json:"identity_map"`
	Failures    map[string]string  `json:"failures,omitempty"`
}
