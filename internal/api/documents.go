package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/semdoc/internal/documents"
)

// BulkRequest is the body of POST /api/documents/bulk.
type BulkRequest struct {
	Documents []documents.NewDocument `json:"documents"`
}

func handleAddDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req documents.NewDocument
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if err := checkNewDocument(req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		id, err := deps.Documents.Add(r.Context(), req)
		if err != nil {
			writeError(w, deps.Logger, "add document", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"id":      id,
			"message": "document created",
		})
	}
}

func handleAddBulk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkRequest
		if !decodeBody(w, r, maxBulkBodySize, &req) {
			return
		}
		if len(req.Documents) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "documents must not be empty")
			return
		}
		for i, d := range req.Documents {
			if err := checkNewDocument(d); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "documents[%d]: %v", i, err)
				return
			}
		}

		ids, err := deps.Documents.AddBulk(r.Context(), req.Documents)
		if err != nil {
			writeError(w, deps.Logger, "add documents", err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"ids":     ids,
			"count":   len(ids),
			"message": fmt.Sprintf("%d documents created", len(ids)),
		})
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(r, "limit", 100)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be an integer")
			return
		}
		offset, ok := queryInt(r, "offset", 0)
		if !ok || offset < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "offset must be a non-negative integer")
			return
		}
		if err := checkLimit(limit, MaxListLimit); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		docs, err := deps.Documents.List(r.Context(), limit, offset)
		if err != nil {
			writeError(w, deps.Logger, "list documents", err)
			return
		}
		if docs == nil {
			docs = []documents.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		doc, err := deps.Documents.Get(r.Context(), id)
		if err != nil {
			writeError(w, deps.Logger, "get document", err)
			return
		}
		if doc == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "document %s not found", id)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleUpdateDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var patch documents.Patch
		if !decodeBody(w, r, maxRequestBodySize, &patch) {
			return
		}
		if err := checkPatch(patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		ok, err := deps.Documents.Update(r.Context(), id, patch)
		if err != nil {
			writeError(w, deps.Logger, "update document", err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "document %s not found", id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "message": "document updated"})
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ok, err := deps.Documents.Delete(r.Context(), id)
		if err != nil {
			writeError(w, deps.Logger, "delete document", err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "document %s not found", id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "message": "document deleted"})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Stats.CollectionStats(r.Context())
		if err != nil {
			writeError(w, deps.Logger, "collection stats", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
