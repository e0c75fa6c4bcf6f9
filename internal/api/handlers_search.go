package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// handleSearchDocuments finds documents by title or source filename.
func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		jsonError(w, "query parameter q is required", http.StatusBadRequest)
		return
	}
	offset, limit := parsePagination(r)

	docs, err := s.orchestrator.Repo().SearchDocuments(r.Context(), query, offset, limit)
	if err != nil {
		jsonError(w, "search failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"query":     query,
		"offset":    offset,
		"limit":     limit,
		"documents": docs,
	})
}

// handleSearchContent finds content blocks whose text contains the query.
func (s *Server) handleSearchContent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		jsonError(w, "query parameter q is required", http.StatusBadRequest)
		return
	}
	offset, limit := parsePagination(r)

	blocks, err := s.orchestrator.Repo().SearchContent(r.Context(), query, offset, limit)
	if err != nil {
		jsonError(w, "search failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"query":  query,
		"offset": offset,
		"limit":  limit,
		"blocks": blocks,
	})
}

// handleBlocksByType lists every block of one type across all documents.
func (s *Server) handleBlocksByType(w http.ResponseWriter, r *http.Request) {
	t := doctree.BlockType(r.URL.Query().Get("type"))
	switch t {
	case doctree.BlockText, doctree.BlockImage, doctree.BlockTable:
	default:
		jsonError(w, "type must be one of: text, image, table", http.StatusBadRequest)
		return
	}
	offset, limit := parsePagination(r)

	blocks, err := s.orchestrator.Repo().BlocksByType(r.Context(), t, offset, limit)
	if err != nil {
		jsonError(w, "lookup failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"type":   t,
		"offset": offset,
		"limit":  limit,
		"blocks": blocks,
	})
}
