package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/liamcoop/linker/provider"
)

// requestFormat reads ?format=, falling back to the given content type
func requestFormat(r *http.Request, contentType string) provider.Format {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "yaml", "yml":
		return provider.FormatYAML
	case "json":
		return provider.FormatJSON
	}
	if strings.Contains(contentType, "yaml") {
		return provider.FormatYAML
	}
	return provider.FormatJSON
}

// handleExport writes both stores as an import document
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.store.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read stores", err)
		return
	}

	format := requestFormat(r, r.Header.Get("Accept"))
	if format == provider.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="linker.`+string(format)+`"`)

	if err := provider.DocumentFromSnapshot(snapshot).Encode(w, format); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode document", err)
	}
}

// handleImport replaces both stores with the uploaded document
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	doc, err := provider.Decode(r.Body, requestFormat(r, r.Header.Get("Content-Type")))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document", err)
		return
	}

	err = s.store.Import(r.Context(), doc)
	s.invalidate(r.Context())
	if err != nil {
		if errors.Is(err, provider.ErrInvalidDocument) {
			respondError(w, http.StatusBadRequest, "invalid document", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to import document", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"conditions": len(doc.Shortcuts),
		"tables":     len(doc.Tables),
	})
}
