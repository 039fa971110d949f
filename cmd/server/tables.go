package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/liamcoop/linker/lookup"
)

func (s *Server) loadTable(w http.ResponseWriter, r *http.Request) (*lookup.Table, bool) {
	id := chi.URLParam(r, "tableID")

	t, err := s.store.Tables().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			respondError(w, http.StatusNotFound, "table not found", err)
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "failed to get table", err)
		return nil, false
	}
	return t, true
}

func (s *Server) saveTable(w http.ResponseWriter, r *http.Request, t *lookup.Table) bool {
	if err := lookup.ValidateTable(*t); err != nil {
		respondError(w, http.StatusBadRequest, "invalid table", err)
		return false
	}

	if err := s.store.Tables().Update(r.Context(), t); err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			respondError(w, http.StatusNotFound, "table not found", err)
			return false
		}
		if errors.Is(err, lookup.ErrConflict) {
			respondError(w, http.StatusConflict, "table was changed by another request, retry", err)
			return false
		}
		respondError(w, http.StatusInternalServerError, "failed to update table", err)
		return false
	}

	s.invalidate(r.Context())
	return true
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.store.Tables().List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tables", err)
		return
	}

	respondJSON(w, http.StatusOK, TablesListResponse{Tables: tables})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req TableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	t := lookup.NewTable(req.Key, req.Name)
	req.apply(&t)

	if err := lookup.ValidateTable(t); err != nil {
		respondError(w, http.StatusBadRequest, "invalid table", err)
		return
	}

	if err := s.store.Tables().Add(r.Context(), &t); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create table", err)
		return
	}

	s.invalidate(r.Context())
	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTable(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTable(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTable(w, r)
	if !ok {
		return
	}

	var req TableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.apply(t)

	if !s.saveTable(w, r, t) {
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tableID")

	if err := s.store.Tables().Delete(r.Context(), id); err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			respondError(w, http.StatusNotFound, "table not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete table", err)
		return
	}

	s.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuplicateTable(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTable(w, r)
	if !ok {
		return
	}

	duplicated := lookup.DuplicateTable([]lookup.Table{*t}, t.ID)
	cp := duplicated[len(duplicated)-1]

	if err := s.store.Tables().Add(r.Context(), &cp); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to duplicate table", err)
		return
	}

	s.invalidate(r.Context())
	respondJSON(w, http.StatusCreated, cp)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTable(w, r)
	if !ok {
		return
	}

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entry := req.toEntry()
	*t = lookup.AddEntry([]lookup.Table{*t}, t.ID, entry)[0]

	if !s.saveTable(w, r, t) {
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTable(w, r)
	if !ok {
		return
	}

	entryID := chi.URLParam(r, "entryID")
	if !slices.ContainsFunc(t.Entries, func(e lookup.Entry) bool { return e.ID == entryID }) {
		respondError(w, http.StatusNotFound, "entry not found", nil)
		return
	}

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entry := req.toEntry()
	entry.ID = entryID
	*t = lookup.UpdateEntry([]lookup.Table{*t}, t.ID, entry)[0]

	if !s.saveTable(w, r, t) {
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	t, ok := s.loadTable(w, r)
	if !ok {
		return
	}

	entryID := chi.URLParam(r, "entryID")
	if !slices.ContainsFunc(t.Entries, func(e lookup.Entry) bool { return e.ID == entryID }) {
		respondError(w, http.StatusNotFound, "entry not found", nil)
		return
	}

	*t = lookup.DeleteEntry([]lookup.Table{*t}, t.ID, entryID)[0]

	if !s.saveTable(w, r, t) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
