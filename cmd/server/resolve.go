package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/query"
	"github.com/liamcoop/linker/resolver"
	"github.com/liamcoop/linker/rules"
)

const usage = "go <key> <input> [--name=value] | find <table> <tag> [tag...] | go <key> ?"

// queryParams collects every URL parameter except q, first value wins
func queryParams(r *http.Request) map[string]string {
	values := r.URL.Query()
	params := make(map[string]string, len(values))
	for k, v := range values {
		if k == "q" || len(v) == 0 {
			continue
		}
		params[k] = v[0]
	}
	return params
}

// handleResolve resolves ?q= and acts on the result
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	eval, err := s.resolver.Resolve(r.Context(), q, s.requestOrigin(r), queryParams(r))
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "failed to resolve query", err)
		return
	}

	switch res := eval.Result.(type) {
	case resolver.Redirect:
		http.Redirect(w, r, res.URL, http.StatusFound)
	case resolver.Navigate:
		http.Redirect(w, r, res.To, http.StatusFound)
	case resolver.Picker:
		respondJSON(w, http.StatusMultipleChoices, newPickerResponse(res))
	case resolver.Failure:
		respondJSON(w, http.StatusLoopDetected, eval)
	case resolver.None:
		respondJSON(w, http.StatusOK, HomeResponse{
			Query:   q,
			Modules: []string{resolver.ModuleGo, resolver.ModuleFind},
			Usage:   usage,
		})
	}
}

// Evaluation handler, returning the full trace
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	origin := req.Origin
	if origin == "" {
		origin = s.requestOrigin(r)
	}

	eval, err := s.resolver.Resolve(r.Context(), req.Query, origin, req.Params)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "failed to resolve query", err)
		return
	}

	respondJSON(w, http.StatusOK, eval)
}

// handleConditionView serves /go/, listing conditions or showing ?key=
func (s *Server) handleConditionView(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.handleListConditions(w, r)
		return
	}

	c, err := s.store.Conditions().GetByKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			respondError(w, http.StatusNotFound, "condition not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get condition", err)
		return
	}

	respondJSON(w, http.StatusOK, ConditionView{
		Condition:  *c,
		BrowserURL: query.BuildBrowserURL(s.requestOrigin(r), c.Key),
	})
}

// handleTableView serves /find/, listing tables or showing ?key=
func (s *Server) handleTableView(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.handleListTables(w, r)
		return
	}

	t, err := s.store.Tables().GetByKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			respondError(w, http.StatusNotFound, "table not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get table", err)
		return
	}

	respondJSON(w, http.StatusOK, TableView{
		Table:     *t,
		Tags:      lookup.AllTags(*t),
		LookupURL: query.BuildLookupURL(s.requestOrigin(r), t.Key),
	})
}
