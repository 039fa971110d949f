package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/liamcoop/linker/rules"
)

// loadCondition fetches the condition named in the URL, writing the error
// response itself when it cannot
func (s *Server) loadCondition(w http.ResponseWriter, r *http.Request) (*rules.Condition, bool) {
	id := chi.URLParam(r, "conditionID")

	c, err := s.store.Conditions().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			respondError(w, http.StatusNotFound, "condition not found", err)
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "failed to get condition", err)
		return nil, false
	}
	return c, true
}

// saveCondition validates and stores an existing condition
func (s *Server) saveCondition(w http.ResponseWriter, r *http.Request, c *rules.Condition) bool {
	if err := rules.ValidateCondition(*c); err != nil {
		respondError(w, http.StatusBadRequest, "invalid condition", err)
		return false
	}

	if err := s.store.Conditions().Update(r.Context(), c); err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			respondError(w, http.StatusNotFound, "condition not found", err)
			return false
		}
		if errors.Is(err, rules.ErrConflict) {
			respondError(w, http.StatusConflict, "condition was changed by another request, retry", err)
			return false
		}
		respondError(w, http.StatusInternalServerError, "failed to update condition", err)
		return false
	}

	s.invalidate(r.Context())
	return true
}

func (s *Server) handleListConditions(w http.ResponseWriter, r *http.Request) {
	conditions, err := s.store.Conditions().List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list conditions", err)
		return
	}

	respondJSON(w, http.StatusOK, ConditionsListResponse{Conditions: conditions})
}

func (s *Server) handleCreateCondition(w http.ResponseWriter, r *http.Request) {
	var req ConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	c := rules.NewCondition(req.Key, req.Name)
	req.apply(&c)

	if err := rules.ValidateCondition(c); err != nil {
		respondError(w, http.StatusBadRequest, "invalid condition", err)
		return
	}

	if err := s.store.Conditions().Add(r.Context(), &c); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create condition", err)
		return
	}

	s.invalidate(r.Context())
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCondition(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCondition(w, r)
	if !ok {
		return
	}

	var req ConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.apply(c)

	if !s.saveCondition(w, r, c) {
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCondition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conditionID")

	if err := s.store.Conditions().Delete(r.Context(), id); err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			respondError(w, http.StatusNotFound, "condition not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete condition", err)
		return
	}

	s.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleDuplicateCondition stores a copy of the condition under "<key>-copy"
func (s *Server) handleDuplicateCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCondition(w, r)
	if !ok {
		return
	}

	duplicated := rules.DuplicateCondition([]rules.Condition{*c}, c.ID)
	cp := duplicated[len(duplicated)-1]

	if err := s.store.Conditions().Add(r.Context(), &cp); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to duplicate condition", err)
		return
	}

	s.invalidate(r.Context())
	respondJSON(w, http.StatusCreated, cp)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCondition(w, r)
	if !ok {
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule()
	*c = rules.AddRule([]rules.Condition{*c}, c.ID, rule)[0]

	if !s.saveCondition(w, r, c) {
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCondition(w, r)
	if !ok {
		return
	}

	ruleID := chi.URLParam(r, "ruleID")
	if !slices.ContainsFunc(c.Rules, func(rule rules.Rule) bool { return rule.ID == ruleID }) {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule()
	rule.ID = ruleID
	*c = rules.UpdateRule([]rules.Condition{*c}, c.ID, rule)[0]

	if !s.saveCondition(w, r, c) {
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCondition(w, r)
	if !ok {
		return
	}

	ruleID := chi.URLParam(r, "ruleID")
	if !slices.ContainsFunc(c.Rules, func(rule rules.Rule) bool { return rule.ID == ruleID }) {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}

	*c = rules.DeleteRule([]rules.Condition{*c}, c.ID, ruleID)[0]

	if !s.saveCondition(w, r, c) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReorderRules sets the evaluation order of a condition's rules.
// The request must name every existing rule exactly once.
func (s *Server) handleReorderRules(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCondition(w, r)
	if !ok {
		return
	}

	var req ReorderRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	reordered, err := orderRules(c.Rules, req.RuleIDs)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule order", err)
		return
	}
	*c = rules.ReorderRules([]rules.Condition{*c}, c.ID, reordered)[0]

	if !s.saveCondition(w, r, c) {
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// handleTestRules runs a condition's rules against a sample input and
// reports each rule's outcome, including what skipped rules would produce
func (s *Server) handleTestRules(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCondition(w, r)
	if !ok {
		return
	}

	var req TestRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	input := c.Normalize(req.Input)
	results := rules.EvaluateRules(c.Rules, input, req.Params)

	respondJSON(w, http.StatusOK, TestRulesResponse{
		Input:      input,
		FirstMatch: rules.FirstMatch(results),
		Results:    results,
	})
}

func orderRules(current []rules.Rule, ids []string) ([]rules.Rule, error) {
	if len(ids) != len(current) {
		return nil, fmt.Errorf("expected %d rule IDs, got %d", len(current), len(ids))
	}

	byID := make(map[string]rules.Rule, len(current))
	for _, rule := range current {
		byID[rule.ID] = rule
	}

	out := make([]rules.Rule, 0, len(ids))
	for _, id := range ids {
		rule, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown or repeated rule ID %q", id)
		}
		delete(byID, id)
		out = append(out, rule)
	}
	return out, nil
}
