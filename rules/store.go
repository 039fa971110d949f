package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no condition has the requested ID or key
	ErrNotFound = errors.New("condition not found")

	// ErrDuplicate is returned when adding a condition whose ID already exists
	ErrDuplicate = errors.New("condition already exists")

	// ErrConflict is returned when a condition changed since it was read
	ErrConflict = errors.New("condition was modified concurrently")
)

// ConditionStore manages condition persistence and retrieval.
// List returns conditions in stored order; that order decides which
// condition wins when two share a key.
type ConditionStore interface {
	// Add a new condition
	Add(ctx context.Context, c *Condition) error

	// Get a condition by ID
	Get(ctx context.Context, id string) (*Condition, error)

	// GetByKey returns the first condition with the given key
	GetByKey(ctx context.Context, key string) (*Condition, error)

	// List all conditions
	List(ctx context.Context) ([]Condition, error)

	// Update an existing condition, including its rule order.
	// A non-zero UpdatedAt must match the stored one, otherwise ErrConflict.
	Update(ctx context.Context, c *Condition) error

	// Delete a condition
	Delete(ctx context.Context, id string) error
}

// InMemoryConditionStore implements ConditionStore with an ordered slice
type InMemoryConditionStore struct {
	conditions []Condition
	mu         sync.RWMutex
}

// NewInMemoryConditionStore creates a store seeded with conditions
func NewInMemoryConditionStore(seed ...Condition) *InMemoryConditionStore {
	s := &InMemoryConditionStore{}
	for _, c := range seed {
		s.conditions = append(s.conditions, cloneCondition(c))
	}
	return s
}

// Add appends a condition, stamping CreatedAt and UpdatedAt
func (s *InMemoryConditionStore) Add(_ context.Context, c *Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(c.ID) >= 0 {
		return fmt.Errorf("condition with ID %s: %w", c.ID, ErrDuplicate)
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.conditions = append(s.conditions, cloneCondition(*c))
	return nil
}

// Get retrieves a condition by ID
func (s *InMemoryConditionStore) Get(_ context.Context, id string) (*Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("condition with ID %s: %w", id, ErrNotFound)
	}
	c := cloneCondition(s.conditions[i])
	return &c, nil
}

// GetByKey retrieves the first condition with key
func (s *InMemoryConditionStore) GetByKey(_ context.Context, key string) (*Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := FindCondition(s.conditions, key)
	if !ok {
		return nil, fmt.Errorf("condition with key %s: %w", key, ErrNotFound)
	}
	c = cloneCondition(c)
	return &c, nil
}

// List returns a copy of all conditions in insertion order
func (s *InMemoryConditionStore) List(_ context.Context) ([]Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Condition, 0, len(s.conditions))
	for _, c := range s.conditions {
		out = append(out, cloneCondition(c))
	}
	return out, nil
}

// Update replaces a condition in place, preserving CreatedAt
func (s *InMemoryConditionStore) Update(_ context.Context, c *Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(c.ID)
	if i < 0 {
		return fmt.Errorf("condition with ID %s: %w", c.ID, ErrNotFound)
	}
	if !c.UpdatedAt.IsZero() && !c.UpdatedAt.Equal(s.conditions[i].UpdatedAt) {
		return fmt.Errorf("condition with ID %s: %w", c.ID, ErrConflict)
	}

	c.CreatedAt = s.conditions[i].CreatedAt
	c.UpdatedAt = time.Now()
	s.conditions = UpdateCondition(s.conditions, cloneCondition(*c))
	return nil
}

// Delete removes a condition
func (s *InMemoryConditionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return fmt.Errorf("condition with ID %s: %w", id, ErrNotFound)
	}
	s.conditions = DeleteCondition(s.conditions, id)
	return nil
}

// Replace swaps the whole collection, as an import does
func (s *InMemoryConditionStore) Replace(conditions []Condition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conditions = make([]Condition, 0, len(conditions))
	for _, c := range conditions {
		s.conditions = append(s.conditions, cloneCondition(c))
	}
}

func (s *InMemoryConditionStore) indexOf(id string) int {
	return slices.IndexFunc(s.conditions, func(c Condition) bool { return c.ID == id })
}

func cloneCondition(c Condition) Condition {
	c.Rules = slices.Clone(c.Rules)
	if c.Rules == nil {
		c.Rules = []Rule{}
	}
	return c
}
