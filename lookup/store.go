package lookup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no table has the requested ID or key
	ErrNotFound = errors.New("table not found")

	// ErrDuplicate is returned when adding a table whose ID already exists
	ErrDuplicate = errors.New("table already exists")

	// ErrConflict is returned when a table changed since it was read
	ErrConflict = errors.New("table was modified concurrently")
)

// TableStore manages table persistence and retrieval.
// List returns tables in stored order.
type TableStore interface {
	Add(ctx context.Context, t *Table) error
	Get(ctx context.Context, id string) (*Table, error)
	GetByKey(ctx context.Context, key string) (*Table, error)
	List(ctx context.Context) ([]Table, error)
	Update(ctx context.Context, t *Table) error
	Delete(ctx context.Context, id string) error
}

// InMemoryTableStore implements TableStore with an ordered slice
type InMemoryTableStore struct {
	tables []Table
	mu     sync.RWMutex
}

// NewInMemoryTableStore creates a store seeded with tables
func NewInMemoryTableStore(seed ...Table) *InMemoryTableStore {
	s := &InMemoryTableStore{}
	for _, t := range seed {
		s.tables = append(s.tables, cloneTable(t))
	}
	return s
}

func (s *InMemoryTableStore) Add(_ context.Context, t *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(t.ID) >= 0 {
		return fmt.Errorf("table with ID %s: %w", t.ID, ErrDuplicate)
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tables = append(s.tables, cloneTable(*t))
	return nil
}

func (s *InMemoryTableStore) Get(_ context.Context, id string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("table with ID %s: %w", id, ErrNotFound)
	}
	t := cloneTable(s.tables[i])
	return &t, nil
}

func (s *InMemoryTableStore) GetByKey(_ context.Context, key string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := FindTable(s.tables, key)
	if !ok {
		return nil, fmt.Errorf("table with key %s: %w", key, ErrNotFound)
	}
	t = cloneTable(t)
	return &t, nil
}

func (s *InMemoryTableStore) List(_ context.Context) ([]Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, cloneTable(t))
	}
	return out, nil
}

func (s *InMemoryTableStore) Update(_ context.Context, t *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(t.ID)
	if i < 0 {
		return fmt.Errorf("table with ID %s: %w", t.ID, ErrNotFound)
	}
	if !t.UpdatedAt.IsZero() && !t.UpdatedAt.Equal(s.tables[i].UpdatedAt) {
		return fmt.Errorf("table with ID %s: %w", t.ID, ErrConflict)
	}

	t.CreatedAt = s.tables[i].CreatedAt
	t.UpdatedAt = time.Now()
	s.tables = UpdateTable(s.tables, cloneTable(*t))
	return nil
}

func (s *InMemoryTableStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return fmt.Errorf("table with ID %s: %w", id, ErrNotFound)
	}
	s.tables = DeleteTable(s.tables, id)
	return nil
}

// Replace swaps the whole collection, as an import does
func (s *InMemoryTableStore) Replace(tables []Table) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = make([]Table, 0, len(tables))
	for _, t := range tables {
		s.tables = append(s.tables, cloneTable(t))
	}
}

func (s *InMemoryTableStore) indexOf(id string) int {
	return slices.IndexFunc(s.tables, func(t Table) bool { return t.ID == id })
}

func cloneTable(t Table) Table {
	entries := make([]Entry, 0, len(t.Entries))
	for _, e := range t.Entries {
		e.Tags = slices.Clone(e.Tags)
		if e.Tags == nil {
			e.Tags = []string{}
		}
		entries = append(entries, e)
	}
	t.Entries = entries
	return t
}
