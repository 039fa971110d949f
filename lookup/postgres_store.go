package lookup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const tableColumns = `id, key, name, created_at, updated_at`

// PostgresTableStore implements TableStore backed by PostgreSQL. Entry
// tags are stored as a text array; entry order is kept in a position column.
type PostgresTableStore struct {
	db *sql.DB
}

// NewPostgresTableStore creates a new PostgreSQL-backed TableStore
func NewPostgresTableStore(db *sql.DB) *PostgresTableStore {
	return &PostgresTableStore{db: db}
}

func (s *PostgresTableStore) Add(ctx context.Context, t *Table) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM lookup_tables WHERE id = $1)
	`, t.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check table existence: %w", err)
	}
	if exists {
		return fmt.Errorf("table with ID %s: %w", t.ID, ErrDuplicate)
	}

	now := time.Now().Truncate(time.Microsecond)
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lookup_tables (id, key, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Key, t.Name, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert table: %w", err)
	}

	if err := insertEntries(ctx, tx, t.ID, t.Entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table: %w", err)
	}
	return nil
}

func (s *PostgresTableStore) Get(ctx context.Context, id string) (*Table, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tableColumns+`
		FROM lookup_tables
		WHERE id = $1
	`, id)
	return s.scanOne(ctx, row, "ID", id)
}

func (s *PostgresTableStore) GetByKey(ctx context.Context, key string) (*Table, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tableColumns+`
		FROM lookup_tables
		WHERE key = $1
		ORDER BY seq ASC
		LIMIT 1
	`, key)
	return s.scanOne(ctx, row, "key", key)
}

func (s *PostgresTableStore) scanOne(ctx context.Context, row *sql.Row, field, value string) (*Table, error) {
	var t Table
	err := row.Scan(&t.ID, &t.Key, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table with %s %s: %w", field, value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, tags, url
		FROM lookup_entries
		WHERE table_id = $1
		ORDER BY position ASC
	`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	t.Entries = []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Description, pq.Array(&e.Tags), &e.URL); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		t.Entries = append(t.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return &t, nil
}

func (s *PostgresTableStore) List(ctx context.Context) ([]Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tableColumns+`
		FROM lookup_tables
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []Table{}
	index := make(map[string]int)
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.ID, &t.Key, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		t.Entries = []Entry{}
		index[t.ID] = len(tables)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	entryRows, err := s.db.QueryContext(ctx, `
		SELECT table_id, id, description, tags, url
		FROM lookup_entries
		ORDER BY table_id ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var tableID string
		var e Entry
		if err := entryRows.Scan(&tableID, &e.ID, &e.Description, pq.Array(&e.Tags), &e.URL); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if i, ok := index[tableID]; ok {
			tables[i].Entries = append(tables[i].Entries, e)
		}
	}
	if err := entryRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return tables, nil
}

func (s *PostgresTableStore) Update(ctx context.Context, t *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT updated_at FROM lookup_tables WHERE id = $1 FOR UPDATE
	`, t.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("table with ID %s: %w", t.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock table: %w", err)
	}
	if !t.UpdatedAt.IsZero() && !t.UpdatedAt.Equal(stored) {
		return fmt.Errorf("table with ID %s: %w", t.ID, ErrConflict)
	}

	t.UpdatedAt = time.Now().Truncate(time.Microsecond)

	_, err = tx.ExecContext(ctx, `
		UPDATE lookup_tables
		SET key = $1, name = $2, updated_at = $3
		WHERE id = $4
	`, t.Key, t.Name, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM lookup_entries WHERE table_id = $1`, t.ID); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	if err := insertEntries(ctx, tx, t.ID, t.Entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table: %w", err)
	}
	return nil
}

func (s *PostgresTableStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM lookup_tables
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("table with ID %s: %w", id, ErrNotFound)
	}

	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, tableID string, entries []Entry) error {
	for i, e := range entries {
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lookup_entries (id, table_id, position, description, tags, url)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.ID, tableID, i, e.Description, pq.Array(tags), e.URL)
		if err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}
	return nil
}
