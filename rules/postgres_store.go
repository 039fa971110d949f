package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const conditionColumns = `id, key, name, trim_input, lowercase_input, created_at, updated_at`

// PostgresConditionStore implements ConditionStore backed by PostgreSQL.
// Rules live in their own table with an explicit position column so the
// evaluation order survives a round trip.
type PostgresConditionStore struct {
	db *sql.DB
}

// NewPostgresConditionStore creates a new PostgreSQL-backed ConditionStore
func NewPostgresConditionStore(db *sql.DB) *PostgresConditionStore {
	return &PostgresConditionStore{db: db}
}

// Add inserts a condition and its rules in one transaction
func (s *PostgresConditionStore) Add(ctx context.Context, c *Condition) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM conditions WHERE id = $1)
	`, c.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check condition existence: %w", err)
	}
	if exists {
		return fmt.Errorf("condition with ID %s: %w", c.ID, ErrDuplicate)
	}

	now := time.Now().Truncate(time.Microsecond)
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conditions (id, key, name, trim_input, lowercase_input, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Key, c.Name, c.TrimInput, c.LowercaseInput, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert condition: %w", err)
	}

	if err := insertRules(ctx, tx, c.ID, c.Rules); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit condition: %w", err)
	}
	return nil
}

// Get retrieves a condition by ID
func (s *PostgresConditionStore) Get(ctx context.Context, id string) (*Condition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conditionColumns+`
		FROM conditions
		WHERE id = $1
	`, id)
	return s.scanOne(ctx, row, "ID", id)
}

// GetByKey retrieves the earliest created condition with key
func (s *PostgresConditionStore) GetByKey(ctx context.Context, key string) (*Condition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conditionColumns+`
		FROM conditions
		WHERE key = $1
		ORDER BY seq ASC
		LIMIT 1
	`, key)
	return s.scanOne(ctx, row, "key", key)
}

func (s *PostgresConditionStore) scanOne(ctx context.Context, row *sql.Row, field, value string) (*Condition, error) {
	var c Condition
	err := row.Scan(&c.ID, &c.Key, &c.Name, &c.TrimInput, &c.LowercaseInput, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("condition with %s %s: %w", field, value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get condition: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, pattern_type, pattern, url
		FROM condition_rules
		WHERE condition_id = $1
		ORDER BY position ASC
	`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	c.Rules = []Rule{}
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Label, &r.PatternType, &r.Pattern, &r.URL); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		c.Rules = append(c.Rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return &c, nil
}

// List returns every condition with its rules, oldest first
func (s *PostgresConditionStore) List(ctx context.Context) ([]Condition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conditionColumns+`
		FROM conditions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	defer rows.Close()

	conditions := []Condition{}
	index := make(map[string]int)
	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.Key, &c.Name, &c.TrimInput, &c.LowercaseInput, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		c.Rules = []Rule{}
		index[c.ID] = len(conditions)
		conditions = append(conditions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conditions: %w", err)
	}

	ruleRows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, id, label, pattern_type, pattern, url
		FROM condition_rules
		ORDER BY condition_id ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer ruleRows.Close()

	for ruleRows.Next() {
		var conditionID string
		var r Rule
		if err := ruleRows.Scan(&conditionID, &r.ID, &r.Label, &r.PatternType, &r.Pattern, &r.URL); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if i, ok := index[conditionID]; ok {
			conditions[i].Rules = append(conditions[i].Rules, r)
		}
	}
	if err := ruleRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return conditions, nil
}

// Update modifies a condition and rewrites its rules in their new order
func (s *PostgresConditionStore) Update(ctx context.Context, c *Condition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT updated_at FROM conditions WHERE id = $1 FOR UPDATE
	`, c.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("condition with ID %s: %w", c.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock condition: %w", err)
	}
	if !c.UpdatedAt.IsZero() && !c.UpdatedAt.Equal(stored) {
		return fmt.Errorf("condition with ID %s: %w", c.ID, ErrConflict)
	}

	c.UpdatedAt = time.Now().Truncate(time.Microsecond)

	_, err = tx.ExecContext(ctx, `
		UPDATE conditions
		SET key = $1, name = $2, trim_input = $3, lowercase_input = $4, updated_at = $5
		WHERE id = $6
	`, c.Key, c.Name, c.TrimInput, c.LowercaseInput, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update condition: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM condition_rules WHERE condition_id = $1`, c.ID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	if err := insertRules(ctx, tx, c.ID, c.Rules); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit condition: %w", err)
	}
	return nil
}

// Delete removes a condition; its rules cascade
func (s *PostgresConditionStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM conditions
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete condition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("condition with ID %s: %w", id, ErrNotFound)
	}

	return nil
}

func insertRules(ctx context.Context, tx *sql.Tx, conditionID string, rules []Rule) error {
	for i, r := range rules {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO condition_rules (id, condition_id, position, label, pattern_type, pattern, url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.ID, conditionID, i, r.Label, string(r.PatternType), r.Pattern, r.URL)
		if err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", r.ID, err)
		}
	}
	return nil
}
