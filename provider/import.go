package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/rules"
)

// Import replaces the contents of both stores with the document.
// The document is validated before anything is removed. If a store write
// fails part way, the previous contents are put back.
func (p *StoreProvider) Import(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	previous, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}

	if err := p.replace(ctx, doc.Shortcuts, doc.Tables); err != nil {
		if restoreErr := p.replace(ctx, previous.Conditions, previous.Tables); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("failed to restore previous data: %w", restoreErr))
		}
		return err
	}

	return nil
}

// replace removes everything from both stores, then adds conditions and
// tables in order
func (p *StoreProvider) replace(ctx context.Context, conditions []rules.Condition, tables []lookup.Table) error {
	stored, err := p.conditions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conditions: %w", err)
	}
	for _, c := range stored {
		if err := p.conditions.Delete(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to remove condition %s: %w", c.Key, err)
		}
	}

	storedTables, err := p.tables.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	for _, t := range storedTables {
		if err := p.tables.Delete(ctx, t.ID); err != nil {
			return fmt.Errorf("failed to remove table %s: %w", t.Key, err)
		}
	}

	for i := range conditions {
		c := conditions[i]
		if err := p.conditions.Add(ctx, &c); err != nil {
			return fmt.Errorf("failed to import condition %s: %w", c.Key, err)
		}
	}
	for i := range tables {
		t := tables[i]
		if err := p.tables.Add(ctx, &t); err != nil {
			return fmt.Errorf("failed to import table %s: %w", t.Key, err)
		}
	}

	return nil
}
