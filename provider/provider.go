// Package provider supplies the conditions and tables a resolution runs
// against. A Provider is read once per resolution; the resolver itself never
// touches storage.
package provider

import (
	"context"
	"fmt"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/rules"
)

// Snapshot is a materialised view of both collections, in stored order.
// Snapshots are shared between concurrent resolutions and must be treated
// as read-only.
type Snapshot struct {
	Conditions []rules.Condition `json:"conditions"`
	Tables     []lookup.Table    `json:"tables"`
}

// Provider loads the current snapshot
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// StoreProvider reads a snapshot from a condition store and a table store
type StoreProvider struct {
	conditions rules.ConditionStore
	tables     lookup.TableStore
}

// NewStoreProvider creates a Provider over the given stores
func NewStoreProvider(conditions rules.ConditionStore, tables lookup.TableStore) *StoreProvider {
	return &StoreProvider{conditions: conditions, tables: tables}
}

func (p *StoreProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	conditions, err := p.conditions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}

	tables, err := p.tables.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	return &Snapshot{Conditions: conditions, Tables: tables}, nil
}

// Conditions returns the underlying condition store
func (p *StoreProvider) Conditions() rules.ConditionStore {
	return p.conditions
}

// Tables returns the underlying table store
func (p *StoreProvider) Tables() lookup.TableStore {
	return p.tables
}

// Static serves a fixed snapshot
type Static struct {
	snapshot *Snapshot
}

// NewStatic creates a Provider that always returns s
func NewStatic(s *Snapshot) *Static {
	return &Static{snapshot: s}
}

func (p *Static) Snapshot(context.Context) (*Snapshot, error) {
	return p.snapshot, nil
}
