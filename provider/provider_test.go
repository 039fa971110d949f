package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/rules"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Conditions: []rules.Condition{
			{ID: "c1", Key: "mr", Rules: []rules.Rule{
				{ID: "r1", PatternType: rules.PatternNumber, Pattern: `^\d+$`, URL: "https://x.test/mr/%s"},
			}},
		},
		Tables: []lookup.Table{
			{ID: "t1", Key: "docs", Entries: []lookup.Entry{
				{ID: "e1", Tags: []string{"react"}, URL: "https://react.test"},
			}},
		},
	}
}

// countingProvider counts loads and can be told to fail
type countingProvider struct {
	snapshot *Snapshot
	err      error
	loads    int
}

func (p *countingProvider) Snapshot(context.Context) (*Snapshot, error) {
	p.loads++
	return p.snapshot, p.err
}

// failingCache fails every operation
type failingCache struct{}

func (failingCache) Get(context.Context) (*Snapshot, error) { return nil, errors.New("cache down") }
func (failingCache) Set(context.Context, *Snapshot) error   { return errors.New("cache down") }
func (failingCache) Invalidate(context.Context) error       { return errors.New("cache down") }

func TestStoreProviderSnapshot(t *testing.T) {
	ctx := context.Background()
	s := sampleSnapshot()

	p := NewStoreProvider(
		rules.NewInMemoryConditionStore(s.Conditions...),
		lookup.NewInMemoryTableStore(s.Tables...),
	)

	got, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].Key != "mr" {
		t.Errorf("Conditions = %+v", got.Conditions)
	}
	if len(got.Tables) != 1 || got.Tables[0].Key != "docs" {
		t.Errorf("Tables = %+v", got.Tables)
	}
}

func TestInMemorySnapshotCache(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemorySnapshotCache(DefaultCacheConfig())

	if got, _ := cache.Get(ctx); got != nil {
		t.Fatal("empty cache should miss")
	}

	s := sampleSnapshot()
	_ = cache.Set(ctx, s)
	if got, _ := cache.Get(ctx); got != s {
		t.Error("cache should return the stored snapshot")
	}

	_ = cache.Invalidate(ctx)
	if got, _ := cache.Get(ctx); got != nil {
		t.Error("invalidated cache should miss")
	}
}

func TestInMemorySnapshotCacheTTL(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemorySnapshotCache(CacheConfig{TTL: 20 * time.Millisecond})

	_ = cache.Set(ctx, sampleSnapshot())
	if got, _ := cache.Get(ctx); got == nil {
		t.Fatal("fresh entry should hit")
	}

	time.Sleep(40 * time.Millisecond)
	if got, _ := cache.Get(ctx); got != nil {
		t.Error("expired entry should miss")
	}
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	source := &countingProvider{snapshot: sampleSnapshot()}
	p := NewCachedProvider(source, NewInMemorySnapshotCache(DefaultCacheConfig()), "memory")

	for i := 0; i < 3; i++ {
		if _, err := p.Snapshot(ctx); err != nil {
			t.Fatalf("Snapshot() failed: %v", err)
		}
	}
	if source.loads != 1 {
		t.Errorf("source loaded %d times, want 1", source.loads)
	}

	p.Invalidate(ctx)
	if _, err := p.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if source.loads != 2 {
		t.Errorf("source loaded %d times after invalidation, want 2", source.loads)
	}
}

// blockingProvider returns its current snapshot, then waits for release
// before handing it back
type blockingProvider struct {
	mu       sync.Mutex
	snapshot *Snapshot
	loaded   chan struct{}
	release  chan struct{}
}

func (p *blockingProvider) set(s *Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = s
}

func (p *blockingProvider) Snapshot(context.Context) (*Snapshot, error) {
	p.mu.Lock()
	s := p.snapshot
	p.mu.Unlock()

	if loaded := p.loaded; loaded != nil {
		p.loaded = nil
		close(loaded)
		<-p.release
	}
	return s, nil
}

// TestCachedProviderDropsSnapshotLoadedBeforeInvalidate verifies a slow
// load cannot reinstall data that a concurrent write replaced
func TestCachedProviderDropsSnapshotLoadedBeforeInvalidate(t *testing.T) {
	ctx := context.Background()
	oldSnapshot := &Snapshot{Conditions: []rules.Condition{{ID: "c", Key: "old"}}}
	newSnapshot := &Snapshot{Conditions: []rules.Condition{{ID: "c", Key: "new"}}}

	source := &blockingProvider{
		snapshot: oldSnapshot,
		loaded:   make(chan struct{}),
		release:  make(chan struct{}),
	}
	loaded := source.loaded
	p := NewCachedProvider(source, NewInMemorySnapshotCache(DefaultCacheConfig()), "memory")

	done := make(chan *Snapshot)
	go func() {
		s, _ := p.Snapshot(ctx)
		done <- s
	}()

	<-loaded
	source.set(newSnapshot)
	p.Invalidate(ctx)
	close(source.release)

	if got := <-done; got != oldSnapshot {
		t.Fatalf("in-flight load returned %+v", got)
	}

	got, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if got.Conditions[0].Key != "new" {
		t.Errorf("served %q after invalidation, want new", got.Conditions[0].Key)
	}
}

func TestCachedProviderFallsBackOnCacheFailure(t *testing.T) {
	ctx := context.Background()
	source := &countingProvider{snapshot: sampleSnapshot()}
	p := NewCachedProvider(source, failingCache{}, "broken")

	got, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if got != source.snapshot {
		t.Error("expected the source snapshot when the cache is down")
	}
}

func TestCachedProviderPropagatesSourceError(t *testing.T) {
	source := &countingProvider{err: errors.New("db down")}
	p := NewCachedProvider(source, NewInMemorySnapshotCache(DefaultCacheConfig()), "memory")

	if _, err := p.Snapshot(context.Background()); err == nil {
		t.Error("expected source error")
	}
}

func TestStoreProviderImport(t *testing.T) {
	ctx := context.Background()
	p := NewStoreProvider(
		rules.NewInMemoryConditionStore(rules.Condition{ID: "old", Key: "old"}),
		lookup.NewInMemoryTableStore(lookup.Table{ID: "old", Key: "old"}),
	)

	if err := p.Import(ctx, DocumentFromSnapshot(sampleSnapshot())); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	got, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].Key != "mr" {
		t.Errorf("Conditions after import = %+v", got.Conditions)
	}
	if len(got.Tables) != 1 || got.Tables[0].Key != "docs" {
		t.Errorf("Tables after import = %+v", got.Tables)
	}
}

func TestStoreProviderImportRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	conditions := rules.NewInMemoryConditionStore(rules.Condition{ID: "keep", Key: "keep"})
	p := NewStoreProvider(conditions, lookup.NewInMemoryTableStore())

	err := p.Import(ctx, &Document{Shortcuts: []rules.Condition{{ID: "x", Key: ""}}})
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("Import() = %v, want ErrInvalidDocument", err)
	}

	if _, err := conditions.GetByKey(ctx, "keep"); err != nil {
		t.Error("invalid import must leave existing data alone")
	}
}

func TestStoreProviderImportRejectsMissingAndDuplicateIDs(t *testing.T) {
	testCases := []struct {
		name string
		doc  *Document
	}{
		{"missing condition IDs", &Document{Shortcuts: []rules.Condition{{Key: "a"}, {Key: "b"}}}},
		{"duplicate condition IDs", &Document{Shortcuts: []rules.Condition{{ID: "x", Key: "a"}, {ID: "x", Key: "b"}}}},
		{"duplicate rule IDs", &Document{Shortcuts: []rules.Condition{{ID: "x", Key: "a", Rules: []rules.Rule{
			{ID: "r", PatternType: rules.PatternString, Pattern: `^.*$`},
			{ID: "r", PatternType: rules.PatternString, Pattern: `^.*$`},
		}}}}},
		{"missing entry ID", &Document{Tables: []lookup.Table{{ID: "t", Key: "docs", Entries: []lookup.Entry{
			{URL: "https://x.test"},
		}}}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			conditions := rules.NewInMemoryConditionStore(rules.Condition{ID: "keep", Key: "keep"})
			p := NewStoreProvider(conditions, lookup.NewInMemoryTableStore())

			if err := p.Import(ctx, tc.doc); !errors.Is(err, ErrInvalidDocument) {
				t.Fatalf("Import() = %v, want ErrInvalidDocument", err)
			}

			got, _ := conditions.List(ctx)
			if len(got) != 1 || got[0].Key != "keep" {
				t.Errorf("stored conditions after rejected import = %+v", got)
			}
		})
	}
}

func TestStoreProviderImportDecodedDocumentWithoutIDs(t *testing.T) {
	ctx := context.Background()
	p := NewStoreProvider(
		rules.NewInMemoryConditionStore(rules.Condition{ID: "keep", Key: "keep"}),
		lookup.NewInMemoryTableStore(),
	)

	doc, err := Decode(strings.NewReader(`{"shortcuts":[{"key":"a"},{"key":"b"}]}`), FormatJSON)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if err := p.Import(ctx, doc); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	got, _ := p.Snapshot(ctx)
	if len(got.Conditions) != 2 || got.Conditions[0].Key != "a" || got.Conditions[1].Key != "b" {
		t.Errorf("Conditions after import = %+v", got.Conditions)
	}
}

// rejectingTableStore fails Add for one key
type rejectingTableStore struct {
	lookup.TableStore
	key string
}

func (s *rejectingTableStore) Add(ctx context.Context, t *lookup.Table) error {
	if t.Key == s.key {
		return errors.New("write failed")
	}
	return s.TableStore.Add(ctx, t)
}

func TestStoreProviderImportRestoresOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	s := sampleSnapshot()
	p := NewStoreProvider(
		rules.NewInMemoryConditionStore(s.Conditions...),
		&rejectingTableStore{TableStore: lookup.NewInMemoryTableStore(s.Tables...), key: "broken"},
	)

	doc := &Document{
		Shortcuts: []rules.Condition{{ID: "c2", Key: "new"}},
		Tables:    []lookup.Table{{ID: "t2", Key: "broken"}},
	}
	if err := p.Import(ctx, doc); err == nil {
		t.Fatal("expected the failing write to fail the import")
	}

	got, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].Key != "mr" {
		t.Errorf("Conditions after failed import = %+v", got.Conditions)
	}
	if len(got.Tables) != 1 || got.Tables[0].Key != "docs" {
		t.Errorf("Tables after failed import = %+v", got.Tables)
	}
}
