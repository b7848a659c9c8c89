package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"poolscope/internal/domain"
)

// fakeStore evaluates constraints in memory the way a real store would:
// constraints are ANDed and results come back ordered created_at descending.
// An empty TxHash models a NULL hash.
type fakeStore struct {
	mu          sync.Mutex
	rows        []domain.Log
	queryErr    error
	hashErr     error
	distinctErr map[string]error
	queryCalls  int

	// first QueryLogs call waits here when set, to simulate a slow fetch
	blockFirstQuery chan struct{}
}

func (s *fakeStore) QueryLogs(ctx context.Context, constraints []Constraint) ([]domain.Log, error) {
	s.mu.Lock()
	s.queryCalls++
	call := s.queryCalls
	err := s.queryErr
	gate := s.blockFirstQuery
	s.mu.Unlock()

	if gate != nil && call == 1 {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	var result []domain.Log
	for _, row := range s.rows {
		if rowMatches(row, constraints) {
			result = append(result, row)
		}
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].CreatedAt.After(result[b].CreatedAt)
	})
	return result, nil
}

func rowMatches(row domain.Log, constraints []Constraint) bool {
	for _, c := range constraints {
		switch c.Op {
		case OpEquals:
			switch c.Field {
			case FieldNetwork:
				if row.Network != c.Value.(string) {
					return false
				}
			case FieldStrategy:
				if row.Strategy != c.Value.(string) {
					return false
				}
			case FieldBlockNumber:
				if row.BlockNumber != c.Value.(uint64) {
					return false
				}
			case FieldRemoved:
				if row.Removed != c.Value.(bool) {
					return false
				}
			}
		case OpSubstring:
			pattern := strings.ToLower(c.Value.(string))
			if !strings.Contains(strings.ToLower(row.TxHash), pattern) {
				return false
			}
		case OpGreaterOrEqual:
			if row.CreatedAt.Before(c.Value.(time.Time)) {
				return false
			}
		case OpInSet:
			found := false
			for _, value := range c.Values {
				if row.TxHash == value {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (s *fakeStore) DistinctValues(ctx context.Context, column string) ([]string, error) {
	s.mu.Lock()
	err := s.distinctErr[column]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var values []string
	for _, row := range s.rows {
		var value string
		switch column {
		case FieldNetwork:
			value = row.Network
		case FieldStrategy:
			value = row.Strategy
		default:
			return nil, fmt.Errorf("%w: unknown column %q", ErrQueryRejected, column)
		}
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		values = append(values, value)
	}
	sort.Strings(values)
	return values, nil
}

func (s *fakeStore) TransactionHashes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	err := s.hashErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var hashes []string
	for _, row := range s.rows {
		if row.TxHash != "" {
			hashes = append(hashes, row.TxHash)
		}
	}
	return hashes, nil
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func row(network, strategy, hash string, logIndex uint64, createdAt time.Time) domain.Log {
	return domain.Log{
		Network:   network,
		Exchange:  "uniswap",
		Strategy:  strategy,
		TxHash:    hash,
		LogIndex:  logIndex,
		CreatedAt: createdAt,
	}
}

func newTestOrchestrator(t *testing.T, store LogStore) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(store, nil, time.Second)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return orch
}

func TestRefreshShowDuplicatesNarrowsToDuplicateRows(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []domain.Log{
		row("ethereum", "v2", "0xA", 0, base),
		row("ethereum", "v2", "0xB", 0, base.Add(1*time.Hour)),
		row("ethereum", "v2", "0xB", 1, base.Add(2*time.Hour)),
		row("base", "v3", "0xB", 2, base.Add(3*time.Hour)),
	}}
	orch := newTestOrchestrator(t, store)

	orch.Refresh(context.Background(), FilterState{ShowDuplicates: true})
	snap := orch.Snapshot()

	if snap.Err != nil {
		t.Fatalf("unexpected error: %v", snap.Err)
	}
	if len(snap.Logs) != 3 {
		t.Fatalf("expected 3 duplicate rows, got %d", len(snap.Logs))
	}
	for i, log := range snap.Logs {
		if log.TxHash != "0xB" {
			t.Errorf("row %d: expected hash 0xB, got %s", i, log.TxHash)
		}
	}
	for i := 1; i < len(snap.Logs); i++ {
		if snap.Logs[i].CreatedAt.After(snap.Logs[i-1].CreatedAt) {
			t.Errorf("rows not ordered created_at descending at index %d", i)
		}
	}
}

func TestRefreshEmptyDuplicateSetYieldsEmptySequence(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []domain.Log{
		row("ethereum", "v2", "0xA", 0, base),
		row("ethereum", "v2", "0xB", 0, base.Add(time.Hour)),
	}}
	orch := newTestOrchestrator(t, store)

	orch.Refresh(context.Background(), FilterState{ShowDuplicates: true})
	snap := orch.Snapshot()

	if snap.Err != nil {
		t.Fatalf("unexpected error: %v", snap.Err)
	}
	if len(snap.Logs) != 0 {
		t.Fatalf("expected empty sequence with no duplicates, got %d rows", len(snap.Logs))
	}
}

func TestRefreshSubstringMatchIsCaseInsensitive(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []domain.Log{
		row("ethereum", "v2", "0xABCD", 0, base),
		row("ethereum", "v2", "0x00ab99", 0, base.Add(time.Hour)),
		row("ethereum", "v2", "0xFF", 0, base.Add(2*time.Hour)),
	}}
	orch := newTestOrchestrator(t, store)

	orch.Refresh(context.Background(), FilterState{TxHash: "ab"})
	snap := orch.Snapshot()

	if len(snap.Logs) != 2 {
		t.Fatalf("expected 2 matching rows, got %d", len(snap.Logs))
	}
	if snap.Logs[0].TxHash != "0x00ab99" || snap.Logs[1].TxHash != "0xABCD" {
		t.Errorf("unexpected rows: %s, %s", snap.Logs[0].TxHash, snap.Logs[1].TxHash)
	}
}

func TestRefreshFailureRetainsPreviousSequence(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []domain.Log{
		row("ethereum", "v2", "0xA", 0, base),
	}}
	orch := newTestOrchestrator(t, store)

	orch.Refresh(context.Background(), FilterState{})
	if snap := orch.Snapshot(); len(snap.Logs) != 1 || snap.Err != nil {
		t.Fatalf("seed refresh: got %d rows, err %v", len(snap.Logs), snap.Err)
	}

	store.mu.Lock()
	store.queryErr = fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
	store.mu.Unlock()

	orch.Refresh(context.Background(), FilterState{})
	snap := orch.Snapshot()
	if len(snap.Logs) != 1 {
		t.Errorf("previous sequence cleared on failure: got %d rows", len(snap.Logs))
	}
	if !errors.Is(snap.Err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", snap.Err)
	}

	store.mu.Lock()
	store.queryErr = nil
	store.mu.Unlock()

	orch.Refresh(context.Background(), FilterState{})
	if snap := orch.Snapshot(); snap.Err != nil {
		t.Errorf("error not cleared after successful refresh: %v", snap.Err)
	}
}

func TestRefreshDuplicateScanFailureDoesNotFallBackToUnfiltered(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		rows: []domain.Log{
			row("ethereum", "v2", "0xA", 0, base),
			row("ethereum", "v2", "0xA", 1, base.Add(time.Hour)),
		},
		hashErr: fmt.Errorf("%w: timeout", ErrStoreUnavailable),
	}
	orch := newTestOrchestrator(t, store)

	orch.Refresh(context.Background(), FilterState{ShowDuplicates: true})
	snap := orch.Snapshot()

	if len(snap.Logs) != 0 {
		t.Errorf("expected no rows published after scan failure, got %d", len(snap.Logs))
	}
	if !errors.Is(snap.Err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", snap.Err)
	}
}

func TestRefreshStaleResultIsDiscarded(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		rows: []domain.Log{
			row("ethereum", "v2", "0xA", 0, base),
			row("base", "v3", "0xB", 0, base.Add(time.Hour)),
		},
		blockFirstQuery: make(chan struct{}),
	}
	orch := newTestOrchestrator(t, store)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		orch.Refresh(context.Background(), FilterState{Network: "ethereum"})
	}()

	// Wait for the first refresh to reach the store.
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		calls := store.queryCalls
		store.mu.Unlock()
		if calls >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first refresh never reached the store")
		}
		time.Sleep(time.Millisecond)
	}

	orch.Refresh(context.Background(), FilterState{Network: "base"})

	close(store.blockFirstQuery)
	<-firstDone

	snap := orch.Snapshot()
	if len(snap.Logs) != 1 || snap.Logs[0].Network != "base" {
		t.Fatalf("published result does not reflect the latest filter state: %+v", snap.Logs)
	}
}

func TestRefreshPublishesFilterOptions(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []domain.Log{
		row("polygon", "v3", "0xA", 0, base),
		row("ethereum", "v2", "0xB", 0, base),
		row("ethereum", "v3", "0xC", 0, base),
	}}
	orch := newTestOrchestrator(t, store)

	orch.Refresh(context.Background(), FilterState{Network: "ethereum"})
	snap := orch.Snapshot()

	wantNetworks := []string{"ethereum", "polygon"}
	if len(snap.NetworkOptions) != 2 || snap.NetworkOptions[0] != wantNetworks[0] || snap.NetworkOptions[1] != wantNetworks[1] {
		t.Errorf("network options: got %v, want %v", snap.NetworkOptions, wantNetworks)
	}
	wantStrategies := []string{"v2", "v3"}
	if len(snap.StrategyOptions) != 2 || snap.StrategyOptions[0] != wantStrategies[0] || snap.StrategyOptions[1] != wantStrategies[1] {
		t.Errorf("strategy options: got %v, want %v", snap.StrategyOptions, wantStrategies)
	}
}

func TestRefreshOptionFailureIsPerColumn(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		rows: []domain.Log{
			row("ethereum", "v2", "0xA", 0, base),
		},
		distinctErr: map[string]error{
			FieldStrategy: fmt.Errorf("%w: timeout", ErrStoreUnavailable),
		},
	}
	orch := newTestOrchestrator(t, store)

	orch.Refresh(context.Background(), FilterState{})
	snap := orch.Snapshot()

	if len(snap.NetworkOptions) != 1 || snap.NetworkOptions[0] != "ethereum" {
		t.Errorf("network options blocked by strategy failure: %v", snap.NetworkOptions)
	}
	if len(snap.StrategyOptions) != 0 {
		t.Errorf("expected no strategy options, got %v", snap.StrategyOptions)
	}
	if len(snap.Logs) != 1 {
		t.Errorf("option failure must not invalidate the log sequence, got %d rows", len(snap.Logs))
	}
}
