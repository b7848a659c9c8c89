package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"poolscope/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RefreshObserver receives orchestrator outcomes, typically for metrics.
type RefreshObserver interface {
	OnRefresh(duration time.Duration, logCount int)
	OnStaleResult()
	OnRefreshError()
	OnOptionsError(column string)
}

// Snapshot is the state last published to the presentation layer.
type Snapshot struct {
	Logs            []domain.Log
	NetworkOptions  []string
	StrategyOptions []string
	Err             error
}

// Orchestrator reacts to filter-state changes: it translates the state into
// constraints, runs the filtered query and the distinct-value scans against
// the store, and publishes the results as one replaceable snapshot.
//
// Every Refresh claims a new generation. A result arriving after a newer
// generation has been claimed is discarded, so the published snapshot always
// corresponds to the latest requested FilterState even when fetches resolve
// out of order.
type Orchestrator struct {
	store    LogStore
	observer RefreshObserver
	timeout  time.Duration

	generation atomic.Uint64

	mu         sync.RWMutex
	logs       []domain.Log
	networks   []string
	strategies []string
	lastErr    error
}

func NewOrchestrator(store LogStore, observer RefreshObserver, timeout time.Duration) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("log store is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Orchestrator{store: store, observer: observer, timeout: timeout}, nil
}

// Refresh runs one unit of work for the given filter state. The filtered
// query and the option scans are issued concurrently; Refresh returns once
// both have finished or been superseded. Failures of the main query keep the
// previously published log sequence in place.
func (o *Orchestrator) Refresh(ctx context.Context, state FilterState) {
	gen := o.generation.Add(1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.refreshLogs(ctx, gen, state)
	}()
	go func() {
		defer wg.Done()
		o.refreshOptions(ctx, gen)
	}()
	wg.Wait()
}

// Snapshot returns a copy of the currently published state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		Logs:            append([]domain.Log(nil), o.logs...),
		NetworkOptions:  append([]string(nil), o.networks...),
		StrategyOptions: append([]string(nil), o.strategies...),
		Err:             o.lastErr,
	}
}

func (o *Orchestrator) refreshLogs(ctx context.Context, gen uint64, state FilterState) {
	tracer := otel.Tracer("poolscope/browser")
	ctx, span := tracer.Start(ctx, "browser.refresh_logs")
	defer span.End()
	span.SetAttributes(attribute.Bool("filter.show_duplicates", state.ShowDuplicates))

	start := time.Now()
	constraints := BuildConstraints(state)

	if state.ShowDuplicates {
		scanCtx, cancel := context.WithTimeout(ctx, o.timeout)
		duplicates, err := DuplicateHashes(scanCtx, o.store)
		cancel()
		if err != nil {
			o.publishError(gen, err, span)
			return
		}
		span.SetAttributes(attribute.Int("duplicates.count", len(duplicates)))
		// The membership constraint stays even when the set is empty: an
		// empty duplicate set must select nothing, not everything.
		constraints = append(constraints, DuplicateConstraint(duplicates))
	}

	queryCtx, cancel := context.WithTimeout(ctx, o.timeout)
	logs, err := o.store.QueryLogs(queryCtx, constraints)
	cancel()
	if err != nil {
		o.publishError(gen, err, span)
		return
	}
	span.SetAttributes(attribute.Int("logs.count", len(logs)))

	o.mu.Lock()
	if o.generation.Load() != gen {
		o.mu.Unlock()
		if o.observer != nil {
			o.observer.OnStaleResult()
		}
		return
	}
	o.logs = logs
	o.lastErr = nil
	o.mu.Unlock()

	if o.observer != nil {
		o.observer.OnRefresh(time.Since(start), len(logs))
	}
}

// publishError records a main-query failure without clearing the previously
// published sequence; transient store failures must not flash an empty view.
func (o *Orchestrator) publishError(gen uint64, err error, span trace.Span) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	slog.Error("log refresh failed", "err", err)
	if o.observer != nil {
		o.observer.OnRefreshError()
	}

	o.mu.Lock()
	if o.generation.Load() == gen {
		o.lastErr = err
	}
	o.mu.Unlock()
}

func (o *Orchestrator) refreshOptions(ctx context.Context, gen uint64) {
	for _, column := range OptionColumns {
		colCtx, cancel := context.WithTimeout(ctx, o.timeout)
		values, err := DistinctOptions(colCtx, o.store, column)
		cancel()
		if err != nil {
			// Per-column failure: the other column still publishes.
			slog.Warn("filter options fetch failed", "column", column, "err", err)
			if o.observer != nil {
				o.observer.OnOptionsError(column)
			}
			continue
		}

		o.mu.Lock()
		if o.generation.Load() != gen {
			o.mu.Unlock()
			if o.observer != nil {
				o.observer.OnStaleResult()
			}
			return
		}
		switch column {
		case FieldNetwork:
			o.networks = values
		case FieldStrategy:
			o.strategies = values
		}
		o.mu.Unlock()
	}
}
