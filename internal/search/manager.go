package search

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aman-cerp/corpuscore/internal/corpus"
	"github.com/aman-cerp/corpuscore/internal/model"
	"github.com/aman-cerp/corpuscore/internal/semantic"
	"github.com/aman-cerp/corpuscore/internal/telemetry"
)

// Manager hot-reloads an Orchestrator for one corpus: it polls the
// corpus's live vocabulary_hash and, on divergence from the last-built
// snapshot, rebuilds and atomically swaps in a fresh Orchestrator.
// In-flight Search calls hold their own Orchestrator pointer and
// complete against the snapshot they started with.
type Manager struct {
	corpusID     string
	corpusMgr    *corpus.Manager
	semanticMgr  *semantic.Manager
	pollInterval time.Duration

	live   atomic.Pointer[Orchestrator]
	stopCh chan struct{}

	metrics *telemetry.QueryMetrics
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pollInterval = d }
}

// WithQueryMetrics attaches a telemetry collector; every Search call
// that returns without error is recorded as a QueryEvent keyed by the
// requested mode.
func WithQueryMetrics(qm *telemetry.QueryMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = qm }
}

// NewManager builds and loads the first Orchestrator snapshot for
// corpusID, then returns a Manager ready to serve Search calls and
// Start a background reload loop.
func NewManager(ctx context.Context, corpusID string, corpusMgr *corpus.Manager, semanticMgr *semantic.Manager, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		corpusID:     corpusID,
		corpusMgr:    corpusMgr,
		semanticMgr:  semanticMgr,
		pollInterval: DefaultPollInterval,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil && corpusMgr != nil {
		if db := corpusMgr.DB(); db != nil {
			qm, err := telemetry.NewSQLiteQueryMetrics(db, telemetry.DefaultQueryMetricsConfig())
			if err != nil {
				slog.Warn("query_metrics_store_init_failed",
					slog.String("corpus_id", corpusID),
					slog.String("error", err.Error()))
			} else {
				m.metrics = qm
			}
		}
	}

	if err := m.reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Search runs a query against the current live Orchestrator snapshot,
// recording a telemetry.QueryEvent when a collector is attached.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]model.SearchResult, error) {
	start := time.Now()
	results, err := m.live.Load().Search(ctx, query, opts)
	if m.metrics != nil && err == nil {
		m.metrics.Record(telemetry.QueryEvent{
			Query:       query,
			QueryType:   telemetry.QueryType(opts.mode()),
			ResultCount: len(results),
			Latency:     time.Since(start),
			Timestamp:   start,
		})
	}
	return results, err
}

// VocabularyHash reports the live snapshot's vocabulary_hash.
func (m *Manager) VocabularyHash() string {
	return m.live.Load().VocabularyHash()
}

// reload fetches the corpus's current entity and, if its
// vocabulary_hash differs from the live snapshot (or none is loaded
// yet), builds a fresh Orchestrator and atomically swaps it in.
func (m *Manager) reload(ctx context.Context) error {
	entity, err := m.corpusMgr.Get(ctx, m.corpusID)
	if err != nil {
		return err
	}

	current := m.live.Load()
	if current != nil && current.VocabularyHash() == entity.VocabularyHash {
		return nil
	}

	next := NewOrchestrator(entity, WithSemanticManager(m.semanticMgr))
	m.live.Store(next)
	slog.Info("search_orchestrator_swapped",
		slog.String("corpus_id", m.corpusID),
		slog.String("vocabulary_hash", entity.VocabularyHash))
	return nil
}

// Start launches the background poll loop. Stop cancels it.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				_ = m.reload(ctx)
			}
		}
	}()
}

// Stop ends the background poll loop started by Start.
func (m *Manager) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
}
