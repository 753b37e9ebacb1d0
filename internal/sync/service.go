package sync

import (
	"context"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/internal/introspect"
	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// Notifier receives the outcome of a completed reconciliation run. Audit
// collaborators hook in here.
type Notifier interface {
	SyncCompleted(ctx context.Context, scope catalog.Scope, diffs []TableDiff)
}

// LogNotifier is the default: it just logs a summary.
type LogNotifier struct {
	Log *logger.Logger
}

func (n *LogNotifier) SyncCompleted(_ context.Context, scope catalog.Scope, diffs []TableDiff) {
	changes := 0
	for _, td := range diffs {
		changes += len(td.Changes)
	}
	n.Log.Infof("Sync of source %s finished: %d tables touched, %d changes", scope.SourceID, len(diffs), changes)
}

// Service is the entry point for one source: compute the diff, or compute
// and apply it in a single catalog transaction.
type Service struct {
	store    catalog.Store
	insp     introspect.Introspector
	log      *logger.Logger
	limiter  *Limiter
	notifier Notifier
	client   string
	schema   string
}

func NewService(store catalog.Store, insp introspect.Introspector, log *logger.Logger, limiter *Limiter, notifier Notifier, client, schema string) *Service {
	if limiter == nil {
		limiter = NewLimiter(nil)
	}
	if notifier == nil {
		notifier = &LogNotifier{Log: log}
	}
	return &Service{
		store:    store,
		insp:     insp,
		log:      log,
		limiter:  limiter,
		notifier: notifier,
		client:   client,
		schema:   schema,
	}
}

// ComputeDiff is read-only: it classifies every discrepancy between the
// live schema and the catalog without touching either.
func (s *Service) ComputeDiff(ctx context.Context, scope catalog.Scope) ([]TableDiff, error) {
	diffs, err := NewDiffer(s.store, s.insp, s.log, s.client, s.schema).Diff(ctx, scope)
	if err != nil {
		return nil, err
	}
	s.log.WithSource(scope.SourceID).Debugf("%d tables with pending changes", len(diffs))
	return diffs, nil
}

// ApplyDiff reconciles the catalog with the live schema. All mutations for
// the source commit together or not at all; a clean schema is a no-op.
func (s *Service) ApplyDiff(ctx context.Context, scope catalog.Scope) error {
	diffs, err := s.ComputeDiff(ctx, scope)
	if err != nil {
		return err
	}
	err = s.store.InTx(ctx, func(tx catalog.Store) error {
		applier := NewApplier(tx, s.insp, s.log, s.limiter, s.client, s.schema)
		if err := applier.Apply(ctx, scope, diffs); err != nil {
			return err
		}
		return NewM2MDeriver(tx, s.log).Derive(ctx, scope)
	})
	if err != nil {
		return err
	}
	s.notifier.SyncCompleted(ctx, scope, diffs)
	return nil
}
