// Package memory provides an in-process implementation of every persistence
// port. A single mutex serialises transactions; a failed transaction restores
// the snapshot taken when it began.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/outbox"
)

type txKey struct{}

// Store holds batches, checks, reconciliations, day counters and outbox events
type Store struct {
	mu sync.Mutex

	batches         map[string]*domain.ProductionBatch
	batchNumbers    map[string]string
	checks          map[string][]*domain.QualityCheck
	reconciliations map[string]*domain.ReconciliationSummary
	sequences       map[string]int
	outbox          map[string]*outbox.OutboxEvent
	outboxOrder     []string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		batches:         make(map[string]*domain.ProductionBatch),
		batchNumbers:    make(map[string]string),
		checks:          make(map[string][]*domain.QualityCheck),
		reconciliations: make(map[string]*domain.ReconciliationSummary),
		sequences:       make(map[string]int),
		outbox:          make(map[string]*outbox.OutboxEvent),
	}
}

// lock acquires the store mutex unless ctx belongs to a transaction of this
// store, which already holds it
func (s *Store) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTransaction implements domain.TransactionManager
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	batches         map[string]*domain.ProductionBatch
	batchNumbers    map[string]string
	checks          map[string][]*domain.QualityCheck
	reconciliations map[string]*domain.ReconciliationSummary
	sequences       map[string]int
	outbox          map[string]*outbox.OutboxEvent
	outboxOrder     []string
}

// snapshot copies the maps; stored values are never mutated in place, so a
// shallow copy per map is enough
func (s *Store) snapshot() snapshot {
	snap := snapshot{
		batches:         make(map[string]*domain.ProductionBatch, len(s.batches)),
		batchNumbers:    make(map[string]string, len(s.batchNumbers)),
		checks:          make(map[string][]*domain.QualityCheck, len(s.checks)),
		reconciliations: make(map[string]*domain.ReconciliationSummary, len(s.reconciliations)),
		sequences:       make(map[string]int, len(s.sequences)),
		outbox:          make(map[string]*outbox.OutboxEvent, len(s.outbox)),
		outboxOrder:     append([]string(nil), s.outboxOrder...),
	}
	for k, v := range s.batches {
		snap.batches[k] = v
	}
	for k, v := range s.batchNumbers {
		snap.batchNumbers[k] = v
	}
	for k, v := range s.checks {
		snap.checks[k] = append([]*domain.QualityCheck(nil), v...)
	}
	for k, v := range s.reconciliations {
		snap.reconciliations[k] = v
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	for k, v := range s.outbox {
		snap.outbox[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.batches = snap.batches
	s.batchNumbers = snap.batchNumbers
	s.checks = snap.checks
	s.reconciliations = snap.reconciliations
	s.sequences = snap.sequences
	s.outbox = snap.outbox
	s.outboxOrder = snap.outboxOrder
}

// Batches returns the store as a domain.BatchRepository
func (s *Store) Batches() *BatchRepository { return &BatchRepository{s} }

// QualityChecks returns the store as a domain.QualityCheckRepository
func (s *Store) QualityChecks() *QualityCheckRepository { return &QualityCheckRepository{s} }

// Reconciliations returns the store as a domain.ReconciliationRepository
func (s *Store) Reconciliations() *ReconciliationRepository { return &ReconciliationRepository{s} }

// Sequence returns the store as a domain.BatchSequence
func (s *Store) Sequence() *BatchSequence { return &BatchSequence{s} }

// Outbox returns the store as an outbox.Repository
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s} }

// BatchRepository implements domain.BatchRepository
type BatchRepository struct{ s *Store }

func (r *BatchRepository) Create(ctx context.Context, batch *domain.ProductionBatch) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.batches[batch.ID]; exists {
		return domain.NewConflictError("batch " + batch.ID + " already exists")
	}
	if _, taken := r.s.batchNumbers[batch.BatchNumber]; taken {
		return domain.NewConflictError("batch number " + batch.BatchNumber + " already exists")
	}
	batch.Version = 1
	r.s.batches[batch.ID] = batch.Clone()
	r.s.batchNumbers[batch.BatchNumber] = batch.ID
	return nil
}

func (r *BatchRepository) Update(ctx context.Context, batch *domain.ProductionBatch) error {
	defer r.s.lock(ctx)()

	stored, ok := r.s.batches[batch.ID]
	if !ok {
		return domain.NewNotFoundError("batch", batch.ID)
	}
	if stored.Version != batch.Version {
		return domain.NewConflictError("batch " + batch.ID + " was modified concurrently")
	}
	next := batch.Clone()
	next.Version++
	r.s.batches[batch.ID] = next
	batch.Version = next.Version
	return nil
}

func (r *BatchRepository) FindByID(ctx context.Context, batchID string) (*domain.ProductionBatch, error) {
	defer r.s.lock(ctx)()

	stored, ok := r.s.batches[batchID]
	if !ok {
		return nil, domain.NewNotFoundError("batch", batchID)
	}
	return stored.Clone(), nil
}

func (r *BatchRepository) FindAll(ctx context.Context, filter domain.BatchFilter, limit, offset int) ([]*domain.ProductionBatch, int64, error) {
	defer r.s.lock(ctx)()

	matched := make([]*domain.ProductionBatch, 0)
	for _, b := range r.s.batches {
		if matches(b, filter) {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ProductionDate.Equal(matched[j].ProductionDate) {
			return matched[i].ProductionDate.After(matched[j].ProductionDate)
		}
		return matched[i].BatchNumber > matched[j].BatchNumber
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*domain.ProductionBatch{}, total, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page := make([]*domain.ProductionBatch, 0, end-offset)
	for _, b := range matched[offset:end] {
		page = append(page, b.Clone())
	}
	return page, total, nil
}

func matches(b *domain.ProductionBatch, f domain.BatchFilter) bool {
	switch {
	case f.Status != nil && b.Status != *f.Status:
		return false
	case f.ProgramID != "" && b.ProgramID != f.ProgramID:
		return false
	case f.MenuID != "" && b.MenuID != f.MenuID:
		return false
	case f.ProductionDateFrom != nil && b.ProductionDate.Before(domain.NormalizeProductionDate(*f.ProductionDateFrom)):
		return false
	case f.ProductionDateTo != nil && b.ProductionDate.After(domain.NormalizeProductionDate(*f.ProductionDateTo)):
		return false
	case f.ReconciliationPending != nil && b.ReconciliationPending != *f.ReconciliationPending:
		return false
	}
	return true
}

// QualityCheckRepository implements domain.QualityCheckRepository
type QualityCheckRepository struct{ s *Store }

func (r *QualityCheckRepository) Append(ctx context.Context, check *domain.QualityCheck) error {
	defer r.s.lock(ctx)()

	c := *check
	r.s.checks[check.BatchID] = append(r.s.checks[check.BatchID], &c)
	return nil
}

func (r *QualityCheckRepository) FindByBatchID(ctx context.Context, batchID string) ([]*domain.QualityCheck, error) {
	defer r.s.lock(ctx)()

	stored := r.s.checks[batchID]
	out := make([]*domain.QualityCheck, 0, len(stored))
	for _, c := range stored {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// ReconciliationRepository implements domain.ReconciliationRepository
type ReconciliationRepository struct{ s *Store }

func (r *ReconciliationRepository) FindByBatchID(ctx context.Context, batchID string) (*domain.ReconciliationSummary, error) {
	defer r.s.lock(ctx)()

	stored, ok := r.s.reconciliations[batchID]
	if !ok {
		return nil, nil
	}
	return cloneSummary(stored), nil
}

func (r *ReconciliationRepository) Save(ctx context.Context, summary *domain.ReconciliationSummary) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.reconciliations[summary.BatchID]; exists {
		return domain.NewConflictError("batch " + summary.BatchID + " is already reconciled")
	}
	r.s.reconciliations[summary.BatchID] = cloneSummary(summary)
	return nil
}

// RecordCount returns the number of stored stock usage records for a batch
func (r *ReconciliationRepository) RecordCount(batchID string) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if stored, ok := r.s.reconciliations[batchID]; ok {
		return len(stored.Records)
	}
	return 0
}

func cloneSummary(s *domain.ReconciliationSummary) *domain.ReconciliationSummary {
	c := *s
	c.Records = append([]domain.StockUsageRecord(nil), s.Records...)
	if s.CostVariancePct != nil {
		v := *s.CostVariancePct
		c.CostVariancePct = &v
	}
	return &c
}

// BatchSequence implements domain.BatchSequence with a per-day counter
type BatchSequence struct{ s *Store }

func (q *BatchSequence) Next(ctx context.Context, productionDate time.Time) (int, error) {
	defer q.s.lock(ctx)()

	key := domain.SequenceKey(productionDate)
	q.s.sequences[key]++
	return q.s.sequences[key], nil
}
