package application

import (
	"context"
	"fmt"
	"time"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// a lost first-of-day sequence race aborts the transaction and is retried
	// from scratch
	createBatchAttempts = 3
)

// Config holds the lifecycle policies of the service
type Config struct {
	RequirePassingVerdict bool
	PassThreshold         int
	MaxActualPortions     int
	Currency              string
}

// DefaultConfig returns warn-but-allow completion, a 70 point threshold and a 10000 portion cap
func DefaultConfig() Config {
	return Config{
		PassThreshold:     domain.DefaultPassThreshold,
		MaxActualPortions: domain.DefaultMaxActualPortions,
		Currency:          "USD",
	}
}

func (c Config) rules() domain.TransitionRules {
	return domain.TransitionRules{
		MaxActualPortions:     c.MaxActualPortions,
		RequirePassingVerdict: c.RequirePassingVerdict,
	}
}

// Dependencies are the ports the service orchestrates
type Dependencies struct {
	Batches         domain.BatchRepository
	Checks          domain.QualityCheckRepository
	Reconciliations domain.ReconciliationRepository
	Sequence        domain.BatchSequence
	Tx              domain.TransactionManager
	Outbox          domain.EventOutbox
	Recipes         domain.RecipeProvider
	Costs           domain.CostProvider
}

// ProductionService handles production batch use cases
type ProductionService struct {
	batches         domain.BatchRepository
	checks          domain.QualityCheckRepository
	reconciliations domain.ReconciliationRepository
	sequence        domain.BatchSequence
	tx              domain.TransactionManager
	outbox          domain.EventOutbox
	recipes         domain.RecipeProvider
	costs           domain.CostProvider

	config  Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewProductionService creates a new ProductionService
func NewProductionService(deps Dependencies, config Config, logger *logging.Logger, m *metrics.Metrics) *ProductionService {
	if config.PassThreshold <= 0 {
		config.PassThreshold = domain.DefaultPassThreshold
	}
	if config.MaxActualPortions <= 0 {
		config.MaxActualPortions = domain.DefaultMaxActualPortions
	}
	if config.Currency == "" {
		config.Currency = "USD"
	}
	return &ProductionService{
		batches:         deps.Batches,
		checks:          deps.Checks,
		reconciliations: deps.Reconciliations,
		sequence:        deps.Sequence,
		tx:              deps.Tx,
		outbox:          deps.Outbox,
		recipes:         deps.Recipes,
		costs:           deps.Costs,
		config:          config,
		logger:          logger.WithComponent("production-service"),
		metrics:         m,
		now:             func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// CreateBatch schedules a new PLANNED batch and allocates its batch number
func (s *ProductionService) CreateBatch(ctx context.Context, cmd CreateBatchCommand) (*BatchDTO, error) {
	recipe, err := s.recipes.GetMenuRecipe(ctx, cmd.MenuID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to look up menu", "menuId", cmd.MenuID)
		return nil, err
	}

	costPerServing := recipe.CostPerServing
	if costPerServing.Currency() == "" {
		costPerServing = domain.ZeroMoney(s.config.Currency)
	}

	draft, err := domain.NewProductionBatch(domain.NewBatchParams{
		ProgramID:         cmd.ProgramID,
		MenuID:            cmd.MenuID,
		ProductionDate:    cmd.ProductionDate,
		PlannedPortions:   cmd.PlannedPortions,
		PlannedStart:      cmd.PlannedStart,
		PlannedEnd:        cmd.PlannedEnd,
		HeadCook:          cmd.HeadCook,
		AssistantCooks:    cmd.AssistantCooks,
		Supervisor:        cmd.Supervisor,
		TargetTemperature: cmd.TargetTemperature,
		CostPerServing:    costPerServing,
		CreatedBy:         cmd.CreatedBy,
		Now:               s.now(),
	})
	if err != nil {
		return nil, err
	}

	var created *domain.ProductionBatch
	for attempt := 1; ; attempt++ {
		err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			batch, err := s.insertBatch(ctx, draft.Clone())
			created = batch
			return err
		})
		if err == nil || !domain.IsConflict(err) || attempt == createBatchAttempts {
			break
		}
		s.logger.Warn("Retrying batch creation after conflict", "attempt", attempt, "error", err)
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to create batch", "menuId", cmd.MenuID, "programId", cmd.ProgramID)
		return nil, err
	}

	s.metrics.RecordBatchCreated(created.ProgramID)
	s.logger.WithBatch(created.ID, created.BatchNumber).Info("Created batch",
		"menuId", created.MenuID,
		"plannedPortions", created.PlannedPortions,
	)
	s.logger.Audit(ctx, "create", "batch", created.ID, cmd.CreatedBy, map[string]any{"batchNumber": created.BatchNumber})
	return ToBatchDTO(created), nil
}

// insertBatch numbers and stores batch inside the caller's transaction
func (s *ProductionService) insertBatch(ctx context.Context, batch *domain.ProductionBatch) (*domain.ProductionBatch, error) {
	seq, err := s.sequence.Next(ctx, batch.ProductionDate)
	if err != nil {
		return nil, err
	}
	number, err := domain.GenerateBatchNumber(batch.ProductionDate, seq)
	if err != nil {
		return nil, err
	}
	if err := batch.AssignBatchNumber(number); err != nil {
		return nil, err
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}
	if err := s.outbox.Append(ctx, batch.BatchNumber, batch.PullEvents()...); err != nil {
		return nil, err
	}
	return batch, nil
}

// GetBatch retrieves a batch by ID
func (s *ProductionService) GetBatch(ctx context.Context, query GetBatchQuery) (*BatchDTO, error) {
	batch, err := s.batches.FindByID(ctx, query.BatchID)
	if err != nil {
		return nil, err
	}
	return ToBatchDTO(batch), nil
}

// ListBatches lists batches matching the query filters
func (s *ProductionService) ListBatches(ctx context.Context, query ListBatchesQuery) (*BatchListDTO, error) {
	filter := domain.BatchFilter{
		ProgramID:             query.ProgramID,
		MenuID:                query.MenuID,
		ProductionDateFrom:    query.ProductionDateFrom,
		ProductionDateTo:      query.ProductionDateTo,
		ReconciliationPending: query.ReconciliationPending,
	}
	if query.Status != "" {
		status, err := domain.ParseBatchStatus(query.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	if filter.ProductionDateFrom != nil && filter.ProductionDateTo != nil && filter.ProductionDateTo.Before(*filter.ProductionDateFrom) {
		return nil, domain.NewFieldValidationError("productionDateTo", "must not be before productionDateFrom")
	}

	page, pageSize := normalizePage(query.Page, query.PageSize)
	batches, total, err := s.batches.FindAll(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list batches")
		return nil, err
	}

	return &BatchListDTO{
		Items:    ToBatchDTOs(batches),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// UpdateBatch edits planning fields while the batch is PLANNED
func (s *ProductionService) UpdateBatch(ctx context.Context, cmd UpdateBatchCommand) (*BatchDTO, error) {
	var updated *domain.ProductionBatch
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.batches.FindByID(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		if err := checkVersion(batch, cmd.ExpectedVersion); err != nil {
			return err
		}

		_, err = batch.UpdatePlanned(domain.BatchUpdate{
			PlannedPortions:   cmd.PlannedPortions,
			PlannedStart:      cmd.PlannedStart,
			PlannedEnd:        cmd.PlannedEnd,
			HeadCook:          cmd.HeadCook,
			AssistantCooks:    cmd.AssistantCooks,
			Supervisor:        cmd.Supervisor,
			TargetTemperature: cmd.TargetTemperature,
		}, cmd.UpdatedBy, s.now())
		if err != nil {
			return err
		}

		if err := s.batches.Update(ctx, batch); err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, batch.BatchNumber, batch.PullEvents()...); err != nil {
			return err
		}
		updated = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithBatch(updated.ID, updated.BatchNumber).Info("Updated batch", "version", updated.Version)
	return ToBatchDTO(updated), nil
}

// Transition moves a batch along the lifecycle. Finishing cooking reconciles
// cost and stock in the same transaction; an unreachable collaborator defers
// reconciliation instead of failing the transition.
func (s *ProductionService) Transition(ctx context.Context, cmd TransitionCommand) (*TransitionResultDTO, error) {
	target, err := domain.ParseBatchStatus(cmd.TargetStatus)
	if err != nil {
		return nil, err
	}

	rules := s.config.rules()
	req := domain.TransitionRequest{
		Target:  target,
		Payload: toTransitionPayload(cmd),
		Actor:   cmd.Actor,
		Now:     s.now(),
	}

	batch, err := s.batches.FindByID(ctx, cmd.BatchID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(batch, cmd.ExpectedVersion); err != nil {
		return nil, err
	}

	// Fail fast before calling collaborators. Completion needs the verdict,
	// which is read inside the transaction.
	if target != domain.StatusCompleted {
		if _, err := batch.ValidateTransition(req, rules); err != nil {
			return nil, err
		}
	}

	var inputs *reconciliationInputs
	var deferredErr error
	started := time.Now()
	if target == domain.StatusQualityCheck {
		inputs, err = s.fetchReconciliationInputs(ctx, batch.MenuID)
		if err != nil {
			if !domain.IsDependency(err) {
				return nil, err
			}
			deferredErr = err
		}
	}

	var result *TransitionResultDTO
	var from domain.BatchStatus
	var summary *domain.ReconciliationSummary
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.batches.FindByID(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		if current.Version != batch.Version {
			return domain.NewConflictError(fmt.Sprintf("batch %s was modified concurrently", current.ID))
		}
		from = current.Status
		summary = nil

		if target == domain.StatusCompleted {
			checks, err := s.checks.FindByBatchID(ctx, current.ID)
			if err != nil {
				return err
			}
			req.Verdict = domain.ComputeVerdict(checks, s.config.PassThreshold)
		}

		warnings, err := current.ApplyTransition(req, rules)
		if err != nil {
			return err
		}
		res := &TransitionResultDTO{Warnings: warnings}

		if target == domain.StatusQualityCheck {
			reconcileErr := deferredErr
			if reconcileErr == nil {
				summary, err = domain.BuildReconciliation(current, inputs.recipe, inputs.unitCosts, cmd.Actor, req.Now)
				switch {
				case err == nil:
					if err := s.reconciliations.Save(ctx, summary); err != nil {
						return err
					}
					if err := s.outbox.Append(ctx, current.BatchNumber, summary.ConsumedEvent()); err != nil {
						return err
					}
				case domain.IsDependency(err):
					reconcileErr, summary = err, nil
				default:
					return err
				}
			}
			if reconcileErr != nil {
				current.MarkReconciliationPending(reconcileErr.Error(), req.Now)
				res.ReconciliationPending = true
				res.Warnings = append(res.Warnings, "reconciliation deferred: "+reconcileErr.Error())
			}
			res.Reconciliation = ToReconciliationDTO(summary)
		}

		if err := s.batches.Update(ctx, current); err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, current.BatchNumber, current.PullEvents()...); err != nil {
			return err
		}

		res.Batch = ToBatchDTO(current)
		if res.Warnings == nil {
			res.Warnings = []string{}
		}
		result = res
		return nil
	})
	if err != nil {
		if !domain.IsInvalidTransition(err) && !domain.IsValidation(err) && !domain.IsState(err) {
			s.logger.WithError(err).Error("Failed to transition batch", "batchId", cmd.BatchID, "targetStatus", target)
		}
		return nil, err
	}

	log := s.logger.WithBatch(result.Batch.ID, result.Batch.BatchNumber)
	s.metrics.RecordBatchTransition(string(from), string(target))
	if target == domain.StatusQualityCheck {
		if result.ReconciliationPending {
			s.metrics.RecordReconciliation("deferred", time.Since(started))
			log.Warn("Reconciliation deferred", "reason", deferredReason(result.Warnings))
		} else {
			s.recordReconciled(summary, time.Since(started))
		}
	}
	log.Info("Transitioned batch", "from", from, "to", target, "version", result.Batch.Version)
	s.logger.Audit(ctx, "transition", "batch", result.Batch.ID, cmd.Actor, map[string]any{
		"from": string(from),
		"to":   string(target),
	})
	return result, nil
}

// AddQualityCheck appends an inspection to a COOKING or QUALITY_CHECK batch
func (s *ProductionService) AddQualityCheck(ctx context.Context, cmd AddQualityCheckCommand) (*QualityCheckDTO, error) {
	checkType, err := domain.ParseCheckType(cmd.CheckType)
	if err != nil {
		return nil, err
	}
	var severity *domain.Severity
	if cmd.Severity != nil {
		sev, err := domain.ParseSeverity(*cmd.Severity)
		if err != nil {
			return nil, err
		}
		severity = &sev
	}

	input := domain.QualityCheckInput{
		CheckType:       checkType,
		Parameter:       cmd.Parameter,
		ExpectedValue:   cmd.ExpectedValue,
		ActualValue:     cmd.ActualValue,
		Passed:          cmd.Passed,
		Score:           cmd.Score,
		Severity:        severity,
		Notes:           cmd.Notes,
		Recommendations: cmd.Recommendations,
		ActionRequired:  cmd.ActionRequired,
		ActionTaken:     cmd.ActionTaken,
		CheckTime:       cmd.CheckTime,
	}

	var check *domain.QualityCheck
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.batches.FindByID(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		now := s.now()
		qc, err := domain.NewQualityCheck(batch, input, cmd.CheckedBy, now)
		if err != nil {
			return err
		}
		if err := s.checks.Append(ctx, qc); err != nil {
			return err
		}
		batch.NoteQualityCheck(now)
		if err := s.batches.Update(ctx, batch); err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, batch.BatchNumber, domain.NewQualityCheckRecordedEvent(qc)); err != nil {
			return err
		}
		check = qc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordQualityCheck(string(check.CheckType), check.Passed)
	s.logger.Info("Recorded quality check",
		"batchId", check.BatchID,
		"checkId", check.ID,
		"checkType", check.CheckType,
		"passed", check.Passed,
	)
	dto := ToQualityCheckDTO(check)
	return &dto, nil
}

// ListQualityChecks returns all checks of a batch
func (s *ProductionService) ListQualityChecks(ctx context.Context, batchID string) ([]QualityCheckDTO, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		return nil, err
	}
	checks, err := s.checks.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return ToQualityCheckDTOs(checks), nil
}

// GetQualitySummary aggregates the checks of a batch from a single read
func (s *ProductionService) GetQualitySummary(ctx context.Context, batchID string) (*QualitySummaryDTO, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		return nil, err
	}
	checks, err := s.checks.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return ToQualitySummaryDTO(domain.Summarize(batchID, checks, s.config.PassThreshold)), nil
}

// Reconcile computes stock consumption and cost for a batch that has finished
// cooking. Calling it again returns the stored summary unchanged.
func (s *ProductionService) Reconcile(ctx context.Context, cmd ReconcileCommand) (*ReconciliationDTO, error) {
	started := time.Now()

	batch, err := s.batches.FindByID(ctx, cmd.BatchID)
	if err != nil {
		return nil, err
	}
	if err := batch.CanReconcile(cmd.ActualPortions); err != nil {
		return nil, err
	}

	existing, err := s.reconciliations.FindByBatchID(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !batch.ReconciliationPending {
		s.metrics.RecordReconciliation("replayed", time.Since(started))
		return ToReconciliationDTO(existing), nil
	}

	var inputs *reconciliationInputs
	if existing == nil {
		inputs, err = s.fetchReconciliationInputs(ctx, batch.MenuID)
		if err != nil {
			s.metrics.RecordReconciliation("failed", time.Since(started))
			s.logger.WithBatch(batch.ID, batch.BatchNumber).WithError(err).Warn("Reconciliation inputs unavailable")
			return nil, err
		}
	}

	var summary *domain.ReconciliationSummary
	var created bool
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		created = false
		current, err := s.batches.FindByID(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		if err := current.CanReconcile(cmd.ActualPortions); err != nil {
			return err
		}

		summary, err = s.reconciliations.FindByBatchID(ctx, current.ID)
		if err != nil {
			return err
		}
		if summary == nil {
			if inputs == nil {
				return domain.NewConflictError(fmt.Sprintf("reconciliation for batch %s changed concurrently", current.ID))
			}
			summary, err = domain.BuildReconciliation(current, inputs.recipe, inputs.unitCosts, cmd.Actor, s.now())
			if err != nil {
				return err
			}
			if err := s.reconciliations.Save(ctx, summary); err != nil {
				return err
			}
			if err := s.outbox.Append(ctx, current.BatchNumber, summary.ConsumedEvent()); err != nil {
				return err
			}
			created = true
		}

		if current.ReconciliationPending {
			current.MarkReconciled(s.now())
			if err := s.batches.Update(ctx, current); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if domain.IsConflict(err) {
			// a concurrent call won the insert
			if stored, findErr := s.reconciliations.FindByBatchID(ctx, cmd.BatchID); findErr == nil && stored != nil {
				s.metrics.RecordReconciliation("replayed", time.Since(started))
				return ToReconciliationDTO(stored), nil
			}
		}
		s.metrics.RecordReconciliation("failed", time.Since(started))
		s.logger.WithError(err).Error("Failed to reconcile batch", "batchId", cmd.BatchID)
		return nil, err
	}

	if created {
		s.recordReconciled(summary, time.Since(started))
		s.logger.WithBatch(summary.BatchID, summary.BatchNumber).Info("Reconciled batch",
			"totalCost", summary.TotalCost.String(),
			"records", len(summary.Records),
		)
	} else {
		s.metrics.RecordReconciliation("replayed", time.Since(started))
	}
	return ToReconciliationDTO(summary), nil
}

// GetReconciliation returns the stored reconciliation summary of a batch
func (s *ProductionService) GetReconciliation(ctx context.Context, batchID string) (*ReconciliationDTO, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		return nil, err
	}
	summary, err := s.reconciliations.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, domain.NewNotFoundError("reconciliation for batch", batchID)
	}
	return ToReconciliationDTO(summary), nil
}

// ListPendingReconciliations lists batches whose reconciliation was deferred
func (s *ProductionService) ListPendingReconciliations(ctx context.Context, query ListPendingReconciliationsQuery) ([]BatchDTO, error) {
	limit := query.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	pending := true
	batches, _, err := s.batches.FindAll(ctx, domain.BatchFilter{ReconciliationPending: &pending}, limit, 0)
	if err != nil {
		return nil, err
	}
	return ToBatchDTOs(batches), nil
}

func (s *ProductionService) recordReconciled(summary *domain.ReconciliationSummary, d time.Duration) {
	s.metrics.RecordReconciliation("reconciled", d)
	if summary != nil && summary.CostVariancePct != nil {
		s.metrics.ObserveCostVariance(*summary.CostVariancePct)
	}
}

func checkVersion(batch *domain.ProductionBatch, expected *int64) error {
	if expected != nil && *expected != batch.Version {
		return domain.NewConflictError(fmt.Sprintf("batch %s is at version %d, expected %d", batch.ID, batch.Version, *expected))
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func deferredReason(warnings []string) string {
	if len(warnings) == 0 {
		return ""
	}
	return warnings[len(warnings)-1]
}
