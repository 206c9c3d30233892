package application

import "github.com/meal-program/production-service/internal/domain"

// ToMoneyDTO converts a domain Money to MoneyDTO
func ToMoneyDTO(m domain.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount(), Currency: m.Currency()}
}

// ToBatchDTO converts a domain ProductionBatch to BatchDTO
func ToBatchDTO(batch *domain.ProductionBatch) *BatchDTO {
	if batch == nil {
		return nil
	}

	allowed := make([]string, 0, 2)
	for _, s := range batch.Status.AllowedTransitions() {
		allowed = append(allowed, string(s))
	}

	assistants := batch.AssistantCooks
	if assistants == nil {
		assistants = []string{}
	}

	return &BatchDTO{
		ID:                    batch.ID,
		BatchNumber:           batch.BatchNumber,
		ProgramID:             batch.ProgramID,
		MenuID:                batch.MenuID,
		ProductionDate:        batch.ProductionDate.Format("2006-01-02"),
		Status:                string(batch.Status),
		AllowedTransitions:    allowed,
		PlannedPortions:       batch.PlannedPortions,
		ActualPortions:        batch.ActualPortions,
		PlannedStart:          batch.PlannedStart,
		PlannedEnd:            batch.PlannedEnd,
		ActualStart:           batch.ActualStart,
		ActualEnd:             batch.ActualEnd,
		HeadCook:              batch.HeadCook,
		AssistantCooks:        assistants,
		Supervisor:            batch.Supervisor,
		TargetTemperature:     batch.TargetTemperature,
		ActualTemperature:     batch.ActualTemperature,
		WasteAmount:           batch.WasteAmount,
		WasteNotes:            batch.WasteNotes,
		CancellationReason:    batch.CancellationReason,
		CostPerServing:        ToMoneyDTO(batch.CostPerServing),
		EstimatedCost:         ToMoneyDTO(batch.EstimatedCost),
		QualityPassed:         batch.QualityPassed,
		ReconciliationPending: batch.ReconciliationPending,
		ReconciliationError:   batch.ReconciliationError,
		Version:               batch.Version,
		CreatedBy:             batch.CreatedBy,
		CreatedAt:             batch.CreatedAt,
		UpdatedAt:             batch.UpdatedAt,
		CompletedAt:           batch.CompletedAt,
		CancelledAt:           batch.CancelledAt,
	}
}

// ToBatchDTOs converts a slice of batches
func ToBatchDTOs(batches []*domain.ProductionBatch) []BatchDTO {
	out := make([]BatchDTO, 0, len(batches))
	for _, b := range batches {
		out = append(out, *ToBatchDTO(b))
	}
	return out
}

// ToQualityCheckDTO converts a domain QualityCheck to QualityCheckDTO
func ToQualityCheckDTO(check *domain.QualityCheck) QualityCheckDTO {
	dto := QualityCheckDTO{
		ID:              check.ID,
		BatchID:         check.BatchID,
		CheckType:       string(check.CheckType),
		Parameter:       check.Parameter,
		ExpectedValue:   check.ExpectedValue,
		ActualValue:     check.ActualValue,
		Passed:          check.Passed,
		Score:           check.Score,
		EffectiveScore:  check.EffectiveScore(),
		Notes:           check.Notes,
		Recommendations: check.Recommendations,
		ActionRequired:  check.ActionRequired,
		ActionTaken:     check.ActionTaken,
		CheckedBy:       check.CheckedBy,
		CheckTime:       check.CheckTime,
	}
	if check.Severity != nil {
		sev := string(*check.Severity)
		dto.Severity = &sev
	}
	return dto
}

// ToQualityCheckDTOs converts a slice of checks
func ToQualityCheckDTOs(checks []*domain.QualityCheck) []QualityCheckDTO {
	out := make([]QualityCheckDTO, 0, len(checks))
	for _, c := range checks {
		out = append(out, ToQualityCheckDTO(c))
	}
	return out
}

// ToQualitySummaryDTO converts a domain QualitySummary
func ToQualitySummaryDTO(s *domain.QualitySummary) *QualitySummaryDTO {
	return &QualitySummaryDTO{
		BatchID:          s.BatchID,
		OverallScore:     s.OverallScore,
		Verdict:          s.Verdict,
		PassThreshold:    s.PassThreshold,
		CheckCount:       s.CheckCount,
		FailedCount:      s.FailedCount,
		CriticalFailures: ToQualityCheckDTOs(s.CriticalFailures),
		OpenActionItems:  ToQualityCheckDTOs(s.OpenActionItems),
	}
}

// ToReconciliationDTO converts a domain ReconciliationSummary
func ToReconciliationDTO(s *domain.ReconciliationSummary) *ReconciliationDTO {
	if s == nil {
		return nil
	}

	records := make([]StockUsageDTO, 0, len(s.Records))
	for _, r := range s.Records {
		records = append(records, StockUsageDTO{
			ID:                 r.ID,
			IngredientID:       r.IngredientID,
			IngredientName:     r.IngredientName,
			QuantityPerPortion: r.QuantityPerPortion,
			QuantityUsed:       r.QuantityUsed,
			Unit:               r.Unit,
			UnitCost:           ToMoneyDTO(r.UnitCost),
			LineCost:           ToMoneyDTO(r.LineCost),
			RecordedAt:         r.RecordedAt,
			RecordedBy:         r.RecordedBy,
		})
	}

	return &ReconciliationDTO{
		BatchID:         s.BatchID,
		BatchNumber:     s.BatchNumber,
		ActualPortions:  s.ActualPortions,
		Records:         records,
		TotalCost:       ToMoneyDTO(s.TotalCost),
		CostPerPortion:  ToMoneyDTO(s.CostPerPortion),
		EstimatedCost:   ToMoneyDTO(s.EstimatedCost),
		CostVariancePct: s.CostVariancePct,
		ReconciledAt:    s.ReconciledAt,
		ReconciledBy:    s.ReconciledBy,
	}
}

func toTransitionPayload(cmd TransitionCommand) domain.TransitionPayload {
	return domain.TransitionPayload{
		ActualPortions:    cmd.ActualPortions,
		ActualTemperature: cmd.ActualTemperature,
		WasteAmount:       cmd.WasteAmount,
		WasteNotes:        cmd.WasteNotes,
		QualityPassed:     cmd.QualityPassed,
		Reason:            cmd.Reason,
	}
}
