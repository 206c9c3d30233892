package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecipeLine is the per-portion quantity of one ingredient
type RecipeLine struct {
	IngredientID       string  `json:"ingredientId"`
	IngredientName     string  `json:"ingredientName"`
	QuantityPerPortion float64 `json:"quantityPerPortion"`
	Unit               string  `json:"unit"`
}

// MenuRecipe is the recipe of a menu as returned by the recipe collaborator
type MenuRecipe struct {
	MenuID         string       `json:"menuId"`
	CostPerServing Money        `json:"costPerServing"`
	Lines          []RecipeLine `json:"lines"`
}

// IngredientIDs returns the distinct ingredient ids of the recipe
func (r *MenuRecipe) IngredientIDs() []string {
	seen := make(map[string]struct{}, len(r.Lines))
	ids := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		if _, ok := seen[l.IngredientID]; ok {
			continue
		}
		seen[l.IngredientID] = struct{}{}
		ids = append(ids, l.IngredientID)
	}
	return ids
}

// Validate rejects recipes that cannot be scaled
func (r *MenuRecipe) Validate() error {
	if len(r.Lines) == 0 {
		return NewValidationError(fmt.Sprintf("menu %s has no recipe lines", r.MenuID))
	}
	for i, l := range r.Lines {
		if strings.TrimSpace(l.IngredientID) == "" {
			return NewValidationError(fmt.Sprintf("menu %s recipe line %d has no ingredient", r.MenuID, i))
		}
		if l.QuantityPerPortion <= 0 {
			return NewValidationError(fmt.Sprintf("menu %s ingredient %s has non-positive quantity per portion", r.MenuID, l.IngredientID))
		}
	}
	return nil
}

// StockUsageRecord is the consumption of one ingredient by a batch
type StockUsageRecord struct {
	ID                 string    `bson:"id" json:"id"`
	BatchID            string    `bson:"batchId" json:"batchId"`
	IngredientID       string    `bson:"ingredientId" json:"ingredientId"`
	IngredientName     string    `bson:"ingredientName" json:"ingredientName"`
	QuantityPerPortion float64   `bson:"quantityPerPortion" json:"quantityPerPortion"`
	QuantityUsed       float64   `bson:"quantityUsed" json:"quantityUsed"`
	Unit               string    `bson:"unit" json:"unit"`
	UnitCost           Money     `bson:"unitCost" json:"unitCost"`
	LineCost           Money     `bson:"lineCost" json:"lineCost"`
	RecordedAt         time.Time `bson:"recordedAt" json:"recordedAt"`
	RecordedBy         string    `bson:"recordedBy" json:"recordedBy"`
}

// ReconciliationSummary is the one-per-batch result of reconciliation. Its
// batch id is the idempotency key.
type ReconciliationSummary struct {
	BatchID         string             `bson:"_id" json:"batchId"`
	BatchNumber     string             `bson:"batchNumber" json:"batchNumber"`
	ActualPortions  int                `bson:"actualPortions" json:"actualPortions"`
	Records         []StockUsageRecord `bson:"records" json:"records"`
	TotalCost       Money              `bson:"totalCost" json:"totalCost"`
	CostPerPortion  Money              `bson:"costPerPortion" json:"costPerPortion"`
	EstimatedCost   Money              `bson:"estimatedCost" json:"estimatedCost"`
	CostVariancePct *float64           `bson:"costVariancePct,omitempty" json:"costVariancePct"`
	ReconciledAt    time.Time          `bson:"reconciledAt" json:"reconciledAt"`
	ReconciledBy    string             `bson:"reconciledBy" json:"reconciledBy"`
}

// BuildReconciliation scales the recipe by the batch's actual portions and
// prices every line with the unit cost snapshot.
func BuildReconciliation(batch *ProductionBatch, recipe *MenuRecipe, unitCosts map[string]Money, actor string, now time.Time) (*ReconciliationSummary, error) {
	if batch.ActualPortions == nil || *batch.ActualPortions < 1 {
		return nil, NewStateError(fmt.Sprintf("batch %s has no actual portions recorded", batch.ID))
	}
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	portions := *batch.ActualPortions
	now = now.UTC()
	records := make([]StockUsageRecord, 0, len(recipe.Lines))
	var total Money

	for i, line := range recipe.Lines {
		unitCost, ok := unitCosts[line.IngredientID]
		if !ok {
			return nil, NewDependencyError(fmt.Sprintf("no unit cost available for ingredient %s", line.IngredientID), nil)
		}
		if i == 0 {
			total = ZeroMoney(unitCost.Currency())
		}

		qty := roundTo(line.QuantityPerPortion*float64(portions), 4)
		lineCost := unitCost.MultiplyQuantity(qty)

		var err error
		if total, err = total.Add(lineCost); err != nil {
			if errors.Is(err, ErrCurrencyMismatch) {
				return nil, NewValidationError(fmt.Sprintf("ingredient %s is priced in %s, expected %s", line.IngredientID, unitCost.Currency(), total.Currency()))
			}
			return nil, err
		}

		records = append(records, StockUsageRecord{
			ID:                 uuid.New().String(),
			BatchID:            batch.ID,
			IngredientID:       line.IngredientID,
			IngredientName:     line.IngredientName,
			QuantityPerPortion: line.QuantityPerPortion,
			QuantityUsed:       qty,
			Unit:               line.Unit,
			UnitCost:           unitCost,
			LineCost:           lineCost,
			RecordedAt:         now,
			RecordedBy:         actor,
		})
	}

	perPortion, err := total.DivideBy(portions)
	if err != nil {
		return nil, NewValidationError("actual portions must be positive")
	}

	return &ReconciliationSummary{
		BatchID:         batch.ID,
		BatchNumber:     batch.BatchNumber,
		ActualPortions:  portions,
		Records:         records,
		TotalCost:       total,
		CostPerPortion:  perPortion,
		EstimatedCost:   batch.EstimatedCost,
		CostVariancePct: CostVariancePct(total, batch.EstimatedCost),
		ReconciledAt:    now,
		ReconciledBy:    actor,
	}, nil
}

// CostVariancePct is (actual - estimated) / estimated * 100 rounded to 2
// decimals, or nil when the estimate is zero or in another currency.
func CostVariancePct(actual, estimated Money) *float64 {
	if estimated.IsZero() || actual.Currency() != estimated.Currency() {
		return nil
	}
	pct := roundTo(float64(actual.Amount()-estimated.Amount())/float64(estimated.Amount())*100, 2)
	return &pct
}

// ConsumedEvent builds the inventory decrement event for the summary
func (s *ReconciliationSummary) ConsumedEvent() *StockConsumedEvent {
	items := make([]ConsumptionItem, 0, len(s.Records))
	for _, r := range s.Records {
		items = append(items, ConsumptionItem{
			IngredientID: r.IngredientID,
			Quantity:     r.QuantityUsed,
			Unit:         r.Unit,
		})
	}
	return &StockConsumedEvent{
		BatchID:    s.BatchID,
		Items:      items,
		TotalCost:  s.TotalCost,
		ConsumedBy: s.ReconciledBy,
		ConsumedAt: s.ReconciledAt,
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
