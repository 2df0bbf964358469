package migration

import (
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
)

// BudgetRecord is the persisted budget shape accepted from backups. Legacy
// records carry a single CategoryID; current ones carry CategoryIDs. Only
// MigrateBudget turns it into a core.Budget, so the engines never see the
// legacy field.
type BudgetRecord struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Name        string            `json:"name"`
	CategoryID  string            `json:"categoryId,omitempty"`
	CategoryIDs []string          `json:"categoryIds,omitempty"`
	Amount      decimal.Decimal   `json:"amount"`
	Spent       decimal.Decimal   `json:"spent"`
	Period      core.BudgetPeriod `json:"period"`
	StartDate   time.Time         `json:"startDate"`
	EndDate     *time.Time        `json:"endDate,omitempty"`
	Rollover    bool              `json:"rollover"`
	Alerts      core.AlertConfig  `json:"alerts"`
	IsActive    *bool             `json:"isActive,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// IsLegacy reports whether the record still uses the single-category shape.
func (r BudgetRecord) IsLegacy() bool {
	return len(r.CategoryIDs) == 0 && r.CategoryID != ""
}

// MigrateBudgetRecord moves a legacy CategoryID into CategoryIDs and clears
// it. Current records pass through.
func MigrateBudgetRecord(r BudgetRecord) BudgetRecord {
	if r.IsLegacy() {
		r.CategoryIDs = []string{r.CategoryID}
	}
	r.CategoryID = ""
	return r
}

// MigrateBudget converts a persisted record into the current model.
func MigrateBudget(r BudgetRecord) core.Budget {
	r = MigrateBudgetRecord(r)
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return core.Budget{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		CategoryIDs: append([]string(nil), r.CategoryIDs...),
		Amount:      r.Amount,
		Spent:       r.Spent,
		Period:      r.Period,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Rollover:    r.Rollover,
		Alerts:      r.Alerts,
		IsActive:    active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
