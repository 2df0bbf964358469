// Package balance derives account balances from the transaction log.
package balance

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
)

// DefaultTolerance is the largest difference treated as a match when a
// cached balance is compared against the computed one.
var DefaultTolerance = decimal.New(1, -2)

// Effect returns the signed change tx makes to the balance of tx.AccountID.
// The second result is false for unrecognised transaction types.
func Effect(tx core.Transaction) (decimal.Decimal, bool) {
	switch tx.Type {
	case core.TxIncome, core.TxGoalWithdrawal:
		return tx.Amount, true
	case core.TxExpense, core.TxTransfer, core.TxGoalContribution:
		return tx.Amount.Neg(), true
	case core.TxBalanceAdjustment:
		// The amount carries its own sign.
		return tx.Amount, true
	default:
		return decimal.Zero, false
	}
}

// IncomingEffect returns the change a transfer makes to its destination.
func IncomingEffect(tx core.Transaction) decimal.Decimal {
	if tx.Type != core.TxTransfer || tx.ToAccountID == "" {
		return decimal.Zero
	}
	return tx.Amount
}

// Compute folds txs over initial using the sign table. Transactions of an
// unknown type are logged and skipped.
func Compute(initial decimal.Decimal, txs []core.Transaction, logger *slog.Logger) decimal.Decimal {
	if logger == nil {
		logger = slog.Default()
	}
	total := initial
	for _, tx := range txs {
		delta, ok := Effect(tx)
		if !ok {
			logger.Warn("Skipping transaction with unknown type",
				"transaction_id", tx.ID,
				"type", string(tx.Type))
			continue
		}
		total = total.Add(delta)
	}
	return total
}

// ComputeForAccount derives the balance of accountID from a mixed
// transaction set: outgoing effects of its own transactions plus incoming
// transfers that name it as destination.
func ComputeForAccount(accountID string, initial decimal.Decimal, txs []core.Transaction, logger *slog.Logger) decimal.Decimal {
	own := make([]core.Transaction, 0, len(txs))
	incoming := decimal.Zero
	for _, tx := range txs {
		if tx.AccountID == accountID {
			own = append(own, tx)
		}
		if tx.Type == core.TxTransfer && tx.ToAccountID == accountID {
			incoming = incoming.Add(IncomingEffect(tx))
		}
	}
	return Compute(initial, own, logger).Add(incoming)
}

// Verification is the result of comparing a cached balance against the
// balance derived from the log.
type Verification struct {
	AccountID  string
	Expected   decimal.Decimal
	Actual     decimal.Decimal
	Difference decimal.Decimal // Actual - Expected
	Tolerance  decimal.Decimal
	Matches    bool
}

// Verify compares expected (cached) with actual (computed). A zero tolerance
// means DefaultTolerance.
func Verify(accountID string, expected, actual, tolerance decimal.Decimal) Verification {
	if tolerance.IsZero() {
		tolerance = DefaultTolerance
	}
	diff := actual.Sub(expected)
	return Verification{
		AccountID:  accountID,
		Expected:   expected,
		Actual:     actual,
		Difference: diff,
		Tolerance:  tolerance,
		Matches:    diff.Abs().LessThanOrEqual(tolerance),
	}
}

// Err returns an *core.IntegrityMismatch when the balances disagree.
func (v Verification) Err() error {
	if v.Matches {
		return nil
	}
	return &core.IntegrityMismatch{
		AccountID:  v.AccountID,
		Expected:   v.Expected,
		Actual:     v.Actual,
		Difference: v.Difference,
	}
}
