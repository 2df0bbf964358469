// Package ledger applies and reverts the balance effects of transaction
// writes. It is the only code that moves cached account balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/balance"
	"fincore/internal/core"
	"fincore/internal/store"
)

// Store is the part of the storage adapter the coordinator works against.
type Store interface {
	store.AccountStore
	store.CategoryStore
	store.TransactionStore
	GetGoal(ctx context.Context, id string) (core.Goal, error)
	UpdateGoalAmount(ctx context.Context, id string, amount decimal.Decimal) error
	ContributeToGoal(ctx context.Context, m store.GoalMovement) (core.Transaction, error)
	WithdrawFromGoal(ctx context.Context, m store.GoalMovement) (core.Transaction, error)
}

const (
	AnomalyMissingDestination = "missing_destination"
	AnomalyMissingGoal        = "missing_goal"
)

// Anomaly is a tolerated inconsistency met while applying effects.
type Anomaly struct {
	Kind          string
	TransactionID string
	AccountID     string
	GoalID        string
}

// Mutation reports what a write did to the ledger.
type Mutation struct {
	Transaction core.Transaction
	// Balances holds the new cached balance of every account written.
	Balances map[string]decimal.Decimal
	// GoalAmounts holds the new current amount of every goal written.
	GoalAmounts map[string]decimal.Decimal
	Anomalies   []Anomaly
}

type Coordinator struct {
	store  Store
	locks  *lockTable
	logger *slog.Logger
	pub    Publisher
	now    func() time.Time
}

type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.pub = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(s Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  s,
		locks:  newLockTable(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// leg is one signed balance change on one account.
type leg struct {
	accountID   string
	delta       decimal.Decimal
	destination bool
	txID        string
}

// legs lists the balance changes of tx. sign is +1 to apply, -1 to revert.
func legs(tx core.Transaction, sign int64) ([]leg, error) {
	delta, ok := balance.Effect(tx)
	if !ok {
		return nil, &core.ValidationError{Field: "type", Reason: "unknown transaction type " + string(tx.Type)}
	}
	s := decimal.NewFromInt(sign)
	out := []leg{{accountID: tx.AccountID, delta: delta.Mul(s), txID: tx.ID}}
	if tx.Type == core.TxTransfer && tx.ToAccountID != "" {
		out = append(out, leg{accountID: tx.ToAccountID, delta: balance.IncomingEffect(tx).Mul(s), destination: true, txID: tx.ID})
	}
	return out, nil
}

// goalLeg moves a goal's current amount the way a goal transaction does.
// Reverting a contribution is a withdrawal and the other way round.
type goalLeg struct {
	goalID string
	typ    core.TransactionType
	amount decimal.Decimal
	txID   string
}

// goalLegs lists the goal movement of tx, if it has one.
func goalLegs(tx core.Transaction, sign int64) []goalLeg {
	if !tx.Type.IsGoalType() || tx.GoalID == "" {
		return nil
	}
	typ := tx.Type
	if sign < 0 {
		typ = core.TxGoalContribution
		if tx.Type == core.TxGoalContribution {
			typ = core.TxGoalWithdrawal
		}
	}
	return []goalLeg{{goalID: tx.GoalID, typ: typ, amount: tx.Amount, txID: tx.ID}}
}

// goalLockKey keeps goal locks apart from account locks in one table.
func goalLockKey(id string) string { return "goal/" + id }

func lockKeys(ls []leg, gs []goalLeg) []string {
	keys := make([]string, 0, len(ls)+len(gs))
	for _, l := range ls {
		keys = append(keys, l.accountID)
	}
	for _, g := range gs {
		keys = append(keys, goalLockKey(g.goalID))
	}
	return keys
}

// plan is a set of legs whose accounts and goals have been read under lock.
type plan struct {
	next      map[string]decimal.Decimal
	order     []string
	goals     map[string]decimal.Decimal
	goalOrder []string
	anomalies []Anomaly
}

// prepare reads every touched account and goal and nets the changes. A
// missing source account is fatal; a missing transfer destination or goal
// is recorded as an anomaly and its leg dropped. Callers hold the locks.
func (c *Coordinator) prepare(ctx context.Context, ls []leg, gs []goalLeg) (*plan, error) {
	p := &plan{next: make(map[string]decimal.Decimal), goals: make(map[string]decimal.Decimal)}
	missing := make(map[string]bool)
	for _, l := range ls {
		if missing[l.accountID] {
			continue
		}
		cur, ok := p.next[l.accountID]
		if !ok {
			acc, err := c.store.GetAccount(ctx, l.accountID)
			switch {
			case err == nil:
				cur = acc.Balance
				p.order = append(p.order, l.accountID)
			case errors.Is(err, core.ErrNotFound) && l.destination:
				missing[l.accountID] = true
				p.anomalies = append(p.anomalies, Anomaly{Kind: AnomalyMissingDestination, TransactionID: l.txID, AccountID: l.accountID})
				c.logger.WarnContext(ctx, "Transfer destination account not found, source leg applied alone",
					"transaction_id", l.txID,
					"account_id", l.accountID)
				continue
			default:
				return nil, fmt.Errorf("read account %s: %w", l.accountID, err)
			}
		}
		p.next[l.accountID] = cur.Add(l.delta)
	}
	if err := c.prepareGoals(ctx, p, gs); err != nil {
		return nil, err
	}
	return p, nil
}

// prepareGoals applies the goal legs in order, so an update reverts the old
// movement before the new one is checked against the goal amount.
func (c *Coordinator) prepareGoals(ctx context.Context, p *plan, gs []goalLeg) error {
	missing := make(map[string]bool)
	for _, g := range gs {
		if missing[g.goalID] {
			continue
		}
		cur, ok := p.goals[g.goalID]
		if !ok {
			goal, err := c.store.GetGoal(ctx, g.goalID)
			switch {
			case err == nil:
				cur = goal.CurrentAmount
				p.goalOrder = append(p.goalOrder, g.goalID)
			case errors.Is(err, core.ErrNotFound):
				missing[g.goalID] = true
				p.anomalies = append(p.anomalies, Anomaly{Kind: AnomalyMissingGoal, TransactionID: g.txID, GoalID: g.goalID})
				c.logger.WarnContext(ctx, "Goal not found, account legs applied alone",
					"transaction_id", g.txID,
					"goal_id", g.goalID)
				continue
			default:
				return fmt.Errorf("read goal %s: %w", g.goalID, err)
			}
		}
		next, err := store.MoveGoalAmount(cur, g.amount, g.typ)
		if err != nil {
			return fmt.Errorf("goal %s: %w", g.goalID, err)
		}
		p.goals[g.goalID] = next
	}
	return nil
}

// commit writes the planned balances.
func (c *Coordinator) commit(ctx context.Context, p *plan) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(p.order))
	for _, id := range p.order {
		if err := c.store.UpdateAccountBalance(ctx, id, p.next[id]); err != nil {
			return out, fmt.Errorf("update balance of %s: %w", id, err)
		}
		out[id] = p.next[id]
	}
	return out, nil
}

func (c *Coordinator) commitGoals(ctx context.Context, p *plan) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(p.goalOrder))
	for _, id := range p.goalOrder {
		if err := c.store.UpdateGoalAmount(ctx, id, p.goals[id]); err != nil {
			return out, fmt.Errorf("update amount of goal %s: %w", id, err)
		}
		out[id] = p.goals[id]
	}
	return out, nil
}

// run locks the accounts of ls and the goals of gs (plus any extra keys),
// plans, calls persist (if any) and commits.
func (c *Coordinator) run(ctx context.Context, ls []leg, gs []goalLeg, persist func() error, extra ...string) (Mutation, error) {
	release, err := c.locks.acquire(ctx, append(lockKeys(ls, gs), extra...)...)
	if err != nil {
		return Mutation{}, err
	}
	defer release()

	p, err := c.prepare(ctx, ls, gs)
	if err != nil {
		return Mutation{}, err
	}
	if persist != nil {
		if err := persist(); err != nil {
			return Mutation{}, err
		}
	}
	m := Mutation{Anomalies: p.anomalies}
	if m.Balances, err = c.commit(ctx, p); err != nil {
		return m, err
	}
	if len(p.goalOrder) > 0 {
		m.GoalAmounts, err = c.commitGoals(ctx, p)
	}
	return m, err
}

// Lock holds the balance locks of accountIDs until the returned func is
// called. Writers outside the coordinator use it to move initial balances
// without racing ledger writes.
func (c *Coordinator) Lock(ctx context.Context, accountIDs ...string) (func(), error) {
	return c.locks.acquire(ctx, accountIDs...)
}

// Apply adds the balance and goal effects of tx. It does not persist tx.
func (c *Coordinator) Apply(ctx context.Context, tx core.Transaction) (Mutation, error) {
	ls, err := legs(tx, 1)
	if err != nil {
		return Mutation{}, err
	}
	m, err := c.run(ctx, ls, goalLegs(tx, 1), nil)
	m.Transaction = tx
	return m, err
}

// Revert is the exact inverse of Apply.
func (c *Coordinator) Revert(ctx context.Context, tx core.Transaction) (Mutation, error) {
	ls, err := legs(tx, -1)
	if err != nil {
		return Mutation{}, err
	}
	m, err := c.run(ctx, ls, goalLegs(tx, -1), nil)
	m.Transaction = tx
	return m, err
}

// checkReferences looks up what tx points at. The transfer destination is
// not checked here; its absence is tolerated when effects are applied.
func (c *Coordinator) checkReferences(ctx context.Context, tx core.Transaction) error {
	if _, err := c.store.GetAccount(ctx, tx.AccountID); err != nil {
		return err
	}
	if tx.Type == core.TxExpense || tx.Type == core.TxIncome {
		if tx.CategoryID == "" {
			return &core.ValidationError{Field: "categoryId", Reason: "required for " + string(tx.Type)}
		}
		cat, err := c.store.GetCategory(ctx, tx.CategoryID)
		if err != nil {
			return err
		}
		if err := core.CategoryMatchesTransaction(cat, tx); err != nil {
			return err
		}
	}
	if tx.Type.IsGoalType() {
		if _, err := c.store.GetGoal(ctx, tx.GoalID); err != nil {
			return err
		}
	}
	return nil
}

// Create validates and persists tx, then applies its effects.
func (c *Coordinator) Create(ctx context.Context, tx core.Transaction) (Mutation, error) {
	if err := tx.Validate(); err != nil {
		return Mutation{}, err
	}
	if err := c.checkReferences(ctx, tx); err != nil {
		return Mutation{}, err
	}
	ls, err := legs(tx, 1)
	if err != nil {
		return Mutation{}, err
	}

	var saved core.Transaction
	m, err := c.run(ctx, ls, goalLegs(tx, 1), func() error {
		var err error
		saved, err = c.store.CreateTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return Mutation{}, err
	}
	m.Transaction = saved
	for i := range m.Anomalies {
		m.Anomalies[i].TransactionID = saved.ID
	}
	c.logMutation(ctx, "create", m)
	c.publish(ctx, EventCreated, saved, m)
	return m, nil
}

// Update replaces prior with next: prior's effects are reverted and next's
// applied in one locked window. prior must be the stored state.
func (c *Coordinator) Update(ctx context.Context, prior *core.Transaction, next core.Transaction) (Mutation, error) {
	if prior == nil {
		return Mutation{}, core.ErrPriorStateRequired
	}
	if next.ID == "" {
		next.ID = prior.ID
	}
	if next.ID != prior.ID {
		return Mutation{}, &core.ValidationError{Field: "id", Reason: "prior and next describe different transactions"}
	}
	if err := next.Validate(); err != nil {
		return Mutation{}, err
	}
	if err := c.checkReferences(ctx, next); err != nil {
		return Mutation{}, err
	}
	reverts, err := legs(*prior, -1)
	if err != nil {
		return Mutation{}, err
	}
	applies, err := legs(next, 1)
	if err != nil {
		return Mutation{}, err
	}

	goals := append(goalLegs(*prior, -1), goalLegs(next, 1)...)

	var saved core.Transaction
	m, err := c.run(ctx, append(reverts, applies...), goals, func() error {
		var err error
		saved, err = c.store.UpdateTransaction(ctx, next)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return Mutation{}, err
	}
	m.Transaction = saved
	c.logMutation(ctx, "update", m)
	c.publish(ctx, EventUpdated, saved, m)
	return m, nil
}

// Delete removes prior and reverts its effects.
func (c *Coordinator) Delete(ctx context.Context, prior *core.Transaction) (Mutation, error) {
	if prior == nil {
		return Mutation{}, core.ErrPriorStateRequired
	}
	ls, err := legs(*prior, -1)
	if err != nil {
		return Mutation{}, err
	}
	m, err := c.run(ctx, ls, goalLegs(*prior, -1), func() error {
		if err := c.store.DeleteTransaction(ctx, prior.ID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return Mutation{}, err
	}
	m.Transaction = *prior
	c.logMutation(ctx, "delete", m)
	c.publish(ctx, EventDeleted, *prior, m)
	return m, nil
}

// ContributeToGoal moves money from an account into a goal.
func (c *Coordinator) ContributeToGoal(ctx context.Context, mv store.GoalMovement) (Mutation, error) {
	return c.moveGoal(ctx, mv, core.TxGoalContribution)
}

// WithdrawFromGoal moves money from a goal back into an account.
func (c *Coordinator) WithdrawFromGoal(ctx context.Context, mv store.GoalMovement) (Mutation, error) {
	return c.moveGoal(ctx, mv, core.TxGoalWithdrawal)
}

func (c *Coordinator) moveGoal(ctx context.Context, mv store.GoalMovement, typ core.TransactionType) (Mutation, error) {
	if err := mv.Validate(); err != nil {
		return Mutation{}, err
	}
	ls, err := legs(mv.Transaction(typ), 1)
	if err != nil {
		return Mutation{}, err
	}

	// The store moves the goal amount itself; the goal is only locked here.
	var (
		saved core.Transaction
		goal  core.Goal
	)
	m, err := c.run(ctx, ls, nil, func() error {
		var err error
		if typ == core.TxGoalContribution {
			saved, err = c.store.ContributeToGoal(ctx, mv)
		} else {
			saved, err = c.store.WithdrawFromGoal(ctx, mv)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", typ, err)
		}
		goal, err = c.store.GetGoal(ctx, mv.GoalID)
		return err
	}, goalLockKey(mv.GoalID))
	if err != nil {
		return Mutation{}, err
	}
	m.Transaction = saved
	m.GoalAmounts = map[string]decimal.Decimal{goal.ID: goal.CurrentAmount}
	c.logMutation(ctx, string(typ), m)
	c.publish(ctx, EventGoalMovement, saved, m)
	return m, nil
}

func (c *Coordinator) logMutation(ctx context.Context, op string, m Mutation) {
	c.logger.InfoContext(ctx, "Ledger mutation applied",
		"operation", op,
		"transaction_id", m.Transaction.ID,
		"type", string(m.Transaction.Type),
		"accounts", len(m.Balances),
		"goals", len(m.GoalAmounts),
		"anomalies", len(m.Anomalies))
}

func (c *Coordinator) publish(ctx context.Context, kind EventKind, tx core.Transaction, m Mutation) {
	if c.pub == nil {
		return
	}
	e := Event{
		Kind:          kind,
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		AccountIDs:    slices.Sorted(maps.Keys(m.Balances)),
		Timestamp:     c.now(),
	}
	if err := c.pub.PublishLedgerEvent(ctx, e); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish ledger event",
			"kind", string(kind),
			"transaction_id", tx.ID,
			"error", err)
	}
}
