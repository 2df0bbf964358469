package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"fincore/internal/core"
	"fincore/internal/goal"
	"fincore/internal/log"
	"fincore/internal/services"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a JSON backup into BACKUP_DIR",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := a.backups().Export(cmd.Context(), userID, time.Now())
		if err != nil {
			return a.fail(cmd.Context(), log.OpExport, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <backup_file>",
	Short: "Load a JSON backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		report, err := a.backups().Import(cmd.Context(), args[0], target)
		if err != nil {
			return a.fail(cmd.Context(), log.OpImport, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d records", report.Total())
		if report.DetectedUserID != "" {
			fmt.Fprintf(out, " (backup owner %s)", report.DetectedUserID)
		}
		fmt.Fprintln(out)
		for _, k := range []string{"accounts", "transactions", "categories", "budgets", "goals", "users"} {
			fmt.Fprintf(out, "  %-12s %d\n", k, report.Counts[k])
		}
		return nil
	},
}

var migrateGuestCmd = &cobra.Command{
	Use:   "migrate-guest",
	Short: "Hand a guest's data to an authenticated user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		guest, _ := cmd.Flags().GetString("guest")
		to, _ := cmd.Flags().GetString("to")
		res, err := a.guests().Upgrade(cmd.Context(), services.MigrationContext{GuestID: guest, AuthUserID: to})
		if err != nil {
			return a.fail(cmd.Context(), log.OpMigrate, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s -> %s: %v\n", guest, to, res.MigratedCounts)
		return nil
	},
}

var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Recompute the spent amount of active budgets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if userID == "" {
			n, err := a.recalc.RecalculateAll(ctx, time.Now())
			if err != nil {
				return a.fail(ctx, log.OpRecalc, err)
			}
			fmt.Fprintf(out, "Recalculated %d budgets\n", n)
			return nil
		}
		res, err := a.recalc.RecalculateUser(ctx, userID, time.Now())
		if err != nil {
			return a.fail(ctx, log.OpRecalc, err)
		}
		for _, p := range res {
			flag := ""
			switch {
			case p.IsOverBudget:
				flag = " OVER"
			case p.IsWarning:
				flag = " warning"
			}
			fmt.Fprintf(out, "%s  spent %s  remaining %s  %.1f%%%s\n",
				p.BudgetID, p.Spent.StringFixed(2), p.Remaining.StringFixed(2), p.Percentage, flag)
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare cached balances with the transaction log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		accountID, _ := cmd.Flags().GetString("account")
		rebuild, _ := cmd.Flags().GetBool("rebuild")
		tol := a.cfg.BalanceTolerance

		var ids []string
		switch {
		case accountID != "":
			ids = []string{accountID}
		case userID != "":
			accounts, err := a.backend.Store.ListAccounts(ctx, userID, nil, nil)
			if err != nil {
				return a.fail(ctx, log.OpVerify, err)
			}
			for _, acc := range accounts {
				ids = append(ids, acc.ID)
			}
		default:
			return errors.New("verify needs --account or --user")
		}

		mismatches := 0
		out := cmd.OutOrStdout()
		for _, id := range ids {
			v, err := a.ledger.VerifyAccount(ctx, id, tol)
			if err != nil {
				return a.fail(ctx, log.OpVerify, err)
			}
			if v.Matches {
				fmt.Fprintf(out, "%s  ok  %s\n", id, v.Expected.StringFixed(2))
				continue
			}
			mismatches++
			fmt.Fprintf(out, "%s  MISMATCH  cached %s  derived %s  diff %s\n",
				id, v.Expected.StringFixed(2), v.Actual.StringFixed(2), v.Difference.StringFixed(2))
			if rebuild {
				if _, err := a.ledger.RebuildAccount(ctx, id); err != nil {
					return a.fail(ctx, log.OpRebuild, err)
				}
				fmt.Fprintf(out, "%s  rebuilt to %s\n", id, v.Actual.StringFixed(2))
			}
		}
		if mismatches > 0 && !rebuild {
			return fmt.Errorf("%d of %d accounts %w", mismatches, len(ids), core.ErrIntegrityMismatch)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the financial month dashboard of a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if userID == "" {
			return errors.New("stats needs --user")
		}
		at, _ := cmd.Flags().GetString("at")
		ref, err := parseDay(at)
		if err != nil {
			return err
		}
		d, err := a.stats.Dashboard(cmd.Context(), userID, ref)
		if err != nil {
			return a.fail(cmd.Context(), "stats", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Period      %s .. %s\n", d.Period.Start.Format(time.DateOnly), d.Period.End.Format(time.DateOnly))
		fmt.Fprintf(out, "Income      %s\n", d.Summary.Income.StringFixed(2))
		fmt.Fprintf(out, "Expenses    %s\n", d.Summary.Expense.StringFixed(2))
		fmt.Fprintf(out, "Savings     %s (%.1f%%)\n", d.Summary.Savings.StringFixed(2), d.Summary.SavingsRate)
		fmt.Fprintf(out, "Net worth   %s\n", d.NetWorth.NetWorth.StringFixed(2))
		for _, c := range d.Spending {
			fmt.Fprintf(out, "  %-24s %10s  %5.1f%%  (%d)\n", c.CategoryID, c.Amount.StringFixed(2), c.Percentage, c.Count)
		}
		return nil
	},
}

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Show the progress of a user's goals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if userID == "" {
			return errors.New("goals needs --user")
		}
		goals, err := a.backend.Store.ListGoals(cmd.Context(), userID, nil, nil)
		if err != nil {
			return a.fail(cmd.Context(), "goals", err)
		}
		now := time.Now()
		for _, g := range goals {
			printGoal(cmd.OutOrStdout(), g, goal.Calculate(g, now))
		}
		return nil
	},
}

// printGoal writes one goal line. Amounts are rounded to cents here only.
func printGoal(w io.Writer, g core.Goal, p goal.Progress) {
	fmt.Fprintf(w, "%-24s %10s / %-10s %5.1f%%", g.Name,
		g.CurrentAmount.StringFixed(2), g.TargetAmount.StringFixed(2), goal.ClampPercentage(p.Percentage))
	if p.HasDeadline {
		state := "on track"
		if !p.OnTrack {
			state = "behind"
		}
		fmt.Fprintf(w, "  %d days left, %s/month, %s", p.DaysUntilDeadline, p.RequiredMonthlyContribution.StringFixed(2), state)
	}
	fmt.Fprintln(w)
}

var adjustCmd = &cobra.Command{
	Use:   "adjust <account_id>",
	Short: "Record a balance adjustment that brings an account to a target balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		raw, _ := cmd.Flags().GetString("to")
		note, _ := cmd.Flags().GetString("note")
		target, err := core.ParseAmount(raw)
		if err != nil {
			return err
		}
		acc, err := a.backend.Store.GetAccount(ctx, args[0])
		if err != nil {
			return a.fail(ctx, log.OpCreate, err)
		}
		delta := target.Sub(acc.Balance)
		if delta.IsZero() {
			fmt.Fprintln(cmd.OutOrStdout(), "Balance already matches")
			return nil
		}
		if note == "" {
			note = "Balance adjustment"
		}
		m, err := a.ledger.Create(ctx, core.Transaction{
			UserID:      acc.UserID,
			AccountID:   acc.ID,
			Type:        core.TxBalanceAdjustment,
			Amount:      delta,
			Description: note,
			Date:        time.Now(),
		})
		if err != nil {
			return a.fail(ctx, log.OpCreate, err)
		}
		a.logger.InfoContext(ctx, "Balance adjusted", log.NewFields().
			WithUser(acc.UserID).
			WithTransaction(m.Transaction.ID, string(m.Transaction.Type), acc.ID, delta).
			ToSlice()...)
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s -> %s\n", acc.ID, acc.Balance.StringFixed(2), m.Balances[acc.ID].StringFixed(2))
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Fold old transactions into initial balances and remove them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		before, _ := cmd.Flags().GetString("before")
		cutoff, err := parseDay(before)
		if err != nil {
			return err
		}
		var n int
		if userID == "" {
			n, err = a.archiver().ArchiveAll(ctx, cutoff)
		} else {
			n, err = a.archiver().ArchiveUser(ctx, userID, cutoff)
		}
		if err != nil {
			return a.fail(ctx, log.OpArchive, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Archived %d transactions\n", n)
		return nil
	},
}
