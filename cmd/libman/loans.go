// cmd/libman/loans.go
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"libman/internal/circulation"
)

func newBorrowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow <member-id> <document-id>",
		Short: "Lend a document to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid member id: %w", err)
			}
			documentID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			loan, err := a.loans.CreateLoan(cmd.Context(), memberID, documentID)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %s opened, due %s\n",
				loan.ID, loan.ExpectedReturnDate.Format("2006-01-02"))
			return nil
		},
	}
}

func newReturnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Return a borrowed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loans.CloseLoan(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Loan %s closed.\n", args[0])
			return nil
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <loan-id>",
		Short: "Erase a loan from the record without assessing penalties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loans.PurgeLoan(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Loan %s purged.\n", args[0])
			return nil
		},
	}
}

func newLoansCmd(a *app) *cobra.Command {
	var (
		late     bool
		all      bool
		memberID string
	)
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List loans (open by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loans, err := selectLoans(cmd.Context(), a, late, all, memberID)
			if err != nil {
				return err
			}
			return printLoans(loans)
		},
	}
	cmd.Flags().BoolVar(&late, "late", false, "only open loans past their due date")
	cmd.Flags().BoolVar(&all, "all", false, "include returned loans")
	cmd.Flags().StringVar(&memberID, "member", "", "restrict to one member's history")
	return cmd
}

func newPenaltyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "penalty <member-id>",
		Short: "Show a member's assessed and pending penalties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid member id: %w", err)
			}
			summary, err := a.loans.PenaltySummaryFor(cmd.Context(), id)
			if err != nil {
				return err
			}
			open, err := a.loans.ActiveLoanCount(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Assessed: %.2f\nOwed if returned today: %.2f\nOpen loans: %d\n",
				summary.Accrued, summary.OwedNow, open)
			return nil
		},
	}
}

func selectLoans(ctx context.Context, a *app, late, all bool, memberID string) ([]*circulation.Loan, error) {
	if memberID != "" {
		id, err := uuid.Parse(memberID)
		if err != nil {
			return nil, fmt.Errorf("invalid member id: %w", err)
		}
		return a.loans.MemberLoans(ctx, id)
	}
	switch {
	case late:
		return a.loans.LateLoans(ctx)
	case all:
		return a.loans.AllLoans(ctx)
	default:
		return a.loans.CurrentLoans(ctx)
	}
}

func printLoans(loans []*circulation.Loan) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOAN\tDOCUMENT\tMEMBER\tBORROWED\tDUE\tRETURNED")
	for _, l := range loans {
		returned := "-"
		if l.ReturnDate != nil {
			returned = l.ReturnDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.DocumentID, l.MemberID,
			l.BorrowDate.Format("2006-01-02"),
			l.ExpectedReturnDate.Format("2006-01-02"),
			returned)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(loans) == 0 {
		fmt.Println("No loans.")
	}
	return nil
}
