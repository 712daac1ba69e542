// cmd/libman/members.go
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"libman/internal/membership"
)

// cliLogger keeps service logging out of command output; only errors
// reach stderr.
func cliLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage library members",
	}

	add := &cobra.Command{
		Use:   "add <name> <surname>",
		Short: "Register a new member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.members.RegisterMember(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s %s (%s)\n", m.Name, m.Surname, m.ID)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := a.members.ListMembers(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTIER\tPENALTY\tOPEN LOANS")
			for _, m := range members {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%.2f\t%d\n",
					m.ID, m.Name, m.Surname, m.PenaltyTier, m.AccumulatedPenalty, m.OpenLoanCount)
			}
			return w.Flush()
		},
	}

	rm := &cobra.Command{
		Use:   "rm <member-id>",
		Short: "Remove a member with no loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid member id: %w", err)
			}
			if err := a.members.DeleteMember(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Println("Member removed.")
			return nil
		},
	}

	var tierName string
	setTier := &cobra.Command{
		Use:   "set-tier <member-id>",
		Short: "Administratively override a member's penalty tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid member id: %w", err)
			}
			tier, err := membership.ParseTier(tierName)
			if err != nil {
				return err
			}
			m, err := a.members.UpdateMember(cmd.Context(), id, membership.Update{Tier: &tier})
			if err != nil {
				return err
			}
			fmt.Printf("%s %s is now %s\n", m.Name, m.Surname, m.PenaltyTier)
			return nil
		},
	}
	setTier.Flags().StringVar(&tierName, "tier", "NONE", "NONE, WARNING, SUSPENDED, or BANNED")

	cmd.AddCommand(add, list, rm, setTier)
	return cmd
}
