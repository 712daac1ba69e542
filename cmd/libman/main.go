// cmd/libman/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"libman/internal/catalog"
	"libman/internal/circulation"
	"libman/internal/membership"
	"libman/internal/platform/config"
	"libman/internal/platform/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries the wired services for command handlers. It is populated
// lazily so `libman help` works without a reachable store.
type app struct {
	db      *storage.DB
	catalog catalog.Service
	members membership.Service
	loans   circulation.Service
}

func (a *app) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cliLogger()
	a.db, err = storage.Open(cfg.Driver, cfg.DSN, log)
	if err != nil {
		return err
	}
	a.catalog = catalog.NewService(a.db, log)
	a.members = membership.NewService(a.db, log)
	a.loans = circulation.NewService(a.db, log)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "libman",
		Short:         "Administer the lending catalog from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.AddCommand(
		newMemberCmd(a),
		newDocCmd(a),
		newBorrowCmd(a),
		newReturnCmd(a),
		newPurgeCmd(a),
		newLoansCmd(a),
		newPenaltyCmd(a),
	)
	return root
}
