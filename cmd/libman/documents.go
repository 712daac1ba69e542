// cmd/libman/documents.go
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"libman/internal/catalog"
)

func newDocCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage the document catalog",
	}

	var (
		genre     string
		pageCount int
	)
	addBook := &cobra.Command{
		Use:   "add-book <title> <author> <isbn>",
		Short: "Add a book to the catalog",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.catalog.AddDocument(cmd.Context(), catalog.Document{
				Title:  args[0],
				Author: args[1],
				Genre:  genre,
				Kind:   catalog.KindBook,
				Book:   &catalog.BookDetails{ISBN: args[2], PageCount: pageCount},
			})
			if err != nil {
				return err
			}
			fmt.Printf("Added book %q (%s)\n", doc.Title, doc.ID)
			return nil
		},
	}
	addBook.Flags().StringVar(&genre, "genre", "General", "document genre")
	addBook.Flags().IntVar(&pageCount, "pages", 1, "page count")

	var (
		magGenre    string
		issue       int
		periodicity string
	)
	addMagazine := &cobra.Command{
		Use:   "add-magazine <title> <publisher>",
		Short: "Add a magazine issue to the catalog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := catalog.ParsePeriodicity(periodicity)
			if err != nil {
				return err
			}
			doc, err := a.catalog.AddDocument(cmd.Context(), catalog.Document{
				Title:    args[0],
				Author:   args[1],
				Genre:    magGenre,
				Kind:     catalog.KindMagazine,
				Magazine: &catalog.MagazineDetails{IssueNumber: issue, Periodicity: p},
			})
			if err != nil {
				return err
			}
			fmt.Printf("Added magazine %q issue %d (%s)\n", doc.Title, issue, doc.ID)
			return nil
		},
	}
	addMagazine.Flags().StringVar(&magGenre, "genre", "General", "document genre")
	addMagazine.Flags().IntVar(&issue, "issue", 1, "issue number")
	addMagazine.Flags().StringVar(&periodicity, "periodicity", string(catalog.PeriodicityMonthly),
		"DAILY, WEEKLY, BIWEEKLY, MONTHLY, BIMONTHLY, QUARTERLY, or YEARLY")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := a.catalog.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tTITLE\tAUTHOR\tAVAILABLE")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", d.ID, d.Kind, d.Title, d.Author, d.Available)
			}
			return w.Flush()
		},
	}

	rm := &cobra.Command{
		Use:   "rm <document-id>",
		Short: "Remove a document with no loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			if err := a.catalog.DeleteDocument(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Println("Document removed.")
			return nil
		},
	}

	cmd.AddCommand(addBook, addMagazine, list, rm)
	return cmd
}
