package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings in the catalog, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(false)
		if err != nil {
			return err
		}
		defer svc.Close()

		recs, err := svc.ListRecordings(context.Background())
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No recordings")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSIZE\tDIRECTORY")
		for _, rec := range recs {
			size := rec.SizeHuman
			if !rec.Exists {
				size = "missing"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.Identifier, rec.CreatedAtHuman, size, rec.Directory)
		}
		return w.Flush()
	},
}
