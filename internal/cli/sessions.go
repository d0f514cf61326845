package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x6d61/sqlsiphon/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, show or remove stored sessions",
		Long: `List the sessions of the store named by --session. With --show the
records extracted by one session are printed; --delete and --purge remove
sessions.`,
		Args: cobra.NoArgs,
	}
	show := cmd.Flags().String("show", "", "Print the records of a session")
	del := cmd.Flags().String("delete", "", "Delete a session")
	purge := cmd.Flags().Duration("purge", 0, "Delete sessions not updated for this long")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("session")
		if path == "" {
			return fmt.Errorf("session store is required (use --session)")
		}
		store, err := session.NewSQLiteStore(path)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		switch {
		case *del != "":
			if err := store.Delete(ctx, *del); err != nil {
				return err
			}
			fmt.Fprintf(out, "session %s deleted\n", *del)
			return nil
		case *purge > 0:
			n, err := store.Cleanup(ctx, *purge)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d session(s) purged\n", n)
			return nil
		case *show != "":
			records, err := store.Records(ctx, *show)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tDATABASE\tTABLE\tVALUE\tCOUNT")
			for _, r := range records {
				value := r.Value
				if len(r.Cells) > 0 {
					value = fmt.Sprint(r.Cells)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%q\t%d\n", r.Kind, r.Database, r.Table, value, r.Count)
			}
			return tw.Flush()
		}

		list, err := store.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "no sessions")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tVENDOR\tSTRATEGY\tRECORDS\tUPDATED\tENDPOINT")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", s.ID, s.Vendor, s.Strategy, s.Records, s.UpdatedAt.Local().Format(time.DateTime), s.Endpoint)
		}
		return tw.Flush()
	}
	return cmd
}
