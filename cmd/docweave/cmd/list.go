package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listFlags struct {
	status     string
	offset     int
	limit      int
	jsonOutput bool
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions from the SQL-backed index, optionally filtered by status",
	RunE:  runList,
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&listFlags.status, "status", "", "filter by status (draft|queued|running|completed|failed|cancelled)")
	f.IntVar(&listFlags.offset, "offset", 0, "pagination offset")
	f.IntVar(&listFlags.limit, "limit", 50, "page size")
	f.BoolVar(&listFlags.jsonOutput, "json", false, "output as JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, total, err := a.index.List(ctx, listFlags.status, listFlags.offset, listFlags.limit)
	if err != nil {
		return err
	}

	if listFlags.jsonOutput {
		out := struct {
			Total    int64    `json:"total"`
			Sessions []record `json:"sessions"`
		}{Total: total}
		for _, r := range records {
			out.Sessions = append(out.Sessions, record{
				ID:          r.ID.String(),
				Mode:        r.Mode,
				Title:       r.Title,
				Status:      r.Status,
				Progress:    r.Progress,
				LastUpdated: r.LastUpdated,
			})
		}
		enc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tSTATUS\tPROGRESS\tTITLE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", r.ID, r.Mode, r.Status, r.Progress, r.Title)
	}
	w.Flush()
	fmt.Printf("%d of %d sessions\n", len(records), total)
	return nil
}

// record is the JSON projection of a sessionstore.Record for list --json.
type record struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	LastUpdated time.Time `json:"last_updated"`
}
