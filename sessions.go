package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const defaultSessionMaxAge = 7 * 24 * time.Hour

// sessionJSON is the JSON output schema for a stored upload session.
type sessionJSON struct {
	ID        string `json:"id"`
	Bucket    string `json:"bucket"`
	Object    string `json:"object"`
	LocalPath string `json:"local_path"`
	FileSize  int64  `json:"file_size"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and clean interrupted upload sessions",
	}

	clean := &cobra.Command{
		Use:   "clean",
		Short: "Forget upload sessions that have not progressed recently",
		Args:  cobra.NoArgs,
		RunE:  runSessionsClean,
	}
	clean.Flags().Duration("max-age", defaultSessionMaxAge, "forget sessions idle longer than this")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List upload sessions that can be resumed",
		Args:  cobra.NoArgs,
		RunE:  runSessionsList,
	}, clean)

	return cmd
}

var errNoSessionStore = errors.New("upload session database is unavailable")

func runSessionsList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	store := cc.sessionStore(cmd.Context())
	if store == nil {
		return errNoSessionStore
	}
	defer store.Close()

	records, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]sessionJSON, 0, len(records))
		for i := range records {
			r := &records[i]
			out = append(out, sessionJSON{
				ID:        r.ID,
				Bucket:    r.Bucket,
				Object:    r.ObjectKey,
				LocalPath: r.LocalPath,
				FileSize:  r.FileSize,
				CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
				UpdatedAt: r.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}

		return printJSON(cc.Stdout, out)
	}

	if len(records) == 0 {
		cc.Statusf("No upload sessions.\n")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for i := range records {
		r := &records[i]
		rows = append(rows, []string{
			"gs://" + r.Bucket + "/" + r.ObjectKey,
			r.LocalPath,
			formatSize(r.FileSize),
			formatTime(r.UpdatedAt),
		})
	}

	printTable(cc.Stdout, []string{"OBJECT", "LOCAL", "SIZE", "UPDATED"}, rows)

	return nil
}

func runSessionsClean(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	maxAge, _ := cmd.Flags().GetDuration("max-age")

	if maxAge <= 0 {
		return fmt.Errorf("--max-age must be positive")
	}

	store := cc.sessionStore(cmd.Context())
	if store == nil {
		return errNoSessionStore
	}
	defer store.Close()

	n, err := store.CleanStale(cmd.Context(), maxAge)
	if err != nil {
		return err
	}

	cc.Statusf("Removed %d stale upload session(s)\n", n)

	return nil
}
