package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"luna/internal/notes"
)

var noteLimit int

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List recent notes and pending reminders",
	Args:  cobra.NoArgs,
	RunE:  runNotes,
}

func init() {
	notesCmd.Flags().IntVarP(&noteLimit, "limit", "n", 20, "How many notes to show")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dataDir() string {
	if d := os.Getenv("LUNA_DATA_DIR"); d != "" {
		return d
	}
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "luna")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "luna")
}

func runNotes(cmd *cobra.Command, args []string) error {
	st, err := notes.Open(filepath.Join(dataDir(), "notes.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ns, err := st.Notes(ctx, noteLimit)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Notes (%d)\n", len(ns))
	for _, n := range ns {
		fmt.Fprintf(out, "  %s  %s\n", n.CreatedAt.Local().Format(time.DateTime), n.Text)
	}

	rs, err := st.Pending(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reminders (%d)\n", len(rs))
	for _, r := range rs {
		due := "undated"
		if !r.Due.IsZero() {
			due = r.Due.Local().Format(time.DateTime)
		}
		fmt.Fprintf(out, "  %-19s  %s\n", due, r.Text)
	}
	return nil
}
