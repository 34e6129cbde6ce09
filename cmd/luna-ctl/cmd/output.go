package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"luna/internal/ipc"
)

func daemonErr(err error) error {
	return fmt.Errorf("luna-daemon not running: %w", err)
}

func printReply(w io.Writer, r ipc.Reply) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(r)
		return
	}
	if r.Text != "" {
		fmt.Fprintln(w, r.Text)
	}
	for _, k := range slices.Sorted(maps.Keys(r.Data)) {
		fmt.Fprintf(w, "  %-16s %v\n", k+":", r.Data[k])
	}
}
