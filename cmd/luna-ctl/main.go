// luna-ctl talks to a running luna-daemon over its control socket.
package main

import (
	"os"

	"luna/cmd/luna-ctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
