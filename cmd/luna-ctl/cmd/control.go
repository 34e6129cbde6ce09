package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"luna/internal/ipc"
)

// remote builds a command that forwards its joined arguments to the daemon.
func remote(use, short, cmdName string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			reply, err := send(cmd, ipc.Request{Cmd: cmdName, Arg: strings.Join(argv, " ")})
			if err != nil && reply.Error == "" {
				return daemonErr(err)
			}
			printReply(cmd.OutOrStdout(), reply)
			return err
		},
	}
}

var (
	triggerCmd     = remote("trigger", "Start listening without the wake word", ipc.CmdTrigger, cobra.NoArgs)
	sayCmd         = remote("say <text>", "Run a typed command as if it was spoken", ipc.CmdSay, cobra.MinimumNArgs(1))
	previewCmd     = remote("preview <text>", "Show what a command would do", ipc.CmdPreview, cobra.MinimumNArgs(1))
	parseCmd       = remote("parse <text>", "Show how a command is understood and planned", ipc.CmdParse, cobra.MinimumNArgs(1))
	cancelCmd      = remote("cancel", "Cancel the running plan", ipc.CmdCancel, cobra.NoArgs)
	reloadCmd      = remote("reload", "Reload the grammar document", ipc.CmdReload, cobra.NoArgs)
	sensitivityCmd = remote("sensitivity [0..1]", "Show or set wake word sensitivity", ipc.CmdSensitivity, cobra.MaximumNArgs(1))
	statusCmd      = remote("status", "Show daemon status", ipc.CmdStatus, cobra.NoArgs)
	assertCmd      = remote("assert <condition>", "Mark a condition as true for conditional commands", ipc.CmdAssert, cobra.MinimumNArgs(1))
	retractCmd     = remote("retract <condition>", "Clear a condition", ipc.CmdRetract, cobra.MinimumNArgs(1))
)
