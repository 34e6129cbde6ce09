package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/ipc"
)

func TestPrintReply_SortsData(t *testing.T) {
	var buf bytes.Buffer
	printReply(&buf, ipc.Reply{OK: true, Text: "running", Data: map[string]any{"uptime": "3s", "llm": false}})
	assert.Equal(t, "running\n  llm:             false\n  uptime:          3s\n", buf.String())
}

func TestPrintReply_JSON(t *testing.T) {
	asJSON = true
	t.Cleanup(func() { asJSON = false })

	var buf bytes.Buffer
	printReply(&buf, ipc.Reply{OK: true, Text: "ok"})
	assert.JSONEq(t, `{"ok":true,"text":"ok"}`, buf.String())
}

func TestRemoteCommand_ForwardsJoinedArgs(t *testing.T) {
	dir, err := os.MkdirTemp("", "lunactl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socketPath = filepath.Join(dir, "ctl.sock")

	got := make(chan ipc.Request, 1)
	srv, err := ipc.StartServer(t.Context(), socketPath, func(_ context.Context, req ipc.Request) ipc.Reply {
		got <- req
		return ipc.Ok("Opening chrome.")
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"say", "--socket", socketPath, "open", "chrome"})
	require.NoError(t, rootCmd.ExecuteContext(t.Context()))

	assert.Equal(t, ipc.Request{Cmd: ipc.CmdSay, Arg: "open chrome"}, <-got)
	assert.Equal(t, "Opening chrome.\n", out.String())
}
