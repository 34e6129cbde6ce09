//go:build !cgo

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio-file>",
	Short: "Transcribe an audio file locally (requires a cgo build)",
	Args:  cobra.ExactArgs(1),
	RunE: func(*cobra.Command, []string) error {
		return errors.New("transcribe needs whisper.cpp: rebuild with CGO_ENABLED=1")
	},
}
