//go:build cgo

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"luna/pkg/audioconv"
	"luna/pkg/stt"
)

var (
	modelPath string
	language  string
	threads   int
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio-file>",
	Short: "Transcribe an audio file locally with whisper",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func init() {
	transcribeCmd.Flags().StringVarP(&modelPath, "model", "m", "", "Whisper model path (default $LUNA_WHISPER_MODEL)")
	transcribeCmd.Flags().StringVar(&language, "language", "auto", "Spoken language")
	transcribeCmd.Flags().IntVar(&threads, "threads", 0, "Decoder threads, 0 for all cores")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	if modelPath == "" {
		modelPath = envOr("LUNA_WHISPER_MODEL", "")
	}
	if modelPath == "" {
		return errors.New("no whisper model: pass --model or set LUNA_WHISPER_MODEL")
	}

	pcm, err := audioconv.DecodeFile(cmd.Context(), args[0], audioconv.Options{})
	if err != nil {
		return err
	}

	w, err := stt.NewWhisper(modelPath, stt.Options{Language: language, Threads: threads})
	if err != nil {
		return err
	}
	defer w.Close()

	res, err := w.TranscribePCM(cmd.Context(), pcm)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range res.Segments {
		fmt.Fprintf(out, "[%s -> %s] %s\n", s.Start, s.End, s.Text)
	}
	fmt.Fprintf(out, "%s (%s)\n", res.Text, res.Language)
	return nil
}
