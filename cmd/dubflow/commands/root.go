// Package commands implements the dubflow CLI commands.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "dubflow",
	Short: "Resumable video dubbing pipeline",
	Long: `dubflow - dub an episode into English end to end.

The pipeline runs nine phases per episode: demux, sep, asr, sub, mt,
align, tts, mix, burn. Every phase records its inputs and outputs in the
workspace manifest, so reruns skip work whose inputs have not changed.

The workspace for <dir>/<episode>.mp4 is <dir>/dub/<episode>/. Artifacts
like the subtitle model or the translation output can be hand-edited
between runs; 'dubflow bless' accepts the edits so downstream phases pick
them up.

Credentials come from the environment, never from the config file:
  DOUBAO_APPID, DOUBAO_ACCESS_TOKEN        speech recognition and synthesis
  OPENAI_API_KEY or GEMINI_API_KEY         translation
  TOS_ACCESS_KEY_ID, TOS_SECRET_ACCESS_KEY, TOS_BUCKET   object store

Examples:
  # Full pipeline
  dubflow run /data/show/ep01.mp4

  # Stop after translation, then rerun from alignment after editing
  dubflow run /data/show/ep01.mp4 --to mt
  vi /data/show/dub/ep01/subs/mt_output.jsonl
  dubflow bless /data/show/ep01.mp4 mt
  dubflow run /data/show/ep01.mp4 --from align

  # Look at what happened
  dubflow inspect /data/show/ep01.mp4 '.phases.tts.metrics'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// newLogger builds the process logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
