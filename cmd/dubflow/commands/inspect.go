package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/dubflow/dubflow/pkg/pipeline"
)

var inspectOutputDir string

var inspectCmd = &cobra.Command{
	Use:   "inspect <video> [query]",
	Short: "Query an episode's manifest",
	Long: `Print the episode's manifest, optionally filtered by a jq query.

Examples:
  dubflow inspect ep01.mp4
  dubflow inspect ep01.mp4 '.phases | keys'
  dubflow inspect ep01.mp4 '.phases.tts.warnings'
  dubflow inspect ep01.mp4 '.artifacts | to_entries[] | .key'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		query := "."
		if len(args) == 2 {
			query = args[1]
		}

		workspace := pipeline.WorkspaceFor(videoPath, inspectOutputDir)
		data, err := os.ReadFile(filepath.Join(workspace, "manifest.json"))
		if err != nil {
			return fmt.Errorf("no manifest for %s: %w", videoPath, err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse manifest: %w", err)
		}

		q, err := gojq.Parse(query)
		if err != nil {
			return fmt.Errorf("parse query: %w", err)
		}
		iter := q.RunWithContext(cmd.Context(), doc)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				return err
			}
			out, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectOutputDir, "output-dir", "", "workspace parent directory override")
	rootCmd.AddCommand(inspectCmd)
}
