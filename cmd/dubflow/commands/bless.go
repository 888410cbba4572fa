package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dubflow/dubflow/pkg/pipeline"
)

var blessOutputDir string

var blessCmd = &cobra.Command{
	Use:   "bless <video> <phase>",
	Short: "Accept manual edits to a phase's artifacts",
	Long: `Recompute the fingerprints of a phase's published artifacts after a
manual edit, so the edited files count as that phase's output. Downstream
phases see the new fingerprints and rerun; the blessed phase itself does
not.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		phaseName := args[1]

		workspace := pipeline.WorkspaceFor(videoPath, blessOutputDir)
		manifest, err := pipeline.LoadManifest(filepath.Join(workspace, "manifest.json"))
		if err != nil {
			return err
		}

		runner := pipeline.NewRunner(manifest, workspace, newLogger())
		results, err := runner.Bless(phaseName)
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render("Blessed " + phaseName))
		for _, r := range results {
			fmt.Printf("  %s  %s  %s\n", statusStyle(r.Status).Render(r.Status), keyStyle.Render(r.Key), r.Path)
		}
		return nil
	},
}

func init() {
	blessCmd.Flags().StringVar(&blessOutputDir, "output-dir", "", "workspace parent directory override")
	rootCmd.AddCommand(blessCmd)
}
