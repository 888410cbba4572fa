package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dubflow/dubflow/pkg/config"
	"github.com/dubflow/dubflow/pkg/phases"
	"github.com/dubflow/dubflow/pkg/pipeline"
)

var (
	runToPhase   string
	runFromPhase string
	runConfig    string
	runOutputDir string
)

var runCmd = &cobra.Command{
	Use:   "run <video>",
	Short: "Run the dubbing pipeline on an episode",
	Long: `Run the pipeline up to --to (default: burn, the full pipeline).

Phases whose recorded inputs, config and outputs are unchanged are
skipped. --from forces a rerun of the suffix starting at that phase even
when its checks pass.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if _, err := os.Stat(videoPath); err != nil {
			return fmt.Errorf("video: %w", err)
		}

		cfg, err := config.Load(runConfig)
		if err != nil {
			return err
		}
		cfg.VideoPath = videoPath
		if runOutputDir != "" {
			cfg.OutputDir = runOutputDir
		}

		log := newLogger()
		workspace := pipeline.WorkspaceFor(videoPath, cfg.OutputDir)
		manifestPath, err := pipeline.EnsureWorkspace(workspace)
		if err != nil {
			return err
		}
		manifest, err := pipeline.LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		if manifest.Job.JobID == "" {
			manifest.SetJob(uuid.NewString(), workspace)
		}

		rc := &pipeline.RunContext{
			JobID:     manifest.Job.JobID,
			Workspace: workspace,
			Config:    cfg,
		}
		runner := pipeline.NewRunner(manifest, workspace, log)
		log.Info("pipeline starting", "workspace", workspace, "to", runToPhase, "from", runFromPhase)

		outputs, err := runner.RunPipeline(cmd.Context(), phases.All(log), rc, runToPhase, runFromPhase)
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render("Outputs"))
		for key, path := range outputs {
			fmt.Printf("  %s  %s\n", keyStyle.Render(key), path)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runToPhase, "to", "", "last phase to run (default: burn)")
	runCmd.Flags().StringVar(&runFromPhase, "from", "", "force rerun starting at this phase")
	runCmd.Flags().StringVar(&runConfig, "config", "", "YAML config file")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "workspace parent directory override")
	rootCmd.AddCommand(runCmd)
}
