package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dubflow/dubflow/pkg/phases"
)

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "List pipeline phases and their contracts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range phases.All(newLogger()) {
			fmt.Printf("%s %s\n", headerStyle.Render(p.Name()), dimStyle.Render("v"+p.Version()))
			if req := p.Requires(); len(req) > 0 {
				fmt.Printf("  requires  %s\n", strings.Join(req, ", "))
			}
			fmt.Printf("  provides  %s\n", strings.Join(p.Provides(), ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(phasesCmd)
}
