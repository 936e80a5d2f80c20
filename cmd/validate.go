package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipectl/internal/dependency"
)

func newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pipeline configuration without starting it",
		Long: `Loads and validates the pipeline configuration, including graph
construction, so unknown dependency references and cycles are caught
before anything runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			graph, err := dependency.FromConfig(cfg.Pipeline)
			if err != nil {
				return err
			}

			fmt.Printf("Configuration valid: %d nodes\n", graph.Len())
			fmt.Println("Start order:")
			for i, id := range graph.TopologicalOrder() {
				fmt.Printf("  %d. %s\n", i+1, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a pipeline config file (overrides layered lookup)")

	return cmd
}
