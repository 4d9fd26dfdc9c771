package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the workflow graph as a Mermaid diagram",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		model, _ := cmd.Flags().GetString("model")
		compiled, err := offlineGraph(cfg, model)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), compiled.Mermaid())
		return err
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("model", "m", "", "Model baked into the graph")
}
