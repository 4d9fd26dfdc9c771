package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/turngraph/internal/app"
)

var threadCmd = &cobra.Command{
	Use:   "thread <thread-id>",
	Short: "Show the latest checkpoint of a thread",
	Long: `Prints the checkpoint and state of a thread as JSON. Only useful with a
persistent checkpoint backend (sqlite or redis).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := app.OpenStore(cfg.Checkpoint)
		if err != nil {
			return err
		}
		defer store.Close()

		compiled, err := offlineGraph(cfg, "")
		if err != nil {
			return err
		}
		snap, err := compiled.Inspect(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		cp := *snap.Checkpoint
		cp.State = nil
		return enc.Encode(map[string]any{
			"checkpoint": cp,
			"answer":     snap.Answer(),
			"state":      snap.State,
		})
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
}
