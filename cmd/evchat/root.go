package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/turngraph/internal/app"
	"github.com/randalmurphal/turngraph/internal/logging"
	"github.com/randalmurphal/turngraph/pkg/evchat"
	"github.com/randalmurphal/turngraph/pkg/evchat/sqldb"
	"github.com/randalmurphal/turngraph/pkg/turngraph"
)

var rootCmd = &cobra.Command{
	Use:   "evchat",
	Short: "EV performance chat agent",
	Long: `evchat answers questions about EV battery and driving data. Questions are
routed through a small workflow graph that talks to an OpenAI-compatible
model and runs read-only SQL against the analytics database.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (yaml or json)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(cmd *cobra.Command) (app.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := app.LoadProcess(path)
	if err != nil {
		return app.Config{}, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return app.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// buildRuntime wires the full service.
func buildRuntime(cmd *cobra.Command) (*app.Runtime, app.Config, *slog.Logger, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, app.Config{}, nil, err
	}
	rt, err := app.Build(cfg, nil, logger)
	if err != nil {
		return nil, app.Config{}, nil, err
	}
	return rt, cfg, logger, nil
}

var errOffline = errors.New("database is not connected in this command")

// offlineDB stands in for the database when a graph is compiled only to
// be drawn or inspected.
type offlineDB struct{}

func (offlineDB) Execute(context.Context, string) ([]sqldb.Row, error) { return nil, errOffline }
func (offlineDB) DescribeSchema(context.Context) (sqldb.Schema, error) { return nil, errOffline }

// offlineGraph compiles the graph without connecting to the database.
func offlineGraph(cfg app.Config, model string) (*turngraph.CompiledGraph, error) {
	if model == "" {
		model = cfg.LLM.Model
	}
	return evchat.BuildGraph(evchat.Deps{
		LLM:             app.NewLLM(cfg.LLM),
		ClassifierModel: cfg.LLM.ClassifierModel,
		DB:              offlineDB{},
	}, model)
}
