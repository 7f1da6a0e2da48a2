package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vacancy-map",
	Short: "Housing vacancy choropleth from Census ACS data",
	Long:  "Fetches ACS housing occupancy statistics and TIGER boundaries, joins them by GEOID, and serves or exports a choropleth layer with state, county, tract and block group drill-down.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
