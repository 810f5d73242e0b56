package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel assistant runtime",
	Long:  `Sentinel is a tool-using assistant runtime with per-conversation document retrieval and model fallback.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sentinel.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("server.port", config.DefaultServerPort, "server port")
	rootCmd.PersistentFlags().String("store.path", config.DefaultStorePath, "workspace data directory")
}
