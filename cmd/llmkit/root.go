package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/llmkit/internal/config"
	"github.com/harunnryd/llmkit/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "llmkit",
	Short:        "One interface for many LLM backends",
	Long:         `llmkit sends chat, completion and embedding requests to xAI, OpenAI, Anthropic, Gemini, Ollama and Z.ai through one normalized model.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		cmd.SetContext(logger.WithRequestID(cmd.Context(), ""))
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.llmkit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
}
