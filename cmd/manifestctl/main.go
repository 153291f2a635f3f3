// Package main provides manifestctl, a command line client that works on the
// shared manifest alert documents directly, without a running server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	appctx "github.com/bassista/manifest_alert/internal/app"
	"github.com/bassista/manifest_alert/internal/config"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configDir  string
	user       string
	jsonOutput bool

	// app is built once per invocation by the root PersistentPreRunE.
	app *appctx.App

	rootCmd = &cobra.Command{
		Use:           "manifestctl",
		Short:         "Inspect and change the shared manifest alert state",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			app.Shutdown()
		},
	}
)

func setup() error {
	if configDir == "" {
		configDir = config.ConfigPath()
	}
	cfg, err := config.Load(viper.GetViper(), configDir)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Misc.LogLevel)

	if user == "" {
		user = defaultUser()
	}

	app, err = appctx.New(cfg, nil)
	return err
}

func defaultUser() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "manifestctl"
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func main() {
	_ = godotenv.Load()
	// stdout carries command output only
	logger.Logger.SetOutput(os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", fmt.Sprintf("directory holding config.yaml (default %s)", config.ConfigPath()))
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "", "name recorded as the author of changes (default hostname)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	rootCmd.PersistentFlags().String("shared", "", "shared location holding the documents")
	rootCmd.PersistentFlags().String("local-dir", "", "local directory holding the backups")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Config bindings
	_ = viper.BindPFlag("shared.path", rootCmd.PersistentFlags().Lookup("shared"))
	_ = viper.BindPFlag("shared.local_dir", rootCmd.PersistentFlags().Lookup("local-dir"))
	_ = viper.BindPFlag("misc.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(statusCmd, muteCmd, unmuteCmd, snoozeCmd, ackCmd, acksCmd, cleanupCmd)
}
