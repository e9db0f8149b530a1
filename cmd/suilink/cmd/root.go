package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	dataDir     string
	postgresDSN string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "suilink",
	Short: "suilink links an identity provider account to a Sui address",
	Long: `A local daemon that runs the zkLogin flow, keeps the resulting
sessions in memory and signs transactions for local clients.`,
	Version:      Version,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	rootCmd.PersistentFlags().StringVar(&postgresDSN, "postgres-dsn", "", "Keep durable settings in PostgreSQL instead of the data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
