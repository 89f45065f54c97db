package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/common"
	"github.com/Veraticus/cointax/internal/config"
	"github.com/Veraticus/cointax/internal/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	version = "dev"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cointax",
		Short: "🪙 Crypto tax-lot calculator",
		Long: `cointax imports on-chain transfers for the wallets you own, classifies them
into tax events valued in USD, matches disposals against tax lots (FIFO, LIFO
or HIFO) and produces capital gains reports.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/cointax/config.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	cmd.PersistentFlags().String("db", "", "database path (default: ~/.local/share/cointax/cointax.db)")
	cmd.PersistentFlags().String("metrics-textfile", "", "write Prometheus metrics to this file on exit")

	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("database.path", cmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("metrics.textfile", cmd.PersistentFlags().Lookup("metrics-textfile"))

	cmd.AddCommand(addressesCmd())
	cmd.AddCommand(authCmd())
	cmd.AddCommand(calculateCmd())
	cmd.AddCommand(checkpointCmd())
	cmd.AddCommand(classifyCmd())
	cmd.AddCommand(fetchCmd())
	cmd.AddCommand(lotsCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(reportCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func main() {
	interrupts := cli.NewInterruptHandler(os.Stderr)
	ctx, stop := interrupts.HandleInterrupts(context.Background(), "cointax", "Stored data is unchanged unless the command reported success.")

	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if path := viper.GetString("metrics.textfile"); path != "" {
		if mErr := metrics.WriteTextfile(path); mErr != nil {
			slog.Warn("Failed to write metrics", "error", mErr)
		}
	}

	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, cli.FormatError(userErr.UserMessage))
		} else if !interrupts.WasInterrupted() {
			fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	// .env first so explorer and price API keys are visible to viper.
	if loaded, err := config.LoadDotEnv(); err != nil {
		return err
	} else if len(loaded) > 0 {
		slog.Debug("Loaded environment files", "files", loaded)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(home + "/.config/cointax")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("COINTAX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, viper.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cointax %s\n", version)
		},
	}
}
