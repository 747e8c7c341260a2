package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spendtag/internal/cli"
	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/config"
	"github.com/Veraticus/spendtag/internal/metrics"
)

var (
	cfgFile string
	version = "dev"

	v          = config.New()
	appConfig  *config.Config
	collector  *metrics.Collector
	metricsSrv *http.Server
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spendtag",
		Short: cli.TagIcon + "  Multi-tenant transaction tagging and spending analytics",
		Long: `spendtag classifies ledger transactions with a versioned rule table, records
the results as tenant-scoped tags, and answers analytics questions over them.

Every command runs inside one tenant, selected with --tenant-type/--tenant-id
or SPENDTAG_TENANT_TYPE/SPENDTAG_TENANT_ID.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  initConfig,
		PersistentPostRunE: shutdownMetrics,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/spendtag/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("db", "", "database path (default: ~/.local/share/spendtag/spendtag.db)")
	flags.String("tenant-type", "user", "tenant type (user, organization)")
	flags.String("tenant-id", "", "tenant id")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	bindFlag(v, "logging.level", flags.Lookup("log-level"))
	bindFlag(v, "logging.format", flags.Lookup("log-format"))
	bindFlag(v, "database.path", flags.Lookup("db"))
	bindFlag(v, "tenant.type", flags.Lookup("tenant-type"))
	bindFlag(v, "tenant.id", flags.Lookup("tenant-id"))
	bindFlag(v, "metrics.addr", flags.Lookup("metrics-addr"))

	rootCmd.AddCommand(
		analyticsCmd(),
		autotagCmd(),
		checkpointCmd(),
		classifyCmd(),
		importOFXCmd(),
		migrateCmd(),
		rulesCmd(),
		tagsCmd(),
		versionCmd(),
		viewsCmd(),
	)
	return rootCmd
}

func main() {
	handler := cli.NewInterruptHandler(os.Stderr)
	ctx, stop := handler.HandleInterrupts(context.Background(), "Work finished before the interrupt has been saved.")

	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	// A missing .env file is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(fmt.Sprintf("%s/.config/spendtag", home))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	appConfig = cfg

	level, err := common.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	collector = metrics.NewCollector(slog.Default())
	if cfg.Metrics.Addr != "" {
		metricsSrv = collector.StartServer(cfg.Metrics.Addr)
	}

	slog.DebugContext(cmd.Context(), "Configuration loaded",
		"config_file", v.ConfigFileUsed(),
		"database", cfg.Database.Path)
	return nil
}

func shutdownMetrics(_ *cobra.Command, _ []string) error {
	if metricsSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := metrics.Shutdown(ctx, metricsSrv)
	metricsSrv = nil
	return err
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spendtag %s\n", version)
		},
	}
}
