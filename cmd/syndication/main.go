package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "syndication",
	Short: "Syndication webhook delivery and takedown verification",
	Long: `syndication notifies partner sites when syndicated stories change or are
withdrawn, verifies that withdrawn stories are gone within the compliance
deadline and retries failed webhook deliveries.

Configuration comes from --config (YAML) with SYNDICATION_* environment
variables and flags layered on top.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SYNDICATION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "YAML config file")
	flags.String("driver", "sqlite3", "database driver (sqlite3 or postgres)")
	flags.String("dsn", "file:syndication.db?_foreign_keys=on", "database connection string")
	flags.String("environment", "", "runtime environment (overrides config)")
	flags.String("signing-secret", "", "outbound webhook signing secret (overrides config)")
	flags.String("inbound-secret", "", "secret used to verify inbound events")
	flags.String("redis-url", "", "publish compliance alerts to this Redis")
	flags.String("redis-channel", "", "Redis channel for compliance alerts")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	flags.Bool("json", false, "output JSON")
	for _, name := range []string{
		"config", "driver", "dsn", "environment", "signing-secret", "inbound-secret",
		"redis-url", "redis-channel", "log-level", "log-format", "json",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(revokeCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(retryCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(sitesCmd())
	rootCmd.AddCommand(distributionsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(jobsCmd())
}
