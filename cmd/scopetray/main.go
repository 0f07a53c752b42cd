package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scopetray/scopetray"
	"github.com/scopetray/scopetray/internal/logger"
)

var version = "dev"

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath    string
	LogLevel      string
	APIListen     string
	MetricsListen string
}

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "scopetray",
		Short: "Tray-controlled gamescope supervisor",
		Long: `scopetray runs a StatusNotifierItem in the desktop tray and supervises a
gamescope compositor session from its menu: start and stop the compositor,
pick render resolution and upscale filter, and flip runtime toggles that are
persisted back to the configuration file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", scopetray.DefaultConfigPath(), "path to the TOML configuration file")
	pf.StringVar(&flags.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.APIListen, "api-listen", "", "local control API listen address (overrides config)")
	pf.StringVar(&flags.MetricsListen, "metrics-listen", "", "metrics listen address (overrides config)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scopetray %s\n", version)
		},
	})

	return root
}

func runDaemon(flags *GlobalFlags) error {
	logger.Setup(flags.LogLevel)

	app, err := scopetray.New(flags.ConfigPath)
	if err != nil {
		return err
	}
	if flags.APIListen != "" {
		app.SetAPIListen(flags.APIListen)
	}
	if flags.MetricsListen != "" {
		app.SetMetricsListen(flags.MetricsListen)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}
