package main

import (
	"github.com/rcgrid/rcgrid/config"
	"github.com/rcgrid/rcgrid/environment"
	"github.com/rcgrid/rcgrid/hub"
	"github.com/rcgrid/rcgrid/journal"
	"github.com/rcgrid/rcgrid/logging"
	"github.com/rcgrid/rcgrid/metrics"
	"github.com/rcgrid/rcgrid/pool"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath  string
	development bool
	verbosity   int
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:          "hub",
		Short:        "Hub of a grid of browser remote controls",
		Long:         "hub load balances legacy and REST browser automation sessions over the remote controls registered with it.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, flags.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(flags.development, flags.verbosity)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}

	pflags := rootCmd.PersistentFlags()
	pflags.StringVarP(&flags.configPath, "config", "c", "", "configuration file (default ./grid_configuration.yml)")
	pflags.BoolVar(&flags.development, "development", false, "human readable logs")
	pflags.IntVarP(&flags.verbosity, "verbosity", "v", logging.DEFAULT, "log verbosity")
	pflags.Int("port", 4444, "port to listen on")
	pflags.String("journal", "", "sqlite file to journal pool events to")
	v.BindPFlag(config.PortKey, pflags.Lookup("port"))
	v.BindPFlag(config.JournalKey, pflags.Lookup("journal"))

	rootCmd.AddCommand(
		newConfigCmd(v, flags),
		newVersionCmd(),
	)
	return rootCmd
}

func newConfigCmd(v *viper.Viper, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, flags.configPath)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log logr.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	sinks := pool.EventSinks{m}
	var j *journal.Journal
	if cfg.Hub.Journal != "" {
		var err error
		j, err = journal.Open(cfg.Hub.Journal, log)
		if err != nil {
			return err
		}
		defer j.Close()
		sinks = append(sinks, j)
	}

	p := pool.NewGlobalPool(log, pool.Options{MaxWait: cfg.MaxWait(), Events: sinks})
	m.Registry.MustRegister(metrics.NewPoolCollector(p))

	options := hub.Options{
		Pool:         p,
		Environments: environment.NewManager(cfg.Environments()...),
		Metrics:      m.Handler(),
		Shutdown:     stop,
		Client:       &http.Client{Timeout: 10 * time.Minute},
		Logger:       log,
	}
	if j != nil {
		options.Journal = j
	}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Hub.Port),
		Handler: hub.NewServer(options),
	}

	reaper := pool.Reaper{
		Pool:     p,
		Interval: cfg.PollingInterval(),
		MaxIdle:  cfg.MaxIdle(),
		Log:      log.WithName("reaper"),
	}
	go reaper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting hub", "addr", server.Addr, "environments", len(cfg.Hub.Environments))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down hub")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
