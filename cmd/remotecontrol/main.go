// Command remotecontrol runs a stub remote control that registers itself with
// a hub. It is meant for local farms and smoke testing the hub.
package main

import (
	"github.com/rcgrid/rcgrid/logging"
	"github.com/rcgrid/rcgrid/remotecontrol"
	"github.com/rcgrid/rcgrid/remotecontrol/stub"

	"github.com/spf13/cobra"

	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type options struct {
	host        string
	port        int
	hubURL      string
	environment string
	development bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "remotecontrol",
		Short:        "Run a stub remote control registered with a hub",
		Example:      "remotecontrol --host localhost --port 5555 --hub http://localhost:4444 --environment 'firefox on linux'",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.host, "host", "localhost", "host the hub reaches this remote control at")
	flags.IntVar(&opts.port, "port", 5555, "port to listen on")
	flags.StringVar(&opts.hubURL, "hub", "http://localhost:4444", "hub base URL")
	flags.StringVar(&opts.environment, "environment", "firefox on linux", "environment to register under")
	flags.BoolVar(&opts.development, "development", false, "human readable logs")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	log, err := logging.NewLogger(opts.development, logging.DEFAULT)
	if err != nil {
		return err
	}
	log = log.WithValues("host", opts.host, "port", opts.port)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.port),
		Handler: stub.New().Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	client := &http.Client{Timeout: 30 * time.Second}
	if err := remotecontrol.Register(client, opts.hubURL, opts.host, opts.port, opts.environment); err != nil {
		server.Close()
		return fmt.Errorf("error registering with hub %s: %v", opts.hubURL, err)
	}
	log.Info("registered with hub", "hub", opts.hubURL, "environment", opts.environment)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if err := remotecontrol.Unregister(client, opts.hubURL, opts.host, opts.port, opts.environment); err != nil {
		log.Error(err, "error unregistering from hub")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
