package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/dreamware/bazaar/internal/cluster"
	"github.com/dreamware/bazaar/internal/frontend"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cacheMode bool
	cmd := &cobra.Command{
		Use:          "frontend",
		Short:        "Client-facing gateway for the bazaar trading service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cacheMode)
		},
	}
	cmd.Flags().BoolVar(&cacheMode, "cache", true, "cache stock lookups")
	return cmd
}

func run(cacheMode bool) error {
	cfg, err := cluster.LoadConfig()
	if err != nil {
		return err
	}
	log := cluster.NewLogger("frontend", cfg.LogLevel)

	srv := newServer(
		cfg.Catalog.URL(),
		frontend.NewCache(cfg.CacheSize),
		frontend.NewElector(cfg.Orders, log),
		cacheMode,
		log,
	)

	// Elect an initial leader before taking traffic. A failure here is
	// not fatal: the first forwarded order runs the election again.
	electCtx, cancelElect := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := srv.elector.Elect(electCtx); err != nil {
		log.Warn().Err(err).Msg("no leader at startup")
	}
	cancelElect()

	httpSrv := &http.Server{
		Addr:              cfg.Front.Listen(),
		Handler:           handlers.RecoveryHandler()(srv.routes(mux.NewRouter())),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpSrv.Addr).Bool("cache_mode", cacheMode).
			Int("cache_size", cfg.CacheSize).Msg("frontend listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	log.Info().Msg("frontend stopped")
	return nil
}
