// Package main implements one replica of the bazaar order service, the
// stateful tier that owns the transaction ledger.
//
// Each replica:
//   - Keeps a durable ledger of committed transactions
//   - Executes buys and sells against the catalog when it is leader
//   - Accepts replication pushes and answers sync queries as a follower
//   - Learns leadership from the front-end's pings and broadcasts
//   - Catches up from its peers before serving traffic
//
// Configuration:
//   - ORDER_{1,2,3}_HOST / ORDER_{1,2,3}_PORT: replica locations
//   - CATALOG_HOST / CATALOG_PORT: catalog location
//   - --id: this replica's id (1, 2, or 3; required)
//   - --db: ledger file (default order<id>_database.json)
//
// Example usage:
//
//	# Start replica 2
//	ORDER_2_PORT=8004 CATALOG_PORT=8002 ./order --id 2
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/dreamware/bazaar/internal/catalog"
	"github.com/dreamware/bazaar/internal/cluster"
	"github.com/dreamware/bazaar/internal/order"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		replicaID int
		dbPath    string
	)
	cmd := &cobra.Command{
		Use:          "order",
		Short:        "Order service replica for the bazaar trading service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(replicaID, dbPath)
		},
	}
	cmd.Flags().IntVar(&replicaID, "id", 0, "replica id (1, 2, or 3)")
	cmd.Flags().StringVar(&dbPath, "db", "", "ledger file (default order<id>_database.json)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func run(replicaID int, dbPath string) error {
	cfg, err := cluster.LoadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Orders[replicaID]; !ok {
		return fmt.Errorf("unknown replica id %d", replicaID)
	}
	log := cluster.NewLogger(fmt.Sprintf("order-%d", replicaID), cfg.LogLevel)

	if dbPath == "" {
		dbPath = fmt.Sprintf("order%d_database.json", replicaID)
	}
	ledger, err := order.OpenLedger(dbPath)
	if err != nil {
		return err
	}

	peers := make(map[int]string, len(cfg.Orders))
	for id := range cfg.Orders {
		peers[id] = cfg.OrderURL(id)
	}
	replica := order.NewReplica(replicaID, ledger, catalog.NewClient(cfg.Catalog.URL()), peers, log)

	// Catch up on entries missed while this replica was down, and adopt
	// whatever leader the peers already agree on.
	syncCtx, cancelSync := context.WithTimeout(context.Background(), 30*time.Second)
	replica.SyncFromPeers(syncCtx)
	cancelSync()

	srv := newServer(replica, log)
	httpSrv := &http.Server{
		Addr:              cfg.Orders[replicaID].Listen(),
		Handler:           handlers.RecoveryHandler()(srv.routes(mux.NewRouter())),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpSrv.Addr).Int("next_id", ledger.NextID()).Msg("order replica listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-srv.quit:
		// Test-driven shutdown via POST /shutdown.
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	log.Info().Msg("order replica stopped")
	return nil
}
