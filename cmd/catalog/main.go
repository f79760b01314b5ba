package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dreamware/bazaar/internal/catalog"
	"github.com/dreamware/bazaar/internal/cluster"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cacheMode bool
		dbPath    string
	)
	cmd := &cobra.Command{
		Use:           "catalog",
		Short:         "Authoritative stock catalog for the bazaar trading service",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cacheMode, dbPath)
		},
	}
	cmd.Flags().BoolVar(&cacheMode, "cache", true, "send cache invalidations to the front-end")
	cmd.Flags().StringVar(&dbPath, "db", "catalog_database.json", "catalog snapshot file")
	return cmd
}

func run(cacheMode bool, dbPath string) error {
	cfg, err := cluster.LoadConfig()
	if err != nil {
		return err
	}
	log := cluster.NewLogger("catalog", cfg.LogLevel)

	store, err := catalog.Open(dbPath, log)
	if err != nil {
		return err
	}
	srv := newServer(store, catalog.NewNotifier(cfg.Front.URL(), cacheMode, log), log)

	httpSrv := &http.Server{
		Addr:              cfg.Catalog.Listen(),
		Handler:           handlers.RecoveryHandler()(srv.routes(mux.NewRouter())),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpSrv.Addr).Bool("cache_mode", cacheMode).Msg("catalog listening")
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
	log.Info().Msg("catalog stopped")
	return nil
}

type server struct {
	store    *catalog.Store
	notifier *catalog.Notifier
	log      zerolog.Logger
}

func newServer(store *catalog.Store, notifier *catalog.Notifier, log zerolog.Logger) *server {
	return &server{store: store, notifier: notifier, log: log}
}

func (s *server) routes(r *mux.Router) *mux.Router {
	r.HandleFunc("/lookup/{name}", s.handleLookup).Methods(http.MethodGet)
	r.HandleFunc("/update", s.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func (s *server) handleLookup(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	inst, err := s.store.Lookup(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, cluster.NewError(http.StatusNotFound, "stock not found"))
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req cluster.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "failed to update stock"))
		return
	}

	inst, err := s.store.Update(req.Name, req.Quantity, req.Type)
	if err != nil {
		// The wire contract collapses every update failure to one 500.
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "failed to update stock"))
		return
	}

	s.log.Info().Str("stock", req.Name).Str("type", req.Type).
		Int("quantity", req.Quantity).Int("remaining", inst.Quantity).Msg("updated stock")
	s.notifier.Invalidate(req.Name)
	writeJSON(w, http.StatusOK, cluster.NewSuccess(http.StatusOK, "updated stock successfully"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
