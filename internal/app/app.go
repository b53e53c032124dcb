package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocket/pocket/internal/config"
	"github.com/pocket/pocket/internal/database"
	"github.com/pocket/pocket/pkg/ledger"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg    config.Application
	db     *pgxpool.Pool
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
}

// NewApplication constructs the full HTTP application, ready to Run().
// The ledger mode is decided here, once, from the configuration and a transaction probe.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	mode, err := SelectLedgerMode(cfg, database.DetectTransactions(ctx, db))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("refusing to start: %w", err)
	}
	log.Infof("ledger running in %s mode", mode)

	return newApplication(cfg, db, mode), nil
}

func newApplication(cfg config.Application, db *pgxpool.Pool, mode ledger.Mode) *Application {
	r := mux.NewRouter()

	deps := BuildDependencies(db, cfg, mode)
	SetupMiddleware(r, deps)
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, deps: deps, router: r, srv: srv}
}

// Run starts the HTTP server and blocks until ctx is done, then shuts the server down.
func (a *Application) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		errs <- a.srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		a.close()
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.srv.Shutdown(shutdownCtx)
	a.close()
	return err
}

func (a *Application) close() {
	a.deps.Close()
	a.db.Close()
}
