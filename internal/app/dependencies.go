package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocket/pocket/internal/config"
	"github.com/pocket/pocket/internal/event_bus"
	"github.com/pocket/pocket/internal/utils"
	"github.com/pocket/pocket/pkg/budget"
	"github.com/pocket/pocket/pkg/day"
	"github.com/pocket/pocket/pkg/ledger"
	"github.com/pocket/pocket/pkg/user"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus *event_bus.EventBus
	Clock    utils.Clock

	UserService user.Service
	UserHandler *user.Handler

	BudgetRepo    budget.BudgetRepo
	BudgetService *budget.BudgetServiceImpl
	BudgetHandler *budget.BudgetHandler

	LedgerRepo    *ledger.RepositoryImpl
	Availability  *ledger.Availability
	LedgerEngine  *ledger.Engine
	LedgerHandler *ledger.Handler

	DayRepo       *day.RepositoryImpl
	DayReconciler *day.Reconciler
	DayHandler    *day.Handler

	unsubscribe []func()
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application, mode ledger.Mode) *Dependencies {
	deps := &Dependencies{}

	deps.EventBus = event_bus.NewEventBus()
	deps.Clock = &utils.SystemClock{}

	deps.UserService = user.NewUserService(user.NewUserRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.BudgetRepo = budget.NewBudgetRepo(db)
	deps.BudgetService = budget.NewBudgetServiceImpl(deps.BudgetRepo)
	deps.BudgetHandler = budget.NewBudgetHandler(deps.BudgetService)

	deps.LedgerRepo = ledger.NewRepository(db)
	deps.Availability = ledger.NewAvailability(deps.LedgerRepo, mode, deps.Clock)

	deps.DayRepo = day.NewRepository(db)
	deps.DayReconciler = day.NewReconciler(deps.DayRepo, deps.LedgerRepo, deps.Availability)
	deps.DayHandler = day.NewHandler(deps.DayReconciler)
	deps.unsubscribe = append(deps.unsubscribe, deps.DayReconciler.Subscribe(deps.EventBus))

	deps.LedgerEngine = ledger.NewEngine(deps.LedgerRepo, mode, cfg.Ledger.TxRetries, deps.DayReconciler, deps.EventBus, deps.Clock)
	deps.LedgerHandler = ledger.NewHandler(deps.LedgerEngine, deps.Availability, deps.Clock)

	return deps
}

// Close removes the event subscriptions.
func (d *Dependencies) Close() {
	for _, unsubscribe := range d.unsubscribe {
		unsubscribe()
	}
}
