package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// User
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")

	// Budget
	r.HandleFunc("/api/budget", deps.BudgetHandler.GetAll).Methods("GET")
	r.HandleFunc("/api/budget", deps.BudgetHandler.Create).Methods("POST")
	r.HandleFunc("/api/budget/validate", deps.BudgetHandler.ValidateCreation).Methods("GET")
	r.HandleFunc("/api/budget/{budgetId:[0-9]+}", deps.BudgetHandler.Get).Methods("GET")
	r.HandleFunc("/api/budget/{budgetId:[0-9]+}", deps.BudgetHandler.Update).Methods("PUT")
	r.HandleFunc("/api/budget/{budgetId:[0-9]+}", deps.BudgetHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/budget/{budgetId:[0-9]+}/derive", deps.BudgetHandler.Derive).Methods("POST")
	r.HandleFunc("/api/budget/{budgetId:[0-9]+}/remaining", deps.BudgetHandler.Remaining).Methods("GET")

	// Ledger
	r.HandleFunc("/api/ledger/expense", deps.LedgerHandler.Expense).Methods("POST")
	r.HandleFunc("/api/ledger/gain", deps.LedgerHandler.Gain).Methods("POST")
	r.HandleFunc("/api/ledger/transactions", deps.LedgerHandler.Transactions).Methods("GET")
	r.HandleFunc("/api/ledger/journal", deps.LedgerHandler.Journal).Methods("GET")
	r.HandleFunc("/api/ledger/available", deps.LedgerHandler.Available).Methods("GET")

	// Day
	r.HandleFunc("/api/day/{date}", deps.DayHandler.Get).Methods("GET")
	r.HandleFunc("/api/day/{date}/lock", deps.DayHandler.Lock).Methods("PUT")
}
