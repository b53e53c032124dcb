package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pocket/pocket/internal/config"
	"github.com/pocket/pocket/internal/database"
	"github.com/pocket/pocket/pkg/ledger"
	log "github.com/sirupsen/logrus"
)

var ErrFallbackInProduction = errors.New("fallback ledger mode is not allowed in production")

// SelectLedgerMode picks the ledger mode from the configured one and the result of the transaction probe.
// Production never runs without transactions.
func SelectLedgerMode(cfg config.Application, transactionsAvailable bool) (ledger.Mode, error) {
	switch strings.ToLower(cfg.Ledger.Mode) {
	case "", "auto":
		if transactionsAvailable {
			return ledger.Transactional, nil
		}
		if cfg.IsProduction() {
			return 0, database.ErrTransactionsUnavailable
		}
		log.Warn("database transactions are unavailable, running the ledger in fallback mode")
		return ledger.Fallback, nil
	case "transactional":
		if !transactionsAvailable {
			return 0, database.ErrTransactionsUnavailable
		}
		return ledger.Transactional, nil
	case "fallback":
		if cfg.IsProduction() {
			return 0, ErrFallbackInProduction
		}
		log.Warn("ledger fallback mode forced by configuration")
		return ledger.Fallback, nil
	default:
		return 0, fmt.Errorf("unknown ledger mode %q, expected auto, transactional or fallback", cfg.Ledger.Mode)
	}
}
