package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

var ErrTransactionsUnavailable = errors.New("database does not support multi-statement transactions")

// TxBeginner is implemented by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// DetectTransactions reports whether the store can open and commit a serializable transaction.
// It is meant to be called once on startup, the result is not re-checked per request.
func DetectTransactions(ctx context.Context, db TxBeginner) bool {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		log.Warnf("transaction probe: could not begin transaction: %v", err)
		return false
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT 1"); err != nil {
		log.Warnf("transaction probe: statement failed inside transaction: %v", err)
		return false
	}
	if err := tx.Commit(ctx); err != nil {
		log.Warnf("transaction probe: commit failed: %v", err)
		return false
	}
	log.Debug("transaction probe succeeded")
	return true
}
