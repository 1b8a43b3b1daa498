package postgres

import "solana-yield-agent/internal/storage"

// NewStores returns the PostgreSQL-backed stores sharing one pool.
func NewStores(pool *Pool) storage.Stores {
	return storage.Stores{
		Actions: NewActionLogStore(pool),
		Yields:  NewYieldReportStore(pool),
		Goals:   NewGoalStore(pool),
	}
}
