package memory

import "solana-yield-agent/internal/storage"

// NewStores returns a fresh set of in-memory stores.
func NewStores() storage.Stores {
	return storage.Stores{
		Actions: NewActionLogStore(),
		Yields:  NewYieldReportStore(),
		Goals:   NewGoalStore(),
	}
}
