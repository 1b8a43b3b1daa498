package domain

// WalletState is an immutable per-tick snapshot of the custodial wallet.
type WalletState struct {
	Address    string  `json:"address"`
	BalanceSOL float64 `json:"balance_sol"`
}
