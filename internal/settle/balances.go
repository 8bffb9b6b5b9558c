// Package settle computes net positions, pairwise settlements, and
// monthly analyses from ledger snapshots. Everything here is a pure
// function of its inputs; nothing is read from or written to storage.
package settle

import (
	"fmt"

	"tally/internal/core"
)

// Balances accumulates each user's signed net position across the given
// shared expenses. Positive means the user is owed money, negative means
// the user owes money. By construction the values sum to zero within
// core.Epsilon for expenses that passed store validation.
func Balances(expenses []core.SharedExpense) (map[int64]float64, error) {
	net := make(map[int64]float64)
	for _, e := range expenses {
		shares, err := e.Shares()
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", e.ID, err)
		}
		if _, ok := shares[e.PayerID]; !ok {
			return nil, fmt.Errorf("%w: expense %d payer %d has no split", core.ErrInvariant, e.ID, e.PayerID)
		}
		// The payer fronted the full amount; every participant owes
		// their share, the payer included.
		net[e.PayerID] += e.TotalAmount
		for userID, share := range shares {
			net[userID] -= share
		}
	}
	return net, nil
}
