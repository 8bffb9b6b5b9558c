package settle

import (
	"math"

	"tally/internal/core"
)

// Transfer is a suggested payment that reduces outstanding balances.
type Transfer struct {
	PayerID    int64
	ReceiverID int64
	Amount     float64
}

// Settlements reduces the given net balances to a list of transfers that
// zeroes every balance within core.Epsilon. Each round matches the
// largest debtor with the largest creditor; ties are broken by ascending
// user id, which makes the result deterministic. Greedy matching keeps
// the transfer count small but is not guaranteed minimal.
func Settlements(balances map[int64]float64) []Transfer {
	remaining := make(map[int64]float64, len(balances))
	for id, b := range balances {
		remaining[id] = b
	}

	var transfers []Transfer
	for {
		debtor, debt := pickExtreme(remaining, func(b float64) float64 { return -b })
		creditor, credit := pickExtreme(remaining, func(b float64) float64 { return b })
		if debt <= core.Epsilon || credit <= core.Epsilon {
			break
		}

		amount := math.Min(debt, credit)
		remaining[debtor] += amount
		remaining[creditor] -= amount
		if amount > core.Epsilon {
			transfers = append(transfers, Transfer{
				PayerID:    debtor,
				ReceiverID: creditor,
				Amount:     round2(amount),
			})
		}
	}
	return transfers
}

// pickExtreme returns the user with the largest value of score(balance),
// preferring the smallest id on ties.
func pickExtreme(balances map[int64]float64, score func(float64) float64) (int64, float64) {
	var bestID int64
	best := math.Inf(-1)
	for id, b := range balances {
		s := score(b)
		if s > best+core.Epsilon/2 || (math.Abs(s-best) <= core.Epsilon/2 && (bestID == 0 || id < bestID)) {
			bestID = id
			best = s
		}
	}
	return bestID, best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
