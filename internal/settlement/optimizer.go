// Package settlement collapses net balances into the shortest ordered list of
// pairwise transfers that brings every party to zero.
package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/segyhp/expense-ledger/internal/domain"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
	"github.com/segyhp/expense-ledger/pkg/utils"
)

// ResidueLimit is the largest imbalance a single chain may absorb.
var ResidueLimit = utils.Tolerance

// Entry is a party and its net position (positive: is owed money).
type Entry[K comparable] struct {
	Key K
	Net decimal.Decimal
}

// Transfer moves Amount from a debtor to a creditor.
type Transfer[K comparable] struct {
	Index  int
	From   K
	To     K
	Amount decimal.Decimal
}

type party[K comparable] struct {
	key       K
	remaining decimal.Decimal
}

// Optimize greedily matches the largest creditor with the largest debtor
// until nobody is left. Ties are broken by less, so the same input always
// yields the same ordered plan. At most n-1 transfers are produced for n
// non-zero entries.
func Optimize[K comparable](entries []Entry[K], less func(a, b K) bool) ([]Transfer[K], error) {
	var creditors, debtors []*party[K]
	for _, e := range entries {
		net := utils.RoundMoney(e.Net)
		if utils.IsZero(net) {
			continue
		}
		if net.IsPositive() {
			creditors = append(creditors, &party[K]{key: e.Key, remaining: net})
		} else {
			debtors = append(debtors, &party[K]{key: e.Key, remaining: net.Neg()})
		}
	}

	transfers := make([]Transfer[K], 0, len(creditors)+len(debtors))

	for len(creditors) > 0 && len(debtors) > 0 {
		ci := largest(creditors, less)
		di := largest(debtors, less)
		creditor, debtor := creditors[ci], debtors[di]

		amount := decimal.Min(creditor.remaining, debtor.remaining)
		if len(creditors) == 1 && len(debtors) == 1 &&
			creditor.remaining.Sub(debtor.remaining).Abs().LessThanOrEqual(ResidueLimit) {
			// Last link of the chain: fold the sub-limit residue into it.
			amount = decimal.Max(creditor.remaining, debtor.remaining)
			creditor.remaining = decimal.Zero
			debtor.remaining = decimal.Zero
		} else {
			creditor.remaining = creditor.remaining.Sub(amount)
			debtor.remaining = debtor.remaining.Sub(amount)
		}

		transfers = append(transfers, Transfer[K]{
			Index:  len(transfers),
			From:   debtor.key,
			To:     creditor.key,
			Amount: amount,
		})

		if utils.IsZero(creditor.remaining) {
			creditors = remove(creditors, ci)
		}
		if utils.IsZero(debtor.remaining) {
			debtors = remove(debtors, di)
		}
	}

	leftover := decimal.Zero
	for _, p := range creditors {
		leftover = leftover.Add(p.remaining)
	}
	for _, p := range debtors {
		leftover = leftover.Add(p.remaining)
	}
	// A stray cent on a party that no transfer touches is tolerated; anything
	// larger means the input does not conserve money.
	if leftover.GreaterThan(ResidueLimit) {
		return nil, customError.WrapUnbalanced(leftover.StringFixed(utils.MoneyPlaces))
	}

	return transfers, nil
}

// Participants runs Optimize over flat balances. Labels are resolved through
// names; unknown ids keep an empty label.
func Participants(balances []domain.Balance, names map[int64]string) ([]domain.Suggestion, error) {
	entries := make([]Entry[int64], len(balances))
	for i, b := range balances {
		entries[i] = Entry[int64]{Key: b.ParticipantID, Net: b.Net}
	}

	transfers, err := Optimize(entries, func(a, b int64) bool { return a < b })
	if err != nil {
		return nil, err
	}

	suggestions := make([]domain.Suggestion, len(transfers))
	for i, t := range transfers {
		suggestions[i] = domain.Suggestion{
			Index:     t.Index,
			FromID:    t.From,
			ToID:      t.To,
			Amount:    t.Amount,
			FromLabel: names[t.From],
			ToLabel:   names[t.To],
		}
	}

	return suggestions, nil
}

// Groups runs Optimize over group balances, labelled with each group's label.
func Groups(balances []domain.GroupBalance) ([]domain.GroupSuggestion, error) {
	entries := make([]Entry[domain.GroupRef], len(balances))
	labels := make(map[domain.GroupRef]string, len(balances))
	for i, b := range balances {
		entries[i] = Entry[domain.GroupRef]{Key: b.Group, Net: b.Net}
		labels[b.Group] = b.Label
	}

	transfers, err := Optimize(entries, domain.GroupRef.Less)
	if err != nil {
		return nil, err
	}

	suggestions := make([]domain.GroupSuggestion, len(transfers))
	for i, t := range transfers {
		suggestions[i] = domain.GroupSuggestion{
			Index:     t.Index,
			FromGroup: t.From,
			ToGroup:   t.To,
			Amount:    t.Amount,
			FromLabel: labels[t.From],
			ToLabel:   labels[t.To],
		}
	}

	return suggestions, nil
}

// largest returns the index of the party with the biggest remaining amount,
// preferring the smaller key on ties.
func largest[K comparable](parties []*party[K], less func(a, b K) bool) int {
	best := 0
	for i := 1; i < len(parties); i++ {
		cmp := parties[i].remaining.Cmp(parties[best].remaining)
		if cmp > 0 || (cmp == 0 && less(parties[i].key, parties[best].key)) {
			best = i
		}
	}
	return best
}

func remove[K comparable](parties []*party[K], i int) []*party[K] {
	return append(parties[:i], parties[i+1:]...)
}
