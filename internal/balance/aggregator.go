// Package balance turns raw expense and share records into net positions,
// per participant and per group. Nothing here is persisted; callers recompute
// on every read.
package balance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/segyhp/expense-ledger/internal/domain"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
	"github.com/segyhp/expense-ledger/pkg/utils"
)

type tally struct {
	paid decimal.Decimal
	owed decimal.Decimal
}

func (t *tally) net() decimal.Decimal {
	return t.paid.Sub(t.owed)
}

// Compute returns one Balance per participant that paid or owes anything,
// ordered by participant id.
func Compute(roster []*domain.Participant, expenses []*domain.Expense) ([]domain.Balance, error) {
	members := indexRoster(roster)

	tallies, err := accumulate(members, expenses, func(participantID int64) int64 {
		return participantID
	})
	if err != nil {
		return nil, err
	}

	balances := make([]domain.Balance, 0, len(tallies))
	for id, t := range tallies {
		if t.paid.IsZero() && t.owed.IsZero() {
			continue
		}
		balances = append(balances, domain.Balance{
			ParticipantID: id,
			GrossPaid:     t.paid,
			GrossOwed:     t.owed,
			Net:           t.net(),
		})
	}

	sort.Slice(balances, func(i, j int) bool {
		return balances[i].ParticipantID < balances[j].ParticipantID
	})

	return balances, nil
}

// ComputeGroups returns one GroupBalance per real group plus one virtual
// group per participant outside every group. A participant listed in more
// than one group is accounted to the group with the lowest id.
func ComputeGroups(roster []*domain.Participant, groups []*domain.Group, expenses []*domain.Expense) ([]domain.GroupBalance, error) {
	members := indexRoster(roster)
	assignment, labels := assignGroups(roster, groups, members)

	tallies, err := accumulate(members, expenses, func(participantID int64) domain.GroupRef {
		return assignment[participantID]
	})
	if err != nil {
		return nil, err
	}

	refs := make([]domain.GroupRef, 0, len(labels))
	for ref := range labels {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Less(refs[j])
	})

	balances := make([]domain.GroupBalance, 0, len(refs))
	for _, ref := range refs {
		t, ok := tallies[ref]
		if !ok {
			t = &tally{paid: decimal.Zero, owed: decimal.Zero}
		}
		balances = append(balances, domain.GroupBalance{
			Group:     ref,
			Label:     labels[ref],
			GrossPaid: t.paid,
			GrossOwed: t.owed,
			Net:       t.net(),
		})
	}

	return balances, nil
}

// Membership maps every rostered participant to the group it settles through.
func Membership(roster []*domain.Participant, groups []*domain.Group) map[int64]domain.GroupRef {
	assignment, _ := assignGroups(roster, groups, indexRoster(roster))
	return assignment
}

// Delta reports the participants whose net changed between two balance
// snapshots. A participant missing from a snapshot counts as zero.
func Delta(before, after []domain.Balance) []domain.BalanceChange {
	prev := make(map[int64]decimal.Decimal, len(before))
	for _, b := range before {
		prev[b.ParticipantID] = b.Net
	}
	next := make(map[int64]decimal.Decimal, len(after))
	for _, b := range after {
		next[b.ParticipantID] = b.Net
	}

	ids := make(map[int64]struct{}, len(prev)+len(next))
	for id := range prev {
		ids[id] = struct{}{}
	}
	for id := range next {
		ids[id] = struct{}{}
	}

	var changes []domain.BalanceChange
	for id := range ids {
		b, a := prev[id], next[id]
		if b.Equal(a) {
			continue
		}
		changes = append(changes, domain.BalanceChange{ParticipantID: id, Before: b, After: a})
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].ParticipantID < changes[j].ParticipantID
	})

	return changes
}

func indexRoster(roster []*domain.Participant) map[int64]*domain.Participant {
	members := make(map[int64]*domain.Participant, len(roster))
	for _, p := range roster {
		members[p.ID] = p
	}
	return members
}

func assignGroups(roster []*domain.Participant, groups []*domain.Group, members map[int64]*domain.Participant) (map[int64]domain.GroupRef, map[domain.GroupRef]string) {
	ordered := make([]*domain.Group, len(groups))
	copy(ordered, groups)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID < ordered[j].ID
	})

	assignment := make(map[int64]domain.GroupRef, len(roster))
	labels := make(map[domain.GroupRef]string, len(groups)+len(roster))

	for _, g := range ordered {
		ref := domain.RealGroup(g.ID)
		labels[ref] = g.Name
		for _, memberID := range g.MemberIDs {
			if _, rostered := members[memberID]; !rostered {
				continue
			}
			if _, taken := assignment[memberID]; taken {
				continue
			}
			assignment[memberID] = ref
		}
	}

	for _, p := range roster {
		if _, ok := assignment[p.ID]; ok {
			continue
		}
		ref := domain.VirtualGroup(p.ID)
		assignment[p.ID] = ref
		labels[ref] = p.Name
	}

	return assignment, labels
}

// accumulate folds every finalized expense into per-key tallies. Expenses
// without a rostered payer are placeholders and are skipped as a whole.
func accumulate[K comparable](members map[int64]*domain.Participant, expenses []*domain.Expense, keyOf func(int64) K) (map[K]*tally, error) {
	tallies := make(map[K]*tally)
	get := func(key K) *tally {
		t, ok := tallies[key]
		if !ok {
			t = &tally{paid: decimal.Zero, owed: decimal.Zero}
			tallies[key] = t
		}
		return t
	}

	for _, expense := range expenses {
		if expense.PayerID == nil {
			continue
		}
		if _, ok := members[*expense.PayerID]; !ok {
			continue
		}

		payer := get(keyOf(*expense.PayerID))
		payer.paid = payer.paid.Add(utils.RoundMoney(expense.Amount))

		for _, share := range expense.Shares {
			if _, ok := members[share.ParticipantID]; !ok {
				return nil, customError.WrapParticipantNotFound(share.ParticipantID)
			}
			debtor := get(keyOf(share.ParticipantID))
			debtor.owed = debtor.owed.Add(utils.RoundMoney(share.Amount))
		}
	}

	return tallies, nil
}
