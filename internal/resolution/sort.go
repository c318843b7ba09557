package resolution

import "sort"

// sortCandidates orders candidates best-first according to the policy. The
// final agency-code/item-id comparison keeps the order deterministic when
// everything else ties.
func sortCandidates(candidates []candidate, policy string) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		if policy == SortPolicyRatio {
			ra, rb := loanBorrowRatio(a), loanBorrowRatio(b)
			if ra != rb {
				// Agencies that have supplied less relative to what they
				// borrow go first, spreading load across the consortium.
				return ra < rb
			}
		}

		if a.item.AvailableCopies != b.item.AvailableCopies {
			return a.item.AvailableCopies > b.item.AvailableCopies
		}
		if a.item.HoldCount != b.item.HoldCount {
			return a.item.HoldCount < b.item.HoldCount
		}
		if a.agency.Code != b.agency.Code {
			return a.agency.Code < b.agency.Code
		}
		return a.item.LocalItemID < b.item.LocalItemID
	})
}

func loanBorrowRatio(c candidate) float64 {
	borrows := c.agency.BorrowCount
	if borrows == 0 {
		borrows = 1
	}
	return float64(c.agency.LoanCount) / float64(borrows)
}
