package core

import (
	"sort"

	"github.com/ditar94/LabAid-sub000/pkg/domain"
)

// FEFOPolicy tunes lot eligibility for first-expired-first-out ranking.
type FEFOPolicy struct {
	// IncludeFailedQC keeps lots whose QC failed in the ranking. The default
	// excludes them, which matches how stock is actually consumed: failed lots
	// are quarantined, not picked.
	IncludeFailedQC bool
}

// RankLots labels each lot of one antibody with its consumption priority.
//
// Eligibility requires a non-archived lot with at least one sealed vial and,
// unless the policy says otherwise, a QC status other than failed. When fewer
// than two lots are eligible there is no ordering decision to make and every
// lot is labeled none. Otherwise eligible lots are ordered ascending by
// expiration date, lots without a date sorting last; the first is current and
// the rest are new. Ties keep their input order.
//
// The computation is pure and never fails; malformed inputs degrade to none.
func RankLots(lots []domain.Lot, policy FEFOPolicy) map[string]domain.FEFOLabel {
	labels := make(map[string]domain.FEFOLabel, len(lots))
	for _, lot := range lots {
		labels[lot.ID] = domain.FEFONone
	}

	eligible := make([]domain.Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.Archived || lot.SealedCount <= 0 {
			continue
		}
		if !policy.IncludeFailedQC && lot.QCStatus == domain.QCStatusFailed {
			continue
		}
		eligible = append(eligible, lot)
	}
	if len(eligible) < 2 {
		return labels
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i].ExpirationDate, eligible[j].ExpirationDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	labels[eligible[0].ID] = domain.FEFOCurrent
	for _, lot := range eligible[1:] {
		labels[lot.ID] = domain.FEFONew
	}
	return labels
}
