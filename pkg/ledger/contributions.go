package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
	"github.com/shopspring/decimal"
)

// Obligation is what a member owes right now: every pending due plus the
// current week's contribution if it has not been paid yet.
type Obligation struct {
	DueAmount         decimal.Decimal `json:"due_amount"`
	PendingDuesAmount decimal.Decimal `json:"pending_dues_amount"`
	CurrentWeekAmount decimal.Decimal `json:"current_week_amount"`
	PendingDues       []*models.Due   `json:"pending_dues"`
}

// PaymentResult summarizes one accepted contribution payment.
type PaymentResult struct {
	DuesSettled    int             `json:"dues_settled"`
	Contributed    decimal.Decimal `json:"contributed"`
	FinesPaid      decimal.Decimal `json:"fines_paid"`
	ReleasedProfit decimal.Decimal `json:"released_profit"`
}

// HistoryEntry is one row of the merged contribution/due timeline.
type HistoryEntry struct {
	ID     uuid.UUID       `json:"id"`
	Type   string          `json:"type"` // "contribution" or "due"
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"` // "paid" or "pending"
	Late   bool            `json:"late"`
	Date   time.Time       `json:"date"`
}

// GetObligation reports what the member owes. Read-only.
func (l *Ledger) GetObligation(memberID uuid.UUID) (*Obligation, error) {
	if _, err := l.member(l.storage, memberID); err != nil {
		return nil, err
	}
	return l.obligation(l.storage, memberID, l.now())
}

func (l *Ledger) obligation(s store.Storage, memberID uuid.UUID, now time.Time) (*Obligation, error) {
	settings, err := l.settings(s)
	if err != nil {
		return nil, err
	}

	dues, err := s.GetPendingDues(memberID)
	if err != nil {
		return nil, err
	}
	duesAmount := decimal.Zero
	for _, d := range dues {
		duesAmount = duesAmount.Add(d.Amount)
	}

	paidThisWeek, err := s.HasContributionInRange(memberID, WeekStart(now), WeekEnd(now))
	if err != nil {
		return nil, err
	}
	weekAmount := decimal.Zero
	if !paidThisWeek {
		weekAmount = settings.WeeklyContributionAmount
	}

	return &Obligation{
		DueAmount:         duesAmount.Add(weekAmount),
		PendingDuesAmount: duesAmount,
		CurrentWeekAmount: weekAmount,
		PendingDues:       dues,
	}, nil
}

// PayContribution accepts a payment that must exactly match the member's
// obligation; anything else fails without side effects. On an exact match it
// settles every pending due oldest first (splitting each into a back-dated
// contribution and its fine), records the current week's contribution if
// still owed, and releases any reserved profit now that the dues are clear.
func (l *Ledger) PayContribution(memberID uuid.UUID, amount decimal.Decimal) (*PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, E(KindInvalidAmount, "contribution amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var result *PaymentResult
	err := l.withTx(func(s store.Storage) error {
		member, err := l.member(s, memberID)
		if err != nil {
			return err
		}
		if !member.Active {
			return E(KindAccountInactive, "account is inactive")
		}

		now := l.now()
		ob, err := l.obligation(s, memberID, now)
		if err != nil {
			return err
		}
		if ob.DueAmount.IsZero() {
			return E(KindNothingDue, "nothing is due; next contribution is due next week")
		}
		if !amount.Equal(ob.DueAmount) {
			return E(KindAmountMismatch, "payment of %s does not match the amount due %s", amount, ob.DueAmount)
		}

		pool, err := l.poolFund(s)
		if err != nil {
			return err
		}
		profit, err := l.profitPool(s)
		if err != nil {
			return err
		}

		result = &PaymentResult{
			Contributed:    decimal.Zero,
			FinesPaid:      decimal.Zero,
			ReleasedProfit: decimal.Zero,
		}

		for _, due := range ob.PendingDues {
			paidAt := now
			due.Status = models.DueStatusPaid
			due.PaidAt = &paidAt
			if err := s.UpdateDue(due); err != nil {
				return err
			}

			effective, err := WeekStartFromID(due.WeekID)
			if err != nil {
				return err
			}
			missed := due.Amount.Sub(due.FineAmount)
			if err := s.CreateContribution(&models.Contribution{
				ID:            uuid.New(),
				MemberID:      memberID,
				Amount:        missed,
				EffectiveDate: effective,
				RecordedAt:    now,
			}); err != nil {
				return err
			}

			member.Contributions = member.Contributions.Add(missed)
			pool.TotalContributions = pool.TotalContributions.Add(missed)
			profit.TotalProfit = profit.TotalProfit.Add(due.FineAmount)
			result.DuesSettled++
			result.Contributed = result.Contributed.Add(missed)
			result.FinesPaid = result.FinesPaid.Add(due.FineAmount)
		}

		if ob.CurrentWeekAmount.IsPositive() {
			if err := s.CreateContribution(&models.Contribution{
				ID:            uuid.New(),
				MemberID:      memberID,
				Amount:        ob.CurrentWeekAmount,
				EffectiveDate: now,
				RecordedAt:    now,
			}); err != nil {
				return err
			}
			member.Contributions = member.Contributions.Add(ob.CurrentWeekAmount)
			pool.TotalContributions = pool.TotalContributions.Add(ob.CurrentWeekAmount)
			result.Contributed = result.Contributed.Add(ob.CurrentWeekAmount)
		}

		// All dues are settled at this point, so reserved profit is released.
		if member.ReservedProfit.IsPositive() {
			result.ReleasedProfit = member.ReservedProfit
			member.Balance = member.Balance.Add(member.ReservedProfit)
			member.ReservedProfit = decimal.Zero
		}

		member.UpdatedAt = now
		if err := s.UpdateMember(member); err != nil {
			return err
		}
		if err := s.SavePoolFund(pool); err != nil {
			return err
		}
		if err := s.SaveProfitPool(profit); err != nil {
			return err
		}
		return l.checkConsistency(s)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetHistory merges the member's contributions and dues into one timeline,
// newest first. A contribution recorded more than a day after the week it
// counts for is flagged as late.
func (l *Ledger) GetHistory(memberID uuid.UUID) ([]HistoryEntry, error) {
	if _, err := l.member(l.storage, memberID); err != nil {
		return nil, err
	}

	contributions, err := l.storage.GetContributionsForMember(memberID)
	if err != nil {
		return nil, err
	}
	dues, err := l.storage.GetDuesForMember(memberID)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(contributions)+len(dues))
	for _, c := range contributions {
		entries = append(entries, HistoryEntry{
			ID:     c.ID,
			Type:   "contribution",
			Amount: c.Amount,
			Status: string(models.DueStatusPaid),
			Late:   c.RecordedAt.Sub(c.EffectiveDate) > 24*time.Hour,
			Date:   c.EffectiveDate,
		})
	}
	for _, d := range dues {
		entries = append(entries, HistoryEntry{
			ID:     d.ID,
			Type:   "due",
			Amount: d.Amount,
			Status: string(d.Status),
			Date:   d.CreatedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries, nil
}
