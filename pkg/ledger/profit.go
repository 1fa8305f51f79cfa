package ledger

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
	"github.com/shopspring/decimal"
)

// DistributionResult reports one profit distribution run.
type DistributionResult struct {
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
	Share         decimal.Decimal `json:"share"`
	EligibleCount int             `json:"eligible_count"`
	ReservedCount int             `json:"reserved_count"`
	Distributed   decimal.Decimal `json:"distributed"`
	Remainder     decimal.Decimal `json:"remainder"`
}

// previousMonth returns the full calendar month preceding t, in UTC.
func previousMonth(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	return start, end
}

// RunMonthlyProfitDistribution distributes the profit pool over the calendar
// month preceding referenceDate. Safe to re-invoke: once the pool is drained
// a second run fails with NothingToDistribute and changes nothing.
func (l *Ledger) RunMonthlyProfitDistribution(referenceDate time.Time) (*DistributionResult, error) {
	start, end := previousMonth(referenceDate)
	return l.DistributeProfit(start, end)
}

// DistributeProfitNow is the on-demand admin path. Absent bounds default to
// the month preceding now, reducing to the same eligibility formula as the
// scheduled run.
func (l *Ledger) DistributeProfitNow(periodStart, periodEnd *time.Time) (*DistributionResult, error) {
	start, end := previousMonth(l.now())
	if periodStart != nil {
		start = periodStart.UTC()
	}
	if periodEnd != nil {
		end = periodEnd.UTC()
	}
	return l.DistributeProfit(start, end)
}

// DistributeProfit divides the profit pool equally among the members who met
// every weekly deadline of the period. Shares are truncated to two decimal
// places; the remainder stays in the pool for the next run. A member with a
// pending due has the share reserved instead of released to balance. The
// whole distribution commits atomically.
func (l *Ledger) DistributeProfit(periodStart, periodEnd time.Time) (*DistributionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result *DistributionResult
	err := l.withTx(func(s store.Storage) error {
		profit, err := l.profitPool(s)
		if err != nil {
			return err
		}
		if !profit.TotalProfit.IsPositive() {
			return E(KindNothingToDistribute, "no profit to distribute")
		}

		required := DeadlinesBetween(periodStart, periodEnd)
		if required == 0 {
			return E(KindPreconditionFailed, "no contribution deadlines between %s and %s",
				periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02"))
		}

		members, err := s.GetActiveMembers()
		if err != nil {
			return err
		}

		var eligible []*models.Member
		for _, member := range members {
			need := required
			if member.JoinedAt.After(periodStart) {
				// Mid-period joiners only owe the deadlines since joining.
				need = DeadlinesBetween(member.JoinedAt, periodEnd)
				if need < 1 {
					need = 1
				}
			}
			count, err := s.CountContributionsInRange(member.ID, periodStart, periodEnd)
			if err != nil {
				return err
			}
			if count < need {
				continue
			}
			deactivated, err := s.HasActivityInRange(member.ID, models.ActivityDeactivated, periodStart, periodEnd)
			if err != nil {
				return err
			}
			if deactivated {
				continue
			}
			eligible = append(eligible, member)
		}
		if len(eligible) == 0 {
			return E(KindNoEligibleMembers, "no members were eligible for the period's profit")
		}

		total := profit.TotalProfit
		count := decimal.NewFromInt(int64(len(eligible)))
		share := total.Div(count).RoundDown(2)
		if share.IsZero() {
			return E(KindNothingToDistribute, "profit pool %s is too small to split %d ways", total, len(eligible))
		}

		now := l.now()
		result = &DistributionResult{
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			Share:         share,
			EligibleCount: len(eligible),
		}

		for _, member := range eligible {
			withheld, err := s.HasPendingDue(member.ID)
			if err != nil {
				return err
			}
			if withheld {
				member.ReservedProfit = member.ReservedProfit.Add(share)
				result.ReservedCount++
			} else {
				member.Balance = member.Balance.Add(share)
			}
			member.UpdatedAt = now
			if err := s.UpdateMember(member); err != nil {
				return err
			}
			if err := s.CreateProfitHistory(&models.ProfitHistoryEntry{
				ID:            uuid.New(),
				MemberID:      member.ID,
				Amount:        share,
				DistributedAt: now,
			}); err != nil {
				return err
			}
			if err := l.notify(s, member.ID,
				fmt.Sprintf("You have received %s from the profit distribution.", share), "/profit"); err != nil {
				return err
			}
		}

		result.Distributed = share.Mul(count)
		result.Remainder = total.Sub(result.Distributed)
		profit.TotalProfit = result.Remainder
		if err := s.SaveProfitPool(profit); err != nil {
			return err
		}
		return l.checkConsistency(s)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("distributed %s among %d eligible members (share %s, %d reserved)",
		result.Distributed, result.EligibleCount, result.Share, result.ReservedCount)
	return result, nil
}
