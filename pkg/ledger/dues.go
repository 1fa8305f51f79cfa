package ledger

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
)

// SweepResult reports one weekly dues sweep run.
type SweepResult struct {
	WeekID      string `json:"week_identifier"`
	DuesCreated int    `json:"dues_created"`
}

// RunWeeklyDuesSweep checks the completed week before referenceDate and
// creates a due for every active member who has no contribution effective in
// that week. Re-running for the same week is a no-op: the (member, week)
// uniqueness constraint and the existing-due check make the sweep idempotent.
func (l *Ledger) RunWeeklyDuesSweep(referenceDate time.Time) (*SweepResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	target := referenceDate.UTC().AddDate(0, 0, -7)
	weekID := WeekID(target)
	weekStart := WeekStart(target)
	weekEnd := WeekEnd(target)

	result := &SweepResult{WeekID: weekID}
	err := l.withTx(func(s store.Storage) error {
		settings, err := l.settings(s)
		if err != nil {
			return err
		}

		members, err := s.GetActiveMembers()
		if err != nil {
			return err
		}

		for _, member := range members {
			if member.JoinedAt.After(weekEnd) {
				continue
			}
			if _, err := s.GetDueByWeek(member.ID, weekID); err == nil {
				continue // already swept
			} else if !isNotFound(err) {
				return err
			}
			contributed, err := s.HasContributionInRange(member.ID, weekStart, weekEnd)
			if err != nil {
				return err
			}
			if contributed {
				continue
			}

			due := &models.Due{
				ID:         uuid.New(),
				MemberID:   member.ID,
				Amount:     settings.WeeklyContributionAmount.Add(settings.LateFineAmount),
				FineAmount: settings.LateFineAmount,
				Reason:     fmt.Sprintf("missed contribution for week %s", weekID),
				WeekID:     weekID,
				Status:     models.DueStatusPending,
				CreatedAt:  l.now(),
			}
			if err := s.CreateDue(due); err != nil {
				return err
			}
			if err := l.notify(s, member.ID,
				fmt.Sprintf("You missed the contribution for week %s. A due of %s has been recorded.", weekID, due.Amount),
				"/contributions"); err != nil {
				return err
			}
			result.DuesCreated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("weekly dues sweep for %s: %d dues created", weekID, result.DuesCreated)
	return result, nil
}
