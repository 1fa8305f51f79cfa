package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RepaymentDetails is the repayment preview: the same formula repay commits,
// projected without mutation.
type RepaymentDetails struct {
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Total     decimal.Decimal `json:"total"`
	Months    int             `json:"months"`
}

// repaymentAt computes interest and total for an approved loan as of `at`.
// A loan always accrues at least one month of interest, so a same-day
// repayment is billed for exactly one month.
func repaymentAt(loan *models.Loan, at time.Time) RepaymentDetails {
	months := monthsBetween(*loan.ApprovedAt, at)
	if months < 1 {
		months = 1
	}
	interest := loan.Amount.
		Mul(loan.InterestRate).
		Div(hundred).
		Mul(decimal.NewFromInt(int64(months))).
		Round(2)
	return RepaymentDetails{
		Principal: loan.Amount,
		Interest:  interest,
		Total:     loan.Amount.Add(interest),
		Months:    months,
	}
}

// RequestLoan files a pending loan request against the pool.
func (l *Ledger) RequestLoan(memberID uuid.UUID, amount decimal.Decimal, purpose string) (*models.Loan, error) {
	if !amount.IsPositive() {
		return nil, E(KindInvalidAmount, "loan amount must be positive")
	}

	member, err := l.member(l.storage, memberID)
	if err != nil {
		return nil, err
	}
	if !member.Active {
		return nil, E(KindAccountInactive, "account is inactive")
	}

	loan := &models.Loan{
		ID:          uuid.New(),
		BorrowerID:  memberID,
		Amount:      amount,
		Purpose:     purpose,
		Status:      models.LoanStatusPending,
		RequestedAt: l.now(),
	}
	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// ApproveLoan moves a pending loan to approved, snapshotting the current
// interest rate and blocking the principal in the pool fund. A request from
// an inactive borrower or beyond the available fund is auto-rejected: the
// rejection is committed and the typed failure returned.
func (l *Ledger) ApproveLoan(loanID uuid.UUID) (*models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var loan *models.Loan
	var opErr error
	err := l.withTx(func(s store.Storage) error {
		var err error
		loan, err = l.loan(s, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusPending {
			return E(KindInvalidState, "loan is not pending")
		}

		borrower, err := l.member(s, loan.BorrowerID)
		if err != nil {
			return err
		}
		now := l.now()

		if !borrower.Active {
			opErr = E(KindAccountInactive, "cannot approve loan: the borrower is inactive")
			return l.rejectInTx(s, loan, now)
		}

		pool, err := l.poolFund(s)
		if err != nil {
			return err
		}
		if loan.Amount.GreaterThan(pool.Available()) {
			opErr = E(KindInsufficientFunds, "loan amount %s exceeds available pool fund %s", loan.Amount, pool.Available())
			return l.rejectInTx(s, loan, now)
		}

		settings, err := l.settings(s)
		if err != nil {
			return err
		}

		loan.Status = models.LoanStatusApproved
		loan.ApprovedAt = &now
		loan.InterestRate = settings.LoanInterestRate
		if err := s.UpdateLoan(loan); err != nil {
			return err
		}

		pool.BlockedAmount = pool.BlockedAmount.Add(loan.Amount)
		if err := s.SavePoolFund(pool); err != nil {
			return err
		}

		if err := l.notify(s, loan.BorrowerID,
			fmt.Sprintf("Your loan request for %s has been approved.", loan.Amount), "/loans"); err != nil {
			return err
		}
		return l.checkConsistency(s)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	return loan, nil
}

// rejectInTx records a rejection without aborting the surrounding
// transaction, used by the auto-reject paths of ApproveLoan.
func (l *Ledger) rejectInTx(s store.Storage, loan *models.Loan, now time.Time) error {
	loan.Status = models.LoanStatusRejected
	loan.RejectedAt = &now
	if err := s.UpdateLoan(loan); err != nil {
		return err
	}
	return l.notify(s, loan.BorrowerID,
		fmt.Sprintf("Your loan request for %s has been rejected.", loan.Amount), "/loans")
}

// RejectLoan rejects a pending loan.
func (l *Ledger) RejectLoan(loanID uuid.UUID) (*models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var loan *models.Loan
	err := l.withTx(func(s store.Storage) error {
		var err error
		loan, err = l.loan(s, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusPending {
			return E(KindInvalidState, "only pending loans can be rejected")
		}
		return l.rejectInTx(s, loan, l.now())
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// RepayLoan settles an approved loan in full: the principal is unblocked in
// the pool fund and the interest flows into the profit pool.
func (l *Ledger) RepayLoan(loanID uuid.UUID) (*models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var loan *models.Loan
	err := l.withTx(func(s store.Storage) error {
		var err error
		loan, err = l.loan(s, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusApproved {
			return E(KindInvalidState, "loan is not active")
		}

		now := l.now()
		details := repaymentAt(loan, now)

		loan.Status = models.LoanStatusRepaid
		loan.RepaidAt = &now
		loan.Interest = details.Interest
		loan.RepaidAmount = details.Total
		if err := s.UpdateLoan(loan); err != nil {
			return err
		}

		pool, err := l.poolFund(s)
		if err != nil {
			return err
		}
		// Only the principal was ever blocked; interest goes to profit.
		pool.BlockedAmount = pool.BlockedAmount.Sub(loan.Amount)
		if err := s.SavePoolFund(pool); err != nil {
			return err
		}

		profit, err := l.profitPool(s)
		if err != nil {
			return err
		}
		profit.TotalProfit = profit.TotalProfit.Add(details.Interest)
		if err := s.SaveProfitPool(profit); err != nil {
			return err
		}
		return l.checkConsistency(s)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// GetRepaymentDetails previews the repayment of an approved loan. Read-only;
// uses the exact formula RepayLoan commits.
func (l *Ledger) GetRepaymentDetails(loanID uuid.UUID) (*RepaymentDetails, error) {
	loan, err := l.loan(l.storage, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusApproved {
		return nil, E(KindInvalidState, "loan is not active")
	}
	details := repaymentAt(loan, l.now())
	return &details, nil
}

// GetMemberLoans lists a member's loans, newest first.
func (l *Ledger) GetMemberLoans(memberID uuid.UUID) ([]*models.Loan, error) {
	return l.storage.GetLoansForMember(memberID)
}

// GetAllLoans lists every loan, newest first.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

func (l *Ledger) loan(s store.Storage, id uuid.UUID) (*models.Loan, error) {
	loan, err := s.GetLoan(id)
	if err != nil {
		if isNotFound(err) {
			return nil, E(KindNotFound, "loan %s not found", id)
		}
		return nil, err
	}
	return loan, nil
}
