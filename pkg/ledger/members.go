package ledger

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
	"github.com/shopspring/decimal"
)

// Dashboard is the member-facing account summary.
type Dashboard struct {
	Name               string          `json:"name"`
	Balance            decimal.Decimal `json:"balance"`
	ReservedProfit     decimal.Decimal `json:"reserved_profit"`
	Contributions      decimal.Decimal `json:"contributions"`
	OpenLoans          []*models.Loan  `json:"open_loans"`
	PoolContributions  decimal.Decimal `json:"pool_total_contributions"`
	PoolBlockedAmount  decimal.Decimal `json:"pool_blocked_amount"`
	PoolAvailableFund  decimal.Decimal `json:"pool_available_fund"`
}

// TransactionEntry is one row of the merged profit/withdrawal history.
type TransactionEntry struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`      // "profit" or "withdrawal"
	Direction string          `json:"direction"` // "credit" or "debit"
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
}

// PoolStats is the admin overview of the fund.
type PoolStats struct {
	TotalContributions decimal.Decimal          `json:"total_contributions"`
	BlockedAmount      decimal.Decimal          `json:"blocked_amount"`
	AvailableFund      decimal.Decimal          `json:"available_fund"`
	ProfitPool         decimal.Decimal          `json:"profit_pool"`
	TotalMembers       int                      `json:"total_members"`
	TotalLoans         int                      `json:"total_loans"`
	ProfitTrend        []models.MonthlyInterest `json:"profit_trend"`
}

// DeactivationResult carries the amount to be refunded externally.
type DeactivationResult struct {
	ReturnedAmount decimal.Decimal `json:"returned_amount"`
}

// RegisterMember creates a new active member. The password arrives already
// hashed; the ledger never sees plaintext credentials.
func (l *Ledger) RegisterMember(name, email, passwordHash string, role models.Role) (*models.Member, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, E(KindPreconditionFailed, "name and email are required")
	}
	if role == "" {
		role = models.RoleMember
	}

	now := l.now()
	member := &models.Member{
		ID:             uuid.New(),
		Name:           name,
		Email:          email,
		PasswordHash:   passwordHash,
		Role:           role,
		Balance:        decimal.Zero,
		Contributions:  decimal.Zero,
		ReservedProfit: decimal.Zero,
		Active:         true,
		JoinedAt:       now,
		UpdatedAt:      now,
	}
	if err := l.storage.CreateMember(member); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, E(KindPreconditionFailed, "a member with this email already exists")
		}
		return nil, err
	}
	return member, nil
}

// GetMemberByEmail looks a member up for login.
func (l *Ledger) GetMemberByEmail(email string) (*models.Member, error) {
	m, err := l.storage.GetMemberByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if isNotFound(err) {
			return nil, E(KindNotFound, "no member with this email")
		}
		return nil, err
	}
	return m, nil
}

// GetMember returns one member by id.
func (l *Ledger) GetMember(id uuid.UUID) (*models.Member, error) {
	return l.member(l.storage, id)
}

// GetAllMembers lists every member for the admin view.
func (l *Ledger) GetAllMembers() ([]*models.Member, error) {
	return l.storage.GetAllMembers()
}

// GetAllContributions lists every contribution, newest first.
func (l *Ledger) GetAllContributions() ([]*models.Contribution, error) {
	return l.storage.GetAllContributions()
}

// ReactivateMember reopens a deactivated account and logs the transition. The
// reactivation is itself recorded so the member stays ineligible for the
// period's profit if they were deactivated within it.
func (l *Ledger) ReactivateMember(email string) (*models.Member, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var member *models.Member
	err := l.withTx(func(s store.Storage) error {
		var err error
		member, err = s.GetMemberByEmail(strings.ToLower(strings.TrimSpace(email)))
		if err != nil {
			if isNotFound(err) {
				return E(KindNotFound, "no member with this email")
			}
			return err
		}
		if member.Active {
			return E(KindPreconditionFailed, "account is already active")
		}
		member.Active = true
		member.UpdatedAt = l.now()
		if err := s.UpdateMember(member); err != nil {
			return err
		}
		return s.CreateActivityLog(&models.ActivityLog{
			ID:           uuid.New(),
			MemberID:     member.ID,
			ActivityType: models.ActivityReactivated,
			CreatedAt:    l.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// Withdraw takes money out of a member's balance. Blocked while any due is
// pending or a loan is active, and bounded below by the policy minimum.
func (l *Ledger) Withdraw(memberID uuid.UUID, amount decimal.Decimal) (*models.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, E(KindInvalidAmount, "withdrawal amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var withdrawal *models.Withdrawal
	err := l.withTx(func(s store.Storage) error {
		member, err := l.member(s, memberID)
		if err != nil {
			return err
		}
		if !member.Active {
			return E(KindAccountInactive, "account is inactive")
		}

		if err := l.checkNoOpenObligations(s, memberID, "withdrawing"); err != nil {
			return err
		}

		settings, err := l.settings(s)
		if err != nil {
			return err
		}
		if amount.LessThan(settings.MinimumWithdrawalAmount) {
			return E(KindPreconditionFailed, "minimum withdrawal amount is %s", settings.MinimumWithdrawalAmount)
		}
		if member.Balance.LessThan(amount) {
			return E(KindInsufficientFunds, "balance %s is less than the requested %s", member.Balance, amount)
		}

		now := l.now()
		member.Balance = member.Balance.Sub(amount)
		member.UpdatedAt = now
		if err := s.UpdateMember(member); err != nil {
			return err
		}

		withdrawal = &models.Withdrawal{
			ID:        uuid.New(),
			MemberID:  memberID,
			Amount:    amount,
			CreatedAt: now,
		}
		if err := s.CreateWithdrawal(withdrawal); err != nil {
			return err
		}
		return l.checkConsistency(s)
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// DeactivateMember closes an account: lifetime contributions and balance are
// returned externally, the pool fund shrinks by the returned contributions,
// and the member is soft-deactivated with history intact.
func (l *Ledger) DeactivateMember(memberID uuid.UUID) (*DeactivationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result *DeactivationResult
	err := l.withTx(func(s store.Storage) error {
		member, err := l.member(s, memberID)
		if err != nil {
			return err
		}
		if !member.Active {
			return E(KindAccountInactive, "account is already inactive")
		}

		if err := l.checkNoOpenObligations(s, memberID, "deactivating"); err != nil {
			return err
		}

		pool, err := l.poolFund(s)
		if err != nil {
			return err
		}
		refundContributions := member.Contributions
		if refundContributions.GreaterThan(pool.Available()) {
			return E(KindInsufficientFunds, "pool fund cannot cover the %s refund while %s is lent out",
				refundContributions, pool.BlockedAmount)
		}

		now := l.now()
		refundBalance := member.Balance.Add(member.ReservedProfit)
		if refundBalance.IsPositive() {
			if err := s.CreateWithdrawal(&models.Withdrawal{
				ID:        uuid.New(),
				MemberID:  memberID,
				Amount:    refundBalance,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		pool.TotalContributions = pool.TotalContributions.Sub(refundContributions)
		if err := s.SavePoolFund(pool); err != nil {
			return err
		}

		member.Contributions = decimal.Zero
		member.Balance = decimal.Zero
		member.ReservedProfit = decimal.Zero
		member.Active = false
		member.UpdatedAt = now
		if err := s.UpdateMember(member); err != nil {
			return err
		}

		if err := s.CreateActivityLog(&models.ActivityLog{
			ID:           uuid.New(),
			MemberID:     memberID,
			ActivityType: models.ActivityDeactivated,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		result = &DeactivationResult{ReturnedAmount: refundContributions.Add(refundBalance)}
		return l.checkConsistency(s)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkNoOpenObligations gates withdrawal and deactivation on cleared dues
// and no active loan.
func (l *Ledger) checkNoOpenObligations(s store.Storage, memberID uuid.UUID, action string) error {
	pending, err := s.HasPendingDue(memberID)
	if err != nil {
		return err
	}
	if pending {
		return E(KindPreconditionFailed, "clear all pending dues before %s", action)
	}
	active, err := s.HasLoanInStatus(memberID, models.LoanStatusApproved)
	if err != nil {
		return err
	}
	if active {
		return E(KindPreconditionFailed, "repay the active loan before %s", action)
	}
	return nil
}

// GetDashboard assembles the member account summary. Read-only.
func (l *Ledger) GetDashboard(memberID uuid.UUID) (*Dashboard, error) {
	member, err := l.member(l.storage, memberID)
	if err != nil {
		return nil, err
	}
	loans, err := l.storage.GetLoansForMember(memberID)
	if err != nil {
		return nil, err
	}
	open := make([]*models.Loan, 0)
	for _, loan := range loans {
		if loan.Status == models.LoanStatusPending || loan.Status == models.LoanStatusApproved {
			open = append(open, loan)
		}
	}
	pool, err := l.poolFund(l.storage)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Name:              member.Name,
		Balance:           member.Balance,
		ReservedProfit:    member.ReservedProfit,
		Contributions:     member.Contributions,
		OpenLoans:         open,
		PoolContributions: pool.TotalContributions,
		PoolBlockedAmount: pool.BlockedAmount,
		PoolAvailableFund: pool.Available(),
	}, nil
}

// GetTransactions merges profit credits and withdrawal debits, newest first.
func (l *Ledger) GetTransactions(memberID uuid.UUID) ([]TransactionEntry, error) {
	if _, err := l.member(l.storage, memberID); err != nil {
		return nil, err
	}
	profits, err := l.storage.GetProfitHistoryForMember(memberID)
	if err != nil {
		return nil, err
	}
	withdrawals, err := l.storage.GetWithdrawalsForMember(memberID)
	if err != nil {
		return nil, err
	}

	entries := make([]TransactionEntry, 0, len(profits)+len(withdrawals))
	for _, p := range profits {
		entries = append(entries, TransactionEntry{
			ID: p.ID, Type: "profit", Direction: "credit", Amount: p.Amount, Date: p.DistributedAt,
		})
	}
	for _, w := range withdrawals {
		entries = append(entries, TransactionEntry{
			ID: w.ID, Type: "withdrawal", Direction: "debit", Amount: w.Amount, Date: w.CreatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries, nil
}

// GetPoolStats returns the admin fund overview with the monthly
// interest-income trend.
func (l *Ledger) GetPoolStats() (*PoolStats, error) {
	pool, err := l.poolFund(l.storage)
	if err != nil {
		return nil, err
	}
	profit, err := l.profitPool(l.storage)
	if err != nil {
		return nil, err
	}
	memberCount, err := l.storage.CountMembers()
	if err != nil {
		return nil, err
	}
	loanCount, err := l.storage.CountLoans()
	if err != nil {
		return nil, err
	}
	trend, err := l.storage.InterestByMonth()
	if err != nil {
		return nil, err
	}
	return &PoolStats{
		TotalContributions: pool.TotalContributions,
		BlockedAmount:      pool.BlockedAmount,
		AvailableFund:      pool.Available(),
		ProfitPool:         profit.TotalProfit,
		TotalMembers:       memberCount,
		TotalLoans:         loanCount,
		ProfitTrend:        trend,
	}, nil
}

// GetSettings returns the policy parameters, failing closed when the
// singleton has not been bootstrapped.
func (l *Ledger) GetSettings() (*models.Settings, error) {
	return l.settings(l.storage)
}

// UpdateSettings replaces the policy parameters. Active loans keep the rate
// snapshotted at their approval.
func (l *Ledger) UpdateSettings(st *models.Settings) (*models.Settings, error) {
	if !st.WeeklyContributionAmount.IsPositive() {
		return nil, E(KindInvalidAmount, "weekly contribution amount must be positive")
	}
	if st.LateFineAmount.IsNegative() || st.MinimumWithdrawalAmount.IsNegative() {
		return nil, E(KindInvalidAmount, "fine and minimum withdrawal amounts cannot be negative")
	}
	if st.LoanInterestRate.IsNegative() || st.LoanInterestRate.GreaterThan(hundred) {
		return nil, E(KindInvalidAmount, "loan interest rate must be between 0 and 100")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.withTx(func(s store.Storage) error {
		if _, err := l.settings(s); err != nil {
			return err
		}
		return s.SaveSettings(st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
