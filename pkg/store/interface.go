package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
)

// ErrNotFound is returned (wrapped) when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned (wrapped) when an insert violates a uniqueness
// constraint, e.g. a second due for the same (member, week) or a reused email.
var ErrDuplicate = errors.New("already exists")

// ErrBusy is returned (wrapped) when a transaction could not be completed
// because of lock contention, after the retry budget is spent. The operation
// had no effect and may be retried by the caller.
var ErrBusy = errors.New("storage busy")

// Storage defines the persistence operations the ledger engines run against.
// WithTx hands the callback a Storage scoped to one transaction; every
// mutating engine operation does all of its reads and writes inside one such
// callback.
type Storage interface {
	WithTx(fn func(Storage) error) error

	CreateMember(m *models.Member) error
	GetMember(id uuid.UUID) (*models.Member, error)
	GetMemberByEmail(email string) (*models.Member, error)
	UpdateMember(m *models.Member) error
	GetAllMembers() ([]*models.Member, error)
	GetActiveMembers() ([]*models.Member, error)
	CountMembers() (int, error)

	CreateContribution(c *models.Contribution) error
	GetContributionsForMember(memberID uuid.UUID) ([]*models.Contribution, error)
	GetAllContributions() ([]*models.Contribution, error)
	HasContributionInRange(memberID uuid.UUID, from, to time.Time) (bool, error)
	CountContributionsInRange(memberID uuid.UUID, from, to time.Time) (int, error)

	CreateDue(d *models.Due) error
	GetDueByWeek(memberID uuid.UUID, weekID string) (*models.Due, error)
	GetPendingDues(memberID uuid.UUID) ([]*models.Due, error) // oldest first
	HasPendingDue(memberID uuid.UUID) (bool, error)
	UpdateDue(d *models.Due) error
	GetDuesForMember(memberID uuid.UUID) ([]*models.Due, error)

	CreateLoan(l *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(l *models.Loan) error
	GetLoansForMember(memberID uuid.UUID) ([]*models.Loan, error) // newest first
	GetAllLoans() ([]*models.Loan, error)                         // newest first
	HasLoanInStatus(memberID uuid.UUID, status models.LoanStatus) (bool, error)
	CountLoans() (int, error)
	InterestByMonth() ([]models.MonthlyInterest, error)

	GetPoolFund() (*models.PoolFund, error)
	SavePoolFund(p *models.PoolFund) error
	GetProfitPool() (*models.ProfitPool, error)
	SaveProfitPool(p *models.ProfitPool) error
	GetSettings() (*models.Settings, error)
	SaveSettings(s *models.Settings) error

	CreateProfitHistory(e *models.ProfitHistoryEntry) error
	GetProfitHistoryForMember(memberID uuid.UUID) ([]*models.ProfitHistoryEntry, error)

	CreateWithdrawal(w *models.Withdrawal) error
	GetWithdrawalsForMember(memberID uuid.UUID) ([]*models.Withdrawal, error)

	CreateActivityLog(a *models.ActivityLog) error
	HasActivityInRange(memberID uuid.UUID, activity models.ActivityType, from, to time.Time) (bool, error)

	CreateNotification(n *models.Notification) error
	GetUnsentNotifications(limit int) ([]*models.Notification, error)
	MarkNotificationSent(id uuid.UUID, at time.Time) error

	// GetAuditTotals recomputes the ledger aggregates from the immutable
	// records for the consistency check.
	GetAuditTotals() (*models.AuditTotals, error)

	Close() error
}
