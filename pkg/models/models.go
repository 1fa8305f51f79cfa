package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Member is a participant in the pool. Balance holds withdrawable credit from
// profit shares; Contributions is the lifetime sum paid into the pool fund.
// ReservedProfit is profit earned but withheld while dues are outstanding.
type Member struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	PasswordHash   string          `json:"-"`
	Role           Role            `json:"role"`
	Balance        decimal.Decimal `json:"balance"`
	Contributions  decimal.Decimal `json:"contributions"`
	ReservedProfit decimal.Decimal `json:"reserved_profit"`
	Active         bool            `json:"is_active"`
	JoinedAt       time.Time       `json:"joined_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Contribution is an immutable payment record. EffectiveDate is the week the
// payment counts for and may be earlier than RecordedAt when a missed week is
// settled late.
type Contribution struct {
	ID            uuid.UUID       `json:"id"`
	MemberID      uuid.UUID       `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

type DueStatus string

const (
	DueStatusPending DueStatus = "pending"
	DueStatusPaid    DueStatus = "paid"
)

// Due is the penalty obligation created when a member misses a weekly
// contribution deadline. Amount = missed weekly amount + FineAmount, with
// FineAmount snapshotted at creation so later policy changes do not alter the
// split on settlement. At most one due exists per (member, week).
type Due struct {
	ID         uuid.UUID       `json:"id"`
	MemberID   uuid.UUID       `json:"member_id"`
	Amount     decimal.Decimal `json:"amount"`
	FineAmount decimal.Decimal `json:"fine_amount"`
	Reason     string          `json:"reason"`
	WeekID     string          `json:"week_identifier"`
	Status     DueStatus       `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
}

type LoanStatus string

const (
	LoanStatusPending  LoanStatus = "pending"
	LoanStatusApproved LoanStatus = "approved"
	LoanStatusRejected LoanStatus = "rejected"
	LoanStatusRepaid   LoanStatus = "repaid"
)

// Loan moves through pending -> approved -> repaid, or pending -> rejected.
// InterestRate is the monthly percentage snapshotted at approval time so a
// later policy change does not alter an active loan's rate.
type Loan struct {
	ID           uuid.UUID       `json:"id"`
	BorrowerID   uuid.UUID       `json:"borrower_id"`
	Amount       decimal.Decimal `json:"amount"`
	Purpose      string          `json:"purpose"`
	Status       LoanStatus      `json:"status"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	Interest     decimal.Decimal `json:"interest"`
	RepaidAmount decimal.Decimal `json:"repaid_amount"`
	RequestedAt  time.Time       `json:"requested_at"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	RejectedAt   *time.Time      `json:"rejected_at,omitempty"`
	RepaidAt     *time.Time      `json:"repaid_at,omitempty"`
}

// PoolFund is the single shared cash pool. BlockedAmount is the portion
// currently lent out via approved, unrepaid loans.
type PoolFund struct {
	TotalContributions decimal.Decimal `json:"total_contributions"`
	BlockedAmount      decimal.Decimal `json:"blocked_amount"`
}

// Available returns the portion of the pool not currently lent out.
func (p *PoolFund) Available() decimal.Decimal {
	return p.TotalContributions.Sub(p.BlockedAmount)
}

// ProfitPool accumulates loan interest and late fines until distribution.
type ProfitPool struct {
	TotalProfit decimal.Decimal `json:"total_profit"`
}

// Settings holds the admin-controlled policy parameters. LoanInterestRate is
// percent per month.
type Settings struct {
	WeeklyContributionAmount decimal.Decimal `json:"weekly_contribution_amount"`
	LateFineAmount           decimal.Decimal `json:"late_fine_amount"`
	MinimumWithdrawalAmount  decimal.Decimal `json:"minimum_withdrawal_amount"`
	LoanInterestRate         decimal.Decimal `json:"loan_interest_rate"`
}

// ProfitHistoryEntry is the append-only record of one member's share in one
// distribution event, written whether the share was released or reserved.
type ProfitHistoryEntry struct {
	ID            uuid.UUID       `json:"id"`
	MemberID      uuid.UUID       `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	DistributedAt time.Time       `json:"distributed_at"`
}

// Withdrawal records money leaving the system, either an explicit withdrawal
// or the balance component of a deactivation refund.
type Withdrawal struct {
	ID        uuid.UUID       `json:"id"`
	MemberID  uuid.UUID       `json:"member_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type ActivityType string

const (
	ActivityDeactivated ActivityType = "deactivated"
	ActivityReactivated ActivityType = "reactivated"
)

// ActivityLog records account lifecycle events; profit eligibility consults it
// to exclude members deactivated within the distribution period.
type ActivityLog struct {
	ID           uuid.UUID    `json:"id"`
	MemberID     uuid.UUID    `json:"member_id"`
	ActivityType ActivityType `json:"activity_type"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Notification is queued by the engines inside the same transaction as the
// event it describes and delivered asynchronously by the notifier.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	MemberID  uuid.UUID  `json:"member_id"`
	Message   string     `json:"message"`
	Link      string     `json:"link"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MonthlyInterest is one point of the interest-income trend, grouped by the
// month loans were repaid in.
type MonthlyInterest struct {
	Year     int             `json:"year"`
	Month    time.Month      `json:"month"`
	Interest decimal.Decimal `json:"interest"`
}

// AuditTotals are the aggregates recomputed from immutable records, compared
// against the stored singletons by the ledger consistency check.
type AuditTotals struct {
	MemberContributions  decimal.Decimal
	MemberBalances       decimal.Decimal
	MemberReserved       decimal.Decimal
	OutstandingPrincipal decimal.Decimal
	RepaidInterest       decimal.Decimal
	PaidDueFines         decimal.Decimal
	DistributedProfit    decimal.Decimal
	Withdrawn            decimal.Decimal
}
