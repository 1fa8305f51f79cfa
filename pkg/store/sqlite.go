package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

const maxTxAttempts = 3

// SQLiteStore manages the database connection and operations for SQLite.
// A transaction-scoped copy (db == nil) is handed to WithTx callbacks.
type SQLiteStore struct {
	db *sql.DB
	q  querier
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, q: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		balance TEXT NOT NULL DEFAULT '0',
		contributions TEXT NOT NULL DEFAULT '0',
		reserved_profit TEXT NOT NULL DEFAULT '0',
		is_active INTEGER NOT NULL DEFAULT 1,
		joined_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		effective_date DATETIME NOT NULL,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS dues (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		fine_amount TEXT NOT NULL DEFAULT '0',
		reason TEXT NOT NULL,
		week_identifier TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		paid_at DATETIME,
		FOREIGN KEY(member_id) REFERENCES members(id),
		UNIQUE(member_id, week_identifier)
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		borrower_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		interest_rate TEXT NOT NULL DEFAULT '0',
		interest TEXT NOT NULL DEFAULT '0',
		repaid_amount TEXT NOT NULL DEFAULT '0',
		requested_at DATETIME NOT NULL,
		approved_at DATETIME,
		rejected_at DATETIME,
		repaid_at DATETIME,
		FOREIGN KEY(borrower_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS pool_fund (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_contributions TEXT NOT NULL DEFAULT '0',
		blocked_amount TEXT NOT NULL DEFAULT '0'
	);
	CREATE TABLE IF NOT EXISTS profit_pool (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_profit TEXT NOT NULL DEFAULT '0'
	);
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		weekly_contribution_amount TEXT NOT NULL,
		late_fine_amount TEXT NOT NULL,
		minimum_withdrawal_amount TEXT NOT NULL,
		loan_interest_rate TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS profit_history (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		distributed_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS activity_log (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT NOT NULL DEFAULT '',
		sent_at DATETIME,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE INDEX IF NOT EXISTS idx_contributions_member_effective ON contributions(member_id, effective_date);
	CREATE INDEX IF NOT EXISTS idx_dues_member_status ON dues(member_id, status);
	CREATE INDEX IF NOT EXISTS idx_loans_borrower_status ON loans(borrower_id, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Bootstrap seeds the singleton rows once at system setup. Settings default to
// 100 weekly / 10 fine / 50 minimum withdrawal / 5% monthly interest; the pool
// fund and profit pool start at zero. Existing rows are left untouched.
func (s *SQLiteStore) Bootstrap() error {
	_, err := s.q.Exec(`INSERT OR IGNORE INTO pool_fund (id, total_contributions, blocked_amount) VALUES (1, '0', '0')`)
	if err != nil {
		return fmt.Errorf("failed to seed pool fund: %w", err)
	}
	_, err = s.q.Exec(`INSERT OR IGNORE INTO profit_pool (id, total_profit) VALUES (1, '0')`)
	if err != nil {
		return fmt.Errorf("failed to seed profit pool: %w", err)
	}
	_, err = s.q.Exec(`INSERT OR IGNORE INTO settings
		(id, weekly_contribution_amount, late_fine_amount, minimum_withdrawal_amount, loan_interest_rate)
		VALUES (1, '100', '10', '50', '5')`)
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single database transaction, retrying a bounded
// number of times on lock contention. Calling WithTx on a transaction-scoped
// store reuses the surrounding transaction.
func (s *SQLiteStore) WithTx(fn func(Storage) error) error {
	if s.db == nil {
		return fn(s)
	}

	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(&SQLiteStore{q: tx}); err != nil {
			tx.Rollback()
			if isBusyError(err) {
				lastErr = err
				time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isBusyError(err) {
				lastErr = err
				time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: retries exhausted: %v", ErrBusy, lastErr)
}

func isBusyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

func isUniqueError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- members ----

const memberColumns = `id, name, email, password_hash, role, balance, contributions, reserved_profit, is_active, joined_at, updated_at`

func (s *SQLiteStore) CreateMember(m *models.Member) error {
	_, err := s.q.Exec(
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.Name, m.Email, m.PasswordHash, m.Role, m.Balance, m.Contributions, m.ReservedProfit, m.Active, m.JoinedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueError(err) {
			return fmt.Errorf("member %s: %w", m.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanMember(row *sql.Row) (*models.Member, error) {
	var m models.Member
	var idStr string
	err := row.Scan(&idStr, &m.Name, &m.Email, &m.PasswordHash, &m.Role, &m.Balance, &m.Contributions, &m.ReservedProfit, &m.Active, &m.JoinedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("member: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	m.ID = uuid.MustParse(idStr)
	return &m, nil
}

func (s *SQLiteStore) GetMember(id uuid.UUID) (*models.Member, error) {
	return s.scanMember(s.q.QueryRow(`SELECT `+memberColumns+` FROM members WHERE id = ?`, id.String()))
}

func (s *SQLiteStore) GetMemberByEmail(email string) (*models.Member, error) {
	return s.scanMember(s.q.QueryRow(`SELECT `+memberColumns+` FROM members WHERE email = ?`, email))
}

func (s *SQLiteStore) UpdateMember(m *models.Member) error {
	result, err := s.q.Exec(
		`UPDATE members SET name = ?, email = ?, password_hash = ?, role = ?, balance = ?, contributions = ?, reserved_profit = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		m.Name, m.Email, m.PasswordHash, m.Role, m.Balance, m.Contributions, m.ReservedProfit, m.Active, m.UpdatedAt, m.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return checkAffected(result, "member")
}

func (s *SQLiteStore) queryMembers(query string, args ...any) ([]*models.Member, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		var m models.Member
		var idStr string
		if err := rows.Scan(&idStr, &m.Name, &m.Email, &m.PasswordHash, &m.Role, &m.Balance, &m.Contributions, &m.ReservedProfit, &m.Active, &m.JoinedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		m.ID = uuid.MustParse(idStr)
		members = append(members, &m)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) GetAllMembers() ([]*models.Member, error) {
	return s.queryMembers(`SELECT ` + memberColumns + ` FROM members ORDER BY joined_at ASC`)
}

func (s *SQLiteStore) GetActiveMembers() ([]*models.Member, error) {
	return s.queryMembers(`SELECT `+memberColumns+` FROM members WHERE is_active = 1 AND role = ? ORDER BY joined_at ASC`, models.RoleMember)
}

func (s *SQLiteStore) CountMembers() (int, error) {
	var n int
	if err := s.q.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

// ---- contributions ----

func (s *SQLiteStore) CreateContribution(c *models.Contribution) error {
	_, err := s.q.Exec(
		`INSERT INTO contributions (id, member_id, amount, effective_date, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID.String(), c.MemberID.String(), c.Amount, c.EffectiveDate, c.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryContributions(query string, args ...any) ([]*models.Contribution, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*models.Contribution
	for rows.Next() {
		var c models.Contribution
		var idStr, memberStr string
		if err := rows.Scan(&idStr, &memberStr, &c.Amount, &c.EffectiveDate, &c.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contribution row: %w", err)
		}
		c.ID = uuid.MustParse(idStr)
		c.MemberID = uuid.MustParse(memberStr)
		contributions = append(contributions, &c)
	}
	return contributions, rows.Err()
}

func (s *SQLiteStore) GetContributionsForMember(memberID uuid.UUID) ([]*models.Contribution, error) {
	return s.queryContributions(
		`SELECT id, member_id, amount, effective_date, recorded_at FROM contributions WHERE member_id = ? ORDER BY effective_date DESC`,
		memberID.String(),
	)
}

func (s *SQLiteStore) GetAllContributions() ([]*models.Contribution, error) {
	return s.queryContributions(`SELECT id, member_id, amount, effective_date, recorded_at FROM contributions ORDER BY effective_date DESC`)
}

func (s *SQLiteStore) HasContributionInRange(memberID uuid.UUID, from, to time.Time) (bool, error) {
	n, err := s.CountContributionsInRange(memberID, from, to)
	return n > 0, err
}

func (s *SQLiteStore) CountContributionsInRange(memberID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := s.q.QueryRow(
		`SELECT COUNT(*) FROM contributions WHERE member_id = ? AND effective_date >= ? AND effective_date <= ?`,
		memberID.String(), from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count contributions: %w", err)
	}
	return n, nil
}

// ---- dues ----

const dueColumns = `id, member_id, amount, fine_amount, reason, week_identifier, status, created_at, paid_at`

func (s *SQLiteStore) CreateDue(d *models.Due) error {
	_, err := s.q.Exec(
		`INSERT INTO dues (`+dueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.MemberID.String(), d.Amount, d.FineAmount, d.Reason, d.WeekID, d.Status, d.CreatedAt, d.PaidAt,
	)
	if err != nil {
		if isUniqueError(err) {
			return fmt.Errorf("due for week %s: %w", d.WeekID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create due: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryDues(query string, args ...any) ([]*models.Due, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dues: %w", err)
	}
	defer rows.Close()

	var dues []*models.Due
	for rows.Next() {
		var d models.Due
		var idStr, memberStr string
		var paidAt sql.NullTime
		if err := rows.Scan(&idStr, &memberStr, &d.Amount, &d.FineAmount, &d.Reason, &d.WeekID, &d.Status, &d.CreatedAt, &paidAt); err != nil {
			return nil, fmt.Errorf("failed to scan due row: %w", err)
		}
		d.ID = uuid.MustParse(idStr)
		d.MemberID = uuid.MustParse(memberStr)
		if paidAt.Valid {
			d.PaidAt = &paidAt.Time
		}
		dues = append(dues, &d)
	}
	return dues, rows.Err()
}

func (s *SQLiteStore) GetDueByWeek(memberID uuid.UUID, weekID string) (*models.Due, error) {
	dues, err := s.queryDues(`SELECT `+dueColumns+` FROM dues WHERE member_id = ? AND week_identifier = ?`, memberID.String(), weekID)
	if err != nil {
		return nil, err
	}
	if len(dues) == 0 {
		return nil, fmt.Errorf("due for week %s: %w", weekID, ErrNotFound)
	}
	return dues[0], nil
}

func (s *SQLiteStore) GetPendingDues(memberID uuid.UUID) ([]*models.Due, error) {
	return s.queryDues(
		`SELECT `+dueColumns+` FROM dues WHERE member_id = ? AND status = ? ORDER BY created_at ASC`,
		memberID.String(), models.DueStatusPending,
	)
}

func (s *SQLiteStore) HasPendingDue(memberID uuid.UUID) (bool, error) {
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM dues WHERE member_id = ? AND status = ?`, memberID.String(), models.DueStatusPending).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count pending dues: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateDue(d *models.Due) error {
	result, err := s.q.Exec(
		`UPDATE dues SET amount = ?, fine_amount = ?, reason = ?, status = ?, paid_at = ? WHERE id = ?`,
		d.Amount, d.FineAmount, d.Reason, d.Status, d.PaidAt, d.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update due: %w", err)
	}
	return checkAffected(result, "due")
}

func (s *SQLiteStore) GetDuesForMember(memberID uuid.UUID) ([]*models.Due, error) {
	return s.queryDues(`SELECT `+dueColumns+` FROM dues WHERE member_id = ? ORDER BY created_at DESC`, memberID.String())
}

// ---- loans ----

const loanColumns = `id, borrower_id, amount, purpose, status, interest_rate, interest, repaid_amount, requested_at, approved_at, rejected_at, repaid_at`

func (s *SQLiteStore) CreateLoan(l *models.Loan) error {
	_, err := s.q.Exec(
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.BorrowerID.String(), l.Amount, l.Purpose, l.Status, l.InterestRate, l.Interest, l.RepaidAmount, l.RequestedAt, l.ApprovedAt, l.RejectedAt, l.RepaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryLoans(query string, args ...any) ([]*models.Loan, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		var l models.Loan
		var idStr, borrowerStr string
		var approvedAt, rejectedAt, repaidAt sql.NullTime
		if err := rows.Scan(&idStr, &borrowerStr, &l.Amount, &l.Purpose, &l.Status, &l.InterestRate, &l.Interest, &l.RepaidAmount, &l.RequestedAt, &approvedAt, &rejectedAt, &repaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		l.ID = uuid.MustParse(idStr)
		l.BorrowerID = uuid.MustParse(borrowerStr)
		if approvedAt.Valid {
			l.ApprovedAt = &approvedAt.Time
		}
		if rejectedAt.Valid {
			l.RejectedAt = &rejectedAt.Time
		}
		if repaidAt.Valid {
			l.RepaidAt = &repaidAt.Time
		}
		loans = append(loans, &l)
	}
	return loans, rows.Err()
}

func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	loans, err := s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, fmt.Errorf("loan: %w", ErrNotFound)
	}
	return loans[0], nil
}

func (s *SQLiteStore) UpdateLoan(l *models.Loan) error {
	result, err := s.q.Exec(
		`UPDATE loans SET status = ?, interest_rate = ?, interest = ?, repaid_amount = ?, approved_at = ?, rejected_at = ?, repaid_at = ? WHERE id = ?`,
		l.Status, l.InterestRate, l.Interest, l.RepaidAmount, l.ApprovedAt, l.RejectedAt, l.RepaidAt, l.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return checkAffected(result, "loan")
}

func (s *SQLiteStore) GetLoansForMember(memberID uuid.UUID) ([]*models.Loan, error) {
	return s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE borrower_id = ? ORDER BY requested_at DESC`, memberID.String())
}

func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	return s.queryLoans(`SELECT ` + loanColumns + ` FROM loans ORDER BY requested_at DESC`)
}

func (s *SQLiteStore) HasLoanInStatus(memberID uuid.UUID, status models.LoanStatus) (bool, error) {
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM loans WHERE borrower_id = ? AND status = ?`, memberID.String(), status).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count loans: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CountLoans() (int, error) {
	var n int
	if err := s.q.QueryRow(`SELECT COUNT(*) FROM loans`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count loans: %w", err)
	}
	return n, nil
}

// InterestByMonth sums repaid-loan interest per calendar month of repayment.
// The grouping happens in Go because the amounts are stored as decimal TEXT.
func (s *SQLiteStore) InterestByMonth() ([]models.MonthlyInterest, error) {
	loans, err := s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE status = ? ORDER BY repaid_at ASC`, models.LoanStatusRepaid)
	if err != nil {
		return nil, err
	}

	var trend []models.MonthlyInterest
	for _, l := range loans {
		if l.RepaidAt == nil {
			continue
		}
		y, m := l.RepaidAt.UTC().Year(), l.RepaidAt.UTC().Month()
		if n := len(trend); n > 0 && trend[n-1].Year == y && trend[n-1].Month == m {
			trend[n-1].Interest = trend[n-1].Interest.Add(l.Interest)
		} else {
			trend = append(trend, models.MonthlyInterest{Year: y, Month: m, Interest: l.Interest})
		}
	}
	return trend, nil
}

// ---- singletons ----

func (s *SQLiteStore) GetPoolFund() (*models.PoolFund, error) {
	var p models.PoolFund
	err := s.q.QueryRow(`SELECT total_contributions, blocked_amount FROM pool_fund WHERE id = 1`).Scan(&p.TotalContributions, &p.BlockedAmount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("pool fund: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pool fund: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) SavePoolFund(p *models.PoolFund) error {
	result, err := s.q.Exec(`UPDATE pool_fund SET total_contributions = ?, blocked_amount = ? WHERE id = 1`, p.TotalContributions, p.BlockedAmount)
	if err != nil {
		return fmt.Errorf("failed to save pool fund: %w", err)
	}
	return checkAffected(result, "pool fund")
}

func (s *SQLiteStore) GetProfitPool() (*models.ProfitPool, error) {
	var p models.ProfitPool
	err := s.q.QueryRow(`SELECT total_profit FROM profit_pool WHERE id = 1`).Scan(&p.TotalProfit)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("profit pool: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profit pool: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) SaveProfitPool(p *models.ProfitPool) error {
	result, err := s.q.Exec(`UPDATE profit_pool SET total_profit = ? WHERE id = 1`, p.TotalProfit)
	if err != nil {
		return fmt.Errorf("failed to save profit pool: %w", err)
	}
	return checkAffected(result, "profit pool")
}

func (s *SQLiteStore) GetSettings() (*models.Settings, error) {
	var st models.Settings
	err := s.q.QueryRow(`SELECT weekly_contribution_amount, late_fine_amount, minimum_withdrawal_amount, loan_interest_rate FROM settings WHERE id = 1`).
		Scan(&st.WeeklyContributionAmount, &st.LateFineAmount, &st.MinimumWithdrawalAmount, &st.LoanInterestRate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("settings: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) SaveSettings(st *models.Settings) error {
	result, err := s.q.Exec(
		`UPDATE settings SET weekly_contribution_amount = ?, late_fine_amount = ?, minimum_withdrawal_amount = ?, loan_interest_rate = ? WHERE id = 1`,
		st.WeeklyContributionAmount, st.LateFineAmount, st.MinimumWithdrawalAmount, st.LoanInterestRate,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return checkAffected(result, "settings")
}

// ---- profit history / withdrawals / activity / notifications ----

func (s *SQLiteStore) CreateProfitHistory(e *models.ProfitHistoryEntry) error {
	_, err := s.q.Exec(
		`INSERT INTO profit_history (id, member_id, amount, distributed_at) VALUES (?, ?, ?, ?)`,
		e.ID.String(), e.MemberID.String(), e.Amount, e.DistributedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profit history entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProfitHistoryForMember(memberID uuid.UUID) ([]*models.ProfitHistoryEntry, error) {
	rows, err := s.q.Query(
		`SELECT id, member_id, amount, distributed_at FROM profit_history WHERE member_id = ? ORDER BY distributed_at DESC`,
		memberID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query profit history: %w", err)
	}
	defer rows.Close()

	var entries []*models.ProfitHistoryEntry
	for rows.Next() {
		var e models.ProfitHistoryEntry
		var idStr, memberStr string
		if err := rows.Scan(&idStr, &memberStr, &e.Amount, &e.DistributedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profit history row: %w", err)
		}
		e.ID = uuid.MustParse(idStr)
		e.MemberID = uuid.MustParse(memberStr)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) CreateWithdrawal(w *models.Withdrawal) error {
	_, err := s.q.Exec(
		`INSERT INTO withdrawals (id, member_id, amount, created_at) VALUES (?, ?, ?, ?)`,
		w.ID.String(), w.MemberID.String(), w.Amount, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWithdrawalsForMember(memberID uuid.UUID) ([]*models.Withdrawal, error) {
	rows, err := s.q.Query(
		`SELECT id, member_id, amount, created_at FROM withdrawals WHERE member_id = ? ORDER BY created_at DESC`,
		memberID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*models.Withdrawal
	for rows.Next() {
		var w models.Withdrawal
		var idStr, memberStr string
		if err := rows.Scan(&idStr, &memberStr, &w.Amount, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal row: %w", err)
		}
		w.ID = uuid.MustParse(idStr)
		w.MemberID = uuid.MustParse(memberStr)
		withdrawals = append(withdrawals, &w)
	}
	return withdrawals, rows.Err()
}

func (s *SQLiteStore) CreateActivityLog(a *models.ActivityLog) error {
	_, err := s.q.Exec(
		`INSERT INTO activity_log (id, member_id, activity_type, created_at) VALUES (?, ?, ?, ?)`,
		a.ID.String(), a.MemberID.String(), a.ActivityType, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity log entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasActivityInRange(memberID uuid.UUID, activity models.ActivityType, from, to time.Time) (bool, error) {
	var n int
	err := s.q.QueryRow(
		`SELECT COUNT(*) FROM activity_log WHERE member_id = ? AND activity_type = ? AND created_at >= ? AND created_at <= ?`,
		memberID.String(), activity, from, to,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count activity log entries: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateNotification(n *models.Notification) error {
	_, err := s.q.Exec(
		`INSERT INTO notifications (id, member_id, message, link, sent_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.MemberID.String(), n.Message, n.Link, n.SentAt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUnsentNotifications(limit int) ([]*models.Notification, error) {
	rows, err := s.q.Query(
		`SELECT id, member_id, message, link, sent_at, created_at FROM notifications WHERE sent_at IS NULL ORDER BY created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		var idStr, memberStr string
		var sentAt sql.NullTime
		if err := rows.Scan(&idStr, &memberStr, &n.Message, &n.Link, &sentAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		n.ID = uuid.MustParse(idStr)
		n.MemberID = uuid.MustParse(memberStr)
		if sentAt.Valid {
			n.SentAt = &sentAt.Time
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (s *SQLiteStore) MarkNotificationSent(id uuid.UUID, at time.Time) error {
	result, err := s.q.Exec(`UPDATE notifications SET sent_at = ? WHERE id = ?`, at, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return checkAffected(result, "notification")
}

// ---- audit ----

// GetAuditTotals recomputes every ledger aggregate from the underlying
// records. Sums are computed in Go because the amounts are stored as decimal
// TEXT and SQL SUM would go through floating point.
func (s *SQLiteStore) GetAuditTotals() (*models.AuditTotals, error) {
	t := &models.AuditTotals{}

	rows, err := s.q.Query(`SELECT contributions, balance, reserved_profit FROM members`)
	if err != nil {
		return nil, fmt.Errorf("failed to query member totals: %w", err)
	}
	for rows.Next() {
		var contributions, balance, reserved decimal.Decimal
		if err := rows.Scan(&contributions, &balance, &reserved); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan member totals: %w", err)
		}
		t.MemberContributions = t.MemberContributions.Add(contributions)
		t.MemberBalances = t.MemberBalances.Add(balance)
		t.MemberReserved = t.MemberReserved.Add(reserved)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var sums = []struct {
		dst   *decimal.Decimal
		query string
		args  []any
	}{
		{&t.OutstandingPrincipal, `SELECT amount FROM loans WHERE status = ?`, []any{models.LoanStatusApproved}},
		{&t.RepaidInterest, `SELECT interest FROM loans WHERE status = ?`, []any{models.LoanStatusRepaid}},
		{&t.PaidDueFines, `SELECT fine_amount FROM dues WHERE status = ?`, []any{models.DueStatusPaid}},
		{&t.DistributedProfit, `SELECT amount FROM profit_history`, nil},
		{&t.Withdrawn, `SELECT amount FROM withdrawals`, nil},
	}
	for _, sum := range sums {
		total, err := s.sumColumn(sum.query, sum.args...)
		if err != nil {
			return nil, err
		}
		*sum.dst = total
	}
	return t, nil
}

func (s *SQLiteStore) sumColumn(query string, args ...any) (decimal.Decimal, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query audit sum: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan audit sum: %w", err)
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}

func checkAffected(result sql.Result, entity string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return nil
}

// Close closes the database connection. A transaction-scoped store has no
// connection of its own.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
