package ledger

import (
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
	"github.com/shopspring/decimal"
)

// mockStore is an in-memory Storage used by the engine tests. WithTx snapshots
// the state before running the callback and restores it when the callback
// fails, matching the all-or-nothing behavior of a real transaction.
type mockStore struct {
	members       map[uuid.UUID]*models.Member
	contributions []*models.Contribution
	dues          []*models.Due
	loans         map[uuid.UUID]*models.Loan
	pool          models.PoolFund
	profit        models.ProfitPool
	settings      models.Settings
	profitHistory []*models.ProfitHistoryEntry
	withdrawals   []*models.Withdrawal
	activities    []*models.ActivityLog
	notifications []*models.Notification
}

func newMockStore() *mockStore {
	return &mockStore{
		members: make(map[uuid.UUID]*models.Member),
		loans:   make(map[uuid.UUID]*models.Loan),
		settings: models.Settings{
			WeeklyContributionAmount: decimal.NewFromInt(100),
			LateFineAmount:           decimal.NewFromInt(10),
			MinimumWithdrawalAmount:  decimal.NewFromInt(50),
			LoanInterestRate:         decimal.NewFromInt(5),
		},
	}
}

func (m *mockStore) WithTx(fn func(store.Storage) error) error {
	snapshot := m.clone()
	if err := fn(m); err != nil {
		*m = *snapshot
		return err
	}
	return nil
}

func clonePointers[T any](in []*T) []*T {
	out := make([]*T, len(in))
	for i, v := range in {
		cp := *v
		out[i] = &cp
	}
	return out
}

func (m *mockStore) clone() *mockStore {
	cp := &mockStore{
		members:       make(map[uuid.UUID]*models.Member, len(m.members)),
		loans:         make(map[uuid.UUID]*models.Loan, len(m.loans)),
		pool:          m.pool,
		profit:        m.profit,
		settings:      m.settings,
		contributions: clonePointers(m.contributions),
		dues:          clonePointers(m.dues),
		profitHistory: clonePointers(m.profitHistory),
		withdrawals:   clonePointers(m.withdrawals),
		activities:    clonePointers(m.activities),
		notifications: clonePointers(m.notifications),
	}
	for id, member := range m.members {
		c := *member
		cp.members[id] = &c
	}
	for id, loan := range m.loans {
		c := *loan
		cp.loans[id] = &c
	}
	return cp
}

func (m *mockStore) CreateMember(member *models.Member) error {
	for _, existing := range m.members {
		if existing.Email == member.Email {
			return store.ErrDuplicate
		}
	}
	cp := *member
	m.members[member.ID] = &cp
	return nil
}

func (m *mockStore) GetMember(id uuid.UUID) (*models.Member, error) {
	member, ok := m.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *member
	return &cp, nil
}

func (m *mockStore) GetMemberByEmail(email string) (*models.Member, error) {
	for _, member := range m.members {
		if member.Email == email {
			cp := *member
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) UpdateMember(member *models.Member) error {
	if _, ok := m.members[member.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *member
	m.members[member.ID] = &cp
	return nil
}

func (m *mockStore) GetAllMembers() ([]*models.Member, error) {
	out := make([]*models.Member, 0, len(m.members))
	for _, member := range m.members {
		cp := *member
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) GetActiveMembers() ([]*models.Member, error) {
	all, _ := m.GetAllMembers()
	out := all[:0]
	for _, member := range all {
		if member.Active {
			out = append(out, member)
		}
	}
	return out, nil
}

func (m *mockStore) CountMembers() (int, error) { return len(m.members), nil }

func (m *mockStore) CreateContribution(c *models.Contribution) error {
	cp := *c
	m.contributions = append(m.contributions, &cp)
	return nil
}

func (m *mockStore) GetContributionsForMember(memberID uuid.UUID) ([]*models.Contribution, error) {
	var out []*models.Contribution
	for _, c := range m.contributions {
		if c.MemberID == memberID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) GetAllContributions() ([]*models.Contribution, error) {
	out := make([]*models.Contribution, 0, len(m.contributions))
	for _, c := range m.contributions {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (m *mockStore) HasContributionInRange(memberID uuid.UUID, from, to time.Time) (bool, error) {
	for _, c := range m.contributions {
		if c.MemberID == memberID && inRange(c.EffectiveDate, from, to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CountContributionsInRange(memberID uuid.UUID, from, to time.Time) (int, error) {
	count := 0
	for _, c := range m.contributions {
		if c.MemberID == memberID && inRange(c.EffectiveDate, from, to) {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) CreateDue(d *models.Due) error {
	for _, existing := range m.dues {
		if existing.MemberID == d.MemberID && existing.WeekID == d.WeekID {
			return store.ErrDuplicate
		}
	}
	cp := *d
	m.dues = append(m.dues, &cp)
	return nil
}

func (m *mockStore) GetDueByWeek(memberID uuid.UUID, weekID string) (*models.Due, error) {
	for _, d := range m.dues {
		if d.MemberID == memberID && d.WeekID == weekID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) GetPendingDues(memberID uuid.UUID) ([]*models.Due, error) {
	var out []*models.Due
	for _, d := range m.dues {
		if d.MemberID == memberID && d.Status == models.DueStatusPending {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) HasPendingDue(memberID uuid.UUID) (bool, error) {
	dues, _ := m.GetPendingDues(memberID)
	return len(dues) > 0, nil
}

func (m *mockStore) UpdateDue(d *models.Due) error {
	for i, existing := range m.dues {
		if existing.ID == d.ID {
			cp := *d
			m.dues[i] = &cp
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) GetDuesForMember(memberID uuid.UUID) ([]*models.Due, error) {
	var out []*models.Due
	for _, d := range m.dues {
		if d.MemberID == memberID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) CreateLoan(l *models.Loan) error {
	cp := *l
	m.loans[l.ID] = &cp
	return nil
}

func (m *mockStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockStore) UpdateLoan(l *models.Loan) error {
	if _, ok := m.loans[l.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *l
	m.loans[l.ID] = &cp
	return nil
}

func (m *mockStore) GetLoansForMember(memberID uuid.UUID) ([]*models.Loan, error) {
	var out []*models.Loan
	for _, l := range m.loans {
		if l.BorrowerID == memberID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (m *mockStore) GetAllLoans() ([]*models.Loan, error) {
	out := make([]*models.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (m *mockStore) HasLoanInStatus(memberID uuid.UUID, status models.LoanStatus) (bool, error) {
	for _, l := range m.loans {
		if l.BorrowerID == memberID && l.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CountLoans() (int, error) { return len(m.loans), nil }

func (m *mockStore) InterestByMonth() ([]models.MonthlyInterest, error) {
	totals := make(map[string]*models.MonthlyInterest)
	for _, l := range m.loans {
		if l.Status != models.LoanStatusRepaid || l.RepaidAt == nil {
			continue
		}
		key := l.RepaidAt.UTC().Format("2006-01")
		entry, ok := totals[key]
		if !ok {
			entry = &models.MonthlyInterest{Year: l.RepaidAt.UTC().Year(), Month: l.RepaidAt.UTC().Month()}
			totals[key] = entry
		}
		entry.Interest = entry.Interest.Add(l.Interest)
	}
	out := make([]models.MonthlyInterest, 0, len(totals))
	for _, entry := range totals {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func (m *mockStore) GetPoolFund() (*models.PoolFund, error) {
	cp := m.pool
	return &cp, nil
}

func (m *mockStore) SavePoolFund(p *models.PoolFund) error {
	m.pool = *p
	return nil
}

func (m *mockStore) GetProfitPool() (*models.ProfitPool, error) {
	cp := m.profit
	return &cp, nil
}

func (m *mockStore) SaveProfitPool(p *models.ProfitPool) error {
	m.profit = *p
	return nil
}

func (m *mockStore) GetSettings() (*models.Settings, error) {
	cp := m.settings
	return &cp, nil
}

func (m *mockStore) SaveSettings(s *models.Settings) error {
	m.settings = *s
	return nil
}

func (m *mockStore) CreateProfitHistory(e *models.ProfitHistoryEntry) error {
	cp := *e
	m.profitHistory = append(m.profitHistory, &cp)
	return nil
}

func (m *mockStore) GetProfitHistoryForMember(memberID uuid.UUID) ([]*models.ProfitHistoryEntry, error) {
	var out []*models.ProfitHistoryEntry
	for _, e := range m.profitHistory {
		if e.MemberID == memberID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) CreateWithdrawal(w *models.Withdrawal) error {
	cp := *w
	m.withdrawals = append(m.withdrawals, &cp)
	return nil
}

func (m *mockStore) GetWithdrawalsForMember(memberID uuid.UUID) ([]*models.Withdrawal, error) {
	var out []*models.Withdrawal
	for _, w := range m.withdrawals {
		if w.MemberID == memberID {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) CreateActivityLog(a *models.ActivityLog) error {
	cp := *a
	m.activities = append(m.activities, &cp)
	return nil
}

func (m *mockStore) HasActivityInRange(memberID uuid.UUID, activity models.ActivityType, from, to time.Time) (bool, error) {
	for _, a := range m.activities {
		if a.MemberID == memberID && a.ActivityType == activity && inRange(a.CreatedAt, from, to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CreateNotification(n *models.Notification) error {
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *mockStore) GetUnsentNotifications(limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.SentAt == nil {
			cp := *n
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockStore) MarkNotificationSent(id uuid.UUID, at time.Time) error {
	for _, n := range m.notifications {
		if n.ID == id {
			sent := at
			n.SentAt = &sent
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) GetAuditTotals() (*models.AuditTotals, error) {
	t := &models.AuditTotals{}
	for _, member := range m.members {
		t.MemberContributions = t.MemberContributions.Add(member.Contributions)
		t.MemberBalances = t.MemberBalances.Add(member.Balance)
		t.MemberReserved = t.MemberReserved.Add(member.ReservedProfit)
	}
	for _, l := range m.loans {
		switch l.Status {
		case models.LoanStatusApproved:
			t.OutstandingPrincipal = t.OutstandingPrincipal.Add(l.Amount)
		case models.LoanStatusRepaid:
			t.RepaidInterest = t.RepaidInterest.Add(l.Interest)
		}
	}
	for _, d := range m.dues {
		if d.Status == models.DueStatusPaid {
			t.PaidDueFines = t.PaidDueFines.Add(d.FineAmount)
		}
	}
	for _, e := range m.profitHistory {
		t.DistributedProfit = t.DistributedProfit.Add(e.Amount)
	}
	for _, w := range m.withdrawals {
		t.Withdrawn = t.Withdrawn.Add(w.Amount)
	}
	return t, nil
}

func (m *mockStore) Close() error { return nil }

// testTime is a Wednesday; the ISO week around it runs Jan 12 through Jan 18.
var testTime = time.Date(2026, time.January, 14, 12, 0, 0, 0, time.UTC)

func newTestLedger() (*Ledger, *mockStore) {
	m := newMockStore()
	l := NewLedger(m)
	l.now = func() time.Time { return testTime }
	return l, m
}

func addMember(t *testing.T, l *Ledger, email string) *models.Member {
	t.Helper()
	member, err := l.RegisterMember("Test Member", email, "hash", models.RoleMember)
	if err != nil {
		t.Fatalf("RegisterMember: %v", err)
	}
	return member
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func assertDecimal(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("error kind = %q, want %q (err: %v)", got, want, err)
	}
}

func TestPayContributionCurrentWeek(t *testing.T) {
	l, m := newTestLedger()
	member := addMember(t, l, "a@example.com")

	result, err := l.PayContribution(member.ID, dec("100"))
	if err != nil {
		t.Fatalf("PayContribution: %v", err)
	}
	if result.DuesSettled != 0 {
		t.Errorf("DuesSettled = %d, want 0", result.DuesSettled)
	}
	assertDecimal(t, "Contributed", result.Contributed, dec("100"))
	assertDecimal(t, "pool total", m.pool.TotalContributions, dec("100"))

	updated, _ := m.GetMember(member.ID)
	assertDecimal(t, "member contributions", updated.Contributions, dec("100"))

	// Paying again in the same week: nothing is due.
	_, err = l.PayContribution(member.ID, dec("100"))
	assertKind(t, err, KindNothingDue)
}

func TestPayContributionAmountMismatchHasNoEffect(t *testing.T) {
	l, m := newTestLedger()
	member := addMember(t, l, "a@example.com")

	_, err := l.PayContribution(member.ID, dec("50"))
	assertKind(t, err, KindAmountMismatch)

	if len(m.contributions) != 0 {
		t.Errorf("contributions recorded after rejected payment: %d", len(m.contributions))
	}
	assertDecimal(t, "pool total", m.pool.TotalContributions, decimal.Zero)
	updated, _ := m.GetMember(member.ID)
	assertDecimal(t, "member contributions", updated.Contributions, decimal.Zero)
}

func TestPayContributionRejectsNonPositiveAmount(t *testing.T) {
	l, _ := newTestLedger()
	member := addMember(t, l, "a@example.com")

	_, err := l.PayContribution(member.ID, decimal.Zero)
	assertKind(t, err, KindInvalidAmount)
	_, err = l.PayContribution(member.ID, dec("-5"))
	assertKind(t, err, KindInvalidAmount)
}

func TestPayContributionInactiveAccount(t *testing.T) {
	l, m := newTestLedger()
	member := addMember(t, l, "a@example.com")
	m.members[member.ID].Active = false

	_, err := l.PayContribution(member.ID, dec("100"))
	assertKind(t, err, KindAccountInactive)
}

func TestGetObligationFreshMember(t *testing.T) {
	l, _ := newTestLedger()
	member := addMember(t, l, "a@example.com")

	ob, err := l.GetObligation(member.ID)
	if err != nil {
		t.Fatalf("GetObligation: %v", err)
	}
	assertDecimal(t, "DueAmount", ob.DueAmount, dec("100"))
	assertDecimal(t, "CurrentWeekAmount", ob.CurrentWeekAmount, dec("100"))
	assertDecimal(t, "PendingDuesAmount", ob.PendingDuesAmount, decimal.Zero)
}

// A member who misses one week owes the missed week plus the fine plus the
// current week. Settling it splits the payment: the contribution amounts
// enter the pool fund and the fine enters the profit pool.
func TestMissedWeekSettlement(t *testing.T) {
	l, m := newTestLedger()

	// Join during the previous week so its deadline applies.
	l.now = func() time.Time { return testTime.AddDate(0, 0, -7) }
	member := addMember(t, l, "a@example.com")
	l.now = func() time.Time { return testTime }

	sweep, err := l.RunWeeklyDuesSweep(testTime)
	if err != nil {
		t.Fatalf("RunWeeklyDuesSweep: %v", err)
	}
	if sweep.DuesCreated != 1 {
		t.Fatalf("DuesCreated = %d, want 1", sweep.DuesCreated)
	}

	ob, err := l.GetObligation(member.ID)
	if err != nil {
		t.Fatalf("GetObligation: %v", err)
	}
	assertDecimal(t, "DueAmount", ob.DueAmount, dec("210"))
	assertDecimal(t, "PendingDuesAmount", ob.PendingDuesAmount, dec("110"))

	result, err := l.PayContribution(member.ID, dec("210"))
	if err != nil {
		t.Fatalf("PayContribution: %v", err)
	}
	if result.DuesSettled != 1 {
		t.Errorf("DuesSettled = %d, want 1", result.DuesSettled)
	}
	assertDecimal(t, "Contributed", result.Contributed, dec("200"))
	assertDecimal(t, "FinesPaid", result.FinesPaid, dec("10"))
	assertDecimal(t, "pool total", m.pool.TotalContributions, dec("200"))
	assertDecimal(t, "profit pool", m.profit.TotalProfit, dec("10"))

	// The settled week's contribution is back-dated to the missed week.
	missedStart := WeekStart(testTime.AddDate(0, 0, -7))
	backdated := false
	for _, c := range m.contributions {
		if c.EffectiveDate.Equal(missedStart) {
			backdated = true
		}
	}
	if !backdated {
		t.Error("no contribution back-dated to the missed week")
	}
}

func TestGetHistoryMergesAndFlagsLate(t *testing.T) {
	l, _ := newTestLedger()

	l.now = func() time.Time { return testTime.AddDate(0, 0, -7) }
	member := addMember(t, l, "a@example.com")
	l.now = func() time.Time { return testTime }

	if _, err := l.RunWeeklyDuesSweep(testTime); err != nil {
		t.Fatalf("RunWeeklyDuesSweep: %v", err)
	}
	if _, err := l.PayContribution(member.ID, dec("210")); err != nil {
		t.Fatalf("PayContribution: %v", err)
	}

	entries, err := l.GetHistory(member.ID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	// Two contributions plus one due.
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Date.After(entries[i-1].Date) {
			t.Error("entries are not sorted newest first")
		}
	}

	lateSeen := false
	for _, e := range entries {
		if e.Type == "contribution" && e.Late {
			lateSeen = true
		}
	}
	if !lateSeen {
		t.Error("back-dated contribution was not flagged late")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	m := newMockStore()
	sentinel := errors.New("boom")

	err := m.WithTx(func(s store.Storage) error {
		if err := s.CreateContribution(&models.Contribution{ID: uuid.New(), Amount: dec("100")}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx error = %v, want %v", err, sentinel)
	}
	if len(m.contributions) != 0 {
		t.Errorf("contributions left after rolled-back transaction: %d", len(m.contributions))
	}
}

// A stored aggregate drifting away from the records must abort the next
// mutation with a fatal violation and leave no partial writes behind.
func TestConsistencyCheckCatchesDriftedAggregate(t *testing.T) {
	l, m := newTestLedger()
	member := addMember(t, l, "a@example.com")

	m.pool.TotalContributions = m.pool.TotalContributions.Add(dec("1"))

	_, err := l.PayContribution(member.ID, dec("100"))
	assertKind(t, err, KindInvariantViolation)

	if len(m.contributions) != 0 {
		t.Errorf("contributions recorded despite the violation: %d", len(m.contributions))
	}
	updated, _ := m.GetMember(member.ID)
	assertDecimal(t, "member contributions", updated.Contributions, decimal.Zero)
	assertDecimal(t, "pool total", m.pool.TotalContributions, dec("1"))
}

// busyStore simulates transactions that keep losing the database lock until
// the retry budget is spent.
type busyStore struct{ *mockStore }

func (b *busyStore) WithTx(fn func(store.Storage) error) error {
	return fmt.Errorf("%w: retries exhausted: database is locked", store.ErrBusy)
}

func TestExhaustedRetriesSurfaceAsConflict(t *testing.T) {
	m := newMockStore()
	l := NewLedger(&busyStore{m})
	l.now = func() time.Time { return testTime }
	member := addMember(t, l, "a@example.com")

	_, err := l.PayContribution(member.ID, dec("100"))
	assertKind(t, err, KindConflict)
}
