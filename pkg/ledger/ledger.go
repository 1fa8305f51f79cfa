package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
)

// Ledger owns the pool's money movements. Every mutating operation runs under
// the serializing mutex and inside one storage transaction, and verifies the
// conservation invariants before committing. Read-only projections take
// neither the lock nor a transaction.
type Ledger struct {
	storage store.Storage
	mu      sync.Mutex
	now     func() time.Time // swapped out in tests
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage) *Ledger {
	return &Ledger{
		storage: s,
		now:     time.Now,
	}
}

// withTx runs fn in one storage transaction. Contention the store could not
// resolve by retrying surfaces as a conflict: the transaction had no effect
// and the caller may retry.
func (l *Ledger) withTx(fn func(store.Storage) error) error {
	err := l.storage.WithTx(fn)
	if errors.Is(err, store.ErrBusy) {
		return E(KindConflict, "operation aborted by concurrent activity, try again: %v", err)
	}
	return err
}

// checkConsistency recomputes every aggregate from the immutable records and
// compares it with the stored singletons. The engines call it after their
// writes, inside the same transaction, so a violation rolls everything back.
//
// The conserved equations:
//
//	pool.totalContributions == sum(member.contributions)
//	pool.blockedAmount      == sum(principal of approved unrepaid loans)
//	0 <= blockedAmount <= totalContributions
//	repaid interest + paid-due fines == profitPool.totalProfit + distributed profit
//	sum(balances) + sum(reservedProfit) + withdrawn == distributed profit
func (l *Ledger) checkConsistency(s store.Storage) error {
	pool, err := s.GetPoolFund()
	if err != nil {
		return err
	}
	profit, err := s.GetProfitPool()
	if err != nil {
		return err
	}
	t, err := s.GetAuditTotals()
	if err != nil {
		return err
	}

	if !pool.TotalContributions.Equal(t.MemberContributions) {
		return E(KindInvariantViolation, "pool total %s != member contributions %s", pool.TotalContributions, t.MemberContributions)
	}
	if !pool.BlockedAmount.Equal(t.OutstandingPrincipal) {
		return E(KindInvariantViolation, "blocked amount %s != outstanding principal %s", pool.BlockedAmount, t.OutstandingPrincipal)
	}
	if pool.BlockedAmount.IsNegative() || pool.BlockedAmount.GreaterThan(pool.TotalContributions) {
		return E(KindInvariantViolation, "blocked amount %s outside [0, %s]", pool.BlockedAmount, pool.TotalContributions)
	}
	earned := t.RepaidInterest.Add(t.PaidDueFines)
	accounted := profit.TotalProfit.Add(t.DistributedProfit)
	if !earned.Equal(accounted) {
		return E(KindInvariantViolation, "profit earned %s != profit accounted %s", earned, accounted)
	}
	claims := t.MemberBalances.Add(t.MemberReserved).Add(t.Withdrawn)
	if !claims.Equal(t.DistributedProfit) {
		return E(KindInvariantViolation, "member claims %s != distributed profit %s", claims, t.DistributedProfit)
	}
	return nil
}

// notify queues a notification inside the current transaction; delivery is
// handled asynchronously by the notifier.
func (l *Ledger) notify(s store.Storage, memberID uuid.UUID, message, link string) error {
	return s.CreateNotification(&models.Notification{
		ID:        uuid.New(),
		MemberID:  memberID,
		Message:   message,
		Link:      link,
		CreatedAt: l.now(),
	})
}

// settings loads the policy singleton, failing closed when it is absent.
func (l *Ledger) settings(s store.Storage) (*models.Settings, error) {
	st, err := s.GetSettings()
	if err != nil {
		if isNotFound(err) {
			return nil, E(KindConfigurationMissing, "settings not initialized; run bootstrap")
		}
		return nil, err
	}
	return st, nil
}

func (l *Ledger) poolFund(s store.Storage) (*models.PoolFund, error) {
	p, err := s.GetPoolFund()
	if err != nil {
		if isNotFound(err) {
			return nil, E(KindConfigurationMissing, "pool fund not initialized; run bootstrap")
		}
		return nil, err
	}
	return p, nil
}

func (l *Ledger) profitPool(s store.Storage) (*models.ProfitPool, error) {
	p, err := s.GetProfitPool()
	if err != nil {
		if isNotFound(err) {
			return nil, E(KindConfigurationMissing, "profit pool not initialized; run bootstrap")
		}
		return nil, err
	}
	return p, nil
}

func (l *Ledger) member(s store.Storage, id uuid.UUID) (*models.Member, error) {
	m, err := s.GetMember(id)
	if err != nil {
		if isNotFound(err) {
			return nil, E(KindNotFound, "member %s not found", id)
		}
		return nil, err
	}
	return m, nil
}
