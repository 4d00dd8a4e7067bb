// Package memory provides an in-process LedgerStore. It serialises every
// operation behind one mutex and implements transactions by snapshotting the
// whole store and restoring it when the transaction function fails.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type txKey struct{}

type state struct {
	participants map[primitive.ObjectID]*models.Participant
	investments  map[primitive.ObjectID]*models.Investment
	payments     map[primitive.ObjectID]*models.Payment
	histories    []*models.HistoryEntry
}

// Store is a thread-safe, in-memory LedgerStore.
type Store struct {
	mu    sync.Mutex
	state state
	// FailCommit, when set, is consulted after a transaction function succeeds;
	// a non-nil result rolls the transaction back as an aborted commit.
	FailCommit func() error
}

func New() *Store {
	return &Store{
		state: state{
			participants: make(map[primitive.ObjectID]*models.Participant),
			investments:  make(map[primitive.ObjectID]*models.Investment),
			payments:     make(map[primitive.ObjectID]*models.Payment),
		},
	}
}

func (s *Store) Participants() interfaces.ParticipantRepository { return &participantRepository{s} }
func (s *Store) Investments() interfaces.InvestmentRepository   { return &investmentRepository{s} }
func (s *Store) Payments() interfaces.PaymentRepository         { return &paymentRepository{s} }
func (s *Store) Histories() interfaces.HistoryRepository        { return &historyRepository{s} }

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return fmt.Errorf("%w: nested transactions are not supported", interfaces.ErrTransactionAborted)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = snapshot
		return err
	}
	if s.FailCommit != nil {
		if err := s.FailCommit(); err != nil {
			s.state = snapshot
			return fmt.Errorf("%w: %v", interfaces.ErrTransactionAborted, err)
		}
	}

	return nil
}

// lock takes the store mutex unless ctx already belongs to a transaction on s.
func (s *Store) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (st state) clone() state {
	out := state{
		participants: make(map[primitive.ObjectID]*models.Participant, len(st.participants)),
		investments:  make(map[primitive.ObjectID]*models.Investment, len(st.investments)),
		payments:     make(map[primitive.ObjectID]*models.Payment, len(st.payments)),
		histories:    make([]*models.HistoryEntry, len(st.histories)),
	}
	for id, p := range st.participants {
		out.participants[id] = cloneParticipant(p)
	}
	for id, inv := range st.investments {
		c := *inv
		out.investments[id] = &c
	}
	for id, pay := range st.payments {
		c := *pay
		out.payments[id] = &c
	}
	copy(out.histories, st.histories)
	return out
}

func cloneParticipant(p *models.Participant) *models.Participant {
	c := *p
	if p.ReferredBy != nil {
		ref := *p.ReferredBy
		c.ReferredBy = &ref
	}
	c.LeftChildren = append([]primitive.ObjectID{}, p.LeftChildren...)
	c.RightChildren = append([]primitive.ObjectID{}, p.RightChildren...)
	c.AwardedRewards = append([]string{}, p.AwardedRewards...)
	c.PendingInvestmentBonuses = append([]models.PendingBonus{}, p.PendingInvestmentBonuses...)
	c.MatchingPairsToday = make(map[string]int, len(p.MatchingPairsToday))
	for k, v := range p.MatchingPairsToday {
		c.MatchingPairsToday[k] = v
	}
	return &c
}

type participantRepository struct{ s *Store }

func (r *participantRepository) Create(ctx context.Context, participant *models.Participant) error {
	defer r.s.lock(ctx)()

	if participant.ID.IsZero() {
		participant.ID = primitive.NewObjectID()
	}
	if _, exists := r.s.state.participants[participant.ID]; exists {
		return fmt.Errorf("participant %s already exists", participant.ID.Hex())
	}
	participant.CreatedAt = time.Now()
	participant.UpdatedAt = participant.CreatedAt
	r.s.state.participants[participant.ID] = cloneParticipant(participant)
	return nil
}

func (r *participantRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Participant, error) {
	defer r.s.lock(ctx)()

	p, ok := r.s.state.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id.Hex(), interfaces.ErrNotFound)
	}
	return cloneParticipant(p), nil
}

func (r *participantRepository) GetUpline(ctx context.Context, id primitive.ObjectID, maxDepth int) ([]*models.Participant, error) {
	defer r.s.lock(ctx)()

	p, ok := r.s.state.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id.Hex(), interfaces.ErrNotFound)
	}

	var upline []*models.Participant
	next := p.ReferredBy
	for next != nil && len(upline) < maxDepth {
		ancestor, ok := r.s.state.participants[*next]
		if !ok {
			break
		}
		upline = append(upline, cloneParticipant(ancestor))
		next = ancestor.ReferredBy
	}
	return upline, nil
}

func (r *participantRepository) CountDirectReferrals(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	defer r.s.lock(ctx)()

	counts := make(map[primitive.ObjectID]int, len(ids))
	for _, id := range ids {
		counts[id] = 0
	}
	for _, p := range r.s.state.participants {
		if p.ReferredBy == nil {
			continue
		}
		if _, wanted := counts[*p.ReferredBy]; wanted {
			counts[*p.ReferredBy]++
		}
	}
	return counts, nil
}

func (r *participantRepository) ApplyMutations(ctx context.Context, mutations []models.ParticipantMutation) error {
	defer r.s.lock(ctx)()

	for i := range mutations {
		if _, ok := r.s.state.participants[mutations[i].ParticipantID]; !ok && !mutations[i].IsEmpty() {
			return fmt.Errorf("participant %s: %w", mutations[i].ParticipantID.Hex(), interfaces.ErrNotFound)
		}
	}

	now := time.Now()
	for i := range mutations {
		m := &mutations[i]
		if m.IsEmpty() {
			continue
		}
		p := r.s.state.participants[m.ParticipantID]
		for bucket, amount := range m.Income {
			p.AddIncome(bucket, amount)
		}
		p.WalletBalance += m.WalletDelta
		p.DirectReferralCount += m.DirectReferralDelta
		p.Pairs = max(p.Pairs, m.PairsAtLeast)
		p.TotalPairs += m.TotalPairsDelta
		if m.MatchingDay != "" && m.MatchingDayDelta != 0 {
			if p.MatchingPairsToday == nil {
				p.MatchingPairsToday = make(map[string]int)
			}
			p.MatchingPairsToday[m.MatchingDay] += m.MatchingDayDelta
		}
		for _, name := range m.AddRewards {
			if !p.HasReward(name) {
				p.AwardedRewards = append(p.AwardedRewards, name)
			}
		}
		p.PendingInvestmentBonuses = append(p.PendingInvestmentBonuses, m.PushBonuses...)
		p.UpdatedAt = now
	}
	return nil
}

func (r *participantRepository) AddReward(ctx context.Context, id primitive.ObjectID, name string) (bool, error) {
	defer r.s.lock(ctx)()

	p, ok := r.s.state.participants[id]
	if !ok || p.HasReward(name) {
		return false, nil
	}
	p.AwardedRewards = append(p.AwardedRewards, name)
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *participantRepository) MarkBonusAwarded(ctx context.Context, ownerID, investmentID primitive.ObjectID, month int) (bool, error) {
	defer r.s.lock(ctx)()

	p, ok := r.s.state.participants[ownerID]
	if !ok {
		return false, nil
	}
	for i := range p.PendingInvestmentBonuses {
		b := &p.PendingInvestmentBonuses[i]
		if b.InvestmentID == investmentID && b.Month == month && !b.Awarded {
			b.Awarded = true
			p.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *participantRepository) ListWithPendingBonuses(ctx context.Context) ([]*models.Participant, error) {
	defer r.s.lock(ctx)()

	var out []*models.Participant
	for _, p := range r.s.state.participants {
		if len(p.PendingInvestmentBonuses) > 0 {
			out = append(out, cloneParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (r *participantRepository) PurgeAwardedBonuses(ctx context.Context, ownerID primitive.ObjectID) error {
	defer r.s.lock(ctx)()

	p, ok := r.s.state.participants[ownerID]
	if !ok {
		return nil
	}
	kept := p.PendingInvestmentBonuses[:0]
	for _, b := range p.PendingInvestmentBonuses {
		if !b.Awarded {
			kept = append(kept, b)
		}
	}
	p.PendingInvestmentBonuses = kept
	return nil
}

func (r *participantRepository) PruneMatchingDays(ctx context.Context, keepFrom string) (int64, error) {
	defer r.s.lock(ctx)()

	var modified int64
	for _, p := range r.s.state.participants {
		pruned := false
		for day := range p.MatchingPairsToday {
			if day < keepFrom {
				delete(p.MatchingPairsToday, day)
				pruned = true
			}
		}
		if pruned {
			modified++
		}
	}
	return modified, nil
}

type investmentRepository struct{ s *Store }

func (r *investmentRepository) Create(ctx context.Context, investment *models.Investment) error {
	defer r.s.lock(ctx)()

	if investment.ID.IsZero() {
		investment.ID = primitive.NewObjectID()
	}
	investment.CreatedAt = time.Now()
	investment.UpdatedAt = investment.CreatedAt
	c := *investment
	r.s.state.investments[investment.ID] = &c
	return nil
}

func (r *investmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Investment, error) {
	defer r.s.lock(ctx)()

	inv, ok := r.s.state.investments[id]
	if !ok {
		return nil, fmt.Errorf("investment %s: %w", id.Hex(), interfaces.ErrNotFound)
	}
	c := *inv
	return &c, nil
}

func (r *investmentRepository) ListActive(ctx context.Context) ([]*models.Investment, error) {
	defer r.s.lock(ctx)()

	var out []*models.Investment
	for _, inv := range r.s.state.investments {
		if inv.Active {
			c := *inv
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *investmentRepository) RecordMonthlyPayout(ctx context.Context, id primitive.ObjectID, expectedMonthsPaid int, period string, lockInMonths int) (bool, error) {
	defer r.s.lock(ctx)()

	inv, ok := r.s.state.investments[id]
	if !ok || !inv.Active || inv.MonthsPaid != expectedMonthsPaid || inv.LastPaidPeriod == period {
		return false, nil
	}
	inv.MonthsPaid++
	inv.LastPaidPeriod = period
	if inv.MonthsPaid >= lockInMonths {
		inv.Active = false
		inv.IsLocked = false
		inv.WithdrawalRestriction = false
	}
	inv.UpdatedAt = time.Now()
	return true, nil
}

type paymentRepository struct{ s *Store }

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	defer r.s.lock(ctx)()

	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	payment.UpdatedAt = time.Now()
	c := *payment
	r.s.state.payments[payment.ID] = &c
	return nil
}

func (r *paymentRepository) GetApproved(ctx context.Context, participantID primitive.ObjectID, paymentType models.PaymentType) ([]*models.Payment, error) {
	defer r.s.lock(ctx)()

	var out []*models.Payment
	for _, pay := range r.s.state.payments {
		if pay.ParticipantID == participantID && pay.Type == paymentType && pay.Status == models.PaymentStatusApproved {
			c := *pay
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *paymentRepository) MarkDistributed(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	defer r.s.lock(ctx)()

	pay, ok := r.s.state.payments[id]
	if !ok || pay.IncomeDistributed {
		return false, nil
	}
	pay.IncomeDistributed = true
	pay.DistributedAt = &at
	pay.UpdatedAt = time.Now()
	return true, nil
}

type historyRepository struct{ s *Store }

func (r *historyRepository) InsertMany(ctx context.Context, entries []*models.HistoryEntry) error {
	defer r.s.lock(ctx)()

	for _, entry := range entries {
		if entry.ID.IsZero() {
			entry.ID = primitive.NewObjectID()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now()
		}
		c := *entry
		r.s.state.histories = append(r.s.state.histories, &c)
	}
	return nil
}

func (r *historyRepository) GetByParticipant(ctx context.Context, participantID primitive.ObjectID) ([]*models.HistoryEntry, error) {
	defer r.s.lock(ctx)()

	var out []*models.HistoryEntry
	for _, entry := range r.s.state.histories {
		if entry.ParticipantID == participantID {
			c := *entry
			out = append(out, &c)
		}
	}
	return out, nil
}
