package services

import (
	"context"
	"testing"
	"time"

	"compengine/internal/config"
	"compengine/internal/models"
	"compengine/internal/repositories/memory"
	"compengine/pkg/logger"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testStart = time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)

func testPlan(fallback primitive.ObjectID) *config.CompensationConfig {
	return &config.CompensationConfig{
		FallbackParticipantID:     fallback,
		MaxUplineDepth:            10,
		RegistrationAmount:        3600,
		ReferralPercents:          []float64{0.10, 0.03, 0.02, 0.01, 0.01, 0.01, 0.005, 0.005, 0.005, 0.005},
		DirectRequirements:        []int{0, 2, 3, 3, 4, 4, 5, 5, 6, 6},
		PairBonus:                 300,
		DailyPairCap:              60,
		Milestones:                config.DefaultMilestones(),
		MinInvestment:             5000,
		LockInMonths:              24,
		MonthlyROIRate:            0.04,
		BonusScheduleMonths:       6,
		InvestmentOneTimePercents: []float64{0.05, 0.02, 0.01, 0.01, 0.005, 0.005, 0.005, 0.005, 0.005, 0.005},
		InvestmentMonthlyPercents: []float64{0.10, 0.05, 0.03, 0.02, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01},
	}
}

// fixture is a small referral tree on an in-memory store:
//
//	A (3 directs) <- B (directs set per test) <- C <- X
//
// X is the participant whose events are distributed.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	clock    *clockwork.FakeClock
	plan     *config.CompensationConfig
	engine   *Engine
	fallback primitive.ObjectID
	A, B, C  primitive.ObjectID
	X        primitive.ObjectID
	bDirects int
}

type fixtureOption func(f *fixture, tree map[string]*models.Participant)

// withBDirects gives B n direct referrals in total (C included).
func withBDirects(n int) fixtureOption {
	return func(f *fixture, tree map[string]*models.Participant) {
		f.bDirects = n
	}
}

// withPairUnderC places a sibling of X on C's left leg so X's registration
// completes a pair.
func withPairUnderC() fixtureOption {
	return func(f *fixture, tree map[string]*models.Participant) {
		sibling := primitive.NewObjectID()
		tree["C"].LeftChildren = []primitive.ObjectID{sibling}
		tree["C"].RightChildren = []primitive.ObjectID{f.X}
		tree["sibling"] = &models.Participant{ID: sibling, Name: "sibling"}
	}
}

func withParticipant(key string, edit func(p *models.Participant)) fixtureOption {
	return func(f *fixture, tree map[string]*models.Participant) {
		edit(tree[key])
	}
}

func withPlan(edit func(plan *config.CompensationConfig)) fixtureOption {
	return func(f *fixture, tree map[string]*models.Participant) {
		edit(f.plan)
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memory.New(),
		clock:    clockwork.NewFakeClockAt(testStart),
		fallback: primitive.NewObjectID(),
		A:        primitive.NewObjectID(),
		B:        primitive.NewObjectID(),
		C:        primitive.NewObjectID(),
		X:        primitive.NewObjectID(),
		bDirects: 2,
	}
	f.plan = testPlan(f.fallback)

	tree := map[string]*models.Participant{
		"fallback": {ID: f.fallback, Name: "company"},
		"A":        {ID: f.A, Name: "A"},
		"B":        {ID: f.B, Name: "B", ReferredBy: &f.A},
		"C":        {ID: f.C, Name: "C", ReferredBy: &f.B, LeftChildren: []primitive.ObjectID{f.X}},
		"X":        {ID: f.X, Name: "X", ReferredBy: &f.C},
	}
	for _, opt := range opts {
		opt(f, tree)
	}

	for _, key := range []string{"fallback", "A", "B", "C", "X", "sibling"} {
		if p, ok := tree[key]; ok {
			require.NoError(t, f.store.Participants().Create(f.ctx, p))
		}
	}
	// extra directs of A (3 in total) and B
	f.addReferrals(f.A, 2)
	f.addReferrals(f.B, f.bDirects-1)

	engine, err := NewEngine(EngineConfig{
		Store:                 f.store,
		Plan:                  f.plan,
		Logger:                logger.NewDiscard(),
		Clock:                 f.clock,
		SettlementConcurrency: 4,
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *fixture) addReferrals(parent primitive.ObjectID, n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		ref := parent
		require.NoError(f.t, f.store.Participants().Create(f.ctx, &models.Participant{Name: "filler", ReferredBy: &ref}))
	}
}

func (f *fixture) approveRegistration(id primitive.ObjectID, amount float64) primitive.ObjectID {
	f.t.Helper()
	approvedAt := f.clock.Now()
	payment := &models.Payment{
		ParticipantID: id,
		Type:          models.PaymentTypeRegistration,
		Status:        models.PaymentStatusApproved,
		Amount:        amount,
		ApprovedAt:    &approvedAt,
	}
	require.NoError(f.t, f.store.Payments().Create(f.ctx, payment))
	return payment.ID
}

func (f *fixture) participant(id primitive.ObjectID) *models.Participant {
	f.t.Helper()
	p, err := f.store.Participants().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) history(id primitive.ObjectID) []*models.HistoryEntry {
	f.t.Helper()
	entries, err := f.store.Histories().GetByParticipant(f.ctx, id)
	require.NoError(f.t, err)
	return entries
}

func (f *fixture) historyOfType(id primitive.ObjectID, historyType models.HistoryType) []*models.HistoryEntry {
	var out []*models.HistoryEntry
	for _, entry := range f.history(id) {
		if entry.Type == historyType {
			out = append(out, entry)
		}
	}
	return out
}

func (f *fixture) walletTotal(ids ...primitive.ObjectID) float64 {
	var total float64
	for _, id := range ids {
		total += f.participant(id).WalletBalance
	}
	return total
}

func (f *fixture) advanceTo(at time.Time) {
	f.t.Helper()
	require.True(f.t, at.After(f.clock.Now()), "clock only moves forward")
	f.clock.Advance(at.Sub(f.clock.Now()))
}
