package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"compengine/internal/config"
	"compengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDistributeRegistrationIncome_PaysEligibleUpline(t *testing.T) {
	f := newFixture(t)
	paymentID := f.approveRegistration(f.X, 3600)

	result, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.NoError(t, err)

	assert.Equal(t, paymentID, result.PaymentID)
	assert.Equal(t, 3, result.LevelsCredited)
	assert.Equal(t, 0, result.LevelsRedirected)
	assert.Equal(t, 540.0, result.TotalDistributed)
	assert.False(t, result.Matching.PairFormed)

	c := f.participant(f.C)
	assert.Equal(t, 360.0, c.ReferralIncome)
	assert.Equal(t, 360.0, c.WalletBalance)
	assert.Equal(t, 1, c.DirectReferralCount)
	assert.Equal(t, 108.0, f.participant(f.B).ReferralIncome)
	assert.Equal(t, 72.0, f.participant(f.A).ReferralIncome)
	assert.Zero(t, f.participant(f.fallback).WalletBalance)

	entries := f.historyOfType(f.C, models.HistoryTypeReferral)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Level)
	require.NotNil(t, entries[0].SourceParticipantID)
	assert.Equal(t, f.X, *entries[0].SourceParticipantID)

	payments, err := f.store.Payments().GetApproved(f.ctx, f.X, models.PaymentTypeRegistration)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].IncomeDistributed)
}

func TestDistributeRegistrationIncome_RedirectsIneligibleLevel(t *testing.T) {
	f := newFixture(t, withBDirects(1))
	f.approveRegistration(f.X, 3600)

	result, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.NoError(t, err)
	assert.Equal(t, 2, result.LevelsCredited)
	assert.Equal(t, 1, result.LevelsRedirected)

	assert.Zero(t, f.participant(f.B).WalletBalance)
	fallback := f.participant(f.fallback)
	assert.Equal(t, 108.0, fallback.ReferralIncome)
	assert.Equal(t, 108.0, fallback.WalletBalance)

	extra := f.historyOfType(f.fallback, models.HistoryTypeReferral.Extra())
	require.Len(t, extra, 1)
	assert.Equal(t, models.HistoryType("extra-referral"), extra[0].Type)
	assert.Equal(t, 2, extra[0].Level)
	assert.Contains(t, extra[0].Remarks, "redirected from "+f.B.Hex()+": "+ReasonIneligible)
}

func TestDistributeRegistrationIncome_ConservesTotal(t *testing.T) {
	for _, directs := range []int{1, 2} {
		f := newFixture(t, withBDirects(directs))
		f.approveRegistration(f.X, 3600)

		result, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
		require.NoError(t, err)

		paid := f.walletTotal(f.A, f.B, f.C, f.fallback)
		assert.Equal(t, result.TotalDistributed, paid, "directs=%d", directs)
		assert.Equal(t, 540.0, paid, "directs=%d", directs)
	}
}

func TestDistributeRegistrationIncome_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.approveRegistration(f.X, 3600)

	_, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.NoError(t, err)
	before := f.walletTotal(f.A, f.B, f.C, f.fallback)

	_, err = f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, before, f.walletTotal(f.A, f.B, f.C, f.fallback))
	assert.Len(t, f.history(f.C), 1)
}

func TestDistributeRegistrationIncome_WithoutApprovedPayment(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Zero(t, f.participant(f.C).WalletBalance)
}

func TestDistributeRegistrationIncome_UnknownParticipant(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.DistributeRegistrationIncome(f.ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDistributeRegistrationIncome_RejectsShortPayment(t *testing.T) {
	f := newFixture(t)
	f.approveRegistration(f.X, 3000)

	_, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	payments, err := f.store.Payments().GetApproved(f.ctx, f.X, models.PaymentTypeRegistration)
	require.NoError(t, err)
	assert.False(t, payments[0].IncomeDistributed)
}

func TestDistributeRegistrationIncome_RollsBackWhenFallbackMissing(t *testing.T) {
	f := newFixture(t, withBDirects(1), withPlan(func(plan *config.CompensationConfig) {
		plan.FallbackParticipantID = primitive.NewObjectID()
	}))
	f.approveRegistration(f.X, 3600)

	_, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Zero(t, f.participant(f.C).WalletBalance)
	assert.Zero(t, f.participant(f.C).DirectReferralCount)
	assert.Empty(t, f.history(f.C))

	payments, err := f.store.Payments().GetApproved(f.ctx, f.X, models.PaymentTypeRegistration)
	require.NoError(t, err)
	assert.False(t, payments[0].IncomeDistributed)
}

func TestDistributeRegistrationIncome_AbortedCommit(t *testing.T) {
	f := newFixture(t)
	f.approveRegistration(f.X, 3600)
	f.store.FailCommit = func() error { return errors.New("write conflict") }

	_, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	assert.ErrorIs(t, err, ErrTransactionAborted)
	assert.Zero(t, f.walletTotal(f.A, f.B, f.C, f.fallback))

	f.store.FailCommit = nil
	_, err = f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	assert.NoError(t, err, "an aborted distribution can be retried")
}

func TestDistributeRegistrationIncome_FormsPair(t *testing.T) {
	f := newFixture(t, withPairUnderC())
	f.approveRegistration(f.X, 3600)

	result, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.NoError(t, err)

	assert.True(t, result.Matching.PairFormed)
	assert.Equal(t, 3, result.Matching.LevelsCredited)
	assert.Zero(t, result.Matching.Redirected)
	assert.ElementsMatch(t, []primitive.ObjectID{f.C, f.B, f.A}, result.Matching.Recipients)

	day := models.DayKey(testStart)
	c := f.participant(f.C)
	assert.Equal(t, 1, c.Pairs)
	assert.Equal(t, 1, c.TotalPairs)
	assert.Equal(t, 1, c.PairsOn(day))
	assert.Equal(t, 300.0, c.MatchingIncome)
	assert.Equal(t, 660.0, c.WalletBalance)

	for _, id := range []primitive.ObjectID{f.B, f.A} {
		p := f.participant(id)
		assert.Equal(t, 300.0, p.MatchingIncome)
		assert.Equal(t, 1, p.TotalPairs)
		assert.Zero(t, p.Pairs, "only the direct parent's pair count moves")
	}
}

func TestDistributeRegistrationIncome_MatchingStopsAtIneligibleAncestor(t *testing.T) {
	f := newFixture(t, withPairUnderC(), withBDirects(1))
	f.approveRegistration(f.X, 3600)

	result, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matching.LevelsCredited)
	assert.Equal(t, 1, result.Matching.Redirected)

	assert.Zero(t, f.participant(f.B).MatchingIncome)
	assert.Zero(t, f.participant(f.A).MatchingIncome, "the cascade stops at the first redirect")

	extra := f.historyOfType(f.fallback, models.HistoryTypeMatching.Extra())
	require.Len(t, extra, 1)
	assert.Equal(t, 300.0, extra[0].Amount)
	assert.Equal(t, 300.0, f.participant(f.fallback).MatchingIncome)
}

func TestDistributeRegistrationIncome_DailyCapRedirects(t *testing.T) {
	day := models.DayKey(testStart)
	f := newFixture(t, withPairUnderC(), withParticipant("C", func(p *models.Participant) {
		p.MatchingPairsToday = map[string]int{day: 60}
	}))
	f.approveRegistration(f.X, 3600)

	result, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.NoError(t, err)
	assert.True(t, result.Matching.PairFormed)
	assert.Zero(t, result.Matching.LevelsCredited)
	assert.Equal(t, 1, result.Matching.Redirected)

	c := f.participant(f.C)
	assert.Equal(t, 1, c.Pairs, "pairs advances even when the bonus is redirected")
	assert.Zero(t, c.TotalPairs)
	assert.Equal(t, 60, c.PairsOn(day))
	assert.Zero(t, c.MatchingIncome)

	extra := f.historyOfType(f.fallback, models.HistoryTypeMatching.Extra())
	require.Len(t, extra, 1)
	assert.True(t, strings.HasSuffix(extra[0].Remarks, f.C.Hex()+": "+ReasonDailyCap+")"))
}

func TestDistributeRegistrationIncome_NoPairWhenCountUnchanged(t *testing.T) {
	f := newFixture(t, withPairUnderC(), withParticipant("C", func(p *models.Participant) {
		p.Pairs = 1
	}))
	f.approveRegistration(f.X, 3600)

	result, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.NoError(t, err)
	assert.False(t, result.Matching.PairFormed)
	assert.Zero(t, f.participant(f.C).MatchingIncome)
}

func TestDistributeRegistrationIncome_AwardsRewardAfterMatching(t *testing.T) {
	f := newFixture(t, withPairUnderC(), withParticipant("C", func(p *models.Participant) {
		p.TotalPairs = 9
	}))
	f.approveRegistration(f.X, 3600)

	result, err := f.engine.DistributeRegistrationIncome(f.ctx, f.X)
	require.NoError(t, err)
	assert.Equal(t, []string{"Starter"}, result.RewardsAwarded)

	c := f.participant(f.C)
	assert.Equal(t, 10, c.TotalPairs)
	assert.True(t, c.HasReward("Starter"))
	assert.Equal(t, 2500.0, c.RewardIncome)
}

func TestDistributeRegistrationIncome_ConcurrentTriggersPayOnce(t *testing.T) {
	f := newFixture(t)
	f.approveRegistration(f.X, 3600)

	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() {
			_, err := f.engine.DistributeRegistrationIncome(context.Background(), f.X)
			errs <- err
		}()
	}

	var succeeded int
	for i := 0; i < cap(errs); i++ {
		err := <-errs
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 360.0, f.participant(f.C).WalletBalance)
}
