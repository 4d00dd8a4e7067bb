package services

import (
	"math"
	"testing"

	"compengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDistributeInvestmentBonuses_PaysOneTimeAndSchedules(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.DistributeInvestmentBonuses(f.ctx, f.X, 10000)
	require.NoError(t, err)

	assert.Equal(t, 400.0, result.MonthlyROI)
	assert.Equal(t, 3, result.OneTimeCredited)
	assert.Equal(t, 18, result.ScheduledEntries)
	assert.Zero(t, result.LevelsRedirected)

	investment, err := f.store.Investments().GetByID(f.ctx, result.InvestmentID)
	require.NoError(t, err)
	assert.True(t, investment.Active)
	assert.True(t, investment.IsLocked)
	assert.True(t, investment.WithdrawalRestriction)
	assert.Equal(t, testStart.AddDate(0, 24, 0), investment.EndDate)
	assert.Equal(t, "2026-01", investment.LastPaidPeriod)

	c := f.participant(f.C)
	assert.Equal(t, 500.0, c.InvestmentReferralIncome)
	assert.Equal(t, 500.0, c.InvestmentReferralPrincipalIncome)
	assert.Equal(t, 500.0, c.WalletBalance, "principal tracking does not move the wallet")
	require.Len(t, c.PendingInvestmentBonuses, 6)
	for i, entry := range c.PendingInvestmentBonuses {
		assert.Equal(t, i+1, entry.Month)
		assert.Equal(t, 40.0, entry.Amount)
		assert.Equal(t, 1, entry.Level)
		assert.False(t, entry.Awarded)
		assert.Equal(t, result.InvestmentID, entry.InvestmentID)
		assert.Equal(t, f.X, entry.InvestorID)
		assert.Equal(t, "2026-01-01", entry.CreatedAt.Format("2006-01-02"))
	}

	b := f.participant(f.B)
	assert.Equal(t, 200.0, b.InvestmentReferralIncome)
	assert.Equal(t, 20.0, b.PendingInvestmentBonuses[0].Amount)

	a := f.participant(f.A)
	assert.Equal(t, 100.0, a.InvestmentReferralIncome)
	assert.Equal(t, 12.0, a.PendingInvestmentBonuses[0].Amount)

	assert.Len(t, f.historyOfType(f.C, models.HistoryTypeInvestmentReferral), 1)
	assert.Empty(t, f.historyOfType(f.C, models.HistoryTypeMonthlyInvestmentBonus), "monthly entries are recorded on release")
}

func TestDistributeInvestmentBonuses_RedirectsIneligibleLevel(t *testing.T) {
	f := newFixture(t, withBDirects(1))

	result, err := f.engine.DistributeInvestmentBonuses(f.ctx, f.X, 10000)
	require.NoError(t, err)
	assert.Equal(t, 2, result.OneTimeCredited)
	assert.Equal(t, 1, result.LevelsRedirected)
	assert.Equal(t, 12, result.ScheduledEntries)

	b := f.participant(f.B)
	assert.Zero(t, b.WalletBalance)
	assert.Empty(t, b.PendingInvestmentBonuses)

	fallback := f.participant(f.fallback)
	assert.Equal(t, 200.0, fallback.InvestmentReferralIncome)
	assert.Equal(t, 120.0, fallback.InvestmentReferralReturnIncome, "six months of 20 paid up front")
	assert.Equal(t, 320.0, fallback.WalletBalance)
	assert.Empty(t, fallback.PendingInvestmentBonuses)

	assert.Len(t, f.historyOfType(f.fallback, models.HistoryTypeInvestmentReferral.Extra()), 1)
	assert.Len(t, f.historyOfType(f.fallback, models.HistoryTypeMonthlyInvestmentBonus.Extra()), 1)
}

func TestDistributeInvestmentBonuses_RejectsInvalidAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
	}{
		{"below minimum", 4999},
		{"zero", 0},
		{"negative", -10000},
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.engine.DistributeInvestmentBonuses(f.ctx, f.X, tt.amount)
			assert.ErrorIs(t, err, ErrInvalidAmount)

			active, err := f.store.Investments().ListActive(f.ctx)
			require.NoError(t, err)
			assert.Empty(t, active)
			for _, id := range []primitive.ObjectID{f.A, f.B, f.C, f.fallback} {
				p := f.participant(id)
				assert.Zero(t, p.WalletBalance)
				assert.Zero(t, p.InvestmentReferralIncome)
				assert.Empty(t, p.PendingInvestmentBonuses)
			}
			assert.Empty(t, f.history(f.C))
		})
	}
}

func TestDistributeInvestmentBonuses_UnknownInvestor(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.DistributeInvestmentBonuses(f.ctx, primitive.NewObjectID(), 10000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDistributeInvestmentBonuses_RootInvestorHasNoUpline(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.DistributeInvestmentBonuses(f.ctx, f.A, 5000)
	require.NoError(t, err)
	assert.Zero(t, result.OneTimeCredited)
	assert.Zero(t, result.ScheduledEntries)
	assert.Equal(t, 200.0, result.MonthlyROI)

	active, err := f.store.Investments().ListActive(f.ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
