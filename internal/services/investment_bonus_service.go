package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"compengine/internal/config"
	"compengine/internal/metrics"
	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"
	"compengine/internal/utils"
	"compengine/pkg/logger"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type InvestmentResult struct {
	InvestmentID     primitive.ObjectID `json:"investment_id"`
	InvestorID       primitive.ObjectID `json:"investor_id"`
	Amount           float64            `json:"amount"`
	MonthlyROI       float64            `json:"monthly_roi"`
	OneTimeCredited  int                `json:"one_time_credited"`
	ScheduledEntries int                `json:"scheduled_entries"`
	LevelsRedirected int                `json:"levels_redirected"`
}

// InvestmentBonusService records an investment and pays the upline a one-time
// bonus plus a deferred monthly schedule.
type InvestmentBonusService interface {
	DistributeInvestmentBonuses(ctx context.Context, investorID primitive.ObjectID, amount float64) (*InvestmentResult, error)
}

type investmentBonusService struct {
	store       interfaces.LedgerStore
	plan        *config.CompensationConfig
	upline      UplineResolver
	eligibility *EligibilityEvaluator
	history     HistoryWriter
	clock       clockwork.Clock
	location    *time.Location
	logger      *logger.Logger
}

func NewInvestmentBonusService(
	store interfaces.LedgerStore,
	plan *config.CompensationConfig,
	upline UplineResolver,
	eligibility *EligibilityEvaluator,
	history HistoryWriter,
	clock clockwork.Clock,
	location *time.Location,
	log *logger.Logger,
) InvestmentBonusService {
	return &investmentBonusService{
		store:       store,
		plan:        plan,
		upline:      upline,
		eligibility: eligibility,
		history:     history,
		clock:       clock,
		location:    location,
		logger:      log,
	}
}

func (s *investmentBonusService) DistributeInvestmentBonuses(ctx context.Context, investorID primitive.ObjectID, amount float64) (*InvestmentResult, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		metrics.DistributionEventsTotal.WithLabelValues("investment", "invalid").Inc()
		return nil, fmt.Errorf("%w: investment amount %v is not finite", ErrInvalidAmount, amount)
	}
	if amount < s.plan.MinInvestment {
		metrics.DistributionEventsTotal.WithLabelValues("investment", "invalid").Inc()
		return nil, fmt.Errorf("%w: investment %.2f is below the minimum of %.2f", ErrInvalidAmount, amount, s.plan.MinInvestment)
	}

	start := s.clock.Now()
	now := start.In(s.location)
	log := s.logger.WithContext(ctx).WithParticipantID(investorID)

	var (
		result *InvestmentResult
		batch  *ledgerBatch
	)
	err := s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		investor, err := s.store.Participants().GetByID(txCtx, investorID)
		if err != nil {
			return err
		}

		investment := &models.Investment{
			ParticipantID:  investor.ID,
			Amount:         amount,
			StartDate:      now,
			EndDate:        now.AddDate(0, s.plan.LockInMonths, 0),
			Active:         true,
			LastPaidPeriod: models.PeriodKey(now),
		}
		investment.RefreshLock(now)
		if err := s.store.Investments().Create(txCtx, investment); err != nil {
			return fmt.Errorf("create investment: %w", err)
		}

		upline, err := s.upline.ResolveUpline(txCtx, investor.ID, s.plan.MaxUplineDepth)
		if err != nil {
			return err
		}
		gate, err := s.eligibility.gateFor(txCtx, s.store.Participants(), upline)
		if err != nil {
			return err
		}

		monthlyROI := utils.FloorAmount(amount, s.plan.MonthlyROIRate)
		anchor := utils.StartOfMonth(now)
		batch = newLedgerBatch(s.plan.FallbackParticipantID, now)
		result = &InvestmentResult{
			InvestmentID: investment.ID,
			InvestorID:   investor.ID,
			Amount:       amount,
			MonthlyROI:   monthlyROI,
		}

		var schedules []models.ParticipantMutation
		for i, ancestor := range upline {
			level := i + 1
			oneTime := credit{
				Bucket:  models.BucketInvestmentReferral,
				Type:    models.HistoryTypeInvestmentReferral,
				Amount:  utils.FloorAmount(amount, s.plan.InvestmentOneTimePercent(level)),
				Remarks: fmt.Sprintf("Level %d investment referral bonus on %s from %s", level, utils.FormatAmount(amount), investor.ID.Hex()),
				Source:  investor.ID,
				Level:   level,
			}
			monthly := utils.FloorAmount(monthlyROI, s.plan.InvestmentMonthlyPercent(level))

			if !gate.eligible(ancestor, level) {
				batch.redirect(ancestor.ID, oneTime, ReasonIneligible)
				batch.redirect(ancestor.ID, credit{
					Bucket:  models.BucketInvestmentReferralReturn,
					Type:    models.HistoryTypeMonthlyInvestmentBonus,
					Amount:  monthly * float64(s.plan.BonusScheduleMonths),
					Remarks: fmt.Sprintf("Level %d monthly investment bonus, %d months of %s", level, s.plan.BonusScheduleMonths, utils.FormatAmount(monthly)),
					Source:  investor.ID,
					Level:   level,
				}, ReasonIneligible)
				result.LevelsRedirected++
				continue
			}

			batch.credit(ancestor.ID, oneTime)
			if oneTime.Amount > 0 {
				batch.mutation(ancestor.ID).Track(models.BucketInvestmentReferralPrincipal, oneTime.Amount)
			}
			result.OneTimeCredited++

			schedule := models.ParticipantMutation{ParticipantID: ancestor.ID}
			for month := 1; month <= s.plan.BonusScheduleMonths; month++ {
				schedule.PushBonuses = append(schedule.PushBonuses, models.PendingBonus{
					InvestorID:   investor.ID,
					InvestmentID: investment.ID,
					Level:        level,
					Amount:       monthly,
					Month:        month,
					CreatedAt:    anchor,
				})
			}
			schedules = append(schedules, schedule)
			result.ScheduledEntries += len(schedule.PushBonuses)
		}

		if err := s.store.Participants().ApplyMutations(txCtx, batch.Mutations()); err != nil {
			return fmt.Errorf("apply one-time bonuses: %w", err)
		}
		if err := s.store.Participants().ApplyMutations(txCtx, schedules); err != nil {
			return fmt.Errorf("create bonus schedules: %w", err)
		}
		return s.history.RecordMany(txCtx, batch.entries)
	})
	if err != nil {
		log.WithError(err).Error("Investment bonus distribution failed")
		metrics.DistributionEventsTotal.WithLabelValues("investment", "failed").Inc()
		return nil, err
	}

	batch.observe(log)
	metrics.DistributionEventsTotal.WithLabelValues("investment", "success").Inc()
	metrics.DistributionDuration.WithLabelValues("investment").Observe(s.clock.Since(start).Seconds())
	log.WithInvestmentID(result.InvestmentID).LogDistributionEvent(investorID, "investment_bonuses_distributed", map[string]interface{}{
		"amount":            amount,
		"one_time_credited": result.OneTimeCredited,
		"scheduled_entries": result.ScheduledEntries,
		"levels_redirected": result.LevelsRedirected,
	})

	return result, nil
}
