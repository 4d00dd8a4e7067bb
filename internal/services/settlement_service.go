package services

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"compengine/internal/config"
	"compengine/internal/metrics"
	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"
	"compengine/internal/utils"
	"compengine/pkg/logger"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const (
	JobPendingBonus = "pending-bonus"
	JobMonthlyROI   = "roi"
	JobPruneMatches = "prune"
)

type SettlementResult struct {
	Job            string    `json:"job"`
	Period         string    `json:"period"`
	ProcessedCount int       `json:"processed_count"`
	SkippedCount   int       `json:"skipped_count"`
	FailedCount    int       `json:"failed_count"`
	RetiredCount   int       `json:"retired_count,omitempty"`
	PrunedCount    int64     `json:"pruned_count,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// SettlementService runs the periodic jobs. Each unit of work commits on its
// own; a failing unit is logged and skipped.
type SettlementService interface {
	SettlePendingBonuses(ctx context.Context) (*SettlementResult, error)
	SettleMonthlyROI(ctx context.Context) (*SettlementResult, error)
	PruneMatchingCounters(ctx context.Context) (*SettlementResult, error)
}

type settlementService struct {
	store       interfaces.LedgerStore
	plan        *config.CompensationConfig
	history     HistoryWriter
	clock       clockwork.Clock
	location    *time.Location
	concurrency int
	logger      *logger.Logger
}

func NewSettlementService(
	store interfaces.LedgerStore,
	plan *config.CompensationConfig,
	history HistoryWriter,
	clock clockwork.Clock,
	location *time.Location,
	concurrency int,
	log *logger.Logger,
) SettlementService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &settlementService{
		store:       store,
		plan:        plan,
		history:     history,
		clock:       clock,
		location:    location,
		concurrency: concurrency,
		logger:      log,
	}
}

type unitCounters struct {
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	retired   atomic.Int64
}

func (c *unitCounters) fill(result *SettlementResult) {
	result.ProcessedCount = int(c.processed.Load())
	result.SkippedCount = int(c.skipped.Load())
	result.FailedCount = int(c.failed.Load())
	result.RetiredCount = int(c.retired.Load())
}

func (s *settlementService) SettlePendingBonuses(ctx context.Context) (*SettlementResult, error) {
	now := s.clock.Now().In(s.location)
	result := &SettlementResult{Job: JobPendingBonus, Period: models.PeriodKey(now), StartedAt: now}
	log := s.logger.WithContext(ctx).WithField("job", JobPendingBonus)

	owners, err := s.store.Participants().ListWithPendingBonuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending bonuses: %w", err)
	}

	var counters unitCounters
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			if ctx.Err() != nil {
				counters.skipped.Add(1)
				return nil
			}
			s.settleOwner(ctx, owner, now, &counters, log)
			return nil
		})
	}
	_ = g.Wait()

	counters.fill(result)
	result.FinishedAt = s.clock.Now().In(s.location)
	log.LogSettlementEvent(JobPendingBonus, result.ProcessedCount, result.SkippedCount, map[string]interface{}{
		"owners": len(owners),
		"failed": result.FailedCount,
	})
	return result, ctx.Err()
}

// bonusGroup is one investment's schedule inside an owner's pending list.
type bonusGroup struct {
	investmentID primitive.ObjectID
	entries      []models.PendingBonus
}

func groupPendingBonuses(entries []models.PendingBonus) []bonusGroup {
	index := make(map[primitive.ObjectID]int)
	var groups []bonusGroup
	for _, entry := range entries {
		i, ok := index[entry.InvestmentID]
		if !ok {
			i = len(groups)
			index[entry.InvestmentID] = i
			groups = append(groups, bonusGroup{investmentID: entry.InvestmentID})
		}
		groups[i].entries = append(groups[i].entries, entry)
	}
	for i := range groups {
		sort.SliceStable(groups[i].entries, func(a, b int) bool {
			return groups[i].entries[a].Month < groups[i].entries[b].Month
		})
	}
	return groups
}

// dueEntry returns the lowest unawarded month of the group if it is due.
// Entry k is due once k-1 calendar months have passed since the anchor, so a
// missed run is caught up one entry per invocation.
func (s *settlementService) dueEntry(group bonusGroup, now time.Time) (models.PendingBonus, bool) {
	for _, entry := range group.entries {
		if entry.Awarded {
			continue
		}
		elapsed := entry.MonthsElapsed(now)
		if entry.Month > s.plan.BonusScheduleMonths || entry.Month > elapsed+1 {
			return models.PendingBonus{}, false
		}
		return entry, true
	}
	return models.PendingBonus{}, false
}

func (s *settlementService) settleOwner(ctx context.Context, owner *models.Participant, now time.Time, counters *unitCounters, log *logger.Logger) {
	ownerLog := log.WithParticipantID(owner.ID)

	for _, group := range groupPendingBonuses(owner.PendingInvestmentBonuses) {
		entry, due := s.dueEntry(group, now)
		if !due {
			counters.skipped.Add(1)
			metrics.SettlementUnitsTotal.WithLabelValues(JobPendingBonus, "skipped").Inc()
			continue
		}

		released, err := s.releaseEntry(ctx, owner.ID, entry, now)
		switch {
		case err != nil:
			counters.failed.Add(1)
			metrics.SettlementUnitsTotal.WithLabelValues(JobPendingBonus, "failed").Inc()
			ownerLog.WithInvestmentID(group.investmentID).WithError(err).Error("Pending bonus release failed")
		case released:
			counters.processed.Add(1)
			metrics.SettlementUnitsTotal.WithLabelValues(JobPendingBonus, "released").Inc()
		default:
			counters.skipped.Add(1)
			metrics.SettlementUnitsTotal.WithLabelValues(JobPendingBonus, "skipped").Inc()
		}
	}

	if err := s.store.Participants().PurgeAwardedBonuses(ctx, owner.ID); err != nil {
		ownerLog.WithError(err).Warn("Failed to purge awarded bonuses")
	}
}

func (s *settlementService) releaseEntry(ctx context.Context, ownerID primitive.ObjectID, entry models.PendingBonus, now time.Time) (bool, error) {
	var released bool
	err := s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		flipped, err := s.store.Participants().MarkBonusAwarded(txCtx, ownerID, entry.InvestmentID, entry.Month)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		released = true
		if entry.Amount <= 0 {
			return nil
		}

		m := models.ParticipantMutation{ParticipantID: ownerID}
		m.Credit(models.BucketInvestmentReferralReturn, entry.Amount)
		if err := s.store.Participants().ApplyMutations(txCtx, []models.ParticipantMutation{m}); err != nil {
			return err
		}
		source := entry.InvestorID
		return s.history.RecordMany(txCtx, []*models.HistoryEntry{{
			ID:                  primitive.NewObjectID(),
			ParticipantID:       ownerID,
			Type:                models.HistoryTypeMonthlyInvestmentBonus,
			Amount:              entry.Amount,
			Remarks:             fmt.Sprintf("Level %d monthly investment bonus, month %d of %d", entry.Level, entry.Month, s.plan.BonusScheduleMonths),
			SourceParticipantID: &source,
			Level:               entry.Level,
			CreatedAt:           now,
		}})
	})
	if err != nil {
		return false, err
	}

	if released && entry.Amount > 0 {
		metrics.CreditsTotal.WithLabelValues(string(models.HistoryTypeMonthlyInvestmentBonus)).Inc()
		metrics.CreditedAmount.WithLabelValues(string(models.HistoryTypeMonthlyInvestmentBonus)).Add(entry.Amount)
	}
	return released, nil
}

func (s *settlementService) SettleMonthlyROI(ctx context.Context) (*SettlementResult, error) {
	now := s.clock.Now().In(s.location)
	period := models.PeriodKey(now)
	result := &SettlementResult{Job: JobMonthlyROI, Period: period, StartedAt: now}
	log := s.logger.WithContext(ctx).WithField("job", JobMonthlyROI)

	investments, err := s.store.Investments().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active investments: %w", err)
	}

	var counters unitCounters
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, investment := range investments {
		g.Go(func() error {
			if ctx.Err() != nil || investment.LastPaidPeriod == period {
				counters.skipped.Add(1)
				metrics.SettlementUnitsTotal.WithLabelValues(JobMonthlyROI, "skipped").Inc()
				return nil
			}

			paid, retired, err := s.payROI(ctx, investment, period, now)
			switch {
			case err != nil:
				counters.failed.Add(1)
				metrics.SettlementUnitsTotal.WithLabelValues(JobMonthlyROI, "failed").Inc()
				log.WithInvestmentID(investment.ID).WithError(err).Error("Monthly ROI payout failed")
			case paid:
				counters.processed.Add(1)
				if retired {
					counters.retired.Add(1)
				}
				metrics.SettlementUnitsTotal.WithLabelValues(JobMonthlyROI, "released").Inc()
			default:
				counters.skipped.Add(1)
				metrics.SettlementUnitsTotal.WithLabelValues(JobMonthlyROI, "skipped").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	counters.fill(result)
	result.FinishedAt = s.clock.Now().In(s.location)
	log.LogSettlementEvent(JobMonthlyROI, result.ProcessedCount, result.SkippedCount, map[string]interface{}{
		"period":  period,
		"failed":  result.FailedCount,
		"retired": result.RetiredCount,
	})
	return result, ctx.Err()
}

func (s *settlementService) payROI(ctx context.Context, investment *models.Investment, period string, now time.Time) (paid, retired bool, err error) {
	amount := utils.FloorAmount(investment.Amount, s.plan.MonthlyROIRate)
	month := investment.MonthsPaid + 1

	err = s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		advanced, err := s.store.Investments().RecordMonthlyPayout(txCtx, investment.ID, investment.MonthsPaid, period, s.plan.LockInMonths)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
		paid = true
		retired = month >= s.plan.LockInMonths
		if amount <= 0 {
			return nil
		}

		m := models.ParticipantMutation{ParticipantID: investment.ParticipantID}
		m.Credit(models.BucketInvestment, amount)
		if err := s.store.Participants().ApplyMutations(txCtx, []models.ParticipantMutation{m}); err != nil {
			return err
		}
		return s.history.RecordMany(txCtx, []*models.HistoryEntry{{
			ID:            primitive.NewObjectID(),
			ParticipantID: investment.ParticipantID,
			Type:          models.HistoryTypeInvestmentROI,
			Amount:        amount,
			Remarks:       fmt.Sprintf("Monthly ROI %d of %d on investment %s", month, s.plan.LockInMonths, investment.ID.Hex()),
			CreatedAt:     now,
		}})
	})
	if err != nil {
		return false, false, err
	}

	if paid && amount > 0 {
		metrics.CreditsTotal.WithLabelValues(string(models.HistoryTypeInvestmentROI)).Inc()
		metrics.CreditedAmount.WithLabelValues(string(models.HistoryTypeInvestmentROI)).Add(amount)
	}
	return paid, retired, nil
}

// PruneMatchingCounters drops daily pair counters for days before today.
func (s *settlementService) PruneMatchingCounters(ctx context.Context) (*SettlementResult, error) {
	now := s.clock.Now().In(s.location)
	result := &SettlementResult{Job: JobPruneMatches, Period: models.DayKey(now), StartedAt: now}

	pruned, err := s.store.Participants().PruneMatchingDays(ctx, models.DayKey(now))
	if err != nil {
		return nil, fmt.Errorf("prune matching counters: %w", err)
	}

	result.PrunedCount = pruned
	result.ProcessedCount = int(pruned)
	result.FinishedAt = s.clock.Now().In(s.location)
	s.logger.WithContext(ctx).LogSettlementEvent(JobPruneMatches, result.ProcessedCount, 0, map[string]interface{}{
		"keep_from": result.Period,
	})
	return result, nil
}
