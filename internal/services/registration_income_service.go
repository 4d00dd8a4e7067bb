package services

import (
	"context"
	"errors"
	"fmt"
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

type RegistrationResult struct {
	ParticipantID    primitive.ObjectID `json:"participant_id"`
	PaymentID        primitive.ObjectID `json:"payment_id"`
	LevelsCredited   int                `json:"levels_credited"`
	LevelsRedirected int                `json:"levels_redirected"`
	TotalDistributed float64            `json:"total_distributed"`
	Matching         MatchingOutcome    `json:"matching"`
	RewardsAwarded   []string           `json:"rewards_awarded,omitempty"`
}

// RegistrationIncomeService distributes the fixed registration amount up the
// referral chain and runs matching for the direct parent.
type RegistrationIncomeService interface {
	DistributeRegistrationIncome(ctx context.Context, participantID primitive.ObjectID) (*RegistrationResult, error)
}

type registrationIncomeService struct {
	store       interfaces.LedgerStore
	plan        *config.CompensationConfig
	upline      UplineResolver
	eligibility *EligibilityEvaluator
	matching    *MatchingIncomeDistributor
	rewards     RewardService
	history     HistoryWriter
	clock       clockwork.Clock
	location    *time.Location
	logger      *logger.Logger
}

func NewRegistrationIncomeService(
	store interfaces.LedgerStore,
	plan *config.CompensationConfig,
	upline UplineResolver,
	eligibility *EligibilityEvaluator,
	matching *MatchingIncomeDistributor,
	rewards RewardService,
	history HistoryWriter,
	clock clockwork.Clock,
	location *time.Location,
	log *logger.Logger,
) RegistrationIncomeService {
	return &registrationIncomeService{
		store:       store,
		plan:        plan,
		upline:      upline,
		eligibility: eligibility,
		matching:    matching,
		rewards:     rewards,
		history:     history,
		clock:       clock,
		location:    location,
		logger:      log,
	}
}

func (s *registrationIncomeService) DistributeRegistrationIncome(ctx context.Context, participantID primitive.ObjectID) (*RegistrationResult, error) {
	start := s.clock.Now()
	now := start.In(s.location)
	log := s.logger.WithContext(ctx).WithParticipantID(participantID)

	var (
		result *RegistrationResult
		batch  *ledgerBatch
	)
	err := s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		participant, err := s.store.Participants().GetByID(txCtx, participantID)
		if err != nil {
			return err
		}

		payment, err := s.claimPayment(txCtx, participant.ID, now)
		if err != nil {
			return err
		}

		upline, err := s.upline.ResolveUpline(txCtx, participant.ID, s.plan.MaxUplineDepth)
		if err != nil {
			return err
		}
		gate, err := s.eligibility.gateFor(txCtx, s.store.Participants(), upline)
		if err != nil {
			return err
		}

		batch = newLedgerBatch(s.plan.FallbackParticipantID, now)
		result = &RegistrationResult{ParticipantID: participant.ID, PaymentID: payment.ID}

		for i, ancestor := range upline {
			level := i + 1
			c := credit{
				Bucket:  models.BucketReferral,
				Type:    models.HistoryTypeReferral,
				Amount:  utils.FloorAmount(s.plan.RegistrationAmount, s.plan.ReferralPercent(level)),
				Remarks: fmt.Sprintf("Level %d referral income from %s", level, participant.ID.Hex()),
				Source:  participant.ID,
				Level:   level,
			}
			if gate.creditOrRedirect(batch, ancestor, c) {
				result.LevelsCredited++
			} else {
				result.LevelsRedirected++
			}
			result.TotalDistributed += c.Amount

			if level == 1 {
				batch.mutation(ancestor.ID).DirectReferralDelta++
			}
		}

		result.Matching = s.matching.Distribute(batch, gate, participant.ID, upline, models.DayKey(now))

		if err := s.store.Participants().ApplyMutations(txCtx, batch.Mutations()); err != nil {
			return fmt.Errorf("apply registration credits: %w", err)
		}
		return s.history.RecordMany(txCtx, batch.entries)
	})
	if err != nil {
		outcome := "failed"
		if errors.Is(err, ErrAlreadyProcessed) {
			outcome = "duplicate"
			log.Info("Registration income already distributed")
		} else {
			log.WithError(err).Error("Registration income distribution failed")
		}
		metrics.DistributionEventsTotal.WithLabelValues("registration", outcome).Inc()
		return nil, err
	}

	batch.observe(log)
	metrics.DistributionEventsTotal.WithLabelValues("registration", "success").Inc()
	metrics.DistributionDuration.WithLabelValues("registration").Observe(s.clock.Since(start).Seconds())
	log.LogDistributionEvent(participantID, "registration_income_distributed", map[string]interface{}{
		"levels_credited":   result.LevelsCredited,
		"levels_redirected": result.LevelsRedirected,
		"pair_formed":       result.Matching.PairFormed,
		"matching_levels":   result.Matching.LevelsCredited,
	})

	// Rewards commit separately; a failure here leaves the distribution intact.
	for _, recipient := range result.Matching.Recipients {
		reward, err := s.rewards.CheckAndAwardRewards(ctx, recipient)
		if err != nil {
			log.WithError(err).WithField("recipient_id", recipient.Hex()).Warn("Reward check failed after matching")
			continue
		}
		result.RewardsAwarded = append(result.RewardsAwarded, reward.Awarded...)
	}

	return result, nil
}

// claimPayment marks the approved registration payment as distributed. Any
// earlier distribution makes this trigger a duplicate.
func (s *registrationIncomeService) claimPayment(ctx context.Context, participantID primitive.ObjectID, now time.Time) (*models.Payment, error) {
	payments, err := s.store.Payments().GetApproved(ctx, participantID, models.PaymentTypeRegistration)
	if err != nil {
		return nil, fmt.Errorf("load registration payments: %w", err)
	}

	var pending *models.Payment
	for _, payment := range payments {
		if payment.IncomeDistributed {
			return nil, ErrAlreadyProcessed
		}
		if pending == nil {
			pending = payment
		}
	}
	if pending == nil {
		return nil, ErrAlreadyProcessed
	}
	if pending.Amount < s.plan.RegistrationAmount {
		return nil, fmt.Errorf("%w: registration payment %.2f is below %.2f", ErrInvalidAmount, pending.Amount, s.plan.RegistrationAmount)
	}

	claimed, err := s.store.Payments().MarkDistributed(ctx, pending.ID, now)
	if err != nil {
		return nil, fmt.Errorf("claim registration payment: %w", err)
	}
	if !claimed {
		return nil, ErrAlreadyProcessed
	}
	return pending, nil
}
