package services

import (
	"context"
	"fmt"
	"time"

	"compengine/internal/config"
	"compengine/internal/metrics"
	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"
	"compengine/pkg/logger"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RewardResult struct {
	ParticipantID primitive.ObjectID `json:"participant_id"`
	TotalPairs    int                `json:"total_pairs"`
	Awarded       []string           `json:"awarded"`
}

// RewardService awards one-time milestone rewards for lifetime pairs.
type RewardService interface {
	CheckAndAwardRewards(ctx context.Context, participantID primitive.ObjectID) (*RewardResult, error)
}

type rewardService struct {
	store   interfaces.LedgerStore
	plan    *config.CompensationConfig
	history HistoryWriter
	clock   clockwork.Clock
	logger  *logger.Logger
}

func NewRewardService(store interfaces.LedgerStore, plan *config.CompensationConfig, history HistoryWriter, clock clockwork.Clock, log *logger.Logger) RewardService {
	return &rewardService{
		store:   store,
		plan:    plan,
		history: history,
		clock:   clock,
		logger:  log,
	}
}

func (s *rewardService) CheckAndAwardRewards(ctx context.Context, participantID primitive.ObjectID) (*RewardResult, error) {
	participant, err := s.store.Participants().GetByID(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("load participant: %w", err)
	}

	result := &RewardResult{
		ParticipantID: participantID,
		TotalPairs:    participant.TotalPairs,
		Awarded:       []string{},
	}

	// Every reached milestone is checked, so a skipped threshold is still paid.
	for _, milestone := range s.plan.Milestones {
		if participant.TotalPairs < milestone.Pairs {
			break
		}
		if participant.HasReward(milestone.Name) {
			continue
		}

		awarded, err := s.award(ctx, participantID, milestone)
		if err != nil {
			return result, fmt.Errorf("award %s: %w", milestone.Name, err)
		}
		if awarded {
			result.Awarded = append(result.Awarded, milestone.Name)
		}
	}

	return result, nil
}

func (s *rewardService) award(ctx context.Context, participantID primitive.ObjectID, milestone config.Milestone) (bool, error) {
	now := s.clock.Now()
	var awarded bool

	err := s.store.WithTransaction(ctx, func(txCtx context.Context) error {
		added, err := s.store.Participants().AddReward(txCtx, participantID, milestone.Name)
		if err != nil {
			return err
		}
		if !added {
			return nil
		}

		var amount float64
		if milestone.IsMonetary() {
			amount = milestone.Amount
			m := models.ParticipantMutation{ParticipantID: participantID}
			m.Credit(models.BucketReward, amount)
			if err := s.store.Participants().ApplyMutations(txCtx, []models.ParticipantMutation{m}); err != nil {
				return err
			}
		}
		// non-monetary prizes are recorded with a zero amount
		if err := s.history.Record(txCtx, participantID, models.HistoryTypeReward, amount, rewardRemarks(milestone)); err != nil {
			return err
		}

		awarded = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if awarded {
		metrics.CreditsTotal.WithLabelValues(string(models.HistoryTypeReward)).Inc()
		metrics.CreditedAmount.WithLabelValues(string(models.HistoryTypeReward)).Add(milestone.Amount)
		s.logger.LogDistributionEvent(participantID, "reward_awarded", map[string]interface{}{
			"milestone": milestone.Name,
			"pairs":     milestone.Pairs,
			"amount":    milestone.Amount,
			"prize":     milestone.Prize,
			"at":        now.Format(time.RFC3339),
		})
	}
	return awarded, nil
}

func rewardRemarks(milestone config.Milestone) string {
	if milestone.IsMonetary() {
		return fmt.Sprintf("%s reward for %d pairs", milestone.Name, milestone.Pairs)
	}
	return fmt.Sprintf("%s reward for %d pairs: %s", milestone.Name, milestone.Pairs, milestone.Prize)
}
