package services

import (
	"context"
	"errors"
	"time"

	"compengine/internal/config"
	"compengine/internal/repositories/interfaces"
	"compengine/pkg/logger"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CompensationEngine is the operation surface used by handlers and the scheduler.
type CompensationEngine interface {
	DistributeRegistrationIncome(ctx context.Context, participantID primitive.ObjectID) (*RegistrationResult, error)
	DistributeInvestmentBonuses(ctx context.Context, investorID primitive.ObjectID, amount float64) (*InvestmentResult, error)
	SettlePendingBonuses(ctx context.Context) (*SettlementResult, error)
	SettleMonthlyROI(ctx context.Context) (*SettlementResult, error)
	PruneMatchingCounters(ctx context.Context) (*SettlementResult, error)
	CheckAndAwardRewards(ctx context.Context, participantID primitive.ObjectID) (*RewardResult, error)
}

type EngineConfig struct {
	Store                 interfaces.LedgerStore
	Plan                  *config.CompensationConfig
	Logger                *logger.Logger
	Clock                 clockwork.Clock
	Location              *time.Location
	SettlementConcurrency int
}

func (cfg *EngineConfig) Validate() error {
	if cfg.Store == nil {
		return errors.New("ledger store is required")
	}
	if cfg.Plan == nil {
		return errors.New("compensation plan is required")
	}
	if err := cfg.Plan.Validate(); err != nil {
		return err
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SettlementConcurrency <= 0 {
		cfg.SettlementConcurrency = 1
	}
	return nil
}

// Engine wires the distributors over one ledger store.
type Engine struct {
	registration RegistrationIncomeService
	investment   InvestmentBonusService
	settlement   SettlementService
	rewards      RewardService
}

var _ CompensationEngine = (*Engine)(nil)

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger.WithField("component", "compensation_engine")
	history := NewHistoryWriter(cfg.Store.Histories(), cfg.Clock)
	upline := NewUplineResolver(cfg.Store.Participants(), log)
	eligibility := NewEligibilityEvaluator(cfg.Plan)
	rewards := NewRewardService(cfg.Store, cfg.Plan, history, cfg.Clock, log)

	return &Engine{
		registration: NewRegistrationIncomeService(
			cfg.Store, cfg.Plan, upline, eligibility, NewMatchingIncomeDistributor(cfg.Plan),
			rewards, history, cfg.Clock, cfg.Location, log,
		),
		investment: NewInvestmentBonusService(
			cfg.Store, cfg.Plan, upline, eligibility, history, cfg.Clock, cfg.Location, log,
		),
		settlement: NewSettlementService(
			cfg.Store, cfg.Plan, history, cfg.Clock, cfg.Location, cfg.SettlementConcurrency, log,
		),
		rewards: rewards,
	}, nil
}

func (e *Engine) DistributeRegistrationIncome(ctx context.Context, participantID primitive.ObjectID) (*RegistrationResult, error) {
	return e.registration.DistributeRegistrationIncome(ctx, participantID)
}

func (e *Engine) DistributeInvestmentBonuses(ctx context.Context, investorID primitive.ObjectID, amount float64) (*InvestmentResult, error) {
	return e.investment.DistributeInvestmentBonuses(ctx, investorID, amount)
}

func (e *Engine) SettlePendingBonuses(ctx context.Context) (*SettlementResult, error) {
	return e.settlement.SettlePendingBonuses(ctx)
}

func (e *Engine) SettleMonthlyROI(ctx context.Context) (*SettlementResult, error) {
	return e.settlement.SettleMonthlyROI(ctx)
}

func (e *Engine) PruneMatchingCounters(ctx context.Context) (*SettlementResult, error) {
	return e.settlement.PruneMatchingCounters(ctx)
}

func (e *Engine) CheckAndAwardRewards(ctx context.Context, participantID primitive.ObjectID) (*RewardResult, error) {
	return e.rewards.CheckAndAwardRewards(ctx, participantID)
}
