package services

import (
	"context"
	"fmt"

	"compengine/internal/config"
	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Redirect reasons, also used as metric labels.
const (
	ReasonIneligible = "ineligible"
	ReasonDailyCap   = "daily_cap"
)

// EligibilityEvaluator decides whether an ancestor may be paid at a level.
// Direct referrals are counted from the tree, never from the stored counter.
type EligibilityEvaluator struct {
	plan *config.CompensationConfig
}

func NewEligibilityEvaluator(plan *config.CompensationConfig) *EligibilityEvaluator {
	return &EligibilityEvaluator{plan: plan}
}

func (e *EligibilityEvaluator) IsEligible(level, directReferrals int) bool {
	if level < 1 || level > e.plan.MaxUplineDepth {
		return false
	}
	return directReferrals >= e.plan.DirectRequirement(level)
}

// eligibilityGate holds direct referral counts for one upline, fetched in a
// single query.
type eligibilityGate struct {
	evaluator *EligibilityEvaluator
	counts    map[primitive.ObjectID]int
}

func (e *EligibilityEvaluator) gateFor(ctx context.Context, participants interfaces.ParticipantRepository, upline []*models.Participant) (*eligibilityGate, error) {
	ids := make([]primitive.ObjectID, 0, len(upline))
	for _, ancestor := range upline {
		ids = append(ids, ancestor.ID)
	}

	counts := map[primitive.ObjectID]int{}
	if len(ids) > 0 {
		var err error
		counts, err = participants.CountDirectReferrals(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("count direct referrals: %w", err)
		}
	}
	return &eligibilityGate{evaluator: e, counts: counts}, nil
}

func (g *eligibilityGate) eligible(ancestor *models.Participant, level int) bool {
	return g.evaluator.IsEligible(level, g.counts[ancestor.ID])
}

// credit describes one payment an ancestor may receive.
type credit struct {
	Bucket  models.IncomeBucket
	Type    models.HistoryType
	Amount  float64
	Remarks string
	Source  primitive.ObjectID
	Level   int
}

// creditOrRedirect pays the ancestor when eligible at the level, otherwise the
// fallback account. It reports whether the ancestor was paid.
func (g *eligibilityGate) creditOrRedirect(batch *ledgerBatch, ancestor *models.Participant, c credit) bool {
	if g.eligible(ancestor, c.Level) {
		batch.credit(ancestor.ID, c)
		return true
	}
	batch.redirect(ancestor.ID, c, ReasonIneligible)
	return false
}
