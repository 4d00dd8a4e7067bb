package services

import (
	"fmt"

	"compengine/internal/config"
	"compengine/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MatchingOutcome summarises one matching pass.
type MatchingOutcome struct {
	PairFormed     bool                 `json:"pair_formed"`
	LevelsCredited int                  `json:"levels_credited"`
	Redirected     int                  `json:"redirected"`
	Recipients     []primitive.ObjectID `json:"recipients,omitempty"`
}

// MatchingIncomeDistributor pays the binary pair bonus to the direct parent
// when a new pair forms and cascades it up the eligible chain.
type MatchingIncomeDistributor struct {
	plan *config.CompensationConfig
}

func NewMatchingIncomeDistributor(plan *config.CompensationConfig) *MatchingIncomeDistributor {
	return &MatchingIncomeDistributor{plan: plan}
}

// Distribute adds the matching credits for a newly registered participant to
// batch. upline[0] is the direct parent; day keys the daily cap counters.
func (d *MatchingIncomeDistributor) Distribute(batch *ledgerBatch, gate *eligibilityGate, source primitive.ObjectID, upline []*models.Participant, day string) MatchingOutcome {
	var outcome MatchingOutcome
	if len(upline) == 0 {
		return outcome
	}

	parent := upline[0]
	newPairs := parent.PairCount()
	if newPairs <= parent.Pairs {
		return outcome
	}
	outcome.PairFormed = true
	// pairs advances even when the bonus for this pair is redirected
	batch.mutation(parent.ID).PairsAtLeast = newPairs

	for i, ancestor := range upline {
		level := i + 1
		c := credit{
			Bucket:  models.BucketMatching,
			Type:    models.HistoryTypeMatching,
			Amount:  d.plan.PairBonus,
			Remarks: fmt.Sprintf("Matching bonus for pair formed under %s (level %d)", parent.ID.Hex(), level),
			Source:  source,
			Level:   level,
		}

		if !gate.eligible(ancestor, level) {
			batch.redirect(ancestor.ID, c, ReasonIneligible)
			outcome.Redirected++
			break
		}
		if !d.award(batch, ancestor, day, c) {
			outcome.Redirected++
			break
		}
		outcome.LevelsCredited++
		outcome.Recipients = append(outcome.Recipients, ancestor.ID)
	}
	return outcome
}

// award credits one pair unit unless the ancestor has reached today's cap, in
// which case the unit is redirected and false is returned.
func (d *MatchingIncomeDistributor) award(batch *ledgerBatch, ancestor *models.Participant, day string, c credit) bool {
	m := batch.mutation(ancestor.ID)
	pairsToday := ancestor.PairsOn(day)
	if m.MatchingDay == day {
		pairsToday += m.MatchingDayDelta
	}

	if pairsToday >= d.plan.DailyPairCap {
		batch.redirect(ancestor.ID, c, ReasonDailyCap)
		return false
	}

	batch.credit(ancestor.ID, c)
	m.TotalPairsDelta++
	m.MatchingDay = day
	m.MatchingDayDelta++
	return true
}
