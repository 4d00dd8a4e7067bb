package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IncomeBucket is the BSON field name of an income counter on a participant.
// Credits to a bucket are mirrored into wallet_balance unless tracked only.
type IncomeBucket string

const (
	BucketReferral                    IncomeBucket = "referral_income"
	BucketMatching                    IncomeBucket = "matching_income"
	BucketReward                      IncomeBucket = "reward_income"
	BucketInvestmentReferral          IncomeBucket = "investment_referral_income"
	BucketInvestmentReferralPrincipal IncomeBucket = "investment_referral_principal_income"
	BucketInvestmentReferralReturn    IncomeBucket = "investment_referral_return_income"
	BucketInvestment                  IncomeBucket = "investment_income"
)

type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

type Participant struct {
	ID                                primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	Name                              string               `json:"name" bson:"name"`
	ReferredBy                        *primitive.ObjectID  `json:"referred_by" bson:"referred_by"`
	LeftChildren                      []primitive.ObjectID `json:"left_children" bson:"left_children"`
	RightChildren                     []primitive.ObjectID `json:"right_children" bson:"right_children"`
	DirectReferralCount               int                  `json:"direct_referral_count" bson:"direct_referral_count"`
	Pairs                             int                  `json:"pairs" bson:"pairs"`
	TotalPairs                        int                  `json:"total_pairs" bson:"total_pairs"`
	MatchingPairsToday                map[string]int       `json:"matching_pairs_today" bson:"matching_pairs_today"`
	AwardedRewards                    []string             `json:"awarded_rewards" bson:"awarded_rewards"`
	ReferralIncome                    float64              `json:"referral_income" bson:"referral_income"`
	MatchingIncome                    float64              `json:"matching_income" bson:"matching_income"`
	RewardIncome                      float64              `json:"reward_income" bson:"reward_income"`
	InvestmentReferralIncome          float64              `json:"investment_referral_income" bson:"investment_referral_income"`
	InvestmentReferralPrincipalIncome float64              `json:"investment_referral_principal_income" bson:"investment_referral_principal_income"`
	InvestmentReferralReturnIncome    float64              `json:"investment_referral_return_income" bson:"investment_referral_return_income"`
	InvestmentIncome                  float64              `json:"investment_income" bson:"investment_income"`
	WalletBalance                     float64              `json:"wallet_balance" bson:"wallet_balance"`
	PendingInvestmentBonuses          []PendingBonus       `json:"pending_investment_bonuses" bson:"pending_investment_bonuses"`
	CreatedAt                         time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt                         time.Time            `json:"updated_at" bson:"updated_at"`
}

// PairCount is the number of balanced left/right units under the participant.
func (p *Participant) PairCount() int {
	return min(len(p.LeftChildren), len(p.RightChildren))
}

func (p *Participant) PairsOn(day string) int {
	if p.MatchingPairsToday == nil {
		return 0
	}
	return p.MatchingPairsToday[day]
}

func (p *Participant) HasReward(name string) bool {
	for _, r := range p.AwardedRewards {
		if r == name {
			return true
		}
	}
	return false
}

// Income returns the current value of an income bucket.
func (p *Participant) Income(bucket IncomeBucket) float64 {
	switch bucket {
	case BucketReferral:
		return p.ReferralIncome
	case BucketMatching:
		return p.MatchingIncome
	case BucketReward:
		return p.RewardIncome
	case BucketInvestmentReferral:
		return p.InvestmentReferralIncome
	case BucketInvestmentReferralPrincipal:
		return p.InvestmentReferralPrincipalIncome
	case BucketInvestmentReferralReturn:
		return p.InvestmentReferralReturnIncome
	case BucketInvestment:
		return p.InvestmentIncome
	}
	return 0
}

// AddIncome adds amount to the bucket only; wallet_balance moves separately.
func (p *Participant) AddIncome(bucket IncomeBucket, amount float64) {
	switch bucket {
	case BucketReferral:
		p.ReferralIncome += amount
	case BucketMatching:
		p.MatchingIncome += amount
	case BucketReward:
		p.RewardIncome += amount
	case BucketInvestmentReferral:
		p.InvestmentReferralIncome += amount
	case BucketInvestmentReferralPrincipal:
		p.InvestmentReferralPrincipalIncome += amount
	case BucketInvestmentReferralReturn:
		p.InvestmentReferralReturnIncome += amount
	case BucketInvestment:
		p.InvestmentIncome += amount
	}
}

// ParticipantMutation is one document-level update in a bulk write.
// Zero-valued fields are left untouched.
type ParticipantMutation struct {
	ParticipantID       primitive.ObjectID
	Income              map[IncomeBucket]float64
	WalletDelta         float64
	DirectReferralDelta int
	// PairsAtLeast raises pairs to this value; pairs never decreases.
	PairsAtLeast     int
	TotalPairsDelta  int
	MatchingDay      string
	MatchingDayDelta int
	AddRewards       []string
	PushBonuses      []PendingBonus
}

// Credit adds amount to the bucket and to the wallet.
func (m *ParticipantMutation) Credit(bucket IncomeBucket, amount float64) {
	m.Track(bucket, amount)
	m.WalletDelta += amount
}

// Track adds amount to the bucket without moving the wallet.
func (m *ParticipantMutation) Track(bucket IncomeBucket, amount float64) {
	if m.Income == nil {
		m.Income = make(map[IncomeBucket]float64)
	}
	m.Income[bucket] += amount
}

func (m *ParticipantMutation) IsEmpty() bool {
	return len(m.Income) == 0 && m.WalletDelta == 0 && m.DirectReferralDelta == 0 &&
		m.PairsAtLeast == 0 && m.TotalPairsDelta == 0 && m.MatchingDayDelta == 0 &&
		len(m.AddRewards) == 0 && len(m.PushBonuses) == 0
}
