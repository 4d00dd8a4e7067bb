package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type HistoryType string

const (
	HistoryTypeReferral               HistoryType = "referral"
	HistoryTypeMatching               HistoryType = "matching"
	HistoryTypeReward                 HistoryType = "reward"
	HistoryTypeInvestmentReferral     HistoryType = "investment-referral"
	HistoryTypeMonthlyInvestmentBonus HistoryType = "monthly-investment-bonus"
	HistoryTypeInvestmentROI          HistoryType = "investment-roi"

	extraPrefix = "extra-"
)

// Extra is the redirect variant of the type, used when a credit goes to the fallback account.
func (t HistoryType) Extra() HistoryType {
	if t.IsExtra() {
		return t
	}
	return HistoryType(extraPrefix + string(t))
}

func (t HistoryType) IsExtra() bool {
	return strings.HasPrefix(string(t), extraPrefix)
}

// HistoryEntry is an append-only audit record of a credit.
type HistoryEntry struct {
	ID                  primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	ParticipantID       primitive.ObjectID  `json:"participant_id" bson:"participant_id"`
	Type                HistoryType         `json:"type" bson:"type"`
	Amount              float64             `json:"amount" bson:"amount"`
	Remarks             string              `json:"remarks" bson:"remarks"`
	SourceParticipantID *primitive.ObjectID `json:"source_participant_id,omitempty" bson:"source_participant_id,omitempty"`
	Level               int                 `json:"level,omitempty" bson:"level,omitempty"`
	CreatedAt           time.Time           `json:"created_at" bson:"created_at"`
}
