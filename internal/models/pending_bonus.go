package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PendingBonus is one month of a deferred investment bonus owned by an ancestor.
// Entries sharing InvestmentID form one schedule and share CreatedAt.
type PendingBonus struct {
	InvestorID   primitive.ObjectID `json:"investor_id" bson:"investor_id"`
	InvestmentID primitive.ObjectID `json:"investment_id" bson:"investment_id"`
	Level        int                `json:"level" bson:"level"`
	Amount       float64            `json:"amount" bson:"amount"`
	Month        int                `json:"month" bson:"month"`
	Awarded      bool               `json:"awarded" bson:"awarded"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
}

// MonthsElapsed counts calendar month boundaries between the schedule anchor and now.
// The anchor is read in now's location, since stored times come back as UTC.
func (b PendingBonus) MonthsElapsed(now time.Time) int {
	anchor := b.CreatedAt.In(now.Location())
	return (now.Year()-anchor.Year())*12 + int(now.Month()) - int(anchor.Month())
}
