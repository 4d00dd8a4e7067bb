package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Investment struct {
	ID                    primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ParticipantID         primitive.ObjectID `json:"participant_id" bson:"participant_id" validate:"required"`
	Amount                float64            `json:"amount" bson:"amount" validate:"required"`
	StartDate             time.Time          `json:"start_date" bson:"start_date"`
	EndDate               time.Time          `json:"end_date" bson:"end_date"`
	MonthsPaid            int                `json:"months_paid" bson:"months_paid" default:"0"`
	Active                bool               `json:"active" bson:"active" default:"true"`
	IsLocked              bool               `json:"is_locked" bson:"is_locked"`
	WithdrawalRestriction bool               `json:"withdrawal_restriction" bson:"withdrawal_restriction"`
	LastPaidPeriod        string             `json:"last_paid_period" bson:"last_paid_period"`
	CreatedAt             time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at" bson:"updated_at"`
}

// RefreshLock recomputes the derived lock flags; they are never the source of truth.
func (i *Investment) RefreshLock(now time.Time) {
	i.IsLocked = i.Active && now.Before(i.EndDate)
	i.WithdrawalRestriction = i.IsLocked
}

// PeriodKey identifies a settlement month, e.g. "2026-10".
func PeriodKey(t time.Time) string {
	return t.Format("2006-01")
}

// DayKey identifies a matching-cap day, e.g. "2026-10-15".
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
