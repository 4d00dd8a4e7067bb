package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentStatus string
type PaymentType string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"

	PaymentTypeRegistration PaymentType = "registration"
	PaymentTypeInvestment   PaymentType = "investment"
)

// Payment is the approval record that triggers a distribution event.
// IncomeDistributed flips exactly once, inside the distribution transaction.
type Payment struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ParticipantID     primitive.ObjectID `json:"participant_id" bson:"participant_id" validate:"required"`
	Type              PaymentType        `json:"type" bson:"type" validate:"required"`
	Status            PaymentStatus      `json:"status" bson:"status" default:"pending"`
	Amount            float64            `json:"amount" bson:"amount" validate:"required"`
	IncomeDistributed bool               `json:"income_distributed" bson:"income_distributed" default:"false"`
	ApprovedAt        *time.Time         `json:"approved_at" bson:"approved_at"`
	DistributedAt     *time.Time         `json:"distributed_at" bson:"distributed_at"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}
