package interfaces

import (
	"context"
	"errors"
	"time"

	"compengine/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrTransactionAborted means the store rolled the transaction back; nothing was applied.
	ErrTransactionAborted = errors.New("transaction aborted")
)

// TransactionManager runs fn as one atomic unit. Repository calls made with the
// ctx passed to fn join the transaction; returning an error rolls everything back.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LedgerStore groups the repositories the compensation engine mutates.
type LedgerStore interface {
	TransactionManager
	Participants() ParticipantRepository
	Investments() InvestmentRepository
	Payments() PaymentRepository
	Histories() HistoryRepository
}

type ParticipantRepository interface {
	Create(ctx context.Context, participant *models.Participant) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Participant, error)

	// Tree traversal
	GetUpline(ctx context.Context, id primitive.ObjectID, maxDepth int) ([]*models.Participant, error)
	CountDirectReferrals(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int, error)

	// Bulk mutation; fails with ErrNotFound if any target is missing
	ApplyMutations(ctx context.Context, mutations []models.ParticipantMutation) error

	// Conditional updates; the bool reports whether the document changed
	AddReward(ctx context.Context, id primitive.ObjectID, name string) (bool, error)
	MarkBonusAwarded(ctx context.Context, ownerID, investmentID primitive.ObjectID, month int) (bool, error)

	// Settlement support
	ListWithPendingBonuses(ctx context.Context) ([]*models.Participant, error)
	PurgeAwardedBonuses(ctx context.Context, ownerID primitive.ObjectID) error
	PruneMatchingDays(ctx context.Context, keepFrom string) (int64, error)
}

type InvestmentRepository interface {
	Create(ctx context.Context, investment *models.Investment) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Investment, error)
	ListActive(ctx context.Context) ([]*models.Investment, error)
	// RecordMonthlyPayout advances months_paid once per period and retires the
	// investment when lockInMonths is reached.
	RecordMonthlyPayout(ctx context.Context, id primitive.ObjectID, expectedMonthsPaid int, period string, lockInMonths int) (bool, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetApproved(ctx context.Context, participantID primitive.ObjectID, paymentType models.PaymentType) ([]*models.Payment, error)
	MarkDistributed(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error)
}

type HistoryRepository interface {
	InsertMany(ctx context.Context, entries []*models.HistoryEntry) error
	GetByParticipant(ctx context.Context, participantID primitive.ObjectID) ([]*models.HistoryEntry, error)
}
