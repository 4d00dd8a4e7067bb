package mongodb

import (
	"context"
	"errors"
	"fmt"

	"compengine/internal/repositories/interfaces"
	"compengine/pkg/database"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver"
)

type ledgerStore struct {
	db           *database.MongoDB
	participants interfaces.ParticipantRepository
	investments  interfaces.InvestmentRepository
	payments     interfaces.PaymentRepository
	histories    interfaces.HistoryRepository
}

func NewLedgerStore(db *database.MongoDB) interfaces.LedgerStore {
	return &ledgerStore{
		db:           db,
		participants: NewParticipantRepository(db.Database),
		investments:  NewInvestmentRepository(db.Database),
		payments:     NewPaymentRepository(db.Database),
		histories:    NewHistoryRepository(db.Database),
	}
}

func (s *ledgerStore) Participants() interfaces.ParticipantRepository { return s.participants }
func (s *ledgerStore) Investments() interfaces.InvestmentRepository   { return s.investments }
func (s *ledgerStore) Payments() interfaces.PaymentRepository         { return s.payments }
func (s *ledgerStore) Histories() interfaces.HistoryRepository        { return s.histories }

func (s *ledgerStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.db.WithTransaction(ctx, fn)
	if err == nil {
		return nil
	}
	if isAborted(err) {
		return fmt.Errorf("%w: %v", interfaces.ErrTransactionAborted, err)
	}
	return err
}

// isAborted reports store-level failures, as opposed to errors returned by fn itself.
func isAborted(err error) bool {
	var txnErr *database.TransactionError
	if errors.As(err, &txnErr) {
		return true
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel(driver.TransientTransactionError) ||
			labeled.HasErrorLabel(driver.UnknownTransactionCommitResult)
	}
	return false
}
