package services

import (
	"context"

	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HistoryWriter appends audit entries. Inside a transaction the entries commit
// or roll back with the balance changes they describe.
type HistoryWriter interface {
	Record(ctx context.Context, participantID primitive.ObjectID, historyType models.HistoryType, amount float64, remarks string) error
	RecordMany(ctx context.Context, entries []*models.HistoryEntry) error
}

type historyWriter struct {
	histories interfaces.HistoryRepository
	clock     clockwork.Clock
}

func NewHistoryWriter(histories interfaces.HistoryRepository, clock clockwork.Clock) HistoryWriter {
	return &historyWriter{
		histories: histories,
		clock:     clock,
	}
}

func (w *historyWriter) Record(ctx context.Context, participantID primitive.ObjectID, historyType models.HistoryType, amount float64, remarks string) error {
	return w.RecordMany(ctx, []*models.HistoryEntry{{
		ParticipantID: participantID,
		Type:          historyType,
		Amount:        amount,
		Remarks:       remarks,
	}})
}

func (w *historyWriter) RecordMany(ctx context.Context, entries []*models.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := w.clock.Now()
	for _, entry := range entries {
		if entry.ID.IsZero() {
			entry.ID = primitive.NewObjectID()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
	}
	return w.histories.InsertMany(ctx, entries)
}
