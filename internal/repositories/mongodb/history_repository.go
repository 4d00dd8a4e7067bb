package mongodb

import (
	"context"
	"fmt"
	"time"

	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"
	"compengine/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type historyRepository struct {
	collection *mongo.Collection
}

func NewHistoryRepository(db *mongo.Database) interfaces.HistoryRepository {
	return &historyRepository{
		collection: db.Collection(database.CollectionHistories),
	}
}

func (r *historyRepository) InsertMany(ctx context.Context, entries []*models.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		if entry.ID.IsZero() {
			entry.ID = primitive.NewObjectID()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now()
		}
		docs = append(docs, entry)
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("failed to insert history entries: %w", err)
	}

	return nil
}

func (r *historyRepository) GetByParticipant(ctx context.Context, participantID primitive.ObjectID) ([]*models.HistoryEntry, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"participant_id": participantID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find history entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.HistoryEntry
	for cursor.Next(ctx) {
		var entry models.HistoryEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to decode history entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, cursor.Err()
}
