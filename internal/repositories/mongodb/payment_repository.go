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

type paymentRepository struct {
	collection *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) interfaces.PaymentRepository {
	return &paymentRepository{
		collection: db.Collection(database.CollectionPayments),
	}
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, payment)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetApproved returns approved payments of the given type, oldest first.
func (r *paymentRepository) GetApproved(ctx context.Context, participantID primitive.ObjectID, paymentType models.PaymentType) ([]*models.Payment, error) {
	filter := bson.M{
		"participant_id": participantID,
		"type":           paymentType,
		"status":         models.PaymentStatusApproved,
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find approved payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []*models.Payment
	for cursor.Next(ctx) {
		var payment models.Payment
		if err := cursor.Decode(&payment); err != nil {
			return nil, fmt.Errorf("failed to decode payment: %w", err)
		}
		payments = append(payments, &payment)
	}

	return payments, cursor.Err()
}

func (r *paymentRepository) MarkDistributed(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "income_distributed": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{
			"income_distributed": true,
			"distributed_at":     at,
			"updated_at":         time.Now(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment distributed: %w", err)
	}

	return result.ModifiedCount == 1, nil
}
