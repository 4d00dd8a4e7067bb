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

type investmentRepository struct {
	collection *mongo.Collection
}

func NewInvestmentRepository(db *mongo.Database) interfaces.InvestmentRepository {
	return &investmentRepository{
		collection: db.Collection(database.CollectionInvestments),
	}
}

func (r *investmentRepository) Create(ctx context.Context, investment *models.Investment) error {
	if investment.ID.IsZero() {
		investment.ID = primitive.NewObjectID()
	}
	investment.CreatedAt = time.Now()
	investment.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, investment)
	if err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}

	return nil
}

func (r *investmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Investment, error) {
	var investment models.Investment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&investment)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("investment %s: %w", id.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}

	return &investment, nil
}

func (r *investmentRepository) ListActive(ctx context.Context) ([]*models.Investment, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find active investments: %w", err)
	}
	defer cursor.Close(ctx)

	var investments []*models.Investment
	for cursor.Next(ctx) {
		var investment models.Investment
		if err := cursor.Decode(&investment); err != nil {
			return nil, fmt.Errorf("failed to decode investment: %w", err)
		}
		investments = append(investments, &investment)
	}

	return investments, cursor.Err()
}

func (r *investmentRepository) RecordMonthlyPayout(ctx context.Context, id primitive.ObjectID, expectedMonthsPaid int, period string, lockInMonths int) (bool, error) {
	filter := bson.M{
		"_id":              id,
		"active":           true,
		"months_paid":      expectedMonthsPaid,
		"last_paid_period": bson.M{"$ne": period},
	}

	set := bson.M{
		"last_paid_period": period,
		"updated_at":       time.Now(),
	}
	if expectedMonthsPaid+1 >= lockInMonths {
		set["active"] = false
		set["is_locked"] = false
		set["withdrawal_restriction"] = false
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"months_paid": 1},
		"$set": set,
	})
	if err != nil {
		return false, fmt.Errorf("failed to record monthly payout: %w", err)
	}

	return result.ModifiedCount == 1, nil
}
