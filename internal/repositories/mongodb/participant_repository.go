package mongodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"
	"compengine/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type participantRepository struct {
	collection *mongo.Collection
}

func NewParticipantRepository(db *mongo.Database) interfaces.ParticipantRepository {
	return &participantRepository{
		collection: db.Collection(database.CollectionParticipants),
	}
}

func (r *participantRepository) Create(ctx context.Context, participant *models.Participant) error {
	if participant.ID.IsZero() {
		participant.ID = primitive.NewObjectID()
	}
	participant.CreatedAt = time.Now()
	participant.UpdatedAt = time.Now()

	// $inc/$push/$addToSet fail on null fields, so persist empty containers
	if participant.LeftChildren == nil {
		participant.LeftChildren = []primitive.ObjectID{}
	}
	if participant.RightChildren == nil {
		participant.RightChildren = []primitive.ObjectID{}
	}
	if participant.MatchingPairsToday == nil {
		participant.MatchingPairsToday = map[string]int{}
	}
	if participant.AwardedRewards == nil {
		participant.AwardedRewards = []string{}
	}
	if participant.PendingInvestmentBonuses == nil {
		participant.PendingInvestmentBonuses = []models.PendingBonus{}
	}

	_, err := r.collection.InsertOne(ctx, participant)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}

	return nil
}

func (r *participantRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Participant, error) {
	var participant models.Participant
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&participant)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("participant %s: %w", id.Hex(), interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return &participant, nil
}

type uplineNode struct {
	models.Participant `bson:",inline"`
	Depth              int64 `bson:"depth"`
}

// GetUpline walks referred_by with a single $graphLookup and returns ancestors
// nearest first. The result is re-threaded through referred_by so a dangling
// reference truncates the chain exactly where successive lookups would.
func (r *participantRepository) GetUpline(ctx context.Context, id primitive.ObjectID, maxDepth int) ([]*models.Participant, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": id}}},
		{{Key: "$graphLookup", Value: bson.M{
			"from":             database.CollectionParticipants,
			"startWith":        "$referred_by",
			"connectFromField": "referred_by",
			"connectToField":   "_id",
			"as":               "upline",
			"maxDepth":         maxDepth - 1,
			"depthField":       "depth",
		}}},
		{{Key: "$project", Value: bson.M{"referred_by": 1, "upline": 1}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upline: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		ReferredBy *primitive.ObjectID `bson:"referred_by"`
		Upline     []uplineNode        `bson:"upline"`
	}
	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, fmt.Errorf("failed to resolve upline: %w", err)
		}
		return nil, fmt.Errorf("participant %s: %w", id.Hex(), interfaces.ErrNotFound)
	}
	if err := cursor.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode upline: %w", err)
	}

	sort.Slice(result.Upline, func(i, j int) bool {
		return result.Upline[i].Depth < result.Upline[j].Depth
	})

	byID := make(map[primitive.ObjectID]*models.Participant, len(result.Upline))
	for i := range result.Upline {
		byID[result.Upline[i].ID] = &result.Upline[i].Participant
	}

	upline := make([]*models.Participant, 0, len(result.Upline))
	next := result.ReferredBy
	for next != nil && len(upline) < maxDepth {
		ancestor, ok := byID[*next]
		if !ok {
			break
		}
		upline = append(upline, ancestor)
		next = ancestor.ReferredBy
	}

	return upline, nil
}

func (r *participantRepository) CountDirectReferrals(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	counts := make(map[primitive.ObjectID]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	for _, id := range ids {
		counts[id] = 0
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"referred_by": bson.M{"$in": ids}}}},
		{{Key: "$group", Value: bson.M{"_id": "$referred_by", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count direct referrals: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			ID    primitive.ObjectID `bson:"_id"`
			Count int                `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode referral count: %w", err)
		}
		counts[row.ID] = row.Count
	}

	return counts, cursor.Err()
}

func (r *participantRepository) ApplyMutations(ctx context.Context, mutations []models.ParticipantMutation) error {
	writes := make([]mongo.WriteModel, 0, len(mutations))
	now := time.Now()
	for i := range mutations {
		if mutations[i].IsEmpty() {
			continue
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": mutations[i].ParticipantID}).
			SetUpdate(buildMutationUpdate(&mutations[i], now)))
	}
	if len(writes) == 0 {
		return nil
	}

	result, err := r.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("failed to apply participant mutations: %w", err)
	}
	if result.MatchedCount != int64(len(writes)) {
		return fmt.Errorf("matched %d of %d participants: %w", result.MatchedCount, len(writes), interfaces.ErrNotFound)
	}

	return nil
}

// buildMutationUpdate translates a mutation into a single update document.
func buildMutationUpdate(m *models.ParticipantMutation, now time.Time) bson.M {
	inc := bson.M{}
	for bucket, amount := range m.Income {
		inc[string(bucket)] = amount
	}
	if m.WalletDelta != 0 {
		inc["wallet_balance"] = m.WalletDelta
	}
	if m.DirectReferralDelta != 0 {
		inc["direct_referral_count"] = m.DirectReferralDelta
	}
	if m.TotalPairsDelta != 0 {
		inc["total_pairs"] = m.TotalPairsDelta
	}
	if m.MatchingDay != "" && m.MatchingDayDelta != 0 {
		inc["matching_pairs_today."+m.MatchingDay] = m.MatchingDayDelta
	}

	update := bson.M{"$set": bson.M{"updated_at": now}}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if m.PairsAtLeast > 0 {
		update["$max"] = bson.M{"pairs": m.PairsAtLeast}
	}
	if len(m.AddRewards) > 0 {
		update["$addToSet"] = bson.M{"awarded_rewards": bson.M{"$each": m.AddRewards}}
	}
	if len(m.PushBonuses) > 0 {
		update["$push"] = bson.M{"pending_investment_bonuses": bson.M{"$each": m.PushBonuses}}
	}

	return update
}

func (r *participantRepository) AddReward(ctx context.Context, id primitive.ObjectID, name string) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "awarded_rewards": bson.M{"$ne": name}},
		bson.M{
			"$addToSet": bson.M{"awarded_rewards": name},
			"$set":      bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to add reward: %w", err)
	}

	return result.ModifiedCount == 1, nil
}

func (r *participantRepository) MarkBonusAwarded(ctx context.Context, ownerID, investmentID primitive.ObjectID, month int) (bool, error) {
	filter := bson.M{
		"_id": ownerID,
		"pending_investment_bonuses": bson.M{"$elemMatch": bson.M{
			"investment_id": investmentID,
			"month":         month,
			"awarded":       false,
		}},
	}
	update := bson.M{"$set": bson.M{
		"pending_investment_bonuses.$[b].awarded": true,
		"updated_at": time.Now(),
	}}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{
			"b.investment_id": investmentID,
			"b.month":         month,
			"b.awarded":       false,
		}},
	})

	result, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return false, fmt.Errorf("failed to mark bonus awarded: %w", err)
	}

	return result.ModifiedCount == 1, nil
}

func (r *participantRepository) ListWithPendingBonuses(ctx context.Context) ([]*models.Participant, error) {
	filter := bson.M{"pending_investment_bonuses.0": bson.M{"$exists": true}}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find participants with pending bonuses: %w", err)
	}
	defer cursor.Close(ctx)

	var participants []*models.Participant
	for cursor.Next(ctx) {
		var participant models.Participant
		if err := cursor.Decode(&participant); err != nil {
			return nil, fmt.Errorf("failed to decode participant: %w", err)
		}
		participants = append(participants, &participant)
	}

	return participants, cursor.Err()
}

func (r *participantRepository) PurgeAwardedBonuses(ctx context.Context, ownerID primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": ownerID},
		bson.M{
			"$pull": bson.M{"pending_investment_bonuses": bson.M{"awarded": true}},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to purge awarded bonuses: %w", err)
	}

	return nil
}

// PruneMatchingDays drops matching_pairs_today keys older than keepFrom (YYYY-MM-DD).
func (r *participantRepository) PruneMatchingDays(ctx context.Context, keepFrom string) (int64, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"matching_pairs_today": bson.M{"$arrayToObject": bson.M{"$filter": bson.M{
				"input": bson.M{"$objectToArray": bson.M{"$ifNull": bson.A{"$matching_pairs_today", bson.M{}}}},
				"as":    "day",
				"cond":  bson.M{"$gte": bson.A{"$$day.k", keepFrom}},
			}}},
		}}},
	}

	result, err := r.collection.UpdateMany(ctx, bson.M{"matching_pairs_today": bson.M{"$ne": bson.M{}}}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to prune matching counters: %w", err)
	}

	return result.ModifiedCount, nil
}
