package database

import (
	"context"
	"fmt"
	"time"

	"compengine/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionParticipants = "participants"
	CollectionInvestments  = "investments"
	CollectionPayments     = "payments"
	CollectionHistories    = "histories"
	collectionMigrations   = "migrations"
)

type Migration struct {
	Version     int
	Description string
	Up          func(*mongo.Database) error
	Down        func(*mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
	logger     *logger.Logger
}

func NewMigrator(db *mongo.Database, log *logger.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: getMigrations(),
		logger:     log,
	}
}

func (m *Migrator) Up() error {
	err := m.createMigrationsCollection()
	if err != nil {
		return err
	}

	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version > currentVersion {
			m.logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

			err := migration.Up(m.db)
			if err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			err = m.updateVersion(migration.Version)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}
		}
	}

	return nil
}

func (m *Migrator) Down(targetVersion int) error {
	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version <= currentVersion && migration.Version > targetVersion {
			m.logger.WithField("version", migration.Version).Infof("Reverting migration: %s", migration.Description)

			err := migration.Down(m.db)
			if err != nil {
				return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
			}

			previousVersion := targetVersion
			if i > 0 {
				previousVersion = m.migrations[i-1].Version
			}

			err = m.updateVersion(previousVersion)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}
		}
	}

	return nil
}

func (m *Migrator) createMigrationsCollection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collections, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return err
	}

	for _, name := range collections {
		if name == collectionMigrations {
			return nil
		}
	}

	return m.db.CreateCollection(ctx, collectionMigrations)
}

func (m *Migrator) getCurrentVersion() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection(collectionMigrations).FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(version int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.db.Collection(collectionMigrations).ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create participants collection with indexes",
			Up:          createParticipantsIndexes,
			Down: func(db *mongo.Database) error {
				return db.Collection(CollectionParticipants).Drop(context.Background())
			},
		},
		{
			Version:     2,
			Description: "Create investments collection with indexes",
			Up:          createInvestmentsIndexes,
			Down: func(db *mongo.Database) error {
				return db.Collection(CollectionInvestments).Drop(context.Background())
			},
		},
		{
			Version:     3,
			Description: "Create payments collection with indexes",
			Up:          createPaymentsIndexes,
			Down: func(db *mongo.Database) error {
				return db.Collection(CollectionPayments).Drop(context.Background())
			},
		},
		{
			Version:     4,
			Description: "Create histories collection with indexes",
			Up:          createHistoriesIndexes,
			Down: func(db *mongo.Database) error {
				return db.Collection(CollectionHistories).Drop(context.Background())
			},
		},
	}
}

func createParticipantsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection(CollectionParticipants)

	indexes := []mongo.IndexModel{
		{
			// direct referral counts and $graphLookup hops
			Keys: bson.D{{Key: "referred_by", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "pending_investment_bonuses.investment_id", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createInvestmentsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection(CollectionInvestments)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "participant_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "active", Value: 1}, {Key: "last_paid_period", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createPaymentsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection(CollectionPayments)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "participant_id", Value: 1},
				{Key: "type", Value: 1},
				{Key: "status", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createHistoriesIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection(CollectionHistories)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "participant_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
