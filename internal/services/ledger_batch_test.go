package services

import (
	"testing"

	"compengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestLedgerBatch_MergesMutationsInFirstTouchOrder(t *testing.T) {
	fallback := primitive.NewObjectID()
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	batch := newLedgerBatch(fallback, testStart)

	batch.credit(a, credit{Bucket: models.BucketReferral, Type: models.HistoryTypeReferral, Amount: 100, Level: 1})
	batch.redirect(b, credit{Bucket: models.BucketReferral, Type: models.HistoryTypeReferral, Amount: 30, Level: 2}, ReasonIneligible)
	batch.credit(a, credit{Bucket: models.BucketMatching, Type: models.HistoryTypeMatching, Amount: 300, Level: 1})
	batch.credit(b, credit{Bucket: models.BucketReferral, Type: models.HistoryTypeReferral, Amount: 0, Level: 2})

	mutations := batch.Mutations()
	require.Len(t, mutations, 2, "zero amounts do not touch b")
	assert.Equal(t, a, mutations[0].ParticipantID)
	assert.Equal(t, 400.0, mutations[0].WalletDelta)
	assert.Equal(t, 100.0, mutations[0].Income[models.BucketReferral])
	assert.Equal(t, 300.0, mutations[0].Income[models.BucketMatching])
	assert.Equal(t, fallback, mutations[1].ParticipantID)
	assert.Equal(t, 30.0, mutations[1].WalletDelta)

	require.Len(t, batch.entries, 3)
	assert.Equal(t, models.HistoryType("extra-referral"), batch.entries[1].Type)
	assert.Equal(t, fallback, batch.entries[1].ParticipantID)
	require.Len(t, batch.redirects, 1)
	assert.Equal(t, b, batch.redirects[0].from)
}
