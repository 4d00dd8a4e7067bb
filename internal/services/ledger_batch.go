package services

import (
	"fmt"
	"time"

	"compengine/internal/metrics"
	"compengine/internal/models"
	"compengine/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type redirectRecord struct {
	from   primitive.ObjectID
	credit credit
	reason string
}

// ledgerBatch accumulates the participant updates and history entries of one
// event so they can be written as a single bulk operation.
type ledgerBatch struct {
	fallbackID primitive.ObjectID
	now        time.Time
	mutations  map[primitive.ObjectID]*models.ParticipantMutation
	order      []primitive.ObjectID
	entries    []*models.HistoryEntry
	redirects  []redirectRecord
}

func newLedgerBatch(fallbackID primitive.ObjectID, now time.Time) *ledgerBatch {
	return &ledgerBatch{
		fallbackID: fallbackID,
		now:        now,
		mutations:  make(map[primitive.ObjectID]*models.ParticipantMutation),
	}
}

func (b *ledgerBatch) mutation(id primitive.ObjectID) *models.ParticipantMutation {
	m, ok := b.mutations[id]
	if !ok {
		m = &models.ParticipantMutation{ParticipantID: id}
		b.mutations[id] = m
		b.order = append(b.order, id)
	}
	return m
}

func (b *ledgerBatch) credit(to primitive.ObjectID, c credit) {
	if c.Amount <= 0 {
		return
	}
	b.mutation(to).Credit(c.Bucket, c.Amount)
	b.record(to, c.Type, c)
}

// redirect pays the credit to the fallback account in the same bucket under
// the extra- variant of its history type.
func (b *ledgerBatch) redirect(from primitive.ObjectID, c credit, reason string) {
	if c.Amount <= 0 {
		return
	}
	c.Remarks = fmt.Sprintf("%s (redirected from %s: %s)", c.Remarks, from.Hex(), reason)
	b.mutation(b.fallbackID).Credit(c.Bucket, c.Amount)
	b.record(b.fallbackID, c.Type.Extra(), c)
	b.redirects = append(b.redirects, redirectRecord{from: from, credit: c, reason: reason})
}

func (b *ledgerBatch) record(to primitive.ObjectID, historyType models.HistoryType, c credit) {
	entry := &models.HistoryEntry{
		ID:            primitive.NewObjectID(),
		ParticipantID: to,
		Type:          historyType,
		Amount:        c.Amount,
		Remarks:       c.Remarks,
		Level:         c.Level,
		CreatedAt:     b.now,
	}
	if !c.Source.IsZero() {
		source := c.Source
		entry.SourceParticipantID = &source
	}
	b.entries = append(b.entries, entry)
}

// Mutations returns the accumulated updates in first-touch order.
func (b *ledgerBatch) Mutations() []models.ParticipantMutation {
	out := make([]models.ParticipantMutation, 0, len(b.order))
	for _, id := range b.order {
		if m := b.mutations[id]; !m.IsEmpty() {
			out = append(out, *m)
		}
	}
	return out
}

// observe publishes metrics and redirect logs; call only after commit.
func (b *ledgerBatch) observe(log *logger.Logger) {
	for _, entry := range b.entries {
		metrics.CreditsTotal.WithLabelValues(string(entry.Type)).Inc()
		metrics.CreditedAmount.WithLabelValues(string(entry.Type)).Add(entry.Amount)
	}
	for _, r := range b.redirects {
		metrics.RedirectsTotal.WithLabelValues(r.reason).Inc()
		log.LogRedirect(r.from, r.credit.Level, string(r.credit.Type), r.credit.Amount, r.reason)
	}
}
