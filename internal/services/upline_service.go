package services

import (
	"context"
	"fmt"

	"compengine/internal/models"
	"compengine/internal/repositories/interfaces"
	"compengine/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UplineResolver returns the referral chain above a participant, nearest
// first, at most maxDepth entries. Level L is element L-1.
type UplineResolver interface {
	ResolveUpline(ctx context.Context, participantID primitive.ObjectID, maxDepth int) ([]*models.Participant, error)
}

type uplineResolver struct {
	participants interfaces.ParticipantRepository
	logger       *logger.Logger
}

func NewUplineResolver(participants interfaces.ParticipantRepository, log *logger.Logger) UplineResolver {
	return &uplineResolver{
		participants: participants,
		logger:       log,
	}
}

func (r *uplineResolver) ResolveUpline(ctx context.Context, participantID primitive.ObjectID, maxDepth int) ([]*models.Participant, error) {
	if maxDepth <= 0 {
		return nil, nil
	}
	upline, err := r.participants.GetUpline(ctx, participantID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("resolve upline: %w", err)
	}

	// A malformed tree must not pay the same ancestor twice.
	seen := map[primitive.ObjectID]bool{participantID: true}
	for i, ancestor := range upline {
		if seen[ancestor.ID] {
			r.logger.WithParticipantID(participantID).
				WithField("ancestor_id", ancestor.ID.Hex()).
				Warn("Referral cycle detected, truncating upline")
			return upline[:i], nil
		}
		seen[ancestor.ID] = true
	}

	if len(upline) > maxDepth {
		upline = upline[:maxDepth]
	}
	return upline, nil
}
