package services

import (
	"context"
	"fmt"
	"time"

	"github.com/joshua-takyi/tourbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CapacityLedger owns the per-departure participant counters embedded in
// each tour. Every mutation is a single atomic update that also recomputes
// the sold-out flag.
type CapacityLedger struct {
	tours models.TourRepo
}

func NewCapacityLedger(tours models.TourRepo) *CapacityLedger {
	return &CapacityLedger{tours: tours}
}

func (l *CapacityLedger) Increment(ctx context.Context, tourID primitive.ObjectID, day time.Time, seats int) (*models.StartDate, error) {
	if seats <= 0 {
		return nil, fmt.Errorf("seat count must be positive, got %d: %w", seats, models.ErrBadRequest)
	}
	return l.tours.AdjustStartDate(ctx, tourID, day, seats)
}

// Decrement fails with ErrCapacityUnderflow rather than going below zero.
func (l *CapacityLedger) Decrement(ctx context.Context, tourID primitive.ObjectID, day time.Time, seats int) (*models.StartDate, error) {
	if seats <= 0 {
		return nil, fmt.Errorf("seat count must be positive, got %d: %w", seats, models.ErrBadRequest)
	}
	return l.tours.AdjustStartDate(ctx, tourID, day, -seats)
}

// Adjust applies a signed delta; zero is a no-op.
func (l *CapacityLedger) Adjust(ctx context.Context, tourID primitive.ObjectID, day time.Time, delta int) (*models.StartDate, error) {
	switch {
	case delta > 0:
		return l.Increment(ctx, tourID, day, delta)
	case delta < 0:
		return l.Decrement(ctx, tourID, day, -delta)
	default:
		return nil, nil
	}
}
