package models

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Review    string             `bson:"review" json:"review" validate:"required,max=1000"`
	Rating    int                `bson:"rating" json:"rating" validate:"required,min=1,max=5"`
	Tour      primitive.ObjectID `bson:"tour" json:"tour"`
	User      primitive.ObjectID `bson:"user" json:"user"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type RatingSummary struct {
	Average  float64 `bson:"avgRating" json:"avgRating"`
	Quantity int     `bson:"nRating" json:"nRating"`
}

func (r *Review) BeforeCreate() error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (r *Review) Sanitize() {
	r.Review = strings.TrimSpace(r.Review)
}

type ReviewsRepo interface {
	CreateReview(ctx context.Context, review *Review) (*Review, error)
	GetReviewByID(ctx context.Context, id primitive.ObjectID) (*Review, error)
	ListReviewsByTour(ctx context.Context, tourID primitive.ObjectID, offset, limit int) ([]*Review, int64, error)
	UpdateReview(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*Review, error)
	DeleteReview(ctx context.Context, id primitive.ObjectID) error
	SummarizeRatings(ctx context.Context, tourID primitive.ObjectID) (*RatingSummary, error)
}
