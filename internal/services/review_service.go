package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReviewRequest struct {
	Review string `json:"review" validate:"required,max=1000"`
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
}

type ReviewUpdate struct {
	Review *string `json:"review" validate:"omitempty,min=1,max=1000"`
	Rating *int    `json:"rating" validate:"omitempty,min=1,max=5"`
}

// ReviewService keeps each tour's rating aggregate in step with its
// reviews by recomputing it after every write.
type ReviewService struct {
	reviews models.ReviewsRepo
	tours   models.TourRepo
	logger  *slog.Logger
}

func NewReviewService(reviews models.ReviewsRepo, tours models.TourRepo, logger *slog.Logger) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{reviews: reviews, tours: tours, logger: logger}
}

func (rs *ReviewService) CreateReview(ctx context.Context, tourID, userID primitive.ObjectID, req ReviewRequest) (*models.Review, error) {
	req.Review = strings.TrimSpace(req.Review)
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if _, err := rs.tours.GetTourByID(ctx, tourID); err != nil {
		return nil, err
	}
	review, err := rs.reviews.CreateReview(ctx, &models.Review{
		Review: req.Review,
		Rating: req.Rating,
		Tour:   tourID,
		User:   userID,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("you already reviewed this tour: %w", models.ErrConflict)
		}
		return nil, err
	}
	if err := rs.recompute(ctx, tourID); err != nil {
		return nil, err
	}
	return review, nil
}

func (rs *ReviewService) ListReviews(ctx context.Context, tourID primitive.ObjectID, page Page) ([]*models.Review, int64, error) {
	page = page.Normalize()
	return rs.reviews.ListReviewsByTour(ctx, tourID, page.Offset(), page.Limit)
}

// UpdateReview lets the author edit their review; moderators may edit any.
func (rs *ReviewService) UpdateReview(ctx context.Context, id, actor primitive.ObjectID, moderator bool, upd ReviewUpdate) (*models.Review, error) {
	if err := models.Validate.Struct(upd); err != nil {
		return nil, validationError(err)
	}
	current, err := rs.owned(ctx, id, actor, moderator)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if upd.Review != nil {
		updates["review"] = strings.TrimSpace(*upd.Review)
	}
	if upd.Rating != nil {
		updates["rating"] = *upd.Rating
	}
	if len(updates) == 0 {
		return current, nil
	}
	review, err := rs.reviews.UpdateReview(ctx, id, updates)
	if err != nil {
		return nil, err
	}
	if upd.Rating != nil {
		if err := rs.recompute(ctx, review.Tour); err != nil {
			return nil, err
		}
	}
	return review, nil
}

func (rs *ReviewService) DeleteReview(ctx context.Context, id, actor primitive.ObjectID, moderator bool) error {
	current, err := rs.owned(ctx, id, actor, moderator)
	if err != nil {
		return err
	}
	if err := rs.reviews.DeleteReview(ctx, id); err != nil {
		return err
	}
	return rs.recompute(ctx, current.Tour)
}

func (rs *ReviewService) owned(ctx context.Context, id, actor primitive.ObjectID, moderator bool) (*models.Review, error) {
	review, err := rs.reviews.GetReviewByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if review.User != actor && !moderator {
		return nil, fmt.Errorf("review belongs to another user: %w", models.ErrForbidden)
	}
	return review, nil
}

func (rs *ReviewService) recompute(ctx context.Context, tourID primitive.ObjectID) error {
	summary, err := rs.reviews.SummarizeRatings(ctx, tourID)
	if err != nil {
		return err
	}
	avg := models.DefaultRatingsAverage
	if summary.Quantity > 0 {
		avg = roundRating(summary.Average)
	}
	if err := rs.tours.UpdateRatings(ctx, tourID, avg, summary.Quantity); err != nil {
		return err
	}
	rs.logger.Debug("Tour ratings recomputed", "tour_id", tourID.Hex(), "average", avg, "quantity", summary.Quantity)
	return nil
}

// roundRating rounds half away from zero to one decimal place.
func roundRating(avg float64) float64 {
	return decimal.NewFromFloat(avg).Round(1).InexactFloat64()
}
