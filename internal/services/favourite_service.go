package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshua-takyi/tourbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FavouriteService struct {
	favouritesRepo models.FavouriteRepo
	tours          models.TourRepo
}

func NewFavouriteService(favouritesRepo models.FavouriteRepo, tours models.TourRepo) *FavouriteService {
	return &FavouriteService{
		favouritesRepo: favouritesRepo,
		tours:          tours,
	}
}

func (fs *FavouriteService) AddToFavourites(ctx context.Context, userID primitive.ObjectID, tourID string) (*models.Favourite, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("invalid user ID: %w", models.ErrBadRequest)
	}
	id, err := ParseID("tour", tourID)
	if err != nil {
		return nil, err
	}
	if _, err := fs.tours.GetTourByID(ctx, id); err != nil {
		return nil, err
	}
	return fs.favouritesRepo.AddToFavourites(ctx, userID, id)
}

func (fs *FavouriteService) RemoveFromFavourites(ctx context.Context, userID primitive.ObjectID, tourID string) error {
	if userID.IsZero() {
		return fmt.Errorf("invalid user ID: %w", models.ErrBadRequest)
	}
	id, err := ParseID("tour", tourID)
	if err != nil {
		return err
	}
	return fs.favouritesRepo.RemoveFromFavourites(ctx, userID, id)
}

// GetFavouritesByUserID returns an empty list for users who never saved
// anything.
func (fs *FavouriteService) GetFavouritesByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Favourite, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("invalid user ID: %w", models.ErrBadRequest)
	}
	fav, err := fs.favouritesRepo.GetFavouritesByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.Favourite{UserID: userID, Items: map[string]models.SavedTour{}}, nil
		}
		return nil, err
	}
	return fav, nil
}
