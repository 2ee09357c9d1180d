package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SavedTour struct {
	TourID  primitive.ObjectID `bson:"tour_id" json:"tour_id"`
	AddedAt time.Time          `bson:"added_at" json:"added_at"`
}

// Favourite is a user's saved-tour list, one document per user keyed by
// tour id hex.
type Favourite struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID   `bson:"user_id" json:"user_id"`
	Items     map[string]SavedTour `bson:"items" json:"items"`
	CreatedAt time.Time            `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time            `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

type FavouriteRepo interface {
	AddToFavourites(ctx context.Context, userID, tourID primitive.ObjectID) (*Favourite, error)
	RemoveFromFavourites(ctx context.Context, userID, tourID primitive.ObjectID) error
	GetFavouritesByUserID(ctx context.Context, userID primitive.ObjectID) (*Favourite, error)
}

func (mdb *MongodbRepo) AddToFavourites(ctx context.Context, userID, tourID primitive.ObjectID) (*Favourite, error) {
	col, err := mdb.collection(ctx, FavouriteColName)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	filter := bson.M{"user_id": userID}

	update := bson.M{
		"$set": bson.M{
			"updated_at": now,
			fmt.Sprintf("items.%s", tourID.Hex()): SavedTour{
				TourID:  tourID,
				AddedAt: now,
			},
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var result Favourite
	if err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result); err != nil {
		return nil, fmt.Errorf("error upserting favourite: %w", err)
	}
	return &result, nil
}

func (mdb *MongodbRepo) RemoveFromFavourites(ctx context.Context, userID, tourID primitive.ObjectID) error {
	col, err := mdb.collection(ctx, FavouriteColName)
	if err != nil {
		return err
	}
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$unset": bson.M{fmt.Sprintf("items.%s", tourID.Hex()): ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	}
	if _, err := col.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("error removing favourite: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) GetFavouritesByUserID(ctx context.Context, userID primitive.ObjectID) (*Favourite, error) {
	col, err := mdb.collection(ctx, FavouriteColName)
	if err != nil {
		return nil, err
	}
	var fav Favourite
	if err := col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&fav); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &Favourite{UserID: userID, Items: map[string]SavedTour{}}, nil
		}
		return nil, fmt.Errorf("error finding favourites: %w", err)
	}
	if fav.Items == nil {
		fav.Items = map[string]SavedTour{}
	}
	return &fav, nil
}
