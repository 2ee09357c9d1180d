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

func (mdb *MongodbRepo) CreateReview(ctx context.Context, review *Review) (*Review, error) {
	review.Sanitize()
	if err := review.BeforeCreate(); err != nil {
		return nil, fmt.Errorf("failed to prepare review for creation: %w", err)
	}
	col, err := mdb.collection(ctx, ReviewColName)
	if err != nil {
		return nil, err
	}
	if _, err := col.InsertOne(ctx, review); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("tour already reviewed by this user: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert review into database: %w", err)
	}
	return review, nil
}

func (mdb *MongodbRepo) GetReviewByID(ctx context.Context, id primitive.ObjectID) (*Review, error) {
	col, err := mdb.collection(ctx, ReviewColName)
	if err != nil {
		return nil, err
	}
	var review Review
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&review); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("review: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("error finding review: %w", err)
	}
	return &review, nil
}

func (mdb *MongodbRepo) ListReviewsByTour(ctx context.Context, tourID primitive.ObjectID, offset, limit int) ([]*Review, int64, error) {
	col, err := mdb.collection(ctx, ReviewColName)
	if err != nil {
		return nil, 0, err
	}
	filter := bson.M{"tour": tourID}
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting reviews: %w", err)
	}
	cursor, err := col.Find(ctx, filter, paginate(offset, limit).SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, 0, fmt.Errorf("error finding reviews: %w", err)
	}
	reviews := make([]*Review, 0)
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, 0, fmt.Errorf("error decoding reviews: %w", err)
	}
	return reviews, total, nil
}

func (mdb *MongodbRepo) UpdateReview(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*Review, error) {
	col, err := mdb.collection(ctx, ReviewColName)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range updates {
		set[k] = v
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var review Review
	if err := col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&review); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("review: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("error updating review: %w", err)
	}
	return &review, nil
}

func (mdb *MongodbRepo) DeleteReview(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.collection(ctx, ReviewColName)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("error deleting review: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("review: %w", ErrNotFound)
	}
	return nil
}

func (mdb *MongodbRepo) SummarizeRatings(ctx context.Context, tourID primitive.ObjectID) (*RatingSummary, error) {
	col, err := mdb.collection(ctx, ReviewColName)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"tour": tourID}}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$tour",
			"nRating":   bson.M{"$sum": 1},
			"avgRating": bson.M{"$avg": "$rating"},
		}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating ratings: %w", err)
	}
	var out []RatingSummary
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding ratings: %w", err)
	}
	if len(out) == 0 {
		return &RatingSummary{Average: DefaultRatingsAverage, Quantity: 0}, nil
	}
	return &out[0], nil
}
