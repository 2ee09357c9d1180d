package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (mdb *MongodbRepo) CreateTour(ctx context.Context, tour *Tour) (*Tour, error) {
	if err := tour.BeforeCreate(); err != nil {
		return nil, fmt.Errorf("failed to prepare tour for creation: %w", err)
	}
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, err
	}
	if _, err := col.InsertOne(ctx, tour); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("tour %q already exists: %w", tour.Name, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert tour: %w", err)
	}
	return tour, nil
}

func (mdb *MongodbRepo) GetTourByID(ctx context.Context, id primitive.ObjectID) (*Tour, error) {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, err
	}
	var tour Tour
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&tour); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("tour %s: %w", id.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("error finding tour: %w", err)
	}
	return &tour, nil
}

func tourQuery(f TourFilter) bson.M {
	filter := bson.M{}
	if !f.IncludeSecret {
		filter["secretTour"] = bson.M{"$ne": true}
	}
	if f.Search != "" {
		filter["name"] = bson.M{"$regex": regexp.QuoteMeta(f.Search), "$options": "i"}
	}
	if f.Difficulty != "" {
		filter["difficulty"] = f.Difficulty
	}
	if f.MaxPrice > 0 {
		filter["price"] = bson.M{"$lte": f.MaxPrice}
	}
	return filter
}

func tourSort(sort string) bson.D {
	switch sort {
	case "price":
		return bson.D{{Key: "price", Value: 1}}
	case "-price":
		return bson.D{{Key: "price", Value: -1}}
	case "-ratingsAverage,price":
		return bson.D{{Key: "ratingsAverage", Value: -1}, {Key: "price", Value: 1}}
	case "-ratingsAverage":
		return bson.D{{Key: "ratingsAverage", Value: -1}}
	case "duration":
		return bson.D{{Key: "duration", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}}
	}
}

func (mdb *MongodbRepo) ListTours(ctx context.Context, f TourFilter, offset, limit int) ([]*Tour, int64, error) {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, 0, err
	}
	filter := tourQuery(f)

	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting tours: %w", err)
	}

	cursor, err := col.Find(ctx, filter, paginate(offset, limit).SetSort(tourSort(f.Sort)))
	if err != nil {
		return nil, 0, fmt.Errorf("error finding tours: %w", err)
	}
	defer cursor.Close(ctx)

	tours := make([]*Tour, 0)
	for cursor.Next(ctx) {
		var t Tour
		if err := cursor.Decode(&t); err != nil {
			return nil, 0, fmt.Errorf("error decoding tour: %w", err)
		}
		tours = append(tours, &t)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("cursor error: %w", err)
	}
	return tours, total, nil
}

func (mdb *MongodbRepo) UpdateTour(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*Tour, error) {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range updates {
		set[k] = v
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var tour Tour
	err = col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&tour)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("tour %s: %w", id.Hex(), ErrNotFound)
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("tour name already taken: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("error updating tour: %w", err)
	}
	return &tour, nil
}

func (mdb *MongodbRepo) DeleteTour(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("error deleting tour: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("tour %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// AdjustStartDate runs a pipeline update so the counter and the sold-out
// flag are computed from the stored document, never from a stale read.
// Decrements only match when enough participants remain.
func (mdb *MongodbRepo) AdjustStartDate(ctx context.Context, tourID primitive.ObjectID, day time.Time, delta int) (*StartDate, error) {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, err
	}
	from := DayStart(day)
	to := from.Add(24 * time.Hour)

	elem := bson.M{"date": bson.M{"$gte": from, "$lt": to}}
	if delta < 0 {
		elem["participants"] = bson.M{"$gte": -delta}
	}
	filter := bson.M{"_id": tourID, "startDates": bson.M{"$elemMatch": elem}}

	onDay := bson.M{"$and": bson.A{
		bson.M{"$gte": bson.A{"$$sd.date", from}},
		bson.M{"$lt": bson.A{"$$sd.date", to}},
	}}
	newCount := bson.M{"$add": bson.A{"$$sd.participants", delta}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"startDates": bson.M{"$map": bson.M{
				"input": "$startDates",
				"as":    "sd",
				"in": bson.M{"$cond": bson.A{
					onDay,
					bson.M{"$mergeObjects": bson.A{"$$sd", bson.M{
						"participants": newCount,
						"soldOut":      bson.M{"$gte": bson.A{newCount, "$maxGroupSize"}},
					}}},
					"$$sd",
				}},
			}},
			"updatedAt": "$$NOW",
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var tour Tour
	err = col.FindOneAndUpdate(ctx, filter, pipeline, opts).Decode(&tour)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("error adjusting start date: %w", err)
		}
		return nil, mdb.explainMissedAdjustment(ctx, col, tourID, from, to, delta)
	}

	i := tour.FindStartDate(from)
	if i < 0 {
		return nil, fmt.Errorf("start date %s vanished from tour %s: %w", from.Format("2006-01-02"), tourID.Hex(), ErrFatal)
	}
	sd := tour.StartDates[i]
	return &sd, nil
}

func (mdb *MongodbRepo) explainMissedAdjustment(ctx context.Context, col *mongo.Collection, tourID primitive.ObjectID, from, to time.Time, delta int) error {
	filter := bson.M{"_id": tourID, "startDates": bson.M{"$elemMatch": bson.M{"date": bson.M{"$gte": from, "$lt": to}}}}
	n, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return fmt.Errorf("error checking start date: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tour %s has no departure on %s: %w", tourID.Hex(), from.Format("2006-01-02"), ErrNotFound)
	}
	return fmt.Errorf("cannot release %d seats on %s: %w", -delta, from.Format("2006-01-02"), ErrCapacityUnderflow)
}

func (mdb *MongodbRepo) UpdateRatings(ctx context.Context, tourID primitive.ObjectID, average float64, quantity int) error {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return err
	}
	_, err = col.UpdateOne(ctx, bson.M{"_id": tourID}, bson.M{"$set": bson.M{
		"ratingsAverage":  math.Round(average*10) / 10,
		"ratingsQuantity": quantity,
	}})
	if err != nil {
		return fmt.Errorf("error updating tour ratings: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) TourStats(ctx context.Context) ([]TourStat, error) {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"ratingsAverage": bson.M{"$gte": 4.5}}}},
		{{Key: "$group", Value: bson.M{
			"_id":        bson.M{"$toUpper": "$difficulty"},
			"numTours":   bson.M{"$sum": 1},
			"numRatings": bson.M{"$sum": "$ratingsQuantity"},
			"avgRating":  bson.M{"$avg": "$ratingsAverage"},
			"avgPrice":   bson.M{"$avg": "$price"},
			"minPrice":   bson.M{"$min": "$price"},
			"maxPrice":   bson.M{"$max": "$price"},
		}}},
		{{Key: "$sort", Value: bson.M{"avgPrice": 1}}},
		{{Key: "$addFields", Value: bson.M{"difficulty": "$_id"}}},
		{{Key: "$project", Value: bson.M{"_id": 0}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating tour stats: %w", err)
	}
	var stats []TourStat
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("error decoding tour stats: %w", err)
	}
	for i := range stats {
		stats[i].AvgRating = math.Round(stats[i].AvgRating*10) / 10
		stats[i].AvgPrice = math.Round(stats[i].AvgPrice*10) / 10
	}
	return stats, nil
}

func (mdb *MongodbRepo) MonthlyPlan(ctx context.Context, year int) ([]MonthlyPlan, error) {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, err
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$startDates"}},
		{{Key: "$match", Value: bson.M{"startDates.date": bson.M{"$gte": from, "$lt": to}}}},
		{{Key: "$group", Value: bson.M{
			"_id":           bson.M{"$month": "$startDates.date"},
			"numTourStarts": bson.M{"$sum": 1},
			"tours": bson.M{"$push": bson.M{
				"name":      "$name",
				"price":     "$price",
				"startDate": "$startDates.date",
			}},
		}}},
		{{Key: "$addFields", Value: bson.M{"month": "$_id"}}},
		{{Key: "$sort", Value: bson.M{"month": 1}}},
		{{Key: "$project", Value: bson.M{"_id": 0}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating monthly plan: %w", err)
	}
	var plan []MonthlyPlan
	if err := cursor.All(ctx, &plan); err != nil {
		return nil, fmt.Errorf("error decoding monthly plan: %w", err)
	}
	return plan, nil
}

// ToursWithin expects radius in radians.
func (mdb *MongodbRepo) ToursWithin(ctx context.Context, lng, lat, radius float64) ([]*Tour, error) {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"startLocation": bson.M{"$geoWithin": bson.M{
		"$centerSphere": bson.A{bson.A{lng, lat}, radius},
	}}}
	cursor, err := col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error finding tours within radius: %w", err)
	}
	tours := make([]*Tour, 0)
	if err := cursor.All(ctx, &tours); err != nil {
		return nil, fmt.Errorf("error decoding tours: %w", err)
	}
	return tours, nil
}

func (mdb *MongodbRepo) Distances(ctx context.Context, lng, lat, multiplier float64) ([]TourDistance, error) {
	col, err := mdb.collection(ctx, TourColName)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.M{
			"near":               bson.M{"type": "Point", "coordinates": bson.A{lng, lat}},
			"distanceField":      "distance",
			"distanceMultiplier": multiplier,
		}}},
		{{Key: "$sort", Value: bson.M{"distance": 1}}},
		{{Key: "$project", Value: bson.M{"name": 1, "distance": 1}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating distances: %w", err)
	}
	var out []TourDistance
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding distances: %w", err)
	}
	return out, nil
}
