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

func (mdb *MongodbRepo) CreateBooking(ctx context.Context, booking *Booking) (*Booking, error) {
	if err := booking.BeforeCreate(); err != nil {
		return nil, fmt.Errorf("failed to prepare booking for creation: %w", err)
	}
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return nil, err
	}
	if _, err := col.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("order code %s: %w", booking.OrderCode, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}
	return booking, nil
}

func (mdb *MongodbRepo) findBooking(ctx context.Context, filter bson.M) (*Booking, error) {
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return nil, err
	}
	var booking Booking
	if err := col.FindOne(ctx, filter).Decode(&booking); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("booking: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("error finding booking: %w", err)
	}
	return &booking, nil
}

func (mdb *MongodbRepo) GetBookingByID(ctx context.Context, id primitive.ObjectID) (*Booking, error) {
	return mdb.findBooking(ctx, bson.M{"_id": id})
}

func (mdb *MongodbRepo) GetBookingByOrderCode(ctx context.Context, orderCode string) (*Booking, error) {
	return mdb.findBooking(ctx, bson.M{"orderCode": orderCode})
}

func (mdb *MongodbRepo) ListBookings(ctx context.Context, f BookingFilter, offset, limit int) ([]*Booking, int64, error) {
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return nil, 0, err
	}
	filter := bson.M{}
	if !f.User.IsZero() {
		filter["user"] = f.User
	}
	if !f.Tour.IsZero() {
		filter["tour"] = f.Tour
	}
	if f.PaymentStatus != "" {
		filter["paymentStatus"] = f.PaymentStatus
	}

	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting bookings: %w", err)
	}
	opts := paginate(offset, limit).SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error finding bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := make([]*Booking, 0)
	for cursor.Next(ctx) {
		var b Booking
		if err := cursor.Decode(&b); err != nil {
			return nil, 0, fmt.Errorf("error decoding booking: %w", err)
		}
		bookings = append(bookings, &b)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("cursor error: %w", err)
	}
	return bookings, total, nil
}

func (mdb *MongodbRepo) MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time) (bool, error) {
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return false, err
	}
	filter := bson.M{"_id": id, "paymentStatus": PaymentUnpaid}
	update := bson.M{"$set": bson.M{
		"paymentStatus": PaymentPaid,
		"paymentTime":   paidAt,
		"updatedAt":     paidAt,
	}}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("error marking booking paid: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (mdb *MongodbRepo) UpdateBookingIf(ctx context.Context, id primitive.ObjectID, match, updates map[string]interface{}) (*Booking, error) {
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"_id": id}
	for k, v := range match {
		filter[k] = v
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range updates {
		set[k] = v
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking Booking
	err = col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&booking)
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("error updating booking: %w", err)
	}
	if _, err := mdb.GetBookingByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("booking %s changed concurrently: %w", id.Hex(), ErrConflict)
}

func (mdb *MongodbRepo) DeleteBookingIf(ctx context.Context, id primitive.ObjectID, statuses []string) error {
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": id, "paymentStatus": bson.M{"$in": statuses}})
	if err != nil {
		return fmt.Errorf("error deleting booking: %w", err)
	}
	if res.DeletedCount == 1 {
		return nil
	}
	if _, err := mdb.GetBookingByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("booking %s cannot be deleted in its current state: %w", id.Hex(), ErrConflict)
}

func (mdb *MongodbRepo) StatusRatio(ctx context.Context) ([]StatusCount, error) {
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$paymentStatus", "count": bson.M{"$sum": 1}}}},
		{{Key: "$project", Value: bson.M{"_id": 0, "status": "$_id", "count": 1}}},
		{{Key: "$sort", Value: bson.M{"status": 1}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating status ratio: %w", err)
	}
	var out []StatusCount
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding status ratio: %w", err)
	}
	return out, nil
}

// MonthlyRevenue only counts settled bookings, keyed by payment month.
func (mdb *MongodbRepo) MonthlyRevenue(ctx context.Context) ([]MonthlyRevenue, error) {
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"paymentStatus": PaymentPaid}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"year":  bson.M{"$year": "$paymentTime"},
				"month": bson.M{"$month": "$paymentTime"},
			},
			"totalRevenue": bson.M{"$sum": "$amount"},
			"totalBooking": bson.M{"$sum": 1},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":          0,
			"year":         "$_id.year",
			"month":        "$_id.month",
			"totalRevenue": 1,
			"totalBooking": 1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "year", Value: 1}, {Key: "month", Value: 1}}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating revenue: %w", err)
	}
	var out []MonthlyRevenue
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding revenue: %w", err)
	}
	return out, nil
}

func (mdb *MongodbRepo) TopBooked(ctx context.Context, limit int) ([]TopBookedTour, error) {
	col, err := mdb.collection(ctx, BookingColName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         TourColName,
			"localField":   "tour",
			"foreignField": "_id",
			"as":           "tour",
		}}},
		{{Key: "$unwind", Value: "$tour"}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$tour._id",
			"bookedCount": bson.M{"$sum": 1},
			"name":        bson.M{"$first": "$tour.name"},
			"price":       bson.M{"$first": "$tour.price"},
			"photo":       bson.M{"$first": "$tour.imageCover"},
			"revenue":     bson.M{"$sum": "$amount"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":         0,
			"tourId":      "$_id",
			"tourName":    "$name",
			"tourPrice":   "$price",
			"photo":       1,
			"bookedCount": 1,
			"revenue":     1,
		}}},
		{{Key: "$sort", Value: bson.M{"bookedCount": -1}}},
		{{Key: "$limit", Value: limit}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating top booked tours: %w", err)
	}
	var out []TopBookedTour
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding top booked tours: %w", err)
	}
	return out, nil
}
