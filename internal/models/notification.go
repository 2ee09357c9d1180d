package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	NotificationBooking = "booking"
	NotificationRefund  = "refund"
	NotificationMessage = "message"
	NotificationSystem  = "system"
)

type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	User      primitive.ObjectID `bson:"user" json:"user"`
	Title     string             `bson:"title" json:"title" validate:"required,max=200"`
	Content   string             `bson:"content" json:"content" validate:"required,max=2000"`
	Type      string             `bson:"type" json:"type" validate:"required,oneof=booking refund message system"`
	IsRead    bool               `bson:"isRead" json:"isRead"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (n *Notification) BeforeCreate() error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	return nil
}

type NotificationRepo interface {
	CreateNotifications(ctx context.Context, notifications []*Notification) error
	ListNotifications(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, offset, limit int) ([]*Notification, int64, error)
	MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID) (*Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
	DeleteNotification(ctx context.Context, id, userID primitive.ObjectID) error
	DeleteAllNotifications(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

func (mdb *MongodbRepo) CreateNotifications(ctx context.Context, notifications []*Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	col, err := mdb.collection(ctx, NotificationColName)
	if err != nil {
		return err
	}
	docs := make([]interface{}, 0, len(notifications))
	for _, n := range notifications {
		if err := n.BeforeCreate(); err != nil {
			return err
		}
		docs = append(docs, n)
	}
	if _, err := col.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) ListNotifications(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, offset, limit int) ([]*Notification, int64, error) {
	col, err := mdb.collection(ctx, NotificationColName)
	if err != nil {
		return nil, 0, err
	}
	filter := bson.M{"user": userID}
	if unreadOnly {
		filter["isRead"] = false
	}
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting notifications: %w", err)
	}
	cursor, err := col.Find(ctx, filter, paginate(offset, limit).SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, 0, fmt.Errorf("error finding notifications: %w", err)
	}
	out := make([]*Notification, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("error decoding notifications: %w", err)
	}
	return out, total, nil
}

func (mdb *MongodbRepo) MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID) (*Notification, error) {
	col, err := mdb.collection(ctx, NotificationColName)
	if err != nil {
		return nil, err
	}
	var n Notification
	err = col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "user": userID},
		bson.M{"$set": bson.M{"isRead": true, "updatedAt": time.Now().UTC()}},
		findOneAndUpdateAfter(),
	).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("notification: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("error marking notification read: %w", err)
	}
	return &n, nil
}

func (mdb *MongodbRepo) MarkAllNotificationsRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	col, err := mdb.collection(ctx, NotificationColName)
	if err != nil {
		return 0, err
	}
	res, err := col.UpdateMany(ctx,
		bson.M{"user": userID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("error marking notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (mdb *MongodbRepo) DeleteNotification(ctx context.Context, id, userID primitive.ObjectID) error {
	col, err := mdb.collection(ctx, NotificationColName)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": id, "user": userID})
	if err != nil {
		return fmt.Errorf("error deleting notification: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("notification: %w", ErrNotFound)
	}
	return nil
}

func (mdb *MongodbRepo) DeleteAllNotifications(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	col, err := mdb.collection(ctx, NotificationColName)
	if err != nil {
		return 0, err
	}
	res, err := col.DeleteMany(ctx, bson.M{"user": userID})
	if err != nil {
		return 0, fmt.Errorf("error deleting notifications: %w", err)
	}
	return res.DeletedCount, nil
}
