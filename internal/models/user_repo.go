package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (mdb *MongodbRepo) CreateUser(ctx context.Context, user *User) (*User, error) {
	if err := user.BeforeCreate(); err != nil {
		return nil, fmt.Errorf("failed to prepare user for creation: %w", err)
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	col, err := mdb.collection(ctx, UserColName)
	if err != nil {
		return nil, err
	}
	if _, err := col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("email already in use: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (mdb *MongodbRepo) findUser(ctx context.Context, filter bson.M) (*User, error) {
	col, err := mdb.collection(ctx, UserColName)
	if err != nil {
		return nil, err
	}
	var user User
	if err := col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (mdb *MongodbRepo) GetUserByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	return mdb.findUser(ctx, bson.M{"_id": id})
}

func (mdb *MongodbRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return mdb.findUser(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (mdb *MongodbRepo) ListUsers(ctx context.Context, offset, limit int) ([]*User, int64, error) {
	col, err := mdb.collection(ctx, UserColName)
	if err != nil {
		return nil, 0, err
	}
	filter := bson.M{"active": true}
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting users: %w", err)
	}
	cursor, err := col.Find(ctx, filter, paginate(offset, limit).SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, 0, fmt.Errorf("error finding users: %w", err)
	}
	users := make([]*User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("error decoding users: %w", err)
	}
	return users, total, nil
}

func (mdb *MongodbRepo) UpdateUser(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*User, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", ErrBadRequest)
	}
	col, err := mdb.collection(ctx, UserColName)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range updates {
		set[k] = v
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user User
	err = col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("email already in use: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

func (mdb *MongodbRepo) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.collection(ctx, UserColName)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("user: %w", ErrNotFound)
	}
	return nil
}

func (mdb *MongodbRepo) RecordFailedLogin(ctx context.Context, id primitive.ObjectID, now time.Time) (*User, error) {
	col, err := mdb.collection(ctx, UserColName)
	if err != nil {
		return nil, err
	}
	attempts := bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$failedAttempts", 0}}, 1}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"failedAttempts": attempts}}},
		{{Key: "$set", Value: bson.M{
			"lockUntil": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$failedAttempts", MaxLoginAttempts}},
				now.Add(LoginLockTime),
				"$lockUntil",
			}},
			"failedAttempts": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$failedAttempts", MaxLoginAttempts}},
				0,
				"$failedAttempts",
			}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user User
	if err := col.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}
	return &user, nil
}

func (mdb *MongodbRepo) ResetLoginAttempts(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.collection(ctx, UserColName)
	if err != nil {
		return err
	}
	_, err = col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"failedAttempts": 0},
		"$unset": bson.M{"lockUntil": ""},
	})
	if err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) SetOnline(ctx context.Context, id primitive.ObjectID, online bool, at time.Time) error {
	col, err := mdb.collection(ctx, UserColName)
	if err != nil {
		return err
	}
	_, err = col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"online": online, "lastSeen": at}})
	if err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}
