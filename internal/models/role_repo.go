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

func (mdb *MongodbRepo) CreateRole(ctx context.Context, role *Role) (*Role, error) {
	if err := role.BeforeCreate(); err != nil {
		return nil, err
	}
	col, err := mdb.collection(ctx, RoleColName)
	if err != nil {
		return nil, err
	}
	if _, err := col.InsertOne(ctx, role); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("role %q already exists: %w", role.Name, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert role: %w", err)
	}
	return role, nil
}

func (mdb *MongodbRepo) findRole(ctx context.Context, filter bson.M) (*Role, error) {
	col, err := mdb.collection(ctx, RoleColName)
	if err != nil {
		return nil, err
	}
	var role Role
	if err := col.FindOne(ctx, filter).Decode(&role); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("role: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("error finding role: %w", err)
	}
	return &role, nil
}

func (mdb *MongodbRepo) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return mdb.findRole(ctx, bson.M{"name": name})
}

func (mdb *MongodbRepo) GetRoleByID(ctx context.Context, id primitive.ObjectID) (*Role, error) {
	return mdb.findRole(ctx, bson.M{"_id": id})
}

func (mdb *MongodbRepo) ListRoles(ctx context.Context) ([]*Role, error) {
	col, err := mdb.collection(ctx, RoleColName)
	if err != nil {
		return nil, err
	}
	cursor, err := col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error finding roles: %w", err)
	}
	roles := make([]*Role, 0)
	if err := cursor.All(ctx, &roles); err != nil {
		return nil, fmt.Errorf("error decoding roles: %w", err)
	}
	return roles, nil
}

func (mdb *MongodbRepo) DeleteRole(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.collection(ctx, RoleColName)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("error deleting role: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("role: %w", ErrNotFound)
	}
	return nil
}

func (mdb *MongodbRepo) updateRolePermissions(ctx context.Context, id primitive.ObjectID, op string, perm Permission) (*Role, error) {
	col, err := mdb.collection(ctx, RoleColName)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		op:     bson.M{"permissions": perm},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var role Role
	if err := col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&role); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("role: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("error updating role permissions: %w", err)
	}
	return &role, nil
}

func (mdb *MongodbRepo) AddPermission(ctx context.Context, id primitive.ObjectID, perm Permission) (*Role, error) {
	return mdb.updateRolePermissions(ctx, id, "$addToSet", perm)
}

func (mdb *MongodbRepo) RemovePermission(ctx context.Context, id primitive.ObjectID, perm Permission) (*Role, error) {
	return mdb.updateRolePermissions(ctx, id, "$pull", perm)
}

func (mdb *MongodbRepo) SeedRole(ctx context.Context, role *Role) error {
	if err := role.BeforeCreate(); err != nil {
		return err
	}
	col, err := mdb.collection(ctx, RoleColName)
	if err != nil {
		return err
	}
	_, err = col.UpdateOne(ctx,
		bson.M{"name": role.Name},
		bson.M{"$setOnInsert": role},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to seed role %s: %w", role.Name, err)
	}
	return nil
}
