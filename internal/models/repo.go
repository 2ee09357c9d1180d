package models

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var Validate = validator.New()

const (
	DBName = "tourbook"

	BookingColName      = "bookings"
	TourColName         = "tours"
	TransactionColName  = "transactions"
	UserColName         = "users"
	RoleColName         = "roles"
	ReviewColName       = "reviews"
	FavouriteColName    = "favourites"
	NotificationColName = "notifications"
	ConversationColName = "conversations"
	MessageColName      = "messages"
)

// TxRunner runs fn so that every repository call made with the context it
// receives commits or aborts together.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type MongodbRepo struct {
	mongodbClient *mongo.Client
	dbName        string
	transactions  bool
}

func MongodbNewRepo(mongodbClient *mongo.Client, dbName string, transactions bool) *MongodbRepo {
	if dbName == "" {
		dbName = DBName
	}
	return &MongodbRepo{
		mongodbClient: mongodbClient,
		dbName:        dbName,
		transactions:  transactions,
	}
}

func (mdb *MongodbRepo) GetCollection(ctx context.Context, dbName, colName string) (*mongo.Collection, error) {
	if mdb.mongodbClient == nil {
		return nil, fmt.Errorf("mongodb client is not initialized")
	}
	return mdb.mongodbClient.Database(dbName).Collection(colName), nil
}

func (mdb *MongodbRepo) collection(ctx context.Context, colName string) (*mongo.Collection, error) {
	col, err := mdb.GetCollection(ctx, mdb.dbName, colName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection %s: %w", colName, err)
	}
	return col, nil
}

// WithTransaction wraps fn in a multi-document transaction. Standalone
// servers do not support transactions, so when they are disabled fn runs
// directly and relies on the conditional updates inside it.
func (mdb *MongodbRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !mdb.transactions {
		return fn(ctx)
	}
	if mdb.mongodbClient == nil {
		return fmt.Errorf("mongodb client is not initialized")
	}

	session, err := mdb.mongodbClient.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates the unique and lookup indexes every collection relies on.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		BookingColName: {
			{
				Keys:    bson.D{{Key: "orderCode", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("order_code_unique"),
			},
			{
				Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("user_created_idx"),
			},
			{
				Keys:    bson.D{{Key: "tour", Value: 1}, {Key: "paymentStatus", Value: 1}},
				Options: options.Index().SetName("tour_status_idx"),
			},
		},
		TourColName: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("tour_name_unique"),
			},
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetName("tour_slug_idx"),
			},
			{
				Keys:    bson.D{{Key: "price", Value: 1}, {Key: "ratingsAverage", Value: -1}},
				Options: options.Index().SetName("price_rating_idx"),
			},
			{
				Keys:    bson.D{{Key: "startLocation", Value: "2dsphere"}},
				Options: options.Index().SetName("start_location_geo"),
			},
		},
		TransactionColName: {
			{
				Keys:    bson.D{{Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("created_at_idx"),
			},
		},
		UserColName: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("email_unique"),
			},
		},
		RoleColName: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("role_name_unique"),
			},
		},
		ReviewColName: {
			{
				Keys:    bson.D{{Key: "tour", Value: 1}, {Key: "user", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("tour_user_unique"),
			},
		},
		FavouriteColName: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("user_id_unique"),
			},
		},
		NotificationColName: {
			{
				Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("user_created_idx"),
			},
		},
		ConversationColName: {
			{
				Keys:    bson.D{{Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("pair_key_unique"),
			},
		},
		MessageColName: {
			{
				Keys:    bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}},
				Options: options.Index().SetName("conversation_created_idx"),
			},
		},
	}

	for colName, idx := range indexes {
		col, err := mdb.collection(ctx, colName)
		if err != nil {
			return err
		}
		if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", colName, err)
		}
	}
	return nil
}

func paginate(offset, limit int) *options.FindOptions {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return options.Find().SetSkip(int64(offset)).SetLimit(int64(limit))
}

func findOneAndUpdateAfter() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}
