package models

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Transaction is the write-once audit record of an inbound gateway
// notification. Only Note may be set after insert. OrderCode and
// TransactionContent hold what the gateway sent; MatchedOrderCode is the
// DH token extracted from them, if any. RawTransactionDate keeps the
// gateway's date string when it could not be parsed.
type Transaction struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Gateway            string             `bson:"gateway" json:"gateway"`
	ExternalID         string             `bson:"externalId,omitempty" json:"externalId,omitempty"`
	TransactionDate    time.Time          `bson:"transactionDate" json:"transactionDate"`
	RawTransactionDate string             `bson:"rawTransactionDate,omitempty" json:"rawTransactionDate,omitempty"`
	AccountNumber      string             `bson:"accountNumber,omitempty" json:"accountNumber,omitempty"`
	AmountIn           int64              `bson:"amountIn" json:"amountIn"`
	AmountOut          int64              `bson:"amountOut" json:"amountOut"`
	Accumulated        int64              `bson:"accumulated" json:"accumulated"`
	OrderCode          string             `bson:"orderCode,omitempty" json:"orderCode,omitempty"`
	MatchedOrderCode   string             `bson:"matchedOrderCode,omitempty" json:"matchedOrderCode,omitempty"`
	TransactionContent string             `bson:"transactionContent,omitempty" json:"transactionContent,omitempty"`
	ReferenceCode      string             `bson:"referenceCode,omitempty" json:"referenceCode,omitempty"`
	Note               string             `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
}

func (t *Transaction) BeforeCreate() error {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	t.CreatedAt = time.Now().UTC()
	return nil
}

type TransactionRepo interface {
	CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error)
	AppendTransactionNote(ctx context.Context, id primitive.ObjectID, note string) error
	ListTransactions(ctx context.Context, offset, limit int) ([]*Transaction, int64, error)
}

func (mdb *MongodbRepo) CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if err := tx.BeforeCreate(); err != nil {
		return nil, fmt.Errorf("failed to prepare transaction: %w", err)
	}
	col, err := mdb.collection(ctx, TransactionColName)
	if err != nil {
		return nil, err
	}
	if _, err := col.InsertOne(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return tx, nil
}

func (mdb *MongodbRepo) AppendTransactionNote(ctx context.Context, id primitive.ObjectID, note string) error {
	col, err := mdb.collection(ctx, TransactionColName)
	if err != nil {
		return err
	}
	// $concat over a missing field yields null, so seed it with $ifNull.
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"note": bson.M{"$cond": bson.A{
			bson.M{"$gt": bson.A{bson.M{"$strLenCP": bson.M{"$ifNull": bson.A{"$note", ""}}}, 0}},
			bson.M{"$concat": bson.A{"$note", "; ", note}},
			note,
		}}}}},
	}
	res, err := col.UpdateOne(ctx, bson.M{"_id": id}, pipeline)
	if err != nil {
		return fmt.Errorf("error annotating transaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("transaction %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

func (mdb *MongodbRepo) ListTransactions(ctx context.Context, offset, limit int) ([]*Transaction, int64, error) {
	col, err := mdb.collection(ctx, TransactionColName)
	if err != nil {
		return nil, 0, err
	}
	total, err := col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("error counting transactions: %w", err)
	}
	opts := paginate(offset, limit).SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error finding transactions: %w", err)
	}
	txs := make([]*Transaction, 0)
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, 0, fmt.Errorf("error decoding transactions: %w", err)
	}
	return txs, total, nil
}
