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

type LastMessage struct {
	Text      string             `bson:"text" json:"text"`
	Sender    primitive.ObjectID `bson:"sender" json:"sender"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// Conversation is a two-party thread. Key is the sorted pair of participant
// ids and is unique.
type Conversation struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Key          string               `bson:"key" json:"-"`
	Participants []primitive.ObjectID `bson:"participants" json:"participants"`
	LastMessage  *LastMessage         `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	UnreadCount  map[string]int       `bson:"unreadCount,omitempty" json:"unreadCount,omitempty"`
	CreatedAt    time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt" json:"updatedAt"`
}

type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversationId" json:"conversationId"`
	Sender         primitive.ObjectID `bson:"sender" json:"sender"`
	Recipient      primitive.ObjectID `bson:"recipient" json:"recipient"`
	Text           string             `bson:"text" json:"text" validate:"required,max=4000"`
	IsSeen         bool               `bson:"isSeen" json:"isSeen"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}

func (m *Message) BeforeCreate() error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	m.CreatedAt = time.Now().UTC()
	return nil
}

// ConversationKey orders the pair so either side resolves the same thread.
func ConversationKey(a, b primitive.ObjectID) (string, []primitive.ObjectID) {
	if a.Hex() > b.Hex() {
		a, b = b, a
	}
	return a.Hex() + ":" + b.Hex(), []primitive.ObjectID{a, b}
}

type ChatRepo interface {
	FindOrCreateConversation(ctx context.Context, a, b primitive.ObjectID) (*Conversation, error)
	GetConversation(ctx context.Context, id primitive.ObjectID) (*Conversation, error)
	ListConversations(ctx context.Context, userID primitive.ObjectID) ([]*Conversation, error)
	// AppendMessage stores msg and bumps the thread's last message and the
	// recipient's unread counter.
	AppendMessage(ctx context.Context, msg *Message) (*Message, error)
	ListMessages(ctx context.Context, conversationID primitive.ObjectID, offset, limit int) ([]*Message, error)
	MarkSeen(ctx context.Context, conversationID, reader primitive.ObjectID) ([]primitive.ObjectID, error)
}

func (mdb *MongodbRepo) FindOrCreateConversation(ctx context.Context, a, b primitive.ObjectID) (*Conversation, error) {
	col, err := mdb.collection(ctx, ConversationColName)
	if err != nil {
		return nil, err
	}
	key, pair := ConversationKey(a, b)
	now := time.Now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"participants": pair,
		"unreadCount":  bson.M{},
		"createdAt":    now,
		"updatedAt":    now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv Conversation
	if err := col.FindOneAndUpdate(ctx, bson.M{"key": key}, update, opts).Decode(&conv); err != nil {
		return nil, fmt.Errorf("error upserting conversation: %w", err)
	}
	return &conv, nil
}

func (mdb *MongodbRepo) GetConversation(ctx context.Context, id primitive.ObjectID) (*Conversation, error) {
	col, err := mdb.collection(ctx, ConversationColName)
	if err != nil {
		return nil, err
	}
	var conv Conversation
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("conversation: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("error finding conversation: %w", err)
	}
	return &conv, nil
}

func (mdb *MongodbRepo) ListConversations(ctx context.Context, userID primitive.ObjectID) ([]*Conversation, error) {
	col, err := mdb.collection(ctx, ConversationColName)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := col.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding conversations: %w", err)
	}
	out := make([]*Conversation, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding conversations: %w", err)
	}
	return out, nil
}

func (mdb *MongodbRepo) AppendMessage(ctx context.Context, msg *Message) (*Message, error) {
	if err := msg.BeforeCreate(); err != nil {
		return nil, err
	}
	messages, err := mdb.collection(ctx, MessageColName)
	if err != nil {
		return nil, err
	}
	conversations, err := mdb.collection(ctx, ConversationColName)
	if err != nil {
		return nil, err
	}
	if _, err := messages.InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	_, err = conversations.UpdateOne(ctx, bson.M{"_id": msg.ConversationID}, bson.M{
		"$set": bson.M{
			"lastMessage": LastMessage{Text: msg.Text, Sender: msg.Sender, CreatedAt: msg.CreatedAt},
			"updatedAt":   msg.CreatedAt,
		},
		"$inc": bson.M{"unreadCount." + msg.Recipient.Hex(): 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return msg, nil
}

func (mdb *MongodbRepo) ListMessages(ctx context.Context, conversationID primitive.ObjectID, offset, limit int) ([]*Message, error) {
	col, err := mdb.collection(ctx, MessageColName)
	if err != nil {
		return nil, err
	}
	opts := paginate(offset, limit).SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := col.Find(ctx, bson.M{"conversationId": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding messages: %w", err)
	}
	out := make([]*Message, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding messages: %w", err)
	}
	return out, nil
}

func (mdb *MongodbRepo) MarkSeen(ctx context.Context, conversationID, reader primitive.ObjectID) ([]primitive.ObjectID, error) {
	messages, err := mdb.collection(ctx, MessageColName)
	if err != nil {
		return nil, err
	}
	conversations, err := mdb.collection(ctx, ConversationColName)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"conversationId": conversationID, "recipient": reader, "isSeen": false}
	cursor, err := messages.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("error finding unseen messages: %w", err)
	}
	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("error decoding unseen messages: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	if len(ids) > 0 {
		if _, err := messages.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{"isSeen": true}}); err != nil {
			return nil, fmt.Errorf("error marking messages seen: %w", err)
		}
	}
	_, err = conversations.UpdateOne(ctx, bson.M{"_id": conversationID}, bson.M{
		"$set": bson.M{"unreadCount." + reader.Hex(): 0},
	})
	if err != nil {
		return nil, fmt.Errorf("error resetting unread count: %w", err)
	}
	return ids, nil
}
