package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/realtime"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SendMessageRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Text      string `json:"text" validate:"required,max=4000"`
}

// Peer is the sending side of a realtime connection.
type Peer interface {
	UserID() string
	Send(msg realtime.Outbound) bool
}

type SeenReceipt struct {
	ConversationID primitive.ObjectID   `json:"conversationId"`
	MessageIDs     []primitive.ObjectID `json:"messageIds"`
	SeenBy         primitive.ObjectID   `json:"seenBy"`
}

type TypingSignal struct {
	From   string `json:"from"`
	Typing bool   `json:"typing"`
}

type ChatService struct {
	chats    models.ChatRepo
	users    models.UserRepo
	pusher   Pusher
	notifier Notifier
	logger   *slog.Logger
}

func NewChatService(chats models.ChatRepo, users models.UserRepo, pusher Pusher, notifier Notifier, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		chats:    chats,
		users:    users,
		pusher:   pusher,
		notifier: notifier,
		logger:   logger,
	}
}

// SendMessage stores a message, opening the conversation on first contact,
// and pushes it to both sides. A recipient with no open connection gets a
// notification instead.
func (cs *ChatService) SendMessage(ctx context.Context, sender primitive.ObjectID, req SendMessageRequest) (*models.Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	recipient, err := cs.peer(ctx, sender, req.Recipient)
	if err != nil {
		return nil, err
	}
	conv, err := cs.chats.FindOrCreateConversation(ctx, sender, recipient.ID)
	if err != nil {
		return nil, err
	}
	msg, err := cs.chats.AppendMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Sender:         sender,
		Recipient:      recipient.ID,
		Text:           req.Text,
	})
	if err != nil {
		return nil, err
	}

	delivered := cs.send(recipient.ID, realtime.Outbound{Event: realtime.EventNewMessage, Data: msg})
	cs.send(sender, realtime.Outbound{Event: realtime.EventMessageSent, Data: msg})
	if delivered == 0 && cs.notifier != nil {
		if err := cs.notifier.Notify(ctx, recipient.ID, "New message", preview(req.Text), models.NotificationMessage); err != nil {
			cs.logger.Warn("Failed to notify offline recipient", "recipient", recipient.ID.Hex(), "error", err)
		}
	}
	return msg, nil
}

func (cs *ChatService) peer(ctx context.Context, self primitive.ObjectID, raw string) (*models.User, error) {
	id, err := ParseID("user", raw)
	if err != nil {
		return nil, err
	}
	if id == self {
		return nil, fmt.Errorf("cannot message yourself: %w", models.ErrBadRequest)
	}
	user, err := cs.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("user is no longer active: %w", models.ErrNotFound)
	}
	return user, nil
}

func (cs *ChatService) ListConversations(ctx context.Context, userID primitive.ObjectID) ([]*models.Conversation, error) {
	return cs.chats.ListConversations(ctx, userID)
}

// ListMessages returns the thread between userID and other, oldest first.
func (cs *ChatService) ListMessages(ctx context.Context, userID primitive.ObjectID, other string, page Page) ([]*models.Message, error) {
	peer, err := cs.peer(ctx, userID, other)
	if err != nil {
		return nil, err
	}
	conv, err := cs.chats.FindOrCreateConversation(ctx, userID, peer.ID)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()
	return cs.chats.ListMessages(ctx, conv.ID, page.Offset(), page.Limit)
}

// MarkSeen marks every message other sent to reader as seen and tells the
// sender which ones.
func (cs *ChatService) MarkSeen(ctx context.Context, reader primitive.ObjectID, other string) (*SeenReceipt, error) {
	peer, err := cs.peer(ctx, reader, other)
	if err != nil {
		return nil, err
	}
	conv, err := cs.chats.FindOrCreateConversation(ctx, reader, peer.ID)
	if err != nil {
		return nil, err
	}
	ids, err := cs.chats.MarkSeen(ctx, conv.ID, reader)
	if err != nil {
		return nil, err
	}
	receipt := &SeenReceipt{ConversationID: conv.ID, MessageIDs: ids, SeenBy: reader}
	if len(ids) > 0 {
		cs.send(peer.ID, realtime.Outbound{Event: realtime.EventMessagesSeen, Data: receipt})
	}
	return receipt, nil
}

func (cs *ChatService) Typing(from primitive.ObjectID, to string, typing bool) error {
	id, err := ParseID("user", to)
	if err != nil {
		return err
	}
	cs.send(id, realtime.Outbound{Event: realtime.EventTyping, Data: TypingSignal{From: from.Hex(), Typing: typing}})
	return nil
}

func (cs *ChatService) send(userID primitive.ObjectID, msg realtime.Outbound) int {
	if cs.pusher == nil {
		return 0
	}
	return cs.pusher.SendToUser(userID.Hex(), msg)
}

type peerRef struct {
	Recipient string `json:"recipient"`
	Sender    string `json:"sender"`
}

// HandleEvent routes a websocket frame. Failures go back to the sending
// connection as an error event.
func (cs *ChatService) HandleEvent(ctx context.Context, p Peer, in realtime.Inbound) {
	self, err := ParseID("user", p.UserID())
	if err != nil {
		p.Send(realtime.Outbound{Event: realtime.EventError, Data: err.Error()})
		return
	}

	switch in.Event {
	case realtime.EventSendMessage:
		var req SendMessageRequest
		if err = json.Unmarshal(in.Data, &req); err == nil {
			_, err = cs.SendMessage(ctx, self, req)
		}
	case realtime.EventMarkSeen:
		var ref peerRef
		if err = json.Unmarshal(in.Data, &ref); err == nil {
			_, err = cs.MarkSeen(ctx, self, ref.Sender)
		}
	case realtime.EventStartTyping, realtime.EventStopTyping:
		var ref peerRef
		if err = json.Unmarshal(in.Data, &ref); err == nil {
			err = cs.Typing(self, ref.Recipient, in.Event == realtime.EventStartTyping)
		}
	default:
		err = fmt.Errorf("unknown event %q", in.Event)
	}
	if err != nil {
		cs.logger.Debug("Realtime event failed", "event", in.Event, "user_id", p.UserID(), "error", err)
		p.Send(realtime.Outbound{Event: realtime.EventError, Data: err.Error()})
	}
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= 80 {
		return text
	}
	return string(r[:80]) + "..."
}
