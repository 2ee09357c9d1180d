package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joshua-takyi/tourbook/internal/events"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/realtime"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pusher delivers an event to every open connection of a user and reports
// how many received it.
type Pusher interface {
	SendToUser(userID string, msg realtime.Outbound) int
}

type NotificationRequest struct {
	UserID  string `json:"user" validate:"required"`
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required,max=2000"`
	Type    string `json:"type" validate:"omitempty,oneof=booking refund message system"`
}

type BroadcastRequest struct {
	Title   string   `json:"title" validate:"required,max=200"`
	Content string   `json:"content" validate:"required,max=2000"`
	Type    string   `json:"type" validate:"omitempty,oneof=booking refund message system"`
	UserIDs []string `json:"users"`
}

const broadcastBatch = 100

type NotificationService struct {
	notifications models.NotificationRepo
	users         models.UserRepo
	pusher        Pusher
	logger        *slog.Logger
}

func NewNotificationService(notifications models.NotificationRepo, users models.UserRepo, pusher Pusher, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		notifications: notifications,
		users:         users,
		pusher:        pusher,
		logger:        logger,
	}
}

// Notify stores a notification and pushes it to the user when online.
func (ns *NotificationService) Notify(ctx context.Context, userID primitive.ObjectID, title, content, kind string) error {
	n := &models.Notification{User: userID, Title: title, Content: content, Type: kind}
	if err := models.Validate.Struct(n); err != nil {
		return validationError(err)
	}
	if err := ns.notifications.CreateNotifications(ctx, []*models.Notification{n}); err != nil {
		return err
	}
	ns.push(n)
	return nil
}

func (ns *NotificationService) Create(ctx context.Context, req NotificationRequest) (*models.Notification, error) {
	if req.Type == "" {
		req.Type = models.NotificationSystem
	}
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	userID, err := ParseID("user", req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := ns.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	n := &models.Notification{
		User:    userID,
		Title:   strings.TrimSpace(req.Title),
		Content: strings.TrimSpace(req.Content),
		Type:    req.Type,
	}
	if err := ns.notifications.CreateNotifications(ctx, []*models.Notification{n}); err != nil {
		return nil, err
	}
	ns.push(n)
	return n, nil
}

// Broadcast notifies the listed users, or every user when none are listed.
func (ns *NotificationService) Broadcast(ctx context.Context, req BroadcastRequest) (int, error) {
	if req.Type == "" {
		req.Type = models.NotificationSystem
	}
	if err := models.Validate.Struct(req); err != nil {
		return 0, validationError(err)
	}
	recipients, err := ns.recipients(ctx, req.UserIDs)
	if err != nil {
		return 0, err
	}

	sent := 0
	for start := 0; start < len(recipients); start += broadcastBatch {
		end := min(start+broadcastBatch, len(recipients))
		batch := make([]*models.Notification, 0, end-start)
		for _, id := range recipients[start:end] {
			batch = append(batch, &models.Notification{
				User:    id,
				Title:   strings.TrimSpace(req.Title),
				Content: strings.TrimSpace(req.Content),
				Type:    req.Type,
			})
		}
		if err := ns.notifications.CreateNotifications(ctx, batch); err != nil {
			return sent, err
		}
		for _, n := range batch {
			ns.push(n)
		}
		sent += len(batch)
	}
	ns.logger.Info("Notification broadcast", "recipients", sent, "type", req.Type)
	return sent, nil
}

func (ns *NotificationService) recipients(ctx context.Context, raw []string) ([]primitive.ObjectID, error) {
	if len(raw) > 0 {
		ids := make([]primitive.ObjectID, 0, len(raw))
		for _, s := range raw {
			id, err := ParseID("user", s)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	var ids []primitive.ObjectID
	for offset := 0; ; offset += MaxPageSize {
		users, total, err := ns.users.ListUsers(ctx, offset, MaxPageSize)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if u.Active {
				ids = append(ids, u.ID)
			}
		}
		if len(users) == 0 || int64(offset+len(users)) >= total {
			return ids, nil
		}
	}
}

func (ns *NotificationService) push(n *models.Notification) {
	if ns.pusher == nil {
		return
	}
	ns.pusher.SendToUser(n.User.Hex(), realtime.Outbound{Event: realtime.EventNotification, Data: n})
}

func (ns *NotificationService) List(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, page Page) ([]*models.Notification, int64, error) {
	page = page.Normalize()
	return ns.notifications.ListNotifications(ctx, userID, unreadOnly, page.Offset(), page.Limit)
}

func (ns *NotificationService) MarkRead(ctx context.Context, id, userID primitive.ObjectID) (*models.Notification, error) {
	return ns.notifications.MarkNotificationRead(ctx, id, userID)
}

func (ns *NotificationService) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return ns.notifications.MarkAllNotificationsRead(ctx, userID)
}

func (ns *NotificationService) Delete(ctx context.Context, id, userID primitive.ObjectID) error {
	return ns.notifications.DeleteNotification(ctx, id, userID)
}

func (ns *NotificationService) DeleteAll(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return ns.notifications.DeleteAllNotifications(ctx, userID)
}

// HandleBookingPaid tells the booking owner their payment went through.
func (ns *NotificationService) HandleBookingPaid(ctx context.Context, ev events.BookingPaidEvent) error {
	content := fmt.Sprintf("We received %d for booking %s (%d participants, departing %s).",
		ev.AmountReceived, ev.OrderCode, ev.Participants, ev.StartDate.Format("2006-01-02"))
	if ev.AmountMismatch() {
		content += fmt.Sprintf(" The expected amount was %d; our team will contact you.", ev.Amount)
	}
	return ns.Notify(ctx, ev.UserID, "Payment confirmed", content, models.NotificationBooking)
}

var _ Notifier = (*NotificationService)(nil)
