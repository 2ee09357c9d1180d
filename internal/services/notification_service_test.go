package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/joshua-takyi/tourbook/internal/events"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (m *memStore) seedUser(name string) *models.User {
	u, err := m.CreateUser(context.Background(), &models.User{
		Name:  name,
		Email: fmt.Sprintf("%s-%s@example.com", name, primitive.NewObjectID().Hex()[18:]),
	})
	if err != nil {
		panic(err)
	}
	return u
}

func TestNotify_StoresAndPushes(t *testing.T) {
	store := newMemStore()
	user := store.seedUser("online")
	pusher := newRecordingPusher(user.ID.Hex())
	ns := NewNotificationService(store, store, pusher, nil)
	ctx := context.Background()

	require.NoError(t, ns.Notify(ctx, user.ID, "Hello", "Welcome aboard", models.NotificationSystem))
	assert.Equal(t, []string{realtime.EventNotification}, pusher.events(user.ID.Hex()))

	list, total, err := ns.List(ctx, user.ID, true, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Hello", list[0].Title)

	err = ns.Notify(ctx, user.ID, "Bad", "type", "spam")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestNotificationCreate(t *testing.T) {
	store := newMemStore()
	user := store.seedUser("offline")
	ns := NewNotificationService(store, store, newRecordingPusher(), nil)
	ctx := context.Background()

	n, err := ns.Create(ctx, NotificationRequest{UserID: user.ID.Hex(), Title: " Tour moved ", Content: "New date"})
	require.NoError(t, err)
	assert.Equal(t, "Tour moved", n.Title)
	assert.Equal(t, models.NotificationSystem, n.Type)

	_, err = ns.Create(ctx, NotificationRequest{UserID: primitive.NewObjectID().Hex(), Title: "x", Content: "y"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = ns.Create(ctx, NotificationRequest{UserID: "nope", Title: "x", Content: "y"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestBroadcast_AllActiveUsers(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	var online []string
	for i := 0; i < broadcastBatch+MaxPageSize/2; i++ {
		u := store.seedUser(fmt.Sprintf("user%d", i))
		if i%50 == 0 {
			online = append(online, u.ID.Hex())
		}
	}
	inactive := store.seedUser("inactive")
	_, err := store.UpdateUser(ctx, inactive.ID, map[string]interface{}{"active": false})
	require.NoError(t, err)

	pusher := newRecordingPusher(online...)
	ns := NewNotificationService(store, store, pusher, nil)

	sent, err := ns.Broadcast(ctx, BroadcastRequest{Title: "Sale", Content: "Everything half price"})
	require.NoError(t, err)
	assert.Equal(t, broadcastBatch+MaxPageSize/2, sent)
	for _, id := range online {
		assert.Equal(t, []string{realtime.EventNotification}, pusher.events(id))
	}
	_, total, err := ns.List(ctx, inactive.ID, false, Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestBroadcast_ListedUsers(t *testing.T) {
	store := newMemStore()
	a, b := store.seedUser("a"), store.seedUser("b")
	store.seedUser("c")
	ns := NewNotificationService(store, store, nil, nil)

	sent, err := ns.Broadcast(context.Background(), BroadcastRequest{
		Title: "Heads up", Content: "Bring a jacket", Type: models.NotificationBooking,
		UserIDs: []string{a.ID.Hex(), b.ID.Hex()},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestNotifications_ReadAndDelete(t *testing.T) {
	store := newMemStore()
	user, other := store.seedUser("reader"), store.seedUser("other")
	ns := NewNotificationService(store, store, nil, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, ns.Notify(ctx, user.ID, "t", "c", models.NotificationSystem))
	}
	list, _, err := ns.List(ctx, user.ID, false, Page{})
	require.NoError(t, err)

	_, err = ns.MarkRead(ctx, list[0].ID, other.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "cannot read someone else's notification")
	read, err := ns.MarkRead(ctx, list[0].ID, user.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	n, err := ns.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, ns.Delete(ctx, list[0].ID, user.ID))
	n, err = ns.DeleteAll(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestHandleBookingPaid(t *testing.T) {
	store := newMemStore()
	user := store.seedUser("payer")
	ns := NewNotificationService(store, store, nil, nil)
	ctx := context.Background()

	ev := events.BookingPaidEvent{
		UserID: user.ID, OrderCode: "TB123", Amount: 300_000, AmountReceived: 250_000,
		Participants: 2, StartDate: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, ns.HandleBookingPaid(ctx, ev))

	list, _, err := ns.List(ctx, user.ID, false, Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Payment confirmed", list[0].Title)
	assert.Contains(t, list[0].Content, "TB123")
	assert.Contains(t, list[0].Content, "expected amount was 300000")
}
