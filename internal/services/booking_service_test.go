package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/joshua-takyi/tourbook/internal/config"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type notifierSpy struct {
	mu    sync.Mutex
	calls []string
}

func (n *notifierSpy) Notify(_ context.Context, _ primitive.ObjectID, title, _, kind string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, kind+":"+title)
	return nil
}

func newBookingService(t *testing.T, store *memStore, gw payment.Gateway, notifier Notifier) *BookingService {
	t.Helper()
	coder, err := helpers.NewOrderCoder(1)
	require.NoError(t, err)
	return NewBookingService(BookingDeps{
		Bookings:     store,
		Tours:        store,
		Transactions: store,
		Gateways:     payment.NewRegistry(gw),
		Coder:        coder,
		Notifier:     notifier,
	})
}

func TestCreateCheckout(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)
	user := primitive.NewObjectID()

	out, err := bs.CreateCheckout(context.Background(), user, CheckoutRequest{
		TourID:       tour.ID.Hex(),
		StartDate:    "2026-12-01",
		Participants: 2,
	})
	require.NoError(t, err)

	b := out.Booking
	assert.Equal(t, int64(200), b.Amount)
	assert.Equal(t, models.PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, models.MethodSePay, b.PaymentMethod)
	assert.Equal(t, user, b.User)
	assert.True(t, departure.Equal(b.StartDate))
	assert.Regexp(t, `^DH[0-9A-Z]+$`, b.OrderCode)

	assert.Equal(t, b.OrderCode, out.Payment.OrderCode)
	assert.Equal(t, int64(200), out.Payment.Amount)
	assert.Contains(t, out.Payment.QRCodeURL, b.OrderCode)

	// Intake never touches the ledger.
	assert.Equal(t, 0, store.startDate(tour.ID, departure).Participants)
}

func TestCreateCheckout_DefaultsToOneParticipant(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(150, 10, departure)
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)

	out, err := bs.CreateCheckout(context.Background(), primitive.NewObjectID(), CheckoutRequest{
		TourID:    tour.ID.Hex(),
		StartDate: "2026-12-01T15:30:00+07:00",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Booking.Participants)
	assert.Equal(t, int64(150), out.Booking.Amount)
}

func TestCreateCheckout_Rejections(t *testing.T) {
	store := newMemStore()
	open := store.seedTour(100, 4, departure)
	full := store.seedTour(100, 2, departure)
	_, err := store.AdjustStartDate(context.Background(), full.ID, departure, 2)
	require.NoError(t, err)
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)

	tests := []struct {
		name string
		req  CheckoutRequest
		want error
	}{
		{"malformed tour id", CheckoutRequest{TourID: "nope", StartDate: "2026-12-01"}, models.ErrBadRequest},
		{"unknown tour", CheckoutRequest{TourID: primitive.NewObjectID().Hex(), StartDate: "2026-12-01"}, models.ErrNotFound},
		{"bad date", CheckoutRequest{TourID: open.ID.Hex(), StartDate: "01/12/2026"}, models.ErrBadRequest},
		{"no departure that day", CheckoutRequest{TourID: open.ID.Hex(), StartDate: "2026-12-02"}, models.ErrBadRequest},
		{"sold out", CheckoutRequest{TourID: full.ID.Hex(), StartDate: "2026-12-01"}, models.ErrConflict},
		{"not enough seats", CheckoutRequest{TourID: open.ID.Hex(), StartDate: "2026-12-01", Participants: 5}, models.ErrConflict},
		{"negative participants", CheckoutRequest{TourID: open.ID.Hex(), StartDate: "2026-12-01", Participants: -1}, models.ErrBadRequest},
		{"unknown gateway", CheckoutRequest{TourID: open.ID.Hex(), StartDate: "2026-12-01", PaymentMethod: "paypal"}, models.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bs.CreateCheckout(context.Background(), primitive.NewObjectID(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	all, _, _ := store.ListBookings(context.Background(), models.BookingFilter{}, 0, 100)
	assert.Empty(t, all)
}

func TestSeedTour_BurstWithinOneSecond(t *testing.T) {
	store := newMemStore()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tour := store.seedTour(100, 4, departure)
		require.False(t, seen[tour.Name], "duplicate tour name %q", tour.Name)
		seen[tour.Name] = true
	}
}

func TestCreateCheckout_GatewayFailureDiscardsBooking(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	gw := &stubGateway{name: payment.GatewaySePay, err: models.ErrTransientUpstream}
	bs := newBookingService(t, store, gw, nil)

	_, err := bs.CreateCheckout(context.Background(), primitive.NewObjectID(), CheckoutRequest{
		TourID:    tour.ID.Hex(),
		StartDate: "2026-12-01",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransientUpstream)

	_, total, err := store.ListBookings(context.Background(), models.BookingFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCheckoutThenSettle(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)
	ss := newSettlement(store, config.MismatchAccept, nil)

	out, err := bs.CreateCheckout(context.Background(), primitive.NewObjectID(), CheckoutRequest{
		TourID:       tour.ID.Hex(),
		StartDate:    "2026-12-01",
		Participants: 2,
	})
	require.NoError(t, err)

	res, err := ss.HandleWebhook(context.Background(), transfer("Thanh toan "+out.Booking.OrderCode, 200))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, 2, store.startDate(tour.ID, departure).Participants)
}

func paidBooking(t *testing.T, store *memStore, tour *models.Tour, seats int, code string) *models.Booking {
	t.Helper()
	b := store.seedBooking(tour, departure, seats, code)
	res, err := newSettlement(store, config.MismatchAccept, nil).HandleWebhook(context.Background(), transfer(code, b.Amount))
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, res.Outcome)
	got, err := store.GetBookingByID(context.Background(), b.ID)
	require.NoError(t, err)
	return got
}

func TestUpdateBooking_PaidAdjustsLedger(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	b := paidBooking(t, store, tour, 2, "DHUPD1")
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)

	five := 5
	note := "  vegetarian  "
	got, err := bs.UpdateBooking(context.Background(), b.ID, BookingUpdate{Participants: &five, SpecialRequirements: &note})
	require.NoError(t, err)
	assert.Equal(t, 5, got.Participants)
	assert.Equal(t, "vegetarian", got.SpecialRequirements)
	assert.Equal(t, int64(200), got.Amount)
	assert.Equal(t, 5, store.startDate(tour.ID, departure).Participants)

	one := 1
	_, err = bs.UpdateBooking(context.Background(), b.ID, BookingUpdate{Participants: &one})
	require.NoError(t, err)
	assert.Equal(t, 1, store.startDate(tour.ID, departure).Participants)
}

func TestUpdateBooking_UnpaidParticipantsConflict(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	b := store.seedBooking(tour, departure, 2, "DHUPD2")
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)

	three := 3
	_, err := bs.UpdateBooking(context.Background(), b.ID, BookingUpdate{Participants: &three})
	assert.ErrorIs(t, err, models.ErrConflict)

	note := "window seat"
	got, err := bs.UpdateBooking(context.Background(), b.ID, BookingUpdate{SpecialRequirements: &note})
	require.NoError(t, err)
	assert.Equal(t, "window seat", got.SpecialRequirements)
	assert.Equal(t, 2, got.Participants)
}

func TestCancelBooking(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	paid := paidBooking(t, store, tour, 3, "DHCAN1")
	unpaid := store.seedBooking(tour, departure, 2, "DHCAN2")
	spy := &notifierSpy{}
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, spy)

	got, err := bs.CancelBooking(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, got.PaymentStatus)
	assert.Equal(t, 0, store.startDate(tour.ID, departure).Participants)

	_, err = bs.CancelBooking(context.Background(), unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, store.startDate(tour.ID, departure).Participants)

	_, err = bs.CancelBooking(context.Background(), paid.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Len(t, spy.calls, 2)

	// A late payment for a cancelled booking is recorded but not applied.
	res, err := newSettlement(store, config.MismatchAccept, nil).HandleWebhook(context.Background(), transfer("DHCAN2", 200))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPayable, res.Outcome)
}

func TestRefundBooking(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	b := paidBooking(t, store, tour, 2, "DHREF1")
	spy := &notifierSpy{}
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, spy)

	_, err := bs.RefundBooking(context.Background(), b.ID, RefundRequest{Amount: 500, Reason: "weather"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.Equal(t, 2, store.startDate(tour.ID, departure).Participants)

	got, err := bs.RefundBooking(context.Background(), b.ID, RefundRequest{Amount: 150, Reason: "weather"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, int64(150), got.RefundAmount)
	assert.NotNil(t, got.RefundDate)
	assert.Equal(t, 0, store.startDate(tour.ID, departure).Participants)
	assert.Equal(t, []string{models.NotificationRefund + ":Refund issued"}, spy.calls)

	_, err = bs.RefundBooking(context.Background(), b.ID, RefundRequest{Amount: 10, Reason: "again"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestDeleteBooking(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	paid := paidBooking(t, store, tour, 1, "DHDEL1")
	unpaid := store.seedBooking(tour, departure, 1, "DHDEL2")
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)

	assert.ErrorIs(t, bs.DeleteBooking(context.Background(), paid.ID), models.ErrConflict)
	assert.NoError(t, bs.DeleteBooking(context.Background(), unpaid.ID))
	assert.ErrorIs(t, bs.DeleteBooking(context.Background(), unpaid.ID), models.ErrNotFound)
}

func TestBookingStats(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	paidBooking(t, store, tour, 1, "DHSTAT1")
	store.seedBooking(tour, departure, 1, "DHSTAT2")
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)

	stats, err := bs.Stats(context.Background(), "status", 0)
	require.NoError(t, err)
	assert.Len(t, stats.Status, 2)

	_, err = bs.Stats(context.Background(), "bogus", 0)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestTransactionStatus(t *testing.T) {
	store := newMemStore()
	tour := store.seedTour(100, 10, departure)
	b := store.seedBooking(tour, departure, 1, "DHTS1")
	bs := newBookingService(t, store, &stubGateway{name: payment.GatewaySePay}, nil)

	_, err := bs.TransactionStatus(context.Background(), "DHTS1", primitive.NewObjectID(), false)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = bs.TransactionStatus(context.Background(), "DHTS1", b.User, false)
	assert.ErrorIs(t, err, models.ErrBadRequest, "sepay has no status query")

	_, err = bs.TransactionStatus(context.Background(), "DHNONE", b.User, true)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
