package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/tourbook/internal/cache"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/payment"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notifier delivers an in-app notification to one user.
type Notifier interface {
	Notify(ctx context.Context, userID primitive.ObjectID, title, content, kind string) error
}

type CheckoutRequest struct {
	TourID              string `json:"tourId" validate:"required"`
	StartDate           string `json:"startDate" validate:"required"`
	Participants        int    `json:"participants" validate:"omitempty,min=1,max=100"`
	SpecialRequirements string `json:"specialRequirements" validate:"max=1000"`
	PaymentMethod       string `json:"paymentMethod" validate:"omitempty,oneof=sepay momo"`
}

type Checkout struct {
	Booking *models.Booking        `json:"booking"`
	Payment *payment.PaymentIntent `json:"payment"`
}

type BookingUpdate struct {
	Participants        *int    `json:"participants" validate:"omitempty,min=1,max=100"`
	SpecialRequirements *string `json:"specialRequirements" validate:"omitempty,max=1000"`
}

type RefundRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type BookingStats struct {
	Status  []models.StatusCount    `json:"status,omitempty"`
	Revenue []models.MonthlyRevenue `json:"revenue,omitempty"`
	Top     []models.TopBookedTour  `json:"top,omitempty"`
}

type BookingService struct {
	bookings     models.BookingRepo
	tours        models.TourRepo
	transactions models.TransactionRepo
	tx           models.TxRunner
	ledger       *CapacityLedger
	gateways     *payment.Registry
	coder        *helpers.OrderCoder
	locker       cache.Locker
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time
}

type BookingDeps struct {
	Bookings     models.BookingRepo
	Tours        models.TourRepo
	Transactions models.TransactionRepo
	Tx           models.TxRunner
	Ledger       *CapacityLedger
	Gateways     *payment.Registry
	Coder        *helpers.OrderCoder
	Locker       cache.Locker
	Notifier     Notifier
	Logger       *slog.Logger
}

func NewBookingService(d BookingDeps) *BookingService {
	if d.Locker == nil {
		d.Locker = cache.NewLocalLocker()
	}
	if d.Ledger == nil {
		d.Ledger = NewCapacityLedger(d.Tours)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &BookingService{
		bookings:     d.Bookings,
		tours:        d.Tours,
		transactions: d.Transactions,
		tx:           d.Tx,
		ledger:       d.Ledger,
		gateways:     d.Gateways,
		coder:        d.Coder,
		locker:       d.Locker,
		notifier:     d.Notifier,
		logger:       d.Logger,
		now:          time.Now,
	}
}

// CreateCheckout prices the request, stores an Unpaid booking under a fresh
// order code and asks the chosen gateway for a payment intent. No seats are
// taken until the payment settles.
func (bs *BookingService) CreateCheckout(ctx context.Context, userID primitive.ObjectID, req CheckoutRequest) (*Checkout, error) {
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if req.Participants == 0 {
		req.Participants = 1
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.MethodSePay
	}

	tourID, err := ParseID("tour", req.TourID)
	if err != nil {
		return nil, err
	}
	day, err := helpers.ParseDate(req.StartDate)
	if err != nil {
		return nil, validationError(err)
	}
	gateway, err := bs.gateways.Get(req.PaymentMethod)
	if err != nil {
		return nil, validationError(err)
	}

	tour, err := bs.tours.GetTourByID(ctx, tourID)
	if err != nil {
		return nil, err
	}
	i := tour.FindStartDate(day)
	if i < 0 {
		return nil, fmt.Errorf("tour %q has no departure on %s: %w", tour.Name, day.Format("2006-01-02"), models.ErrBadRequest)
	}
	sd := tour.StartDates[i]
	if sd.SoldOut {
		return nil, fmt.Errorf("departure on %s is sold out: %w", day.Format("2006-01-02"), models.ErrConflict)
	}
	if left := tour.MaxGroupSize - sd.Participants; req.Participants > left {
		return nil, fmt.Errorf("only %d seats left on %s: %w", left, day.Format("2006-01-02"), models.ErrConflict)
	}

	booking := &models.Booking{
		Tour:                tour.ID,
		User:                userID,
		Amount:              tour.Price * int64(req.Participants),
		Participants:        req.Participants,
		SpecialRequirements: strings.TrimSpace(req.SpecialRequirements),
		StartDate:           sd.Date,
		OrderCode:           bs.coder.Next(),
		PaymentMethod:       gateway.Name(),
		PaymentStatus:       models.PaymentUnpaid,
	}
	if err := models.Validate.Struct(booking); err != nil {
		return nil, validationError(err)
	}
	booking, err = bs.bookings.CreateBooking(ctx, booking)
	if err != nil {
		return nil, err
	}

	intent, err := gateway.CreatePaymentIntent(ctx, payment.PaymentIntentRequest{
		OrderCode:   booking.OrderCode,
		Amount:      booking.Amount,
		Description: fmt.Sprintf("%s %s", tour.Name, booking.OrderCode),
	})
	if err != nil {
		if derr := bs.bookings.DeleteBookingIf(ctx, booking.ID, []string{models.PaymentUnpaid}); derr != nil {
			bs.logger.Warn("Failed to discard booking after gateway error", "order_code", booking.OrderCode, "error", derr)
		}
		return nil, err
	}

	bs.logger.Info("Checkout created",
		"order_code", booking.OrderCode,
		"tour_id", tour.ID.Hex(),
		"amount", booking.Amount,
		"gateway", gateway.Name(),
	)
	return &Checkout{Booking: booking, Payment: intent}, nil
}

func (bs *BookingService) GetBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	return bs.bookings.GetBookingByID(ctx, id)
}

func (bs *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter, page Page) ([]*models.Booking, int64, error) {
	page = page.Normalize()
	return bs.bookings.ListBookings(ctx, filter, page.Offset(), page.Limit)
}

func (bs *BookingService) ListUserBookings(ctx context.Context, userID primitive.ObjectID, page Page) ([]*models.Booking, int64, error) {
	return bs.ListBookings(ctx, models.BookingFilter{User: userID}, page)
}

// UpdateBooking edits a booking. The amount is never recomputed. Participant
// changes are only accepted on Paid bookings, where the seats are already
// counted and the ledger moves by the difference.
func (bs *BookingService) UpdateBooking(ctx context.Context, id primitive.ObjectID, upd BookingUpdate) (*models.Booking, error) {
	if err := models.Validate.Struct(upd); err != nil {
		return nil, validationError(err)
	}
	current, err := bs.bookings.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock, err := bs.locker.Lock(ctx, current.OrderCode)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err = bs.bookings.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if upd.SpecialRequirements != nil {
		updates["specialRequirements"] = strings.TrimSpace(*upd.SpecialRequirements)
	}
	delta := 0
	if upd.Participants != nil && *upd.Participants != current.Participants {
		if current.PaymentStatus != models.PaymentPaid {
			return nil, fmt.Errorf("participants can only change on a paid booking, create a new checkout instead: %w", models.ErrConflict)
		}
		delta = *upd.Participants - current.Participants
		updates["participants"] = *upd.Participants
	}
	if len(updates) == 0 {
		return current, nil
	}

	match := map[string]interface{}{
		"paymentStatus": current.PaymentStatus,
		"participants":  current.Participants,
	}
	var updated *models.Booking
	err = inTx(ctx, bs.tx, func(ctx context.Context) error {
		if _, err := bs.ledger.Adjust(ctx, current.Tour, current.StartDate, delta); err != nil {
			return err
		}
		b, err := bs.bookings.UpdateBookingIf(ctx, id, match, updates)
		if err != nil {
			bs.compensate(ctx, current, delta)
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelBooking moves Unpaid or Paid to Cancelled, releasing seats a Paid
// booking held.
func (bs *BookingService) CancelBooking(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	b, err := bs.transition(ctx, id, []string{models.PaymentUnpaid, models.PaymentPaid}, func(b *models.Booking) map[string]interface{} {
		return map[string]interface{}{"paymentStatus": models.PaymentCancelled}
	})
	if err != nil {
		return nil, err
	}
	bs.notify(ctx, b.User, "Booking cancelled",
		fmt.Sprintf("Your booking %s has been cancelled.", b.OrderCode), models.NotificationBooking)
	return b, nil
}

// RefundBooking moves Paid to Refunded and releases its seats.
func (bs *BookingService) RefundBooking(ctx context.Context, id primitive.ObjectID, req RefundRequest) (*models.Booking, error) {
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	b, err := bs.transition(ctx, id, []string{models.PaymentPaid}, func(b *models.Booking) map[string]interface{} {
		now := bs.now().UTC()
		return map[string]interface{}{
			"paymentStatus": models.PaymentRefunded,
			"refundAmount":  req.Amount,
			"refundReason":  strings.TrimSpace(req.Reason),
			"refundDate":    now,
		}
	}, func(b *models.Booking) error {
		if req.Amount > b.Amount {
			return fmt.Errorf("refund %d exceeds booking amount %d: %w", req.Amount, b.Amount, models.ErrBadRequest)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	bs.notify(ctx, b.User, "Refund issued",
		fmt.Sprintf("We refunded %d for booking %s.", req.Amount, b.OrderCode), models.NotificationRefund)
	return b, nil
}

// transition runs a status change under the order lock so it cannot
// interleave with a settlement of the same booking.
func (bs *BookingService) transition(
	ctx context.Context,
	id primitive.ObjectID,
	from []string,
	updates func(b *models.Booking) map[string]interface{},
	checks ...func(b *models.Booking) error,
) (*models.Booking, error) {
	current, err := bs.bookings.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock, err := bs.locker.Lock(ctx, current.OrderCode)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err = bs.bookings.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !contains(from, current.PaymentStatus) {
		return nil, fmt.Errorf("booking %s is %s: %w", current.OrderCode, current.PaymentStatus, models.ErrConflict)
	}
	for _, check := range checks {
		if err := check(current); err != nil {
			return nil, err
		}
	}

	release := 0
	if current.HoldsSeats() {
		release = -current.Participants
	}
	var updated *models.Booking
	err = inTx(ctx, bs.tx, func(ctx context.Context) error {
		if _, err := bs.ledger.Adjust(ctx, current.Tour, current.StartDate, release); err != nil {
			return err
		}
		b, err := bs.bookings.UpdateBookingIf(ctx, id, map[string]interface{}{"paymentStatus": current.PaymentStatus}, updates(current))
		if err != nil {
			bs.compensate(ctx, current, release)
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	bs.logger.Info("Booking status changed",
		"order_code", current.OrderCode,
		"from", current.PaymentStatus,
		"to", updated.PaymentStatus,
	)
	return updated, nil
}

// compensate undoes a ledger move whose booking write failed. Inside a real
// transaction the abort makes this redundant.
func (bs *BookingService) compensate(ctx context.Context, b *models.Booking, applied int) {
	if applied == 0 {
		return
	}
	if _, err := bs.ledger.Adjust(ctx, b.Tour, b.StartDate, -applied); err != nil {
		bs.logger.Error("Failed to revert capacity change",
			"order_code", b.OrderCode,
			"delta", -applied,
			"error", err,
		)
	}
}

func (bs *BookingService) DeleteBooking(ctx context.Context, id primitive.ObjectID) error {
	return bs.bookings.DeleteBookingIf(ctx, id, []string{models.PaymentUnpaid, models.PaymentCancelled})
}

func (bs *BookingService) Stats(ctx context.Context, kind string, limit int) (*BookingStats, error) {
	var (
		out BookingStats
		err error
	)
	switch kind {
	case "status":
		out.Status, err = bs.bookings.StatusRatio(ctx)
	case "revenue":
		out.Revenue, err = bs.bookings.MonthlyRevenue(ctx)
	case "top":
		out.Top, err = bs.bookings.TopBooked(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown stats %q: %w", kind, models.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (bs *BookingService) ListTransactions(ctx context.Context, page Page) ([]*models.Transaction, int64, error) {
	page = page.Normalize()
	return bs.transactions.ListTransactions(ctx, page.Offset(), page.Limit)
}

type statusQuerier interface {
	QueryStatus(ctx context.Context, orderID string) (*payment.TransactionStatus, error)
}

// TransactionStatus asks the booking's gateway for the payment state. Only
// gateways with a query API support it.
func (bs *BookingService) TransactionStatus(ctx context.Context, orderCode string, userID primitive.ObjectID, isAdmin bool) (*payment.TransactionStatus, error) {
	booking, err := bs.bookings.GetBookingByOrderCode(ctx, strings.TrimSpace(orderCode))
	if err != nil {
		return nil, err
	}
	if booking.User != userID && !isAdmin {
		return nil, fmt.Errorf("booking belongs to another user: %w", models.ErrForbidden)
	}
	gateway, err := bs.gateways.Get(booking.PaymentMethod)
	if err != nil {
		return nil, err
	}
	q, ok := gateway.(statusQuerier)
	if !ok {
		return nil, fmt.Errorf("%s does not support status queries: %w", gateway.Name(), models.ErrBadRequest)
	}
	return q.QueryStatus(ctx, booking.OrderCode)
}

func (bs *BookingService) notify(ctx context.Context, userID primitive.ObjectID, title, content, kind string) {
	if bs.notifier == nil {
		return
	}
	if err := bs.notifier.Notify(ctx, userID, title, content, kind); err != nil && !errors.Is(err, context.Canceled) {
		bs.logger.Warn("Failed to send notification", "user_id", userID.Hex(), "error", err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
