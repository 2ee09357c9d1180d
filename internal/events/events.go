package events

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const QueueBookingPaid = "booking.paid"

// BookingPaidEvent is emitted once per booking, after its settlement commits.
type BookingPaidEvent struct {
	BookingID      primitive.ObjectID `json:"booking_id"`
	OrderCode      string             `json:"order_code"`
	UserID         primitive.ObjectID `json:"user_id"`
	TourID         primitive.ObjectID `json:"tour_id"`
	Amount         int64              `json:"amount"`
	AmountReceived int64              `json:"amount_received"`
	Participants   int                `json:"participants"`
	StartDate      time.Time          `json:"start_date"`
	PaidAt         time.Time          `json:"paid_at"`
	Gateway        string             `json:"gateway"`
}

func (e BookingPaidEvent) AmountMismatch() bool {
	return e.Amount != e.AmountReceived
}

type Publisher interface {
	PublishBookingPaid(ctx context.Context, ev BookingPaidEvent) error
}

type Handler func(ctx context.Context, ev BookingPaidEvent) error

// LocalPublisher hands events straight to a handler. It stands in for the
// broker on single-instance deployments.
type LocalPublisher struct {
	handler Handler
}

func NewLocalPublisher(handler Handler) *LocalPublisher {
	return &LocalPublisher{handler: handler}
}

func (p *LocalPublisher) PublishBookingPaid(ctx context.Context, ev BookingPaidEvent) error {
	if p.handler == nil {
		return nil
	}
	return p.handler(ctx, ev)
}

var _ Publisher = (*LocalPublisher)(nil)
