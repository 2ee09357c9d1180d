package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PaymentUnpaid    = "Unpaid"
	PaymentPaid      = "Paid"
	PaymentCancelled = "Cancelled"
	PaymentRefunded  = "Refunded"

	MethodSePay = "sepay"
	MethodMoMo  = "momo"
)

// Booking is a reservation attempt. Amount is the tour price times
// participants at checkout and never changes afterwards.
type Booking struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Tour                primitive.ObjectID `bson:"tour" json:"tour"`
	User                primitive.ObjectID `bson:"user" json:"user"`
	Amount              int64              `bson:"amount" json:"amount"`
	Participants        int                `bson:"participants" json:"participants" validate:"min=1"`
	SpecialRequirements string             `bson:"specialRequirements,omitempty" json:"specialRequirements,omitempty" validate:"max=1000"`
	StartDate           time.Time          `bson:"startDate" json:"startDate"`
	OrderCode           string             `bson:"orderCode" json:"orderCode"`
	PaymentMethod       string             `bson:"paymentMethod" json:"paymentMethod" validate:"oneof=sepay momo"`
	PaymentStatus       string             `bson:"paymentStatus" json:"paymentStatus"`
	PaymentTime         *time.Time         `bson:"paymentTime,omitempty" json:"paymentTime,omitempty"`
	RefundDate          *time.Time         `bson:"refundDate,omitempty" json:"refundDate,omitempty"`
	RefundAmount        int64              `bson:"refundAmount,omitempty" json:"refundAmount,omitempty"`
	RefundReason        string             `bson:"refundReason,omitempty" json:"refundReason,omitempty"`
	CreatedAt           time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (b *Booking) BeforeCreate() error {
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.PaymentStatus == "" {
		b.PaymentStatus = PaymentUnpaid
	}
	if b.PaymentMethod == "" {
		b.PaymentMethod = MethodSePay
	}
	b.StartDate = DayStart(b.StartDate)
	return nil
}

// HoldsSeats reports whether the booking is counted in its departure's
// participants.
func (b *Booking) HoldsSeats() bool {
	return b.PaymentStatus == PaymentPaid
}

type BookingFilter struct {
	User          primitive.ObjectID
	Tour          primitive.ObjectID
	PaymentStatus string
}

type StatusCount struct {
	Status string `bson:"status" json:"status"`
	Count  int    `bson:"count" json:"count"`
}

type MonthlyRevenue struct {
	Year         int   `bson:"year" json:"year"`
	Month        int   `bson:"month" json:"month"`
	TotalRevenue int64 `bson:"totalRevenue" json:"totalRevenue"`
	TotalBooking int   `bson:"totalBooking" json:"totalBooking"`
}

type TopBookedTour struct {
	TourID      primitive.ObjectID `bson:"tourId" json:"tourId"`
	TourName    string             `bson:"tourName" json:"tourName"`
	TourPrice   int64              `bson:"tourPrice" json:"tourPrice"`
	Photo       string             `bson:"photo,omitempty" json:"photo,omitempty"`
	BookedCount int                `bson:"bookedCount" json:"bookedCount"`
	Revenue     int64              `bson:"revenue" json:"revenue"`
}

type BookingRepo interface {
	CreateBooking(ctx context.Context, booking *Booking) (*Booking, error)
	GetBookingByID(ctx context.Context, id primitive.ObjectID) (*Booking, error)
	GetBookingByOrderCode(ctx context.Context, orderCode string) (*Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter, offset, limit int) ([]*Booking, int64, error)
	// MarkPaid flips an Unpaid booking to Paid. It reports false when the
	// booking was not Unpaid at write time.
	MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time) (bool, error)
	// UpdateBookingIf applies updates only while every field in match still
	// holds; ErrConflict otherwise.
	UpdateBookingIf(ctx context.Context, id primitive.ObjectID, match, updates map[string]interface{}) (*Booking, error)
	DeleteBookingIf(ctx context.Context, id primitive.ObjectID, statuses []string) error
	StatusRatio(ctx context.Context) ([]StatusCount, error)
	MonthlyRevenue(ctx context.Context) ([]MonthlyRevenue, error)
	TopBooked(ctx context.Context, limit int) ([]TopBookedTour, error)
}
